package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintwatch/internal/domain"
	"mintwatch/internal/eventbus"
	"mintwatch/internal/holdings"
	"mintwatch/internal/ingest"
	"mintwatch/internal/storage"
	"mintwatch/internal/storage/memory"
)

func strp(s string) *string   { return &s }
func f64p(f float64) *float64 { return &f }

type fakeIntake struct {
	source  string
	entries []ingest.Entry
	result  ingest.AcceptResult
	pending int
}

func (f *fakeIntake) Accept(source string, entries []ingest.Entry) ingest.AcceptResult {
	f.source = source
	f.entries = entries
	return f.result
}

func (f *fakeIntake) Pending() int { return f.pending }

type fixture struct {
	srv    *Server
	intake *fakeIntake
	cache  *holdings.Cache
	bus    *eventbus.Bus
	store  *memory.TransactionStore
	http   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		intake: &fakeIntake{},
		cache:  holdings.NewCache(0),
		bus:    eventbus.New(0, nil),
		store:  memory.NewTransactionStore(),
	}
	f.srv = New(f.intake, f.cache, f.bus, f.store, Options{Heartbeat: 50 * time.Millisecond})
	f.http = httptest.NewServer(f.srv.Router())
	t.Cleanup(f.http.Close)
	return f
}

func (f *fixture) seedCard(mint, wallet string, amount float64, ts int64) {
	rec := &domain.TransactionRecord{
		Signature:     "seed-" + mint + "-" + wallet,
		Timestamp:     ts,
		Mint:          strp(mint),
		Wallet:        strp(wallet),
		TokenAmount:   f64p(amount),
		TokenStandard: strp("Fungible"),
	}
	if !f.cache.Upsert(rec) {
		panic("seed rejected")
	}
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestAcceptTx_EntriesQueued(t *testing.T) {
	f := newFixture(t)
	f.intake.result = ingest.AcceptResult{Queued: 2, TotalPending: 2}

	payload := `{"source":"https://feed.example/ag","entries":[{"signature":"A","fundOrigin":"wallet1","tags":"AG"},{"signature":"B"}]}`
	resp, err := http.Post(f.http.URL+"/tx", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	body := decodeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 2.0, body["queued"])
	assert.Equal(t, "Signatures queued for processing", body["message"])

	assert.Equal(t, "https://feed.example/ag", f.intake.source)
	require.Len(t, f.intake.entries, 2)
	assert.Equal(t, "wallet1", *f.intake.entries[0].FundOrigin)
	assert.Equal(t, ingest.StringList{"AG"}, f.intake.entries[0].Tags)
}

func TestAcceptTx_LegacySignaturesArray(t *testing.T) {
	f := newFixture(t)
	f.intake.result = ingest.AcceptResult{Queued: 2, TotalPending: 2}

	payload := `{"source":"s","signatures":["A","B"]}`
	resp, err := http.Post(f.http.URL+"/tx", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, f.intake.entries, 2)
	assert.Equal(t, "A", f.intake.entries[0].Signature)
}

func TestAcceptTx_EmptyBodyRejected(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Post(f.http.URL+"/tx", "application/json", strings.NewReader(`{"source":"s"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAcceptTx_AllInvalidRejected(t *testing.T) {
	f := newFixture(t)
	f.intake.result = ingest.AcceptResult{Rejected: []string{"bogus"}}

	resp, err := http.Post(f.http.URL+"/tx", "application/json",
		strings.NewReader(`{"entries":[{"signature":"bogus"}]}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMints_SummaryAndWallets(t *testing.T) {
	f := newFixture(t)
	f.seedCard("MintA", "W1", 100, 2000)
	f.seedCard("MintB", "W2", 50, 1000)

	resp, err := http.Get(f.http.URL + "/mints?limit=1")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, 1.0, body["count"])
	data := body["data"].([]any)
	first := data[0].(map[string]any)
	assert.Equal(t, "MintA", first["mint"], "ordered by last_timestamp descending")
	assert.Equal(t, 1.0, first["wallets_count"])
	assert.Nil(t, first["wallets"])

	resp, err = http.Get(f.http.URL + "/mints?includeWallets=true")
	require.NoError(t, err)
	body = decodeBody(t, resp)
	data = body["data"].([]any)
	first = data[0].(map[string]any)
	require.NotNil(t, first["wallets"])
	wallet := first["wallets"].([]any)[0].(map[string]any)
	assert.Equal(t, "W1", wallet["wallet"])
}

func TestMintDetail_PagingAndNotFound(t *testing.T) {
	f := newFixture(t)
	f.seedCard("MintA", "W1", 100, 1000)
	f.seedCard("MintA", "W2", 50, 2000)
	f.seedCard("MintA", "W3", 25, 3000)

	resp, err := http.Get(f.http.URL + "/mints/MintA?limit=2&offset=1")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, 3.0, body["wallets_count"])
	wallets := body["wallets"].([]any)
	require.Len(t, wallets, 2)
	assert.Equal(t, "W2", wallets[0].(map[string]any)["wallet"], "last_seen descending, offset 1")

	resp, err = http.Get(f.http.URL + "/mints/Unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTxLookup(t *testing.T) {
	f := newFixture(t)
	rec := &domain.TransactionRecord{
		Signature:   "Sig1",
		Timestamp:   1000,
		Mint:        strp("MintA"),
		TokenSymbol: strp("AAA"),
	}
	_, err := f.store.InsertBatch(context.Background(), []*domain.TransactionRecord{rec})
	require.NoError(t, err)

	resp, err := http.Get(f.http.URL + "/tx/Sig1")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, "Sig1", body["signature"])

	resp, err = http.Get(f.http.URL + "/tx/Missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(f.http.URL + "/tx?mint=MintA&limit=10")
	require.NoError(t, err)
	var result storage.QueryResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	resp.Body.Close()
	assert.Equal(t, 1, result.Count)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "Sig1", result.Data[0].Signature)
}

func TestHealthAndStats(t *testing.T) {
	f := newFixture(t)
	f.intake.pending = 4
	f.seedCard("MintA", "W1", 100, 1000)
	for i, sym := range []string{"AAA", "AAA", "BBB"} {
		rec := &domain.TransactionRecord{
			Signature:   fmt.Sprintf("sig-%d", i),
			Timestamp:   1000,
			TokenSymbol: strp(sym),
		}
		_, err := f.store.InsertBatch(context.Background(), []*domain.TransactionRecord{rec})
		require.NoError(t, err)
	}

	resp, err := http.Get(f.http.URL + "/health")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "connected", body["store"])
	assert.Equal(t, 4.0, body["pending"])
	assert.Equal(t, 1.0, body["trackedMints"])

	resp, err = http.Get(f.http.URL + "/stats")
	require.NoError(t, err)
	body = decodeBody(t, resp)
	top := body["topTokens"].([]any)
	require.NotEmpty(t, top)
	first := top[0].(map[string]any)
	assert.Equal(t, "AAA", first["symbol"])
	assert.Equal(t, 2.0, first["count"])
}

func TestFeedTest_InjectsCacheAndFeed(t *testing.T) {
	f := newFixture(t)
	sub := f.bus.Subscribe("")
	defer sub.Close()

	payload := `{"signature":"TestSig","timestamp":1700000000000,"mint":"MintT","to_user_account":"WT","token_amount":5,"token_standard":"Fungible"}`
	resp, err := http.Post(f.http.URL+"/feed/test", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, 1.0, body["emitted"])

	assert.Equal(t, 5.0, f.cache.Total("MintT"), "millisecond timestamp sanitized and card upserted")

	var ids []string
	for i := 0; i < 2; i++ {
		select {
		case evt := <-sub.C:
			ids = append(ids, evt.ID)
		case <-time.After(time.Second):
			t.Fatal("expected card update and record events")
		}
	}
	assert.Contains(t, ids, "TestSig")
}

func TestSSE_ReplayAndLiveEvents(t *testing.T) {
	f := newFixture(t)
	f.bus.Publish("e1", map[string]string{"n": "1"})
	f.bus.Publish("e2", map[string]string{"n": "2"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.http.URL+"/feed/sse", nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", "e1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	f.bus.Publish("e3", map[string]string{"n": "3"})

	var ids []string
	reader := bufio.NewReader(resp.Body)
	for len(ids) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "id: ") {
			ids = append(ids, strings.TrimSpace(strings.TrimPrefix(line, "id: ")))
		}
	}
	assert.Equal(t, []string{"e2", "e3"}, ids, "replay after Last-Event-ID, then live")
}

func TestWS_ResumeFromLastEventID(t *testing.T) {
	f := newFixture(t)
	f.bus.Publish("e1", map[string]string{"n": "1"})
	f.bus.Publish("e2", map[string]string{"n": "2"})

	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/feed/ws?last_event_id=e1"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var evt eventbus.Event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, "e2", evt.ID)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "go_goroutines")
}
