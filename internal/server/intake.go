package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"mintwatch/internal/domain"
	"mintwatch/internal/holdings"
	"mintwatch/internal/ingest"
)

// acceptRequest is the POST /tx body. Entries is the current shape; a bare
// signatures array is accepted for older feed scripts.
type acceptRequest struct {
	Source     string         `json:"source"`
	Entries    []ingest.Entry `json:"entries"`
	Signatures []string       `json:"signatures"`
}

func (s *Server) handleAcceptTx(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	entries := req.Entries
	if len(entries) == 0 {
		for _, sig := range req.Signatures {
			entries = append(entries, ingest.Entry{Signature: sig})
		}
	}
	if len(entries) == 0 {
		s.writeError(w, http.StatusBadRequest, "Invalid or empty entries/signatures array", nil)
		return
	}

	result := s.intake.Accept(req.Source, entries)
	if result.Queued == 0 && len(result.Rejected) > 0 {
		s.writeError(w, http.StatusBadRequest, "No valid signatures in entries", nil)
		return
	}
	s.logger.Printf("accepted %d/%d entries from %s (pending %d)",
		result.Queued, len(entries), req.Source, result.TotalPending)

	body := map[string]any{
		"success":      true,
		"queued":       result.Queued,
		"totalPending": result.TotalPending,
		"flushed":      result.Flushed,
	}
	if len(result.Rejected) > 0 {
		body["rejected"] = result.Rejected
	}
	if !result.Flushed {
		body["message"] = "Signatures queued for processing"
	}
	s.writeJSON(w, http.StatusOK, body)
}

// handleFeedTest injects records straight into the cache and the feed,
// bypassing enrichment. Local testing only.
func (s *Server) handleFeedTest(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	var records []*domain.TransactionRecord
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &records); err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
	} else {
		var rec domain.TransactionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		records = append(records, &rec)
	}

	emitted := 0
	for _, rec := range records {
		if rec == nil {
			continue
		}
		rec.Timestamp = domain.SanitizeTimestamp(rec.Timestamp)
		if s.cache.Upsert(rec) && rec.Mint != nil {
			holdings.EmitCardUpdate(s.bus, s.cache, *rec.Mint)
		}
		id := rec.Signature
		if id == "" {
			id = fmt.Sprintf("test-%d-%d", s.now().UnixMilli(), emitted)
		}
		s.bus.Publish(id, rec)
		emitted++
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "emitted": emitted})
}
