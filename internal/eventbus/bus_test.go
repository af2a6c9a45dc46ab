package eventbus

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishN(b *Bus, n int) {
	for i := 0; i < n; i++ {
		b.Publish(fmt.Sprintf("evt-%d", i), map[string]int{"seq": i})
	}
}

func TestBus_ReplayAfterKnownID(t *testing.T) {
	bus := New(10, nil)
	publishN(bus, 5)

	sub := bus.Subscribe("evt-1")
	defer sub.Close()

	for want := 2; want < 5; want++ {
		select {
		case evt := <-sub.C:
			assert.Equal(t, fmt.Sprintf("evt-%d", want), evt.ID)
		default:
			t.Fatalf("missing replayed event evt-%d", want)
		}
	}
	select {
	case evt := <-sub.C:
		t.Fatalf("unexpected extra event %s", evt.ID)
	default:
	}
}

func TestBus_UnknownIDNoReplay(t *testing.T) {
	bus := New(10, nil)
	publishN(bus, 5)

	sub := bus.Subscribe("no-such-id")
	defer sub.Close()

	select {
	case evt := <-sub.C:
		t.Fatalf("unexpected replayed event %s", evt.ID)
	default:
	}

	bus.Publish("live-1", nil)
	evt := <-sub.C
	assert.Equal(t, "live-1", evt.ID)
}

func TestBus_OverflowEvictsOldest(t *testing.T) {
	bus := New(1000, nil)
	publishN(bus, 1001)

	assert.Equal(t, 1000, bus.BufferLen())

	// evt-0 was evicted, so resuming from it yields no replay.
	sub := bus.Subscribe("evt-0")
	defer sub.Close()
	select {
	case evt := <-sub.C:
		t.Fatalf("unexpected replay %s after eviction", evt.ID)
	default:
	}

	// evt-1 is now the oldest; everything after it replays in order.
	sub2 := bus.Subscribe("evt-1")
	defer sub2.Close()
	for want := 2; want <= 1000; want++ {
		select {
		case evt := <-sub2.C:
			require.Equal(t, fmt.Sprintf("evt-%d", want), evt.ID)
		default:
			t.Fatalf("missing replayed event evt-%d", want)
		}
	}
}

func TestBus_SlowSubscriberDropped(t *testing.T) {
	bus := New(10, nil)
	sub := bus.Subscribe("")

	// Fill the delivery buffer and one more.
	for i := 0; i < subscriberChanSize+1; i++ {
		bus.Publish(fmt.Sprintf("evt-%d", i), nil)
	}

	assert.Equal(t, 0, bus.Subscribers())

	// Channel is closed after the buffered events drain.
	n := 0
	for range sub.C {
		n++
	}
	assert.Equal(t, subscriberChanSize, n)
}

func TestBus_CloseIdempotent(t *testing.T) {
	bus := New(10, nil)
	sub := bus.Subscribe("")
	sub.Close()
	sub.Close()
	assert.Equal(t, 0, bus.Subscribers())
}
