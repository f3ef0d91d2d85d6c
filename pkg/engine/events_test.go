package engine

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestBus_Publish_AssignsIncreasingSeq(t *testing.T) {
	bus := NewBus(16)
	opID := uuid.New()

	for i := 0; i < 5; i++ {
		bus.Publish(Event{OperationID: opID, Kind: EventOutputChunk})
	}
	bus.Close()

	var last uint64
	count := 0
	for ev := range bus.Events() {
		count++
		if ev.Seq <= last {
			t.Errorf("Expected strictly increasing seq, got %d after %d", ev.Seq, last)
		}
		last = ev.Seq
	}
	if count != 5 {
		t.Errorf("Expected 5 events, got %d", count)
	}
}

func TestBus_Publish_DeliveryOrderMatchesSeq(t *testing.T) {
	bus := NewBus(256)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				bus.Publish(Event{Kind: EventOutputChunk})
			}
		}()
	}
	wg.Wait()
	bus.Close()

	expected := uint64(1)
	for ev := range bus.Events() {
		if ev.Seq != expected {
			t.Fatalf("Expected event with seq %d, got %d", expected, ev.Seq)
		}
		expected++
	}
	if expected != 161 {
		t.Errorf("Expected 160 events delivered, got %d", expected-1)
	}
}

func TestBus_Publish_BlocksWhenFull(t *testing.T) {
	bus := NewBus(1)
	bus.Publish(Event{Kind: EventResolving})

	done := make(chan struct{})
	go func() {
		// Blocks until the consumer drains the buffer; the event must
		// still be delivered, never dropped.
		bus.Publish(Event{Kind: EventResolved})
		close(done)
	}()

	first := <-bus.Events()
	if first.Kind != EventResolving {
		t.Errorf("Expected first event resolving, got %s", first.Kind)
	}
	<-done

	second := <-bus.Events()
	if second.Kind != EventResolved {
		t.Errorf("Expected second event resolved, got %s", second.Kind)
	}
	if second.Seq != first.Seq+1 {
		t.Errorf("Expected seq %d, got %d", first.Seq+1, second.Seq)
	}
}

func TestBus_Close_PublishAfterCloseIsNoop(t *testing.T) {
	bus := NewBus(4)
	bus.Publish(Event{Kind: EventResolving})
	bus.Close()

	// Must not panic or deliver.
	bus.Publish(Event{Kind: EventResolved})
	bus.Close()

	count := 0
	for range bus.Events() {
		count++
	}
	if count != 1 {
		t.Errorf("Expected 1 event before close, got %d", count)
	}
}

func TestBus_Publish_SetsTimestamp(t *testing.T) {
	bus := NewBus(4)
	bus.Publish(Event{Kind: EventResolving})
	bus.Close()

	ev := <-bus.Events()
	if ev.Timestamp.IsZero() {
		t.Error("Expected publish to stamp the event")
	}
}

func TestEvent_Terminal(t *testing.T) {
	cases := []struct {
		kind EventKind
		want bool
	}{
		{EventOperationCompleted, true},
		{EventOperationFailed, true},
		{EventOperationCanceled, true},
		{EventResolving, false},
		{EventOutputChunk, false},
		{EventInstallCompleted, false},
	}
	for _, tc := range cases {
		if got := (Event{Kind: tc.kind}).Terminal(); got != tc.want {
			t.Errorf("Terminal(%s) = %v, want %v", tc.kind, got, tc.want)
		}
	}
}
