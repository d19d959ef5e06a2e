package core

import (
	"testing"
	"time"
)

func TestEventBusSubscribeAndFilter(t *testing.T) {
	bus := NewEventBus(0)
	ch, unsub := bus.Subscribe(SubscriptionFilter{Types: []string{EventKindPipelineStatus}})
	defer unsub()

	bus.Publish(Event{Type: EventKindPipelineRejected, Subject: "tx1", Timestamp: time.Now()})
	bus.Publish(Event{Type: EventKindPipelineStatus, Subject: "tx2", Timestamp: time.Now()})

	select {
	case e := <-ch:
		if e.Subject != "tx2" {
			t.Fatalf("received event for subject %q, want tx2 (the Rejected event should have been filtered out)", e.Subject)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for a matching event")
	}

	select {
	case e := <-ch:
		t.Fatalf("received an unexpected second event: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBusSubjectFilter(t *testing.T) {
	bus := NewEventBus(0)
	ch, unsub := bus.Subscribe(SubscriptionFilter{Subject: "account-1"})
	defer unsub()

	bus.Publish(Event{Type: EventKindTriggerCompleted, Subject: "account-2", Timestamp: time.Now()})
	bus.Publish(Event{Type: EventKindTriggerCompleted, Subject: "account-1", Timestamp: time.Now()})

	select {
	case e := <-ch:
		if e.Subject != "account-1" {
			t.Fatalf("received event for subject %q, want account-1", e.Subject)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for a matching event")
	}
}

func TestEventBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus(0)
	ch, unsub := bus.Subscribe(SubscriptionFilter{})
	unsub()

	bus.Publish(Event{Type: EventKindPipelineStatus, Subject: "tx1", Timestamp: time.Now()})

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("received an event on an unsubscribed channel")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("unsubscribed channel was never closed")
	}
}

func TestEventBusRecentHistory(t *testing.T) {
	bus := NewEventBus(2)
	bus.Publish(Event{Type: EventKindPipelineStatus, Subject: "a", Timestamp: time.Now()})
	bus.Publish(Event{Type: EventKindPipelineStatus, Subject: "b", Timestamp: time.Now()})
	bus.Publish(Event{Type: EventKindPipelineStatus, Subject: "c", Timestamp: time.Now()})

	recent := bus.Recent(10)
	if len(recent) != 2 {
		t.Fatalf("len(Recent) = %d, want 2 (history bounded to historyLimit)", len(recent))
	}
	if recent[0].Subject != "b" || recent[1].Subject != "c" {
		t.Fatalf("Recent did not keep the most recent events, got %+v", recent)
	}
}
