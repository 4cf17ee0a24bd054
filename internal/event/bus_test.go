package event

import (
	"sync"
	"testing"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe("test.event", func(e Event) {
		called = true
	})

	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("Expected 1 subscription, got %d", bus.SubscriptionCount())
	}
	if called {
		t.Error("Handler should not be called until an event is published")
	}
}

func TestBus_PublishLogEvent(t *testing.T) {
	bus := NewBus()

	var received Event
	bus.Subscribe(TypeLogOut, func(e Event) {
		received = e
	})

	rec := ProcessRecord{Name: "api", AppID: "0", Core: 1, PID: 100}
	bus.Publish(NewLogEvent(StreamOut, fixedTime, []byte("hello\n"), rec))

	if received == nil {
		t.Fatal("Handler should have received the event")
	}
	out, ok := received.(LogEvent)
	if !ok {
		t.Fatalf("Expected LogEvent, got %T", received)
	}
	if out.Payload != "hello\n" {
		t.Errorf("Payload = %q, want %q", out.Payload, "hello\n")
	}
	if out.Process != rec {
		t.Errorf("Process = %+v, want %+v", out.Process, rec)
	}
	if !out.Timestamp().Equal(fixedTime) {
		t.Errorf("Timestamp = %v, want %v", out.Timestamp(), fixedTime)
	}
}

func TestNewLogEvent_ErrStream(t *testing.T) {
	e := NewLogEvent(StreamErr, fixedTime, []byte("x"), ProcessRecord{})
	if e.EventType() != TypeLogErr {
		t.Errorf("EventType() = %q, want %q", e.EventType(), TypeLogErr)
	}
}

func TestBus_CustomMessageTag(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe("ready", func(e Event) {
		calls++
	})

	bus.Publish(NewMessageEvent("ready", fixedTime, map[string]any{"port": 3000}, ProcessRecord{}))
	bus.Publish(NewRawMessageEvent("hello", ProcessRecord{}))

	if calls != 1 {
		t.Errorf("Expected 1 call for the ready tag, got %d", calls)
	}
}

func TestBus_PublishNoMatchingHandlers(t *testing.T) {
	bus := NewBus()

	bus.Subscribe("other.event", func(e Event) {
		t.Error("Handler should not be called for non-matching event type")
	})

	bus.Publish(newBaseEvent("test.event"))
}

func TestBus_SubscribeAllRunsAfterSpecific(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(e Event) {
		order = append(order, "wildcard:"+e.EventType())
	})
	bus.Subscribe("specific.event", func(e Event) {
		order = append(order, "specific:"+e.EventType())
	})

	bus.Publish(newBaseEvent("specific.event"))
	bus.Publish(newBaseEvent("other.event"))

	expected := []string{"specific:specific.event", "wildcard:specific.event", "wildcard:other.event"}
	if len(order) != len(expected) {
		t.Fatalf("Expected %d handler calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("call %d = %q, want %q", i, order[i], want)
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	calls := make(map[string]int)
	id1 := bus.Subscribe("test.event", func(e Event) {
		calls["handler1"]++
	})
	bus.Subscribe("test.event", func(e Event) {
		calls["handler2"]++
	})

	if !bus.Unsubscribe(id1) {
		t.Error("Unsubscribe should return true when subscription exists")
	}
	if bus.Unsubscribe(id1) {
		t.Error("Unsubscribe should return false the second time")
	}

	bus.Publish(newBaseEvent("test.event"))

	if calls["handler1"] != 0 {
		t.Error("handler1 should not be called after unsubscribing")
	}
	if calls["handler2"] != 1 {
		t.Error("handler2 should still be called")
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus()

	bus.Subscribe("event.one", func(e Event) {})
	bus.SubscribeAll(func(e Event) {})
	bus.Clear()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("Expected 0 subscriptions after clear, got %d", bus.SubscriptionCount())
	}
}

func TestBus_HandlerPanicRecovery(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe("test.event", func(e Event) {
		calls++
		panic("handler panic")
	})
	bus.Subscribe("test.event", func(e Event) {
		calls++
	})

	bus.Publish(newBaseEvent("test.event"))

	if calls != 2 {
		t.Errorf("Expected both handlers to be called despite panic, got %d calls", calls)
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	calls := 0
	bus.Subscribe("test.event", func(e Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 100 {
		wg.Go(func() {
			bus.Publish(newBaseEvent("test.event"))
		})
	}
	wg.Wait()

	if calls != 100 {
		t.Errorf("Expected 100 calls, got %d", calls)
	}
}

func TestBus_UniqueIDs(t *testing.T) {
	bus := NewBus()

	ids := make(map[string]bool)
	for range 100 {
		id := bus.Subscribe("test.event", func(e Event) {})
		if ids[id] {
			t.Errorf("Duplicate subscription ID: %s", id)
		}
		ids[id] = true
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	var _ Publisher = &r

	r.Publish(NewProcessOnlineEvent(ProcessRecord{PID: 1}))
	r.Publish(NewLogEvent(StreamOut, fixedTime, []byte("a"), ProcessRecord{}))
	r.Publish(NewProcessOnlineEvent(ProcessRecord{PID: 2}))

	if got := len(r.Events()); got != 3 {
		t.Errorf("Events() len = %d, want 3", got)
	}
	online := r.OfType(TypeProcessOnline)
	if len(online) != 2 {
		t.Fatalf("OfType(online) len = %d, want 2", len(online))
	}
	if online[1].(ProcessOnlineEvent).Process.PID != 2 {
		t.Error("OfType should preserve publish order")
	}
}
