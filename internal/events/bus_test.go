package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	received := []BusEvent{}

	unsub := bus.Subscribe(BusRunWaitingApproval, func(e BusEvent) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})
	defer unsub()

	bus.Publish(BusRunWaitingApproval, "run_1700000000_deadbeef", map[string]any{
		"tool": "shell",
	})

	// Wait for async delivery
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}

	if received[0].Type != BusRunWaitingApproval {
		t.Errorf("expected type %s, got %s", BusRunWaitingApproval, received[0].Type)
	}
	if received[0].RunID != "run_1700000000_deadbeef" {
		t.Errorf("expected run ID run_1700000000_deadbeef, got %s", received[0].RunID)
	}
	if tool, ok := received[0].Data["tool"].(string); !ok || tool != "shell" {
		t.Errorf("expected tool shell, got %v", received[0].Data["tool"])
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu1, mu2 sync.Mutex
	received1 := []BusEvent{}
	received2 := []BusEvent{}

	unsub1 := bus.Subscribe(BusRunCompleted, func(e BusEvent) {
		mu1.Lock()
		received1 = append(received1, e)
		mu1.Unlock()
	})
	defer unsub1()

	unsub2 := bus.Subscribe(BusRunCompleted, func(e BusEvent) {
		mu2.Lock()
		received2 = append(received2, e)
		mu2.Unlock()
	})
	defer unsub2()

	bus.Publish(BusRunCompleted, "run_1700000000_cafe0001", nil)

	time.Sleep(50 * time.Millisecond)

	mu1.Lock()
	count1 := len(received1)
	mu1.Unlock()

	mu2.Lock()
	count2 := len(received2)
	mu2.Unlock()

	if count1 != 1 {
		t.Errorf("subscriber 1 expected 1 event, got %d", count1)
	}
	if count2 != 1 {
		t.Errorf("subscriber 2 expected 1 event, got %d", count2)
	}
}

func TestBus_NonBlocking(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	// Slow consumer
	unsub := bus.Subscribe(BusRunCreated, func(e BusEvent) {
		time.Sleep(100 * time.Millisecond)
	})
	defer unsub()

	start := time.Now()
	for i := 0; i < 10; i++ {
		bus.Publish(BusRunCreated, "run_1700000000_00000001", map[string]any{
			"id": i,
		})
	}
	elapsed := time.Since(start)

	// Publishing must complete quickly even though the consumer is slow
	if elapsed > 50*time.Millisecond {
		t.Errorf("publish blocked for %v, expected non-blocking", elapsed)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	count := 0

	unsub := bus.Subscribe(BusRunFailed, func(e BusEvent) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.Publish(BusRunFailed, "run_1700000000_00000002", nil)
	time.Sleep(50 * time.Millisecond)

	unsub()
	time.Sleep(10 * time.Millisecond)

	bus.Publish(BusRunFailed, "run_1700000000_00000002", nil)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if count != 1 {
		t.Errorf("expected 1 event before unsubscribe, got %d", count)
	}
}

func TestBus_PanicRecovery(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	received := false

	unsub1 := bus.Subscribe(BusRunWaitingApproval, func(e BusEvent) {
		panic("test panic")
	})
	defer unsub1()

	unsub2 := bus.Subscribe(BusRunWaitingApproval, func(e BusEvent) {
		mu.Lock()
		received = true
		mu.Unlock()
	})
	defer unsub2()

	bus.Publish(BusRunWaitingApproval, "run_1700000000_00000003", nil)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if !received {
		t.Error("second subscriber did not receive event after first panicked")
	}
}

func TestBus_EventTypes(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	completed := 0
	failed := 0

	unsub1 := bus.Subscribe(BusRunCompleted, func(e BusEvent) {
		mu.Lock()
		completed++
		mu.Unlock()
	})
	defer unsub1()

	unsub2 := bus.Subscribe(BusRunFailed, func(e BusEvent) {
		mu.Lock()
		failed++
		mu.Unlock()
	})
	defer unsub2()

	bus.Publish(BusRunCompleted, "run_1700000000_00000004", nil)
	bus.Publish(BusRunFailed, "run_1700000000_00000005", nil)
	bus.Publish(BusRunCompleted, "run_1700000000_00000006", nil)

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if completed != 2 {
		t.Errorf("expected 2 run_completed events, got %d", completed)
	}
	if failed != 1 {
		t.Errorf("expected 1 run_failed event, got %d", failed)
	}
}

func BenchmarkBus_Publish(b *testing.B) {
	bus := NewBus(100)
	defer bus.Close()

	for i := 0; i < 5; i++ {
		bus.Subscribe(BusRunWaitingApproval, func(e BusEvent) {
			// no-op
		})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bus.Publish(BusRunWaitingApproval, "run_1700000000_deadbeef", map[string]any{
			"tool": "shell",
		})
	}
}
