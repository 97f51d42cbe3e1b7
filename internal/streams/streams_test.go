package streams

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBroadcast_EveryReceiverGetsEveryMessageInOrder(t *testing.T) {
	tx, fast := NewBroadcast[int](4)
	defer tx.Close()
	slow := fast.Subscribe()
	ctx := context.Background()

	const n = 50
	go func() {
		for i := 0; i < n; i++ {
			if err := tx.Send(ctx, i); err != nil {
				t.Errorf("Send(%d): %v", i, err)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for _, tc := range []struct {
		name  string
		rx    *Receiver[int]
		delay time.Duration
	}{
		{"fast", fast, 0},
		{"slow", slow, time.Millisecond},
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for want := 0; want < n; want++ {
				got, err := tc.rx.Recv(ctx)
				if err != nil {
					t.Errorf("%s: Recv: %v", tc.name, err)
					return
				}
				if got != want {
					t.Errorf("%s: got %d, want %d", tc.name, got, want)
					return
				}
				time.Sleep(tc.delay)
			}
		}()
	}
	wg.Wait()
}

func TestBroadcast_SendSuspendsWhileReceiverIsBehind(t *testing.T) {
	tx, rx := NewBroadcast[string](2)
	defer tx.Close()
	ctx := context.Background()

	for _, m := range []string{"a", "b"} {
		if err := tx.Send(ctx, m); err != nil {
			t.Fatalf("Send(%s): %v", m, err)
		}
	}

	sent := make(chan error, 1)
	go func() { sent <- tx.Send(ctx, "c") }()

	select {
	case err := <-sent:
		t.Fatalf("Send on a full bus returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if got, _ := rx.Recv(ctx); got != "a" {
		t.Fatalf("got %q, want a", got)
	}
	select {
	case err := <-sent:
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send still suspended after the receiver caught up")
	}
	for _, want := range []string{"b", "c"} {
		if got, _ := rx.Recv(ctx); got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}

func TestBroadcast_SendRespectsContext(t *testing.T) {
	tx, _ := NewBroadcast[int](1)
	defer tx.Close()
	if err := tx.Send(context.Background(), 1); err != nil {
		t.Fatalf("Send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tx.Send(ctx, 2); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send on full bus = %v, want deadline exceeded", err)
	}
}

func TestBroadcast_SendFailsWithoutReceivers(t *testing.T) {
	tx, rx := NewBroadcast[int](1)
	defer tx.Close()
	rx.Close()
	if err := tx.Send(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send = %v, want ErrClosed", err)
	}
}

func TestBroadcast_ClosingReceiverReleasesBlockedSender(t *testing.T) {
	tx, rx := NewBroadcast[int](1)
	defer tx.Close()
	other := rx.Subscribe()
	ctx := context.Background()
	if err := tx.Send(ctx, 1); err != nil {
		t.Fatalf("Send: %v", err)
	}

	sent := make(chan error, 1)
	go func() { sent <- tx.Send(ctx, 2) }()
	time.Sleep(20 * time.Millisecond)
	rx.Close()
	// other still has room for one more once drained.
	if got, _ := other.Recv(ctx); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}

	select {
	case err := <-sent:
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send still blocked on a closed receiver")
	}
	if got, _ := other.Recv(ctx); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
}

func TestBroadcast_LastSenderCloseDrainsThenCloses(t *testing.T) {
	tx, rx := NewBroadcast[int](4)
	clone := tx.Clone()
	ctx := context.Background()

	if err := tx.Send(ctx, 7); err != nil {
		t.Fatalf("Send: %v", err)
	}
	tx.Close()
	if err := clone.Send(ctx, 8); err != nil {
		t.Fatalf("clone still open, Send: %v", err)
	}
	clone.Close()

	for _, want := range []int{7, 8} {
		got, err := rx.Recv(ctx)
		if err != nil || got != want {
			t.Fatalf("Recv = (%d, %v), want (%d, nil)", got, err, want)
		}
	}
	if _, err := rx.Recv(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Recv after teardown = %v, want ErrClosed", err)
	}
	if _, ok := <-rx.C(); ok {
		t.Fatal("C() should be closed after teardown")
	}
	if err := clone.Send(ctx, 9); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after Close = %v, want ErrClosed", err)
	}
}

func TestBroadcast_SubscribeSeesOnlyLaterMessages(t *testing.T) {
	tx, rx := NewBroadcast[int](4)
	defer tx.Close()
	ctx := context.Background()
	if err := tx.Send(ctx, 1); err != nil {
		t.Fatalf("Send: %v", err)
	}
	late := rx.Subscribe()
	if err := tx.Send(ctx, 2); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got, _ := late.Recv(ctx); got != 2 {
		t.Fatalf("late receiver got %d, want 2", got)
	}
	if rx.Len() != 2 {
		t.Fatalf("original receiver buffered %d, want 2", rx.Len())
	}
}

func TestQueue_EachMessageDeliveredOnce(t *testing.T) {
	q := NewQueue[int](8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const n = 200
	var (
		mu   sync.Mutex
		seen = make(map[int]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 3; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, err := q.Recv(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
		}()
	}
	for i := 0; i < n; i++ {
		if err := q.Send(ctx, i); err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
	}
	q.Close()
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("delivered %d distinct messages, want %d", len(seen), n)
	}
	for v, c := range seen {
		if c != 1 {
			t.Fatalf("message %d delivered %d times", v, c)
		}
	}
}

func TestQueue_SendSuspendsWhenFull(t *testing.T) {
	q := NewQueue[int](1)
	if !q.TrySend(1) {
		t.Fatal("TrySend on empty queue failed")
	}
	if q.TrySend(2) {
		t.Fatal("TrySend on full queue succeeded")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Send(ctx, 2); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send on full queue = %v, want deadline exceeded", err)
	}
}

func TestQueue_CloseDrainsThenErrors(t *testing.T) {
	q := NewQueue[string](2)
	ctx := context.Background()
	if err := q.Send(ctx, "x"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	q.Close()
	if err := q.Send(ctx, "y"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after Close = %v, want ErrClosed", err)
	}
	if v, err := q.Recv(ctx); err != nil || v != "x" {
		t.Fatalf("Recv = (%q, %v), want (x, nil)", v, err)
	}
	if _, err := q.Recv(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Recv on drained closed queue = %v, want ErrClosed", err)
	}
}
