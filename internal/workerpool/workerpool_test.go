package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmit_BoundsConcurrency(t *testing.T) {
	p := New(2)
	var current, maxSeen int64

	done := make(chan struct{})
	for i := 0; i < 6; i++ {
		go func() {
			_ = p.Submit(context.Background(), func(ctx context.Context) error {
				n := atomic.AddInt64(&current, 1)
				for {
					old := atomic.LoadInt64(&maxSeen)
					if n <= old || atomic.CompareAndSwapInt64(&maxSeen, old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt64(&current, -1)
				return nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}

	if got := atomic.LoadInt64(&maxSeen); got > 2 {
		t.Fatalf("max concurrency = %d, want <= 2", got)
	}
}

func TestSubmit_ReturnsContextErrorWhenCancelledBeforeSlot(t *testing.T) {
	p := New(1)
	block := make(chan struct{})
	go p.Submit(context.Background(), func(ctx context.Context) error {
		<-block
		return nil
	})
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Submit(ctx, func(ctx context.Context) error { return nil })
	if err != context.Canceled {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	close(block)
}
