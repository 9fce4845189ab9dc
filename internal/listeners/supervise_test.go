package listeners

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

func TestSuperviseAcceptsConnections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got atomic.Int32
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()

	go Supervise(ctx, "test", func() (net.Listener, error) {
		return ln, nil
	}, func(c net.Conn) {
		got.Add(1)
		c.Close()
	})

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got.Load() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("connection was never accepted")
}

func TestSuperviseRecreatesAfterFactoryError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := atomic.Int32{}
	done := make(chan struct{})

	go Supervise(ctx, "test", func() (net.Listener, error) {
		n := attempts.Add(1)
		if n == 1 {
			return nil, errTemporary{}
		}
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err == nil {
			close(done)
		}
		return ln, err
	}, func(net.Conn) {})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("factory was not retried after error")
	}
	if attempts.Load() < 2 {
		t.Fatalf("expected at least 2 factory attempts, got %d", attempts.Load())
	}
}

func TestSuperviseStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		Supervise(ctx, "test", func() (net.Listener, error) {
			return ln, nil
		}, func(net.Conn) {})
		close(stopped)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Supervise did not return after context cancel")
	}
}

type errTemporary struct{}

func (errTemporary) Error() string { return "temporary failure" }
