package listeners

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// Factory creates one boundary listener (TCP or UDP). It is called again by
// Supervise every time the previous listener dies with a fatal error.
type Factory func() (net.Listener, error)

// Supervise keeps a listener alive for the lifetime of ctx, handing each
// accepted connection to onConn in its own goroutine. If Accept returns a
// fatal error the listener is closed and recreated via factory after a
// backoff, without disturbing any other supervised listener in the process.
func Supervise(ctx context.Context, name string, factory Factory, onConn func(net.Conn)) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 10 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		ln, err := factory()
		if err != nil {
			slog.Error("listener create failed", "listener", name, "err", err)
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}

		slog.Info("listener started", "listener", name, "addr", ln.Addr())
		backoff = 100 * time.Millisecond
		acceptLoop(ctx, ln, onConn)

		if ctx.Err() != nil {
			return
		}
		slog.Warn("listener restarting", "listener", name)
	}
}

func acceptLoop(ctx context.Context, ln net.Listener, onConn func(net.Conn)) {
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("accept failed", "addr", ln.Addr(), "err", err)
			return
		}
		go onConn(conn)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
