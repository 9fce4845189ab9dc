package relay

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shurlinet/punchrelay/internal/ratelimit"
	"github.com/shurlinet/punchrelay/internal/telemetry"
	"github.com/shurlinet/punchrelay/internal/wire"
)

// idleTimeout tears a session down if either side has not produced a byte
// in this long.
const idleTimeout = 30 * time.Second

// chunkSize bounds how much raw-mode forwarding reads per pump iteration;
// framed mode uses whatever the frame's own length prefix specifies.
const chunkSize = 32 * 1024

// frameIO lets Session pump bytes between a plain-framed TCP half and a
// WebSocket half uniformly: both sides speak "read one message, write one
// message" regardless of transport.
type frameIO interface {
	readFrame() ([]byte, error)
	writeFrame([]byte) error
	setReadDeadline(time.Time) error
	close()
}

type tcpFrameIO struct {
	conn net.Conn
	r    *bufio.Reader
}

func (f *tcpFrameIO) readFrame() ([]byte, error)       { return wire.ReadFrame(f.r) }
func (f *tcpFrameIO) writeFrame(b []byte) error        { return wire.WriteFrame(f.conn, b) }
func (f *tcpFrameIO) setReadDeadline(t time.Time) error { return f.conn.SetReadDeadline(t) }
func (f *tcpFrameIO) close()                           { f.conn.Close() }

type wsFrameIO struct{ conn *websocket.Conn }

func (f *wsFrameIO) readFrame() ([]byte, error)       { return wire.ReadWSFrame(f.conn) }
func (f *wsFrameIO) writeFrame(b []byte) error        { return wire.WriteWSFrame(f.conn, b) }
func (f *wsFrameIO) setReadDeadline(t time.Time) error { return f.conn.SetReadDeadline(t) }
func (f *wsFrameIO) close()                             { f.conn.Close() }

// Session is one paired relay forwarding session between two halves. It
// runs until either side errors or goes idle, consuming from a per-session
// limiter and the shared global limiter on every chunk, and evaluating the
// blacklist downgrade once per second of elapsed wall time.
type Session struct {
	UUID string

	a, b *half

	// usageKey is the "ip:port" the SessionUsage row is tracked under,
	// taken from the requester (a) half per the control plane's usage
	// dump keying convention.
	usageKey string

	state   *State
	metrics *telemetry.Metrics

	limiter          *ratelimit.BitLimiter
	blacklistLimiter *ratelimit.BitLimiter
	downgraded       atomic.Bool
	startedAt        time.Time
}

// NewSession builds a session pairing a and b under uuid. If either side's
// source IP is already on the blacklist, the session starts downgraded.
func NewSession(uuid string, a, b *half, state *State, metrics *telemetry.Metrics) *Session {
	s := &Session{
		UUID:             uuid,
		a:                a,
		b:                b,
		usageKey:         a.usageKey(),
		state:            state,
		metrics:          metrics,
		limiter:          ratelimit.NewBitLimiter(state.SingleBandwidthMbps()),
		blacklistLimiter: ratelimit.NewBitLimiter(state.LimitSpeedMbps()),
		startedAt:        time.Now(),
	}
	if state.IsBlacklisted(a.ip) || state.IsBlacklisted(b.ip) {
		s.downgraded.Store(true)
	}
	return s
}

// Run bridges a and b until one side closes or the session is torn down by
// the blocklist/downgrade evaluator, then cleans up both sockets.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer closeHalf(s.a)
	defer closeHalf(s.b)

	s.state.Usage().Start(s.usageKey)
	defer s.state.Usage().End(s.usageKey)

	raw := !s.a.isWS() && !s.b.isWS()

	done := make(chan struct{}, 2)
	if raw {
		go s.pumpRaw(ctx, s.a.conn, s.b.conn, "up", done)
		go s.pumpRaw(ctx, s.b.conn, s.a.conn, "down", done)
	} else {
		fa := s.toFrameIO(s.a)
		fb := s.toFrameIO(s.b)
		defer fa.close()
		defer fb.close()
		go s.pumpFramed(ctx, fa, fb, "up", done)
		go s.pumpFramed(ctx, fb, fa, "down", done)
	}

	go s.evaluateLoop(ctx, cancel)

	<-done
	cancel()
	if s.metrics != nil {
		s.metrics.RelayActiveSessions.Dec()
	}
}

func (s *Session) toFrameIO(h *half) frameIO {
	if h.ws != nil {
		return &wsFrameIO{conn: h.ws}
	}
	return &tcpFrameIO{conn: h.conn, r: h.reader}
}

func (s *Session) activeLimiter() *ratelimit.BitLimiter {
	if s.downgraded.Load() {
		return s.blacklistLimiter
	}
	return s.limiter
}

func (s *Session) admit(ctx context.Context, n int) error {
	if err := s.activeLimiter().WaitN(ctx, n); err != nil {
		return err
	}
	return s.state.TotalLimiter().WaitN(ctx, n)
}

func (s *Session) pumpRaw(ctx context.Context, src, dst net.Conn, direction string, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	buf := make([]byte, chunkSize)
	for {
		src.SetReadDeadline(time.Now().Add(idleTimeout))
		n, err := src.Read(buf)
		if n > 0 {
			if err := s.admit(ctx, n); err != nil {
				return
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return
			}
			s.recordBytes(direction, n)
		}
		if err != nil {
			if err != io.EOF {
				slog.Debug("relay raw pump ended", "uuid", s.UUID, "direction", direction, "err", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Session) pumpFramed(ctx context.Context, src, dst frameIO, direction string, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		src.setReadDeadline(time.Now().Add(idleTimeout))
		payload, err := src.readFrame()
		if err != nil {
			if err != io.EOF {
				slog.Debug("relay framed pump ended", "uuid", s.UUID, "direction", direction, "err", err)
			}
			return
		}
		if err := s.admit(ctx, len(payload)); err != nil {
			return
		}
		if err := dst.writeFrame(payload); err != nil {
			return
		}
		s.recordBytes(direction, len(payload))
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Session) recordBytes(direction string, n int) {
	s.state.Usage().AddBytes(s.usageKey, uint64(n))
	if s.metrics != nil {
		s.metrics.RelayBytesTotal.WithLabelValues(direction).Add(float64(n))
	}
}

// evaluateLoop re-checks the blocklist and downgrade condition once per
// second of elapsed wall time, matching the per-second re-evaluation the
// forwarding loop performs after each full second of activity, and closes
// out that second's usage accounting window.
func (s *Session) evaluateLoop(ctx context.Context, terminate context.CancelFunc) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.state.Usage().Tick(s.usageKey)
			if s.state.IsBlocked(s.a.ip) || s.state.IsBlocked(s.b.ip) {
				terminate()
				return
			}
			if s.downgraded.Load() {
				continue
			}
			elapsed := time.Since(s.startedAt)
			if elapsed.Seconds() < float64(s.state.DowngradeStartCheckSeconds()) {
				continue
			}
			rows := s.state.Usage().Snapshot()
			var total uint64
			for _, row := range rows {
				if row.Key == s.usageKey {
					total = row.TotalBits / 8
					break
				}
			}
			avgBitPerMs := float64(total*8) / float64(elapsed.Milliseconds())
			threshold := ratelimit.DowngradeThresholdBitPerMs(s.state.SingleBandwidthMbps(), s.state.DowngradeThreshold())
			if avgBitPerMs > threshold {
				s.downgraded.Store(true)
				s.state.Usage().SetDowngraded(s.usageKey)
				if s.metrics != nil {
					s.metrics.RelayDowngradesTotal.Inc()
				}
				slog.Info("relay session downgraded", "uuid", s.UUID, "avg_bit_per_ms", avgBitPerMs, "threshold", threshold)
			}
		}
	}
}
