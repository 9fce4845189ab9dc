// Package ratelimit wraps golang.org/x/time/rate to express the relay
// forwarder's bandwidth caps in bits rather than the "requests" rate.Limiter
// was designed for: one forwarded byte consumes 8 units.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// BitLimiter governs a byte stream in bits per second. Mbps converts
// directly to rate.Limit: 1 Mb/s = 1,000,000 bits/s.
type BitLimiter struct {
	limiter *rate.Limiter
}

// NewBitLimiter builds a limiter capped at mbps megabits per second, with a
// burst large enough to admit one maximally-sized relay frame without
// artificial fragmentation.
func NewBitLimiter(mbps float64) *BitLimiter {
	bitsPerSec := mbps * 1_000_000
	burst := int(bitsPerSec) // one second of burst headroom
	if burst < 8 {
		burst = 8
	}
	return &BitLimiter{limiter: rate.NewLimiter(rate.Limit(bitsPerSec), burst)}
}

// WaitN blocks until n bytes' worth of bits may be forwarded, or ctx is
// done. Consumption happens before the forwarding write so backpressure on
// an over-budget session propagates to the sender via TCP flow control.
func (l *BitLimiter) WaitN(ctx context.Context, nBytes int) error {
	return l.limiter.WaitN(ctx, nBytes*8)
}

// SetMbps live-updates the limiter's rate, used when an operator changes
// total-bandwidth/single-bandwidth/limit-speed at runtime.
func (l *BitLimiter) SetMbps(mbps float64) {
	bitsPerSec := mbps * 1_000_000
	l.limiter.SetLimit(rate.Limit(bitsPerSec))
	l.limiter.SetBurst(int(bitsPerSec))
}
