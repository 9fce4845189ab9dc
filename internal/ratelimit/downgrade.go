package ratelimit

// DowngradeThresholdBitPerMs resolves the unit mismatch between the
// configured single-session bandwidth cap (Mb/s) and the bit/ms units a
// per-second usage tally naturally produces: downgrade_threshold_bit_per_ms
// = SINGLE_BANDWIDTH_bits_per_sec * DOWNGRADE_THRESHOLD / 1000. Every
// downgrade evaluation compares against this single value so the
// evaluation is unit-consistent regardless of how the session's own
// bit-rate is measured.
func DowngradeThresholdBitPerMs(singleBandwidthMbps, downgradeThreshold float64) float64 {
	singleBandwidthBitsPerSec := singleBandwidthMbps * 1_000_000
	return singleBandwidthBitsPerSec * downgradeThreshold / 1000
}
