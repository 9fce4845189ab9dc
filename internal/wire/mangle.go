package wire

import (
	"encoding/binary"
	"math/big"
	"net"
	"time"
)

// MangleV4 obfuscates an IPv4 socket address the way V4AddrMangle does in
// the original rendezvous server: it folds a microsecond timestamp into the
// high bits of a 128-bit value so that the wire bytes of an address change
// on every call even though decode recovers the exact original address.
// This is reversible obfuscation, not encryption: anyone who captures the
// formula can invert it. It exists only so two consecutive punch-hole
// exchanges for the same peer don't produce byte-identical wire traffic.
//
// Trailing zero bytes (from the high end of the little-endian 128-bit word)
// are trimmed before returning, matching the original's variable-length
// encoding — short addresses produce fewer bytes on the wire.
func MangleV4(ip net.IP, port uint16) []byte {
	ip4 := ip.To4()
	if ip4 == nil {
		ip4 = net.IPv4zero.To4()
	}
	tm := uint32(time.Now().UnixMicro())
	ipU32 := binary.LittleEndian.Uint32(ip4)

	v := new(big.Int).Add(big.NewInt(int64(ipU32)), big.NewInt(int64(tm)))
	v.Lsh(v, 49)

	tmShifted := new(big.Int).Lsh(big.NewInt(int64(tm)), 17)
	v.Or(v, tmShifted)

	portSum := uint64(port) + uint64(tm&0xFFFF)
	v.Or(v, new(big.Int).SetUint64(portSum))

	v.And(v, mask128)

	buf := leBytes16(v)
	nPadding := 0
	for i := 15; i >= 0; i-- {
		if buf[i] == 0 {
			nPadding++
		} else {
			break
		}
	}
	return buf[:16-nPadding]
}

// UnmangleV4 reverses MangleV4.
func UnmangleV4(data []byte) net.IP {
	addr, _ := unmangleV4(data)
	return addr
}

// UnmangleV4Port reverses MangleV4, returning both the address and port a
// caller needs to reconstruct a full *net.UDPAddr/*net.TCPAddr.
func UnmangleV4Port(data []byte) (net.IP, uint16) {
	return unmangleV4(data)
}

// MangleAddr picks MangleV4 or MangleV6 based on whether ip has a usable
// 4-byte form, so callers encoding a SocketAddr field don't need to track
// which family a peer connected over.
func MangleAddr(ip net.IP, port uint16) []byte {
	if ip.To4() != nil {
		return MangleV4(ip, port)
	}
	return MangleV6(ip, port)
}

// UnmangleAddr reverses MangleAddr, dispatching on the encoded length: the
// V6 format is always exactly 24 bytes, V4 is 16 bytes or fewer after
// trailing-zero trimming.
func UnmangleAddr(data []byte) (net.IP, uint16) {
	if len(data) == 24 {
		return UnmangleV6(data)
	}
	return UnmangleV4Port(data)
}

func unmangleV4(data []byte) (net.IP, uint16) {
	padded := make([]byte, 16)
	n := len(data)
	if n > 16 {
		n = 16
	}
	copy(padded, data[:n])

	number := bigFromLE16(padded)

	tm := new(big.Int).Rsh(number, 17)
	tm.And(tm, maxU32)

	ipShifted := new(big.Int).Rsh(number, 49)
	ipVal := new(big.Int).Sub(ipShifted, tm)
	ipVal.And(ipVal, maxU32)

	ipBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(ipBytes, uint32(ipVal.Uint64()))

	portField := new(big.Int).And(number, big.NewInt(0xFFFFFF))
	tmMasked := new(big.Int).And(tm, big.NewInt(0xFFFF))
	port := new(big.Int).Sub(portField, tmMasked)

	return net.IPv4(ipBytes[0], ipBytes[1], ipBytes[2], ipBytes[3]), uint16(port.Uint64())
}

// MangleV6 applies the same timestamp-folding technique to an IPv6 address
// by splitting it into two 64-bit halves and mangling each independently,
// since the original format is specific to 32-bit IPv4 addresses and the
// boundary-listener stack (internal/listeners) is dual-stack-first.
func MangleV6(ip net.IP, port uint16) []byte {
	ip16 := ip.To16()
	if ip16 == nil {
		ip16 = net.IPv6zero
	}
	tm := uint32(time.Now().UnixMicro())

	hi := binary.BigEndian.Uint64(ip16[0:8])
	lo := binary.BigEndian.Uint64(ip16[8:16])

	out := make([]byte, 0, 20)
	out = binary.BigEndian.AppendUint64(out, hi^uint64(tm))
	out = binary.BigEndian.AppendUint64(out, lo^uint64(tm)<<32)
	out = binary.BigEndian.AppendUint32(out, uint32(port)+tm&0xFFFF)
	out = append(out, byte(tm), byte(tm>>8), byte(tm>>16), byte(tm>>24))
	return out
}

// UnmangleV6 reverses MangleV6.
func UnmangleV6(data []byte) (net.IP, uint16) {
	if len(data) != 24 {
		return net.IPv6zero, 0
	}
	tm := binary.LittleEndian.Uint32(data[20:24])

	hi := binary.BigEndian.Uint64(data[0:8]) ^ uint64(tm)
	lo := binary.BigEndian.Uint64(data[8:16]) ^ uint64(tm)<<32
	portField := binary.BigEndian.Uint32(data[16:20])
	port := uint16(portField - tm&0xFFFF)

	ip := make(net.IP, 16)
	binary.BigEndian.PutUint64(ip[0:8], hi)
	binary.BigEndian.PutUint64(ip[8:16], lo)
	return ip, port
}

var (
	mask128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	maxU32  = big.NewInt(0xFFFFFFFF)
)

// leBytes16 renders v as a 16-byte little-endian buffer, matching Rust's
// u128::to_ne_bytes() on a little-endian target.
func leBytes16(v *big.Int) []byte {
	buf := make([]byte, 16)
	tmp := new(big.Int).Set(v)
	mod := new(big.Int)
	base := big.NewInt(256)
	for i := 0; i < 16; i++ {
		tmp.DivMod(tmp, base, mod)
		buf[i] = byte(mod.Uint64())
	}
	return buf
}

// bigFromLE16 is the inverse of leBytes16.
func bigFromLE16(buf []byte) *big.Int {
	v := new(big.Int)
	for i := len(buf) - 1; i >= 0; i-- {
		v.Lsh(v, 8)
		v.Or(v, big.NewInt(int64(buf[i])))
	}
	return v
}
