package vm

import (
	"math"
	"math/big"
)

// modulo2n reduces the truncated value of f modulo 2^bits. NaN and the
// infinities map to 0.
func modulo2n(f float64, bits uint) uint64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	m := math.Mod(math.Trunc(f), float64(uint64(1)<<bits))
	if m < 0 {
		m += float64(uint64(1) << bits)
	}
	return uint64(m)
}

// ToInt8 converts a number to a signed 8-bit integer with wraparound.
func ToInt8(f float64) int8 { return int8(uint8(modulo2n(f, 8))) }

// ToUint8 converts a number to an unsigned 8-bit integer with wraparound.
func ToUint8(f float64) uint8 { return uint8(modulo2n(f, 8)) }

func ToInt16(f float64) int16   { return int16(uint16(modulo2n(f, 16))) }
func ToUint16(f float64) uint16 { return uint16(modulo2n(f, 16)) }
func ToInt32(f float64) int32   { return int32(uint32(modulo2n(f, 32))) }
func ToUint32(f float64) uint32 { return uint32(modulo2n(f, 32)) }

// ToUint8Clamp clamps to [0, 255] and rounds half to even.
func ToUint8Clamp(f float64) uint8 {
	switch {
	case math.IsNaN(f), f <= 0:
		return 0
	case f >= 255:
		return 255
	}
	return uint8(math.RoundToEven(f))
}

var twoTo64 = new(big.Int).Lsh(big.NewInt(1), 64)

// ToBigUint64 reduces b modulo 2^64.
func ToBigUint64(b *big.Int) uint64 {
	m := new(big.Int).Mod(b, twoTo64)
	return m.Uint64()
}

// ToBigInt64 reduces b modulo 2^64 and reinterprets the result as signed.
func ToBigInt64(b *big.Int) int64 {
	return int64(ToBigUint64(b))
}
