package txmsg

import (
	"errors"
	"fmt"
)

var (
	errShortVec = errors.New("txmsg: malformed compact-u16")
	// ErrVectorTooLong is returned when a vector length does not fit a
	// compact-u16.
	ErrVectorTooLong = errors.New("txmsg: vector longer than 65535 elements")
)

const maxShortVec = 0xffff

// appendShortVec appends n as a compact-u16 (1–3 bytes, 7 bits per byte).
// Callers check n against maxShortVec first.
func appendShortVec(b []byte, n int) []byte {
	v := uint16(n)
	for {
		elem := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(b, elem)
		}
		b = append(b, elem|0x80)
	}
}

func checkShortVec(what string, n int) error {
	if n < 0 || n > maxShortVec {
		return fmt.Errorf("%s: %w (%d)", what, ErrVectorTooLong, n)
	}
	return nil
}

// readShortVec decodes a compact-u16 and returns the value and bytes consumed.
func readShortVec(b []byte) (int, int, error) {
	var v int
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, errShortVec
		}
		elem := int(b[i])
		v |= (elem & 0x7f) << (7 * i)
		if elem&0x80 == 0 {
			if i > 0 && elem == 0 {
				// Non-canonical: trailing zero continuation.
				return 0, 0, errShortVec
			}
			if v > 0xffff {
				return 0, 0, errShortVec
			}
			return v, i + 1, nil
		}
	}
	return 0, 0, errShortVec
}
