package qspi

import "fmt"

// MaxAddress is the highest 24-bit flash address.
const MaxAddress = 1<<24 - 1 // 0xFFFFFF

// SplitAddress decomposes a 24-bit address into its bytes, most significant
// first, the order they go out on the wire.
func SplitAddress(addr uint32) (msb, mid, lsb byte, err error) {
	if addr > MaxAddress {
		return 0, 0, 0, fmt.Errorf("%w: %#x", ErrAddressRange, addr)
	}
	return byte(addr >> 16), byte(addr >> 8), byte(addr), nil
}

// JoinAddress is the inverse of SplitAddress.
func JoinAddress(msb, mid, lsb byte) uint32 {
	return uint32(msb)<<16 | uint32(mid)<<8 | uint32(lsb)
}

// checkSpan reports whether n bytes from addr stay inside the 24-bit space.
func checkSpan(addr uint32, n int) error {
	if n < 0 {
		return fmt.Errorf("negative byte count %d", n)
	}
	if uint64(addr)+uint64(n) > MaxAddress+1 {
		return fmt.Errorf("%w: %#x+%d", ErrAddressRange, addr, n)
	}
	return nil
}
