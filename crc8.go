package qspi

import "hash"

// crc8Poly is x^8 + x^4 + x^3 + x^2 + 1, MSB first, zero initial value and
// no final XOR (CRC-8/GSM-A). Bulk reads are checksummed with it so a dump
// can be compared against the image that was programmed.
const crc8Poly = 0x1D

var crc8Table = makeCRC8Table(crc8Poly)

func makeCRC8Table(poly byte) *[256]byte {
	t := new([256]byte)
	for i := range t {
		b := byte(i)
		for j := 0; j < 8; j++ {
			if b&0x80 != 0 {
				b = b<<1 ^ poly
			} else {
				b <<= 1
			}
		}
		t[i] = b
	}
	return t
}

// UpdateCRC8 returns the CRC-8 of crc followed by p.
func UpdateCRC8(crc byte, p []byte) byte {
	for _, b := range p {
		crc = crc8Table[b^crc]
	}
	return crc
}

// ChecksumCRC8 returns the CRC-8 of p.
func ChecksumCRC8(p []byte) byte { return UpdateCRC8(0, p) }

// CRC8 is a hash.Hash computing the CRC-8 of everything written to it.
type CRC8 struct {
	crc byte
}

var _ hash.Hash = (*CRC8)(nil)

func NewCRC8() *CRC8 { return &CRC8{} }

func (h *CRC8) Write(p []byte) (int, error) {
	h.crc = UpdateCRC8(h.crc, p)
	return len(p), nil
}

func (h *CRC8) Sum8() byte          { return h.crc }
func (h *CRC8) Sum(b []byte) []byte { return append(b, h.crc) }
func (h *CRC8) Reset()              { h.crc = 0 }
func (h *CRC8) Size() int           { return 1 }
func (h *CRC8) BlockSize() int      { return 1 }
