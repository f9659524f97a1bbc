package alloc

const bitsPerByte = 8

// Bits within a byte are numbered from the least significant bit, as ext2
// lays them out on disk.

// firstZero returns the position of the first clear bit among the first
// limit bits of bytes.
func firstZero(bytes []byte, limit uint64) (uint64, bool) {
	for i, byt := range bytes {
		if byt == 0xFF {
			continue
		}
		base := uint64(i) * bitsPerByte
		if base >= limit {
			break
		}
		for bit := uint64(0); bit < bitsPerByte; bit++ {
			if base+bit >= limit {
				return 0, false
			}
			if byt&(1<<bit) == 0 {
				return base + bit, true
			}
		}
	}
	return 0, false
}

func isSet(bytes []byte, pos uint64) bool {
	return bytes[pos/bitsPerByte]&(1<<(pos%bitsPerByte)) != 0
}

func setHigh(bytes []byte, pos uint64) {
	bytes[pos/bitsPerByte] |= 1 << (pos % bitsPerByte)
}

func setLow(bytes []byte, pos uint64) {
	bytes[pos/bitsPerByte] &^= 1 << (pos % bitsPerByte)
}
