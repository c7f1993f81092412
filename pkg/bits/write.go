package bits

// WriteBits writes N bits, most significant bit first.
// Bits already set in buf are preserved, therefore buf must be zeroed.
func WriteBits(buf []byte, pos *int, bits uint64, n int) {
	res := 8 - (*pos & 0x07)
	if n < res {
		buf[*pos>>0x03] |= byte((bits & (1<<n - 1)) << (res - n))
		*pos += n
		return
	}

	buf[*pos>>3] |= byte((bits >> (n - res)) & (1<<res - 1))
	*pos += res
	n -= res

	for n >= 8 {
		buf[*pos>>3] = byte(bits >> (n - 8))
		*pos += 8
		n -= 8
	}

	if n > 0 {
		buf[*pos>>3] = byte((bits & (1<<n - 1)) << (8 - n))
		*pos += n
	}
}

// WriteFlag writes a boolean flag.
func WriteFlag(buf []byte, pos *int, v bool) {
	if v {
		WriteBits(buf, pos, 1, 1)
	} else {
		*pos++
	}
}
