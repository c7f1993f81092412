// Package bits contains functions to read/write bits from/to buffers.
package bits

import (
	"fmt"
)

// ReadBits reads N bits, most significant bit first.
func ReadBits(buf []byte, pos *int, n int) (uint64, error) {
	if n > ((len(buf) * 8) - *pos) {
		return 0, fmt.Errorf("not enough bits")
	}

	v := uint64(0)

	res := 8 - (*pos & 0x07)
	if n < res {
		v := uint64((buf[*pos>>0x03] >> (res - n)) & (1<<n - 1))
		*pos += n
		return v, nil
	}

	v = (v << res) | uint64(buf[*pos>>0x03]&(1<<res-1))
	*pos += res
	n -= res

	for n >= 8 {
		v = (v << 8) | uint64(buf[*pos>>0x03])
		*pos += 8
		n -= 8
	}

	if n > 0 {
		v = (v << n) | uint64(buf[*pos>>0x03]>>(8-n))
		*pos += n
	}

	return v, nil
}

// ReadFlag reads a boolean flag.
func ReadFlag(buf []byte, pos *int) (bool, error) {
	if (len(buf)*8 - *pos) == 0 {
		return false, fmt.Errorf("not enough bits")
	}

	b := (buf[*pos>>0x03] >> (7 - (*pos & 0x07))) & 0x01
	*pos++
	return b == 1, nil
}

// ReadUint8 reads a uint8.
func ReadUint8(buf []byte, pos *int) (uint8, error) {
	v, err := ReadBits(buf, pos, 8)
	return uint8(v), err
}

// ReadUint16 reads a uint16 made of N bits.
func ReadUint16(buf []byte, pos *int, n int) (uint16, error) {
	if n > 16 {
		return 0, fmt.Errorf("cannot read %d bits into a uint16", n)
	}

	v, err := ReadBits(buf, pos, n)
	return uint16(v), err
}
