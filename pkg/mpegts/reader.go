package mpegts

import (
	"errors"
	"fmt"
	"io"
)

// Reader reads MPEG-TS packets from a io.Reader.
type Reader struct {
	// underlying reader.
	R io.Reader

	// bit order of packet headers.
	// It defaults to BitOrderMSBFirst.
	BitOrder BitOrder

	// whether to check the sync byte of every packet.
	CheckSync bool

	count uint64
}

// Read reads a packet.
// It returns io.EOF when the stream ends on a packet boundary.
func (r *Reader) Read() ([]byte, Header, error) {
	buf := make([]byte, PacketSize)

	n, err := io.ReadFull(r.R, buf)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, Header{}, fmt.Errorf("truncated packet %d: %d of %d bytes", r.count, n, PacketSize)
		}
		return nil, Header{}, err
	}

	h, err := r.BitOrder.Unmarshal(buf)
	if err != nil {
		return nil, Header{}, err
	}

	if r.CheckSync && h.SyncByte != SyncByte {
		return nil, Header{}, fmt.Errorf("missing sync byte in packet %d: got 0x%02x", r.count, h.SyncByte)
	}

	r.count++
	return buf, h, nil
}

// ReadAll reads every packet until the end of the stream
// and returns them in a Buffer.
func (r *Reader) ReadAll() (*Buffer, error) {
	var data []byte

	for {
		pkt, _, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		data = append(data, pkt...)
	}

	return NewBuffer(data, r.BitOrder)
}
