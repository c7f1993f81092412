package mpegts

import (
	"io"
)

// Writer writes MPEG-TS packets to a io.Writer.
// Payloads are filled with stuffing bytes.
type Writer struct {
	// underlying writer.
	W io.Writer

	// bit order of packet headers.
	// It defaults to BitOrderMSBFirst.
	BitOrder BitOrder

	buf []byte
}

// WritePacket writes a packet with the given header.
func (w *Writer) WritePacket(h Header) error {
	if w.buf == nil {
		w.buf = make([]byte, PacketSize)
	}

	err := w.BitOrder.Marshal(h, w.buf)
	if err != nil {
		return err
	}

	for i := headerSize; i < PacketSize; i++ {
		w.buf[i] = 0xFF
	}

	_, err = w.W.Write(w.buf)
	return err
}
