package state

import (
	"encoding/binary"
	"fmt"

	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// writer appends fixed-width little-endian fields
type writer struct {
	buf []byte
}

func newWriter(size int) *writer { return &writer{buf: make([]byte, 0, size)} }

func (w *writer) pubkey(p crypto.Pubkey) { w.buf = append(w.buf, p[:]...) }
func (w *writer) u16(v uint16)           { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) u64(v uint64)           { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) i64(v int64)            { w.u64(uint64(v)) }

func (w *writer) bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

// reader consumes fixed-width little-endian fields
// Callers check the total length up front, so reads never run short
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) pubkey() (p crypto.Pubkey) {
	copy(p[:], r.buf[r.off:r.off+crypto.PubkeySize])
	r.off += crypto.PubkeySize
	return p
}

func (r *reader) u16() uint16 {
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *reader) i64() int64 { return int64(r.u64()) }

func (r *reader) bool() bool {
	b := r.buf[r.off]
	r.off++
	if b > 1 && r.err == nil {
		r.err = fmt.Errorf("invalid bool byte 0x%02x at offset %d", b, r.off-1)
	}
	return b == 1
}
