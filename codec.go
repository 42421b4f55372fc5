package main

import (
	"errors"
	"fmt"
)

// ErrTruncated is returned when a read would run past the end of the buffer.
var ErrTruncated = errors.New("codec: truncated frame")

// ErrOverlong is returned when encoding a string longer than 255 bytes.
var ErrOverlong = errors.New("codec: string exceeds 255 bytes")

// decoder reads the two wire primitives — u8 and str8 — from a single
// inbound frame. It never allocates beyond the strings it extracts and
// never panics: every read that would run past the end of buf returns
// ErrTruncated instead.
type decoder struct {
	buf []byte
	pos int
}

func newDecoder(buf []byte) *decoder {
	return &decoder{buf: buf}
}

// readU8 reads a single unsigned byte.
func (d *decoder) readU8() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, ErrTruncated
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

// readStr8 reads a u8 length prefix followed by exactly that many bytes.
func (d *decoder) readStr8() (string, error) {
	n, err := d.readU8()
	if err != nil {
		return "", err
	}
	end := d.pos + int(n)
	if end > len(d.buf) {
		return "", ErrTruncated
	}
	s := string(d.buf[d.pos:end])
	d.pos = end
	return s, nil
}

// remaining returns the number of bytes left unread.
func (d *decoder) remaining() int {
	return len(d.buf) - d.pos
}

// encoder builds an outbound frame by appending u8 and str8 primitives.
type encoder struct {
	buf []byte
}

func newEncoder(opcode byte) *encoder {
	return &encoder{buf: []byte{opcode}}
}

func (e *encoder) putU8(b byte) *encoder {
	e.buf = append(e.buf, b)
	return e
}

// putStr8 appends a u8 length prefix followed by s. s must be at most 255
// bytes — callers are responsible for truncating message text before it
// reaches the codec (see dispatch.go's truncation policy); this is a
// programmer-error guard, not a user-facing validation path.
func (e *encoder) putStr8(s string) *encoder {
	if len(s) > 255 {
		panic(fmt.Sprintf("codec: putStr8 called with %d-byte string (%v)", len(s), ErrOverlong))
	}
	e.buf = append(e.buf, byte(len(s)))
	e.buf = append(e.buf, s...)
	return e
}

func (e *encoder) bytes() []byte {
	return e.buf
}

// truncateText clips s to at most maxMessageLen bytes, the dispatcher's
// chosen policy for SEND_MESSAGE payloads that exceed the wire limit
// (spec §4.E: "text > 255 bytes is truncated to 255").
func truncateText(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	return s[:maxMessageLen]
}
