package wayland

import (
	"encoding/binary"
	"fmt"
)

// Wayland wire format: every message starts with an 8-byte header, two
// little-endian 32-bit words. The first is the object ID, the second packs
// the total message size (bytes, header included) in the upper 16 bits and
// the request/event opcode in the lower 16 bits. Arguments follow, each
// padded to 32-bit boundaries.
const headerSize = 8

type message struct {
	objectID uint32
	opcode   uint16
	payload  []byte
}

// parseMessage extracts one complete message from the front of buf, returning
// the number of bytes consumed. consumed is 0 when buf does not yet hold a
// full message.
func parseMessage(buf []byte) (msg message, consumed int, err error) {
	if len(buf) < headerSize {
		return message{}, 0, nil
	}

	objectID := binary.LittleEndian.Uint32(buf[0:4])
	sizeOpcode := binary.LittleEndian.Uint32(buf[4:8])
	size := int(sizeOpcode >> 16)
	opcode := uint16(sizeOpcode & 0xffff)

	if size < headerSize {
		return message{}, 0, fmt.Errorf("invalid message size %d for object %d", size, objectID)
	}
	if len(buf) < size {
		return message{}, 0, nil
	}

	return message{
		objectID: objectID,
		opcode:   opcode,
		payload:  buf[headerSize:size],
	}, size, nil
}

// messageBuilder assembles an outgoing request
type messageBuilder struct {
	buf []byte
}

func newRequest(objectID uint32, opcode uint16) *messageBuilder {
	b := &messageBuilder{buf: make([]byte, headerSize)}
	binary.LittleEndian.PutUint32(b.buf[0:4], objectID)
	// Size is patched in bytes()
	binary.LittleEndian.PutUint32(b.buf[4:8], uint32(opcode))
	return b
}

func (b *messageBuilder) putUint32(v uint32) *messageBuilder {
	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], v)
	b.buf = append(b.buf, word[:]...)
	return b
}

// putString appends a string argument: 32-bit length including the NUL
// terminator, the bytes, the NUL, then padding to a 32-bit boundary
func (b *messageBuilder) putString(s string) *messageBuilder {
	b.putUint32(uint32(len(s) + 1))
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
	for len(b.buf)%4 != 0 {
		b.buf = append(b.buf, 0)
	}
	return b
}

func (b *messageBuilder) bytes() []byte {
	size := uint32(len(b.buf))
	opcode := binary.LittleEndian.Uint32(b.buf[4:8]) & 0xffff
	binary.LittleEndian.PutUint32(b.buf[4:8], size<<16|opcode)
	return b.buf
}

// argReader decodes message payload arguments in order. The first decode
// error sticks; callers check err once after reading everything they need.
type argReader struct {
	data []byte
	err  error
}

func newArgReader(payload []byte) *argReader {
	return &argReader{data: payload}
}

func (r *argReader) uint32() uint32 {
	if r.err != nil {
		return 0
	}
	if len(r.data) < 4 {
		r.err = fmt.Errorf("argument truncated: want 4 bytes, have %d", len(r.data))
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[0:4])
	r.data = r.data[4:]
	return v
}

func (r *argReader) str() string {
	if r.err != nil {
		return ""
	}
	length := int(r.uint32())
	if r.err != nil {
		return ""
	}
	if length == 0 {
		// Null string
		return ""
	}
	padded := (length + 3) &^ 3
	if len(r.data) < padded {
		r.err = fmt.Errorf("string argument truncated: want %d bytes, have %d", padded, len(r.data))
		return ""
	}
	// Length includes the NUL terminator
	s := string(r.data[:length-1])
	r.data = r.data[padded:]
	return s
}

// array decodes a wl_array argument as raw bytes
func (r *argReader) array() []byte {
	if r.err != nil {
		return nil
	}
	length := int(r.uint32())
	if r.err != nil {
		return nil
	}
	padded := (length + 3) &^ 3
	if len(r.data) < padded {
		r.err = fmt.Errorf("array argument truncated: want %d bytes, have %d", padded, len(r.data))
		return nil
	}
	arr := r.data[:length]
	r.data = r.data[padded:]
	return arr
}

// uint32Array decodes a wl_array whose elements are 32-bit words, as used by
// the foreign-toplevel state event
func (r *argReader) uint32Array() []uint32 {
	raw := r.array()
	if r.err != nil {
		return nil
	}
	if len(raw)%4 != 0 {
		r.err = fmt.Errorf("array length %d is not a multiple of 4", len(raw))
		return nil
	}
	out := make([]uint32, 0, len(raw)/4)
	for i := 0; i < len(raw); i += 4 {
		out = append(out, binary.LittleEndian.Uint32(raw[i:i+4]))
	}
	return out
}
