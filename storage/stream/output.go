package stream

import (
	"encoding/binary"
	"fmt"
)

// Output frames one snapshot stream into a fixed capacity buffer:
//
//	int32 partition id
//	int32 row count, patched when the stream closes
//	row count times: int32 tuple length, tuple payload
//	int32 trailer: 0 when the snapshot finished, else the length prefix the
//	next tuple will carry
//
// All integers are network byte order.
type Output struct {
	buf      []byte
	capacity int
	rowCount int32
	open     bool
}

const headerLen = 8
const trailerLen = 4

func NewOutput(capacity int) *Output {
	if capacity < headerLen+trailerLen {
		panic(fmt.Sprintf("stream: output capacity %d too small", capacity))
	}
	return &Output{
		buf:      make([]byte, 0, capacity),
		capacity: capacity,
	}
}

// Begin writes the stream header; rows may be written once the stream has
// begun.
func (o *Output) Begin(partitionID int32) {
	if o.open || len(o.buf) != 0 {
		panic("stream: output already begun")
	}
	o.buf = appendInt32(o.buf, partitionID)
	o.buf = appendInt32(o.buf, 0) // row count, patched by Close
	o.open = true
}

// Position is the number of bytes framed so far.
func (o *Output) Position() int {
	return len(o.buf)
}

func (o *Output) RowCount() int {
	return int(o.rowCount)
}

// HasRoomFor reports whether a serialized row of n bytes fits while leaving
// space for the trailer.
func (o *Output) HasRoomFor(n int) bool {
	return len(o.buf)+n+trailerLen <= o.capacity
}

func (o *Output) WriteInt32(i int32) {
	if !o.open {
		panic("stream: write to closed output")
	}
	o.buf = appendInt32(o.buf, i)
}

func (o *Output) WriteBytes(p []byte) {
	if !o.open {
		panic("stream: write to closed output")
	}
	o.buf = append(o.buf, p...)
}

func (o *Output) endRow() {
	o.rowCount += 1
}

// Close patches the row count and writes the trailer. A finished stream gets
// a zero trailer; a yielding stream carries the length prefix of the first
// tuple of the next call.
func (o *Output) Close(finished bool, nextLen int) {
	if !o.open {
		panic("stream: output already closed")
	}
	binary.BigEndian.PutUint32(o.buf[4:], uint32(o.rowCount))
	if finished {
		o.buf = appendInt32(o.buf, 0)
	} else {
		o.buf = appendInt32(o.buf, int32(nextLen))
	}
	o.open = false
}

// Bytes returns the framed buffer.
func (o *Output) Bytes() []byte {
	return o.buf
}

func appendInt32(buf []byte, i int32) []byte {
	u := uint32(i)
	return append(buf, byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
}
