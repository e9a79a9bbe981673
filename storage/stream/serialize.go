package stream

// TupleSerializer writes one tuple payload into an output stream.
type TupleSerializer interface {
	// SerializedLength is the number of bytes SerializeTo will write for the
	// payload, including any length prefix.
	SerializedLength(payload []byte) int

	SerializeTo(o *Output, payload []byte)
}

// DefaultSerializer frames a tuple as an int32 length prefix followed by the
// raw payload bytes.
type DefaultSerializer struct{}

func (_ DefaultSerializer) SerializedLength(payload []byte) int {
	return 4 + len(payload)
}

func (_ DefaultSerializer) SerializeTo(o *Output, payload []byte) {
	o.WriteInt32(int32(len(payload)))
	o.WriteBytes(payload)
}
