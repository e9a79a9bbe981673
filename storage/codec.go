package storage

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/leftmike/cowrows/sql"
)

// Tuple payloads are fixed width records with every field in network byte
// order; the payload bytes are exactly what the snapshot output framing
// carries. A NULL in a nullable column encodes as the zero value.

func EncodeRowTo(buf []byte, tl *TableLayout, row []sql.Value) []byte {
	for cdx, ct := range tl.ColumnTypes() {
		var v sql.Value
		if cdx < len(row) {
			v = row[cdx]
		}
		switch ct.Type {
		case sql.BooleanType:
			var b byte
			if bv, ok := v.(sql.BoolValue); ok && bool(bv) {
				b = 1
			}
			buf = append(buf, b)
		case sql.IntegerType:
			var i int64
			if iv, ok := v.(sql.Int64Value); ok {
				i = int64(iv)
			}
			switch ct.Size {
			case 4:
				buf = appendUint32(buf, uint32(int32(i)))
			case 8:
				buf = appendUint64(buf, uint64(i))
			default:
				panic(fmt.Sprintf("storage: unexpected integer size: %d", ct.Size))
			}
		case sql.FloatType:
			var d float64
			if dv, ok := v.(sql.Float64Value); ok {
				d = float64(dv)
			}
			buf = appendUint64(buf, math.Float64bits(d))
		default:
			panic(fmt.Sprintf("storage: unexpected column type: %v", ct.Type))
		}
	}
	return buf
}

func EncodeRow(tl *TableLayout, row []sql.Value) []byte {
	return EncodeRowTo(make([]byte, 0, tl.RowWidth()), tl, row)
}

func DecodeRow(tl *TableLayout, payload []byte) []sql.Value {
	if len(payload) != tl.RowWidth() {
		panic(fmt.Sprintf("storage: table %s: payload is %d bytes; want %d", tl.Name(),
			len(payload), tl.RowWidth()))
	}

	row := make([]sql.Value, 0, len(tl.ColumnTypes()))
	for _, ct := range tl.ColumnTypes() {
		switch ct.Type {
		case sql.BooleanType:
			row = append(row, sql.BoolValue(payload[0] != 0))
			payload = payload[1:]
		case sql.IntegerType:
			switch ct.Size {
			case 4:
				row = append(row,
					sql.Int64Value(int32(binary.BigEndian.Uint32(payload))))
				payload = payload[4:]
			case 8:
				row = append(row, sql.Int64Value(binary.BigEndian.Uint64(payload)))
				payload = payload[8:]
			default:
				panic(fmt.Sprintf("storage: unexpected integer size: %d", ct.Size))
			}
		case sql.FloatType:
			row = append(row,
				sql.Float64Value(math.Float64frombits(binary.BigEndian.Uint64(payload))))
			payload = payload[8:]
		default:
			panic(fmt.Sprintf("storage: unexpected column type: %v", ct.Type))
		}
	}
	return row
}

// MakeKey encodes the primary key columns of a row so that byte comparison
// of two keys matches row order by the key columns.
func MakeKey(key []sql.ColumnKey, row []sql.Value) []byte {
	buf := make([]byte, 0, len(key)*9)
	for _, ck := range key {
		v := row[ck.Column()]
		switch v := v.(type) {
		case sql.BoolValue:
			var b byte
			if v {
				b = 1
			}
			if ck.Reverse() {
				b = ^b
			}
			buf = append(buf, b)
		case sql.Int64Value:
			u := uint64(int64(v)) ^ (1 << 63) // flip the sign bit to order negatives first
			if ck.Reverse() {
				u = ^u
			}
			buf = appendUint64(buf, u)
		case sql.Float64Value:
			u := math.Float64bits(float64(v))
			if u&(1<<63) != 0 {
				u = ^u
			} else {
				u ^= 1 << 63
			}
			if ck.Reverse() {
				u = ^u
			}
			buf = appendUint64(buf, u)
		default:
			panic(fmt.Sprintf("storage: unexpected type for key column: %T: %v", v, v))
		}
	}
	return buf
}

func appendUint32(buf []byte, u uint32) []byte {
	return append(buf, byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
}

func appendUint64(buf []byte, u uint64) []byte {
	return append(buf, byte(u>>56), byte(u>>48), byte(u>>40), byte(u>>32), byte(u>>24),
		byte(u>>16), byte(u>>8), byte(u))
}
