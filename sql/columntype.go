package sql

import (
	"fmt"
)

type ColumnUpdate struct {
	Index int
	Value Value
}

type ColumnType struct {
	Type DataType

	// Size of the column in bytes; only fixed width columns are supported.
	Size uint32

	NotNull bool // not allowed to be NULL
}

var (
	Int32ColType   = ColumnType{Type: IntegerType, Size: 4, NotNull: true}
	Int64ColType   = ColumnType{Type: IntegerType, Size: 8, NotNull: true}
	Float64ColType = ColumnType{Type: FloatType, Size: 8, NotNull: true}
	BoolColType    = ColumnType{Type: BooleanType, Size: 1, NotNull: true}
)

func (ct ColumnType) DataType() string {
	switch ct.Type {
	case BooleanType:
		return "BOOL"
	case FloatType:
		return "DOUBLE"
	case IntegerType:
		switch ct.Size {
		case 2:
			return "SMALLINT"
		case 4:
			return "INT"
		case 8:
			return "BIGINT"
		default:
			return fmt.Sprintf("INT(%d)", ct.Size)
		}
	}

	return ""
}

// Width is the number of bytes the column occupies in a tuple slot.
func (ct ColumnType) Width() int {
	return int(ct.Size)
}
