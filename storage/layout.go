package storage

import (
	"fmt"

	"github.com/leftmike/cowrows/sql"
)

// TableLayout describes the fixed width record layout of a table: the
// columns, the primary key, and the optional partitioning column (-1 when the
// table is not partitioned). Variable width columns are not supported; every
// column occupies ColumnType.Size bytes in a tuple slot.
type TableLayout struct {
	name            string
	columns         []string
	columnTypes     []sql.ColumnType
	primary         []sql.ColumnKey
	partitionColumn int
	rowWidth        int
}

func NewTableLayout(name string, columns []string, columnTypes []sql.ColumnType,
	primary []sql.ColumnKey, partitionColumn int) *TableLayout {

	if len(columns) != len(columnTypes) {
		panic(fmt.Sprintf("storage: table %s: %d columns with %d column types", name,
			len(columns), len(columnTypes)))
	}
	if len(primary) == 0 {
		panic(fmt.Sprintf("storage: table %s: missing required primary key", name))
	}
	for _, ck := range primary {
		if ck.Column() >= len(columns) {
			panic(fmt.Sprintf("storage: table %s: primary key column %d out of range", name,
				ck.Column()))
		}
	}
	if partitionColumn < -1 || partitionColumn >= len(columns) {
		panic(fmt.Sprintf("storage: table %s: partition column %d out of range", name,
			partitionColumn))
	}

	var width int
	for _, ct := range columnTypes {
		width += ct.Width()
	}

	return &TableLayout{
		name:            name,
		columns:         columns,
		columnTypes:     columnTypes,
		primary:         primary,
		partitionColumn: partitionColumn,
		rowWidth:        width,
	}
}

func (tl *TableLayout) Name() string {
	return tl.name
}

func (tl *TableLayout) Columns() []string {
	return tl.columns
}

func (tl *TableLayout) ColumnTypes() []sql.ColumnType {
	return tl.columnTypes
}

func (tl *TableLayout) PrimaryKey() []sql.ColumnKey {
	return tl.primary
}

func (tl *TableLayout) PartitionColumn() int {
	return tl.partitionColumn
}

// RowWidth is the serialized width of a tuple payload in bytes, excluding
// the one byte flag header kept in the slot.
func (tl *TableLayout) RowWidth() int {
	return tl.rowWidth
}

// CheckRow validates a row against the layout.
func (tl *TableLayout) CheckRow(row []sql.Value) error {
	if len(row) != len(tl.columns) {
		return fmt.Errorf("storage: table %s: row has %d values; want %d: %w", tl.name,
			len(row), len(tl.columns), ErrSchemaViolation)
	}
	for cdx, v := range row {
		ct := tl.columnTypes[cdx]
		if v == nil {
			if ct.NotNull {
				return fmt.Errorf("storage: table %s: column %s may not be null: %w", tl.name,
					tl.columns[cdx], ErrSchemaViolation)
			}
			continue
		}
		switch ct.Type {
		case sql.BooleanType:
			if _, ok := v.(sql.BoolValue); !ok {
				return fmt.Errorf("storage: table %s: column %s: want boolean got %s: %w",
					tl.name, tl.columns[cdx], v, ErrSchemaViolation)
			}
		case sql.IntegerType:
			i, ok := v.(sql.Int64Value)
			if !ok {
				return fmt.Errorf("storage: table %s: column %s: want integer got %s: %w",
					tl.name, tl.columns[cdx], v, ErrSchemaViolation)
			}
			if ct.Size == 4 && (i > 0x7FFFFFFF || i < -0x80000000) {
				return fmt.Errorf("storage: table %s: column %s: integer out of range: %s: %w",
					tl.name, tl.columns[cdx], v, ErrSchemaViolation)
			}
		case sql.FloatType:
			if _, ok := v.(sql.Float64Value); !ok {
				return fmt.Errorf("storage: table %s: column %s: want double got %s: %w",
					tl.name, tl.columns[cdx], v, ErrSchemaViolation)
			}
		default:
			panic(fmt.Sprintf("storage: table %s: unexpected column type: %v", tl.name, ct.Type))
		}
	}
	return nil
}
