package storage_test

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/leftmike/cowrows/sql"
	"github.com/leftmike/cowrows/storage"
)

func testLayout() *storage.TableLayout {
	return storage.NewTableLayout("t",
		[]string{"id", "val", "f", "b"},
		[]sql.ColumnType{sql.Int32ColType, sql.Int64ColType, sql.Float64ColType,
			sql.BoolColType},
		[]sql.ColumnKey{sql.MakeColumnKey(0, false)}, 1)
}

func TestRowWidth(t *testing.T) {
	tl := testLayout()
	if tl.RowWidth() != 4+8+8+1 {
		t.Errorf("RowWidth() got %d want %d", tl.RowWidth(), 4+8+8+1)
	}
}

func TestCheckRow(t *testing.T) {
	tl := testLayout()

	cases := []struct {
		row  []sql.Value
		fail bool
	}{
		{row: []sql.Value{sql.Int64Value(1), sql.Int64Value(2), sql.Float64Value(1.5),
			sql.BoolValue(true)}},
		{row: []sql.Value{sql.Int64Value(1), sql.Int64Value(2)}, fail: true},
		{row: []sql.Value{sql.Int64Value(1), sql.Int64Value(2), sql.Float64Value(1.5),
			sql.BoolValue(true), sql.Int64Value(3)}, fail: true},
		{row: []sql.Value{sql.StringValue("abc"), sql.Int64Value(2), sql.Float64Value(1.5),
			sql.BoolValue(true)}, fail: true},
		{row: []sql.Value{nil, sql.Int64Value(2), sql.Float64Value(1.5),
			sql.BoolValue(true)}, fail: true},
		{row: []sql.Value{sql.Int64Value(1 << 40), sql.Int64Value(2), sql.Float64Value(1.5),
			sql.BoolValue(true)}, fail: true},
	}

	for i, c := range cases {
		err := tl.CheckRow(c.row)
		if c.fail {
			if err == nil {
				t.Errorf("CheckRow(%d) did not fail", i)
			} else if !errors.Is(err, storage.ErrSchemaViolation) {
				t.Errorf("CheckRow(%d) got %s; want schema violation", i, err)
			}
		} else if err != nil {
			t.Errorf("CheckRow(%d) failed with %s", i, err)
		}
	}
}

func TestCodec(t *testing.T) {
	tl := testLayout()
	row := []sql.Value{sql.Int64Value(0x01020304), sql.Int64Value(0x0102030405060708),
		sql.Float64Value(1.0), sql.BoolValue(true)}

	payload := storage.EncodeRow(tl, row)
	want := []byte{
		0x01, 0x02, 0x03, 0x04,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x3f, 0xf0, 0, 0, 0, 0, 0, 0,
		1,
	}
	if !bytes.Equal(payload, want) {
		t.Errorf("EncodeRow() got %v want %v", payload, want)
	}

	got := storage.DecodeRow(tl, payload)
	if !reflect.DeepEqual(got, row) {
		t.Errorf("DecodeRow() got %v want %v", got, row)
	}
}

func TestCodecNegative(t *testing.T) {
	tl := testLayout()
	row := []sql.Value{sql.Int64Value(-5), sql.Int64Value(-1234567), sql.Float64Value(-2.5),
		sql.BoolValue(false)}

	got := storage.DecodeRow(tl, storage.EncodeRow(tl, row))
	if !reflect.DeepEqual(got, row) {
		t.Errorf("DecodeRow() got %v want %v", got, row)
	}
}

func TestMakeKeyOrder(t *testing.T) {
	key := []sql.ColumnKey{sql.MakeColumnKey(0, false)}
	rows := [][]sql.Value{
		{sql.Int64Value(-100)},
		{sql.Int64Value(-1)},
		{sql.Int64Value(0)},
		{sql.Int64Value(1)},
		{sql.Int64Value(1 << 40)},
	}

	var prev []byte
	for _, row := range rows {
		k := storage.MakeKey(key, row)
		if prev != nil && bytes.Compare(prev, k) >= 0 {
			t.Errorf("MakeKey(%s) does not order after previous key", sql.Format(row[0]))
		}
		prev = k
	}
}

func TestMakeKeyReverse(t *testing.T) {
	key := []sql.ColumnKey{sql.MakeColumnKey(0, true)}
	k1 := storage.MakeKey(key, []sql.Value{sql.Int64Value(1)})
	k2 := storage.MakeKey(key, []sql.Value{sql.Int64Value(2)})
	if bytes.Compare(k1, k2) <= 0 {
		t.Error("reverse key did not invert the order")
	}
}
