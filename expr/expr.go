// Package expr compiles JSON encoded expression trees into callable
// predicates over rows. The trees use TYPE tags (VALUE_CONSTANT,
// VALUE_TUPLE, COMPARE_EQUAL, OPERATOR_PLUS, ...) with LEFT and RIGHT
// children for binary nodes.
package expr

import (
	"encoding/json"
	"fmt"

	"github.com/leftmike/cowrows/sql"
	"github.com/leftmike/cowrows/storage"
)

// Predicate evaluates a row to accept or reject it.
type Predicate func(row []sql.Value) (bool, error)

type evalFn func(row []sql.Value) (sql.Value, error)

type node struct {
	Type      string      `json:"TYPE"`
	ValueType string      `json:"VALUE_TYPE"`
	Value     interface{} `json:"VALUE"`
	IsNull    bool        `json:"ISNULL"`
	ColumnIdx *int        `json:"COLUMN_IDX"`
	Left      *node       `json:"LEFT"`
	Right     *node       `json:"RIGHT"`
}

// Compile parses and compiles one JSON expression into a predicate; the
// expression must evaluate to a boolean.
func Compile(text string, tl *storage.TableLayout) (Predicate, error) {
	var n node
	err := json.Unmarshal([]byte(text), &n)
	if err != nil {
		return nil, fmt.Errorf("expr: %s: %w", err, storage.ErrPredicateCompile)
	}

	fn, err := compileNode(&n, tl)
	if err != nil {
		return nil, err
	}

	return func(row []sql.Value) (bool, error) {
		v, err := fn(row)
		if err != nil {
			return false, err
		}
		b, ok := v.(sql.BoolValue)
		if !ok {
			return false, fmt.Errorf("expr: want boolean result got %s", sql.Format(v))
		}
		return bool(b), nil
	}, nil
}

func compileNode(n *node, tl *storage.TableLayout) (evalFn, error) {
	switch n.Type {
	case "VALUE_CONSTANT":
		return compileConstant(n)
	case "VALUE_TUPLE":
		return compileColumn(n, tl)
	case "COMPARE_EQUAL", "COMPARE_NOTEQUAL", "COMPARE_LESSTHAN", "COMPARE_GREATERTHAN",
		"COMPARE_LESSTHANOREQUALTO", "COMPARE_GREATERTHANOREQUALTO":
		return compileCompare(n, tl)
	case "OPERATOR_PLUS", "OPERATOR_MINUS", "OPERATOR_MULTIPLY", "OPERATOR_DIVIDE",
		"OPERATOR_MODULUS":
		return compileArith(n, tl)
	case "CONJUNCTION_AND", "CONJUNCTION_OR":
		return compileConjunction(n, tl)
	}
	return nil, fmt.Errorf("expr: unexpected node type %q: %w", n.Type,
		storage.ErrPredicateCompile)
}

func compileConstant(n *node) (evalFn, error) {
	if n.IsNull {
		return func(row []sql.Value) (sql.Value, error) {
			return nil, nil
		}, nil
	}

	var v sql.Value
	switch n.ValueType {
	case "TINYINT", "SMALLINT", "INTEGER", "BIGINT":
		f, ok := n.Value.(float64)
		if !ok {
			return nil, fmt.Errorf("expr: want integer constant got %v: %w", n.Value,
				storage.ErrPredicateCompile)
		}
		v = sql.Int64Value(int64(f))
	case "DOUBLE", "FLOAT":
		f, ok := n.Value.(float64)
		if !ok {
			return nil, fmt.Errorf("expr: want double constant got %v: %w", n.Value,
				storage.ErrPredicateCompile)
		}
		v = sql.Float64Value(f)
	case "BOOLEAN":
		b, ok := n.Value.(bool)
		if !ok {
			return nil, fmt.Errorf("expr: want boolean constant got %v: %w", n.Value,
				storage.ErrPredicateCompile)
		}
		v = sql.BoolValue(b)
	default:
		return nil, fmt.Errorf("expr: unexpected constant type %q: %w", n.ValueType,
			storage.ErrPredicateCompile)
	}

	return func(row []sql.Value) (sql.Value, error) {
		return v, nil
	}, nil
}

func compileColumn(n *node, tl *storage.TableLayout) (evalFn, error) {
	if n.ColumnIdx == nil {
		return nil, fmt.Errorf("expr: tuple value missing COLUMN_IDX: %w",
			storage.ErrPredicateCompile)
	}
	cdx := *n.ColumnIdx
	if cdx < 0 || cdx >= len(tl.Columns()) {
		return nil, fmt.Errorf("expr: table %s: column %d out of range: %w", tl.Name(), cdx,
			storage.ErrPredicateCompile)
	}

	return func(row []sql.Value) (sql.Value, error) {
		return row[cdx], nil
	}, nil
}

func compileBinary(n *node, tl *storage.TableLayout) (evalFn, evalFn, error) {
	if n.Left == nil || n.Right == nil {
		return nil, nil, fmt.Errorf("expr: %s missing operand: %w", n.Type,
			storage.ErrPredicateCompile)
	}
	left, err := compileNode(n.Left, tl)
	if err != nil {
		return nil, nil, err
	}
	right, err := compileNode(n.Right, tl)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func compileCompare(n *node, tl *storage.TableLayout) (evalFn, error) {
	left, right, err := compileBinary(n, tl)
	if err != nil {
		return nil, err
	}

	op := n.Type
	return func(row []sql.Value) (sql.Value, error) {
		lv, err := left(row)
		if err != nil {
			return nil, err
		}
		rv, err := right(row)
		if err != nil {
			return nil, err
		}
		if lv == nil || rv == nil {
			return sql.BoolValue(false), nil
		}
		cmp, err := lv.Compare(rv)
		if err != nil {
			return nil, err
		}
		switch op {
		case "COMPARE_EQUAL":
			return sql.BoolValue(cmp == 0), nil
		case "COMPARE_NOTEQUAL":
			return sql.BoolValue(cmp != 0), nil
		case "COMPARE_LESSTHAN":
			return sql.BoolValue(cmp < 0), nil
		case "COMPARE_GREATERTHAN":
			return sql.BoolValue(cmp > 0), nil
		case "COMPARE_LESSTHANOREQUALTO":
			return sql.BoolValue(cmp <= 0), nil
		case "COMPARE_GREATERTHANOREQUALTO":
			return sql.BoolValue(cmp >= 0), nil
		}
		panic(fmt.Sprintf("expr: unexpected compare %q", op))
	}, nil
}

func compileArith(n *node, tl *storage.TableLayout) (evalFn, error) {
	left, right, err := compileBinary(n, tl)
	if err != nil {
		return nil, err
	}

	op := n.Type
	return func(row []sql.Value) (sql.Value, error) {
		lv, err := left(row)
		if err != nil {
			return nil, err
		}
		rv, err := right(row)
		if err != nil {
			return nil, err
		}
		if lv == nil || rv == nil {
			return nil, nil
		}

		if li, ok := lv.(sql.Int64Value); ok {
			if ri, ok := rv.(sql.Int64Value); ok {
				return intArith(op, int64(li), int64(ri))
			}
		}
		lf, lok := asFloat(lv)
		rf, rok := asFloat(rv)
		if !lok || !rok {
			return nil, fmt.Errorf("expr: %s: want numbers got %s and %s", op,
				sql.Format(lv), sql.Format(rv))
		}
		return floatArith(op, lf, rf)
	}, nil
}

func asFloat(v sql.Value) (float64, bool) {
	switch v := v.(type) {
	case sql.Int64Value:
		return float64(v), true
	case sql.Float64Value:
		return float64(v), true
	}
	return 0, false
}

func intArith(op string, l, r int64) (sql.Value, error) {
	switch op {
	case "OPERATOR_PLUS":
		return sql.Int64Value(l + r), nil
	case "OPERATOR_MINUS":
		return sql.Int64Value(l - r), nil
	case "OPERATOR_MULTIPLY":
		return sql.Int64Value(l * r), nil
	case "OPERATOR_DIVIDE":
		if r == 0 {
			return nil, fmt.Errorf("expr: division by zero")
		}
		return sql.Int64Value(l / r), nil
	case "OPERATOR_MODULUS":
		if r == 0 {
			return nil, fmt.Errorf("expr: modulus by zero")
		}
		return sql.Int64Value(l % r), nil
	}
	panic(fmt.Sprintf("expr: unexpected operator %q", op))
}

func floatArith(op string, l, r float64) (sql.Value, error) {
	switch op {
	case "OPERATOR_PLUS":
		return sql.Float64Value(l + r), nil
	case "OPERATOR_MINUS":
		return sql.Float64Value(l - r), nil
	case "OPERATOR_MULTIPLY":
		return sql.Float64Value(l * r), nil
	case "OPERATOR_DIVIDE":
		if r == 0 {
			return nil, fmt.Errorf("expr: division by zero")
		}
		return sql.Float64Value(l / r), nil
	case "OPERATOR_MODULUS":
		return nil, fmt.Errorf("expr: modulus of doubles")
	}
	panic(fmt.Sprintf("expr: unexpected operator %q", op))
}

func compileConjunction(n *node, tl *storage.TableLayout) (evalFn, error) {
	left, right, err := compileBinary(n, tl)
	if err != nil {
		return nil, err
	}

	and := n.Type == "CONJUNCTION_AND"
	return func(row []sql.Value) (sql.Value, error) {
		lv, err := left(row)
		if err != nil {
			return nil, err
		}
		lb, ok := lv.(sql.BoolValue)
		if !ok {
			return nil, fmt.Errorf("expr: want boolean got %s", sql.Format(lv))
		}
		if and && !bool(lb) {
			return sql.BoolValue(false), nil
		}
		if !and && bool(lb) {
			return sql.BoolValue(true), nil
		}
		rv, err := right(row)
		if err != nil {
			return nil, err
		}
		rb, ok := rv.(sql.BoolValue)
		if !ok {
			return nil, fmt.Errorf("expr: want boolean got %s", sql.Format(rv))
		}
		return rb, nil
	}, nil
}
