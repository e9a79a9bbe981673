package cowrows_test

import (
	"testing"

	"github.com/leftmike/cowrows/expr"
	"github.com/leftmike/cowrows/sql"
	"github.com/leftmike/cowrows/storage/stream"
)

// Exercise the multi stream snapshot: seven predicate partitioned output
// streams routed by the second column, with one partition given the empty
// predicate. The final repetition deletes tuples as they are streamed.
func TestMultiStreamSnapshot(t *testing.T) {
	const npartitions = 7
	skipped := npartitions / 2

	tupleCount := testTupleCount(t)
	fx := newFixture(t, 5, 0, false)
	fx.insertTuples(tupleCount, nil)

	preds := make([]string, npartitions)
	for part := 0; part < npartitions; part++ {
		if part != skipped {
			preds[part] = expr.PartitionPredicate(fx.layout.PartitionColumn(), npartitions,
				part)
		} else {
			preds[part] = expr.PartitionPredicate(fx.layout.PartitionColumn(), npartitions,
				-1)
		}
	}

	const reps = 2
	for rep := 0; rep < reps; rep++ {
		doDelete := rep == reps-1

		// Map the table to expected partitions before activation.
		expected := make([]map[int64]bool, npartitions)
		for part := range expected {
			expected[part] = map[int64]bool{}
		}
		var totalSkipped int
		for v := range fx.tableValues() {
			part := int(uint32(v)) % npartitions
			if part != skipped {
				expected[part][v] = true
			} else {
				totalSkipped += 1
			}
		}

		fx.activate(doDelete, preds)

		actual := make([]map[int64]bool, npartitions)
		for part := range actual {
			actual[part] = map[int64]bool{}
		}
		for {
			outputs := make([]*stream.Output, npartitions)
			for part := range outputs {
				outputs[part] = stream.NewOutput(bufferSize)
			}
			remaining, positions, err := fx.tbl.StreamMore(fx.ctx,
				stream.NewProcessor(outputs))
			if err != nil {
				t.Fatalf("StreamMore() failed with %s", err)
			}
			if len(positions) != npartitions {
				t.Fatalf("StreamMore() returned %d positions; want %d", len(positions),
					npartitions)
			}
			for part, o := range outputs {
				fx.parseOutput(o, actual[part], nil)
			}
			if remaining == 0 {
				break
			}
			if !doDelete {
				for m := 0; m < numMutations; m++ {
					fx.randomMutation()
				}
			}
		}

		// Per partition the streamed tuples must be exactly the expected
		// ones; the skipped partition gets nothing.
		for part := 0; part < npartitions; part++ {
			if len(expected[part]) != len(actual[part]) {
				t.Errorf("partition %d: got %d tuples want %d", part, len(actual[part]),
					len(expected[part]))
			}
			for v := range expected[part] {
				if !actual[part][v] {
					t.Errorf("partition %d: tuple %d missing", part, v)
				}
			}
			for v := range actual[part] {
				if !expected[part][v] {
					t.Errorf("partition %d: unexpected tuple %d", part, v)
				}
			}
		}
		if len(actual[skipped]) != 0 {
			t.Errorf("skipped partition received %d tuples", len(actual[skipped]))
		}

		// No tuple appears in more than one stream.
		seen := map[int64]int{}
		for part := 0; part < npartitions; part++ {
			for v := range actual[part] {
				if prev, ok := seen[v]; ok {
					t.Errorf("tuple %d in partitions %d and %d", v, prev, part)
				}
				seen[v] = part
			}
		}

		fx.checkClean()

		if doDelete {
			if cnt := fx.tbl.ActiveTupleCount(); cnt != totalSkipped {
				t.Errorf("ActiveTupleCount() got %d want %d", cnt, totalSkipped)
			}
		} else {
			want := tupleCount + fx.inserted - fx.deleted
			if cnt := fx.tbl.ActiveTupleCount(); cnt != want {
				t.Errorf("ActiveTupleCount() got %d want %d", cnt, want)
			}
		}
	}
}

// Predicates observe activation time values: a tuple updated mid snapshot
// must route by its pre-image.
func TestPredicatePreImage(t *testing.T) {
	fx := newFixture(t, 6, 0, false)

	// Two tuples per buffer so the snapshot takes several calls.
	for i := 0; i < 8; i++ {
		err := fx.tbl.Insert(fx.ctx, fx.makeRow(int32(i), int32(i)))
		if err != nil {
			t.Fatal(err)
		}
	}

	original := fx.tableValues()
	fx.activate(false, []string{
		expr.PartitionPredicate(fx.layout.PartitionColumn(), 2, 0),
		expr.PartitionPredicate(fx.layout.PartitionColumn(), 2, 1),
	})

	small := 8 + (4+tupleWidth)*2 + 4
	actual := []map[int64]bool{{}, {}}
	for {
		outputs := []*stream.Output{stream.NewOutput(small), stream.NewOutput(small)}
		remaining, _, err := fx.tbl.StreamMore(fx.ctx, stream.NewProcessor(outputs))
		if err != nil {
			t.Fatal(err)
		}
		for part, o := range outputs {
			fx.parseOutput(o, actual[part], nil)
		}
		if remaining == 0 {
			break
		}

		// Flip the parity of every remaining tuple.
		dest := make([]sql.Value, len(fx.layout.Columns()))
		rows := fx.tbl.Rows(fx.ctx)
		for {
			err := rows.Next(fx.ctx, dest)
			if err != nil {
				break
			}
			row := append([]sql.Value(nil), dest...)
			row[1] = sql.Int64Value(int64(row[1].(sql.Int64Value)) + 1)
			err = fx.tbl.Update(fx.ctx, rows.Ref(), row)
			if err != nil {
				t.Fatal(err)
			}
		}
	}

	cow := map[int64]bool{}
	for part, vals := range actual {
		for v := range vals {
			if int(uint32(v))%2 != part {
				t.Errorf("partition %d: tuple %d routed by post-image", part, v)
			}
			cow[v] = true
		}
	}
	fx.checkSets(original, cow)
}
