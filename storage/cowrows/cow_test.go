package cowrows_test

import (
	"errors"
	"testing"

	"github.com/leftmike/cowrows/storage"
	"github.com/leftmike/cowrows/storage/cowrows"
	"github.com/leftmike/cowrows/storage/stream"
)

const numMutations = 10

// streamSnapshot drives one snapshot to completion with a single output
// stream, collecting tuple values and calling between after every yielding
// call.
func (fx *fixture) streamSnapshot(payloads map[int64][]byte,
	between func()) map[int64]bool {

	fx.t.Helper()

	cow := map[int64]bool{}
	for {
		outputs := []*stream.Output{stream.NewOutput(bufferSize)}
		remaining, positions, err := fx.tbl.StreamMore(fx.ctx, stream.NewProcessor(outputs))
		if err != nil {
			fx.t.Fatalf("StreamMore() failed with %s", err)
		}
		if len(positions) != len(outputs) {
			fx.t.Fatalf("StreamMore() returned %d positions; want %d", len(positions),
				len(outputs))
		}
		fx.parseOutput(outputs[0], cow, payloads)
		if remaining == 0 {
			break
		}
		if between != nil {
			between()
		}
	}
	return cow
}

// Insert tuples, snapshot with random mutations interleaved between
// streaming calls, and check that the output matches the table as of
// activation.
func TestCopyOnWriteBig(t *testing.T) {
	tupleCount := testTupleCount(t)
	fx := newFixture(t, 1, 0, false)
	fx.insertTuples(tupleCount, nil)

	for rep := 0; rep < 3; rep++ {
		original := fx.tableValues()
		payloads := fx.tablePayloads()

		fx.activate(false, nil)
		cow := fx.streamSnapshot(payloads, func() {
			for m := 0; m < numMutations; m++ {
				fx.randomMutation()
			}
		})

		fx.checkSets(original, cow)
		fx.checkClean()

		want := tupleCount + fx.inserted - fx.deleted
		if cnt := fx.tbl.ActiveTupleCount(); cnt != want {
			t.Errorf("ActiveTupleCount() got %d want %d", cnt, want)
		}
	}
}

// As TestCopyOnWriteBig, but after each streaming call the last undo quantum
// is randomly released or reversed.
func TestCopyOnWriteBigUndo(t *testing.T) {
	tupleCount := testTupleCount(t)
	fx := newFixture(t, 2, 0, true)
	fx.insertTuples(tupleCount, nil)

	// The population is permanent; mutations start in the next quantum.
	fx.undo.ReleaseUndoToken(fx.token)
	fx.token += 1
	fx.undo.SetUndoToken(fx.token)

	for rep := 0; rep < 3; rep++ {
		original := fx.tableValues()

		fx.activate(false, nil)
		cow := fx.streamSnapshot(nil, func() {
			for m := 0; m < numMutations; m++ {
				fx.randomMutation()
			}
			fx.randomUndo()
		})

		fx.checkSets(original, cow)
		fx.checkClean()

		want := tupleCount + fx.inserted - fx.deleted
		if cnt := fx.tbl.ActiveTupleCount(); cnt != want {
			t.Errorf("ActiveTupleCount() got %d want %d", cnt, want)
		}
	}
}

// As TestCopyOnWriteBigUndo, but every quantum is reversed: the table must
// come out of each snapshot exactly as it went in.
func TestCopyOnWriteUndoEverything(t *testing.T) {
	tupleCount := testTupleCount(t)
	fx := newFixture(t, 3, 0, true)
	fx.insertTuples(tupleCount, nil)

	// The population is permanent; mutations start in the next quantum.
	fx.undo.ReleaseUndoToken(fx.token)
	fx.token += 1
	fx.undo.SetUndoToken(fx.token)

	for rep := 0; rep < 3; rep++ {
		original := fx.tableValues()

		fx.activate(false, nil)
		cow := fx.streamSnapshot(nil, func() {
			for m := 0; m < numMutations; m++ {
				fx.randomMutation()
			}
			fx.undo.UndoUndoToken(fx.token)
			fx.deleted -= fx.deletedInLastUndo
			fx.inserted -= fx.insertedInLastUndo
			fx.deletedInLastUndo = 0
			fx.insertedInLastUndo = 0
			fx.token += 1
			fx.undo.SetUndoToken(fx.token)
		})

		fx.checkSets(original, cow)
		fx.checkClean()

		// Zero net mutation: the table still holds exactly the original
		// tuples.
		final := fx.tableValues()
		fx.checkSets(original, final)
		if cnt := fx.tbl.ActiveTupleCount(); cnt != tupleCount {
			t.Errorf("ActiveTupleCount() got %d want %d", cnt, tupleCount)
		}
	}
}

func TestActivateStreamErrors(t *testing.T) {
	fx := newFixture(t, 4, 0, false)
	fx.insertTuples(100, nil)

	// A predicate that does not compile leaves the table unchanged.
	err := fx.tbl.ActivateStream(fx.ctx, stream.DefaultSerializer{}, cowrows.StreamSnapshot,
		0, activationInput(false, []string{`{"TYPE": "NO_SUCH_TYPE"}`}))
	if err == nil {
		t.Fatal("ActivateStream() did not fail")
	}
	if !errors.Is(err, storage.ErrPredicateCompile) {
		t.Errorf("ActivateStream() got %s; want predicate compile failure", err)
	}
	if fx.tbl.Snapshotting() || fx.tbl.BlocksPendingSnapshotCount() != 0 {
		t.Error("failed activation changed the table")
	}

	// A second activation fails with the snapshot already active.
	fx.activate(false, nil)
	err = fx.tbl.ActivateStream(fx.ctx, stream.DefaultSerializer{}, cowrows.StreamSnapshot,
		0, activationInput(false, nil))
	if !errors.Is(err, storage.ErrSnapshotActive) {
		t.Errorf("ActivateStream() got %v; want snapshot already active", err)
	}

	fx.streamSnapshot(nil, nil)

	// Streaming without a snapshot fails.
	outputs := []*stream.Output{stream.NewOutput(bufferSize)}
	remaining, _, err := fx.tbl.StreamMore(fx.ctx, stream.NewProcessor(outputs))
	if !errors.Is(err, storage.ErrNotSnapshotting) {
		t.Errorf("StreamMore() got %v; want no snapshot active", err)
	}
	if remaining >= 0 {
		t.Errorf("StreamMore() got remaining %d; want negative", remaining)
	}
}
