package cowrows_test

import (
	"io"
	"testing"

	"github.com/leftmike/cowrows/sql"
)

type valueSetCatcher struct {
	set map[int64]bool
}

func (c *valueSetCatcher) CatchTuple(row []sql.Value) {
	c.set[value64(row)] = true
}

// Scan the table while churning it with inserts, deletes, updates, and
// forced compaction: every tuple live at scanner creation must be accounted
// for exactly once across the scan returns, the deletes, the update sources,
// and the stray catcher.
func TestElasticScannerChurn(t *testing.T) {
	const (
		tuplesPerBlock = 50
		numInitial     = 300
		numCycles      = 300
		freqInsert     = 1
		freqDelete     = 10
		freqUpdate     = 5
		freqCompaction = 100
	)

	fx := newFixture(t, 9, (tupleWidth+1)*tuplesPerBlock, false)

	initial := map[int64]bool{}
	inserts := map[int64]bool{}
	updateSources := map[int64]bool{}
	updateTargets := map[int64]bool{}
	deletes := map[int64]bool{}
	returns := map[int64]bool{}
	strays := map[int64]bool{}

	fx.insertTuples(numInitial, initial)

	catcher := &valueSetCatcher{set: strays}
	scanner := fx.tbl.ElasticScanner(catcher)

	dest := make([]sql.Value, len(fx.layout.Columns()))
	scanComplete := false
	for icycle := 0; icycle < numCycles; icycle++ {
		if (icycle-1)%freqInsert == 0 {
			fx.randomInsert(inserts)
		}
		if (icycle-1)%freqDelete == 0 {
			fx.randomDelete(deletes)
		}
		if (icycle-1)%freqUpdate == 0 {
			fx.randomUpdate(updateSources, updateTargets)
		}
		if (icycle-1)%freqCompaction == 0 {
			// Delete half the tuples to fragment the blocks, compact, and
			// refill.
			churn := fx.tbl.ActiveTupleCount() / 2
			for i := 0; i < churn; i++ {
				fx.randomDelete(deletes)
			}
			fx.tbl.DoForcedCompaction()
			for i := 0; i < churn; i++ {
				fx.randomInsert(inserts)
			}
		}

		err := scanner.Next(fx.ctx, dest)
		if err == io.EOF {
			scanComplete = true
			break
		}
		if err != nil {
			t.Fatalf("Next() failed with %s", err)
		}
		returns[value64(dest)] = true
	}

	if !scanComplete {
		for {
			err := scanner.Next(fx.ctx, dest)
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("Next() failed with %s", err)
			}
			returns[value64(dest)] = true
		}
	}

	// Every scan return must come from the initial tuples, the inserts, or
	// the update targets.
	for v := range returns {
		if !initial[v] && !inserts[v] && !updateTargets[v] {
			t.Errorf("returned tuple %d is not initial, inserted, or updated", v)
		}
	}

	// Every initial tuple must be accounted for in the returns, deletes,
	// update sources, or stray catches.
	var missing int
	for v := range initial {
		if !returns[v] && !deletes[v] && !updateSources[v] && !strays[v] {
			missing += 1
		}
	}
	if missing != 0 {
		t.Errorf("%d initial tuples unaccounted for", missing)
	}
}

// A plain scan with no churn returns exactly the table contents.
func TestElasticScannerQuiet(t *testing.T) {
	fx := newFixture(t, 10, 0, false)

	initial := map[int64]bool{}
	fx.insertTuples(500, initial)

	scanner := fx.tbl.ElasticScanner(nil)
	defer scanner.Close()

	returns := map[int64]bool{}
	dest := make([]sql.Value, len(fx.layout.Columns()))
	for {
		err := scanner.Next(fx.ctx, dest)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() failed with %s", err)
		}
		v := value64(dest)
		if returns[v] {
			t.Fatalf("tuple %d returned twice", v)
		}
		returns[v] = true
	}

	fx.checkSets(initial, returns)
}
