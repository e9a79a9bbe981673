package cmd

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/leftmike/cowrows/expr"
	"github.com/leftmike/cowrows/flags"
	"github.com/leftmike/cowrows/sql"
	"github.com/leftmike/cowrows/storage"
	"github.com/leftmike/cowrows/storage/cowrows"
	"github.com/leftmike/cowrows/storage/stream"
)

var (
	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Run a snapshot streaming workload and report per stream totals",
		RunE:  snapshotRun,
	}

	tupleCount = 100000
	bufferSize = 128 * 1024
	partitions = 4
	blockSize  = 0
	mutations  = 10
	seed       = int64(1)
)

func initWorkloadFlags(fs *pflag.FlagSet) {
	fs.IntVar(&tupleCount, "tuples", tupleCount, "tuples to populate")
	fs.IntVar(&bufferSize, "buffer", bufferSize, "output buffer size in `bytes`")
	fs.IntVar(&partitions, "partitions", partitions, "predicate partitioned output streams")
	fs.IntVar(&blockSize, "block-size", blockSize, "block allocation target in `bytes`")
	fs.IntVar(&mutations, "mutations", mutations, "random mutations between streamMore calls")
	fs.Int64Var(&seed, "seed", seed, "random seed")
}

func init() {
	initWorkloadFlags(snapshotCmd.Flags())
	cowrowsCmd.AddCommand(snapshotCmd)
}

func workloadLayout() *storage.TableLayout {
	return storage.NewTableLayout("workload",
		[]string{"id", "val", "a", "b", "c"},
		[]sql.ColumnType{sql.Int32ColType, sql.Int32ColType, sql.Int64ColType,
			sql.Int64ColType, sql.Int64ColType},
		[]sql.ColumnKey{sql.MakeColumnKey(0, false)}, 1)
}

func activationInput(deleteAsWeGo bool, preds []string) []byte {
	var input []byte
	if deleteAsWeGo {
		input = append(input, 1)
	} else {
		input = append(input, 0)
	}
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(preds)))
	input = append(input, n[:]...)
	for _, pred := range preds {
		binary.BigEndian.PutUint32(n[:], uint32(len(pred)))
		input = append(input, n[:]...)
		input = append(input, pred...)
	}
	return input
}

func snapshotRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rnd := rand.New(rand.NewSource(seed))

	layout := workloadLayout()
	tbl := cowrows.NewTable(layout, blockSize, nil)

	for id := 0; id < tupleCount; id++ {
		row := []sql.Value{sql.Int64Value(id), sql.Int64Value(rnd.Int31()),
			sql.Int64Value(0), sql.Int64Value(0), sql.Int64Value(0)}
		err := tbl.Insert(ctx, row)
		if err != nil {
			return err
		}
	}

	preds := make([]string, partitions)
	for part := 0; part < partitions; part++ {
		preds[part] = expr.PartitionPredicate(layout.PartitionColumn(), partitions, part)
	}

	err := tbl.ActivateStream(ctx, stream.DefaultSerializer{}, cowrows.StreamSnapshot, 0,
		activationInput(false, preds))
	if err != nil {
		return err
	}

	rows := make([]int, partitions)
	bytes := make([]int, partitions)
	calls := 0
	for {
		outputs := make([]*stream.Output, partitions)
		for part := range outputs {
			outputs[part] = stream.NewOutput(bufferSize)
		}
		remaining, positions, err := tbl.StreamMore(ctx, stream.NewProcessor(outputs))
		if err != nil {
			return err
		}
		calls += 1
		for part, o := range outputs {
			rows[part] += o.RowCount()
			bytes[part] += positions[part]
		}
		if remaining == 0 {
			break
		}

		for m := 0; m < mutations; m++ {
			randomMutation(ctx, tbl, rnd)
		}
		if flgs.GetFlag(flags.ForcedCompaction) && calls%16 == 0 {
			tbl.DoForcedCompaction()
		}
	}

	log.WithFields(log.Fields{
		"tuples": tupleCount,
		"calls":  calls,
	}).Info("snapshot workload streamed")

	w := tablewriter.NewWriter(os.Stdout)
	w.SetHeader([]string{"Stream", "Rows", "Bytes"})
	for part := 0; part < partitions; part++ {
		w.Append([]string{strconv.Itoa(part), strconv.Itoa(rows[part]),
			strconv.Itoa(bytes[part])})
	}
	w.Render()

	fmt.Printf("tuples in table: %d; blocks: %d\n", tbl.ActiveTupleCount(), tbl.BlockCount())
	return nil
}

func randomMutation(ctx context.Context, tbl *cowrows.Table, rnd *rand.Rand) {
	switch rnd.Intn(3) {
	case 0:
		ref, _, ok := tbl.RandomTuple(rnd)
		if ok {
			tbl.Delete(ctx, ref)
		}
	case 1:
		row := []sql.Value{sql.Int64Value(tupleCount + rnd.Intn(1 << 30)),
			sql.Int64Value(rnd.Int31()), sql.Int64Value(0), sql.Int64Value(0),
			sql.Int64Value(0)}
		tbl.Insert(ctx, row)
	case 2:
		ref, row, ok := tbl.RandomTuple(rnd)
		if ok {
			row[1] = sql.Int64Value(rnd.Int31())
			tbl.Update(ctx, ref, row)
		}
	}
}
