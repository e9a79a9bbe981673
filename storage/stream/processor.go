package stream

import (
	"fmt"

	"github.com/leftmike/cowrows/expr"
	"github.com/leftmike/cowrows/sql"
)

// Processor multiplexes snapshot rows over a set of output streams, one per
// predicate. With no predicates every row goes to every stream. When any
// accepting stream lacks room for a row the whole processor yields without
// writing to any stream, so that all predicates observe the same tuples in
// lock step.
type Processor struct {
	outputs []*Output
	preds   []expr.Predicate
	accept  []int // scratch: stream indexes accepting the current row
}

func NewProcessor(outputs []*Output) *Processor {
	return &Processor{
		outputs: outputs,
	}
}

func (p *Processor) Outputs() []*Output {
	return p.outputs
}

// Open begins every stream and binds the predicates for this call. The
// predicate count must match the stream count unless no predicates were
// supplied at activation.
func (p *Processor) Open(partitionID int32, preds []expr.Predicate) {
	if len(preds) != 0 && len(preds) != len(p.outputs) {
		panic(fmt.Sprintf("stream: %d outputs with %d predicates", len(p.outputs), len(preds)))
	}
	p.preds = preds
	for _, o := range p.outputs {
		o.Begin(partitionID)
	}
}

// WriteRow appends the row to every accepting stream. It yields, without
// touching any stream, when an accepting stream cannot hold the row; wrote
// is the number of streams the row went to.
func (p *Processor) WriteRow(ts TupleSerializer, payload []byte,
	row []sql.Value) (wrote int, yielded bool, err error) {

	p.accept = p.accept[:0]
	if len(p.preds) == 0 {
		for odx := range p.outputs {
			p.accept = append(p.accept, odx)
		}
	} else {
		for odx, pred := range p.preds {
			ok, err := pred(row)
			if err != nil {
				return 0, false, err
			}
			if ok {
				p.accept = append(p.accept, odx)
			}
		}
	}

	n := ts.SerializedLength(payload)
	for _, odx := range p.accept {
		if !p.outputs[odx].HasRoomFor(n) {
			return 0, true, nil
		}
	}
	for _, odx := range p.accept {
		o := p.outputs[odx]
		ts.SerializeTo(o, payload)
		o.endRow()
	}
	return len(p.accept), false, nil
}

// Close finishes every stream; see Output.Close.
func (p *Processor) Close(finished bool, nextLen int) {
	for _, o := range p.outputs {
		o.Close(finished, nextLen)
	}
}

// Positions returns the bytes framed per stream.
func (p *Processor) Positions() []int {
	positions := make([]int, len(p.outputs))
	for odx, o := range p.outputs {
		positions[odx] = o.Position()
	}
	return positions
}
