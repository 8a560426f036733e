package access

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/accessgate/internal/model"
)

// BatchItem is the outcome of one request in a batch.
type BatchItem struct {
	Result model.AccessResult
	Err    error
}

// EvaluateBatch evaluates requests concurrently and returns outcomes in
// request order. One failing request does not stop the others.
func (e *Evaluator) EvaluateBatch(reqs []model.AccessRequest) []BatchItem {
	out := make([]BatchItem, len(reqs))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range reqs {
		g.Go(func() error {
			res, err := e.Evaluate(&reqs[i])
			out[i] = BatchItem{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
