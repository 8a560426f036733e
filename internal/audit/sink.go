package audit

import (
	"errors"
	"fmt"
)

// ErrSinkDiverged means an entry reached some sinks but could not be removed
// from them after a later sink failed. The persisted copies no longer agree
// with the chain tail, so the chain refuses further appends.
var ErrSinkDiverged = errors.New("audit: sinks diverged")

// Rollbacker is implemented by sinks that can remove the entry they most
// recently accepted.
type Rollbacker interface {
	Rollback(id string) error
}

// MultiSink writes each entry to every sink in order and stops at the first
// failure. Sinks that already accepted the entry are rolled back newest
// first so no persisted copy holds an entry the chain did not commit.
func MultiSink(sinks ...Sink) Sink {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return multiSink(live)
}

type multiSink []Sink

func (m multiSink) Write(e Entry) error {
	for i, s := range m {
		if err := s.Write(e); err != nil {
			if rerr := m.rollback(m[:i], e.ID); rerr != nil {
				return fmt.Errorf("%w: %w (rollback of entry %s: %w)", ErrSinkDiverged, err, e.ID, rerr)
			}
			return err
		}
	}
	return nil
}

func (m multiSink) rollback(written []Sink, id string) error {
	var errs []error
	for i := len(written) - 1; i >= 0; i-- {
		rb, ok := written[i].(Rollbacker)
		if !ok {
			errs = append(errs, fmt.Errorf("sink %d %T cannot roll back", i, written[i]))
			continue
		}
		if err := rb.Rollback(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
