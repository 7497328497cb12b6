package storage

import (
	"context"
	"errors"

	"curveLedger/internal/model"
)

// Storage defines a sink for ledger events.
type Storage interface {
	PutEvents(ctx context.Context, events []model.LedgerEvent) error
}

type fanout []Storage

// Fanout writes every batch to each sink in order. All sinks are attempted
// and their errors joined.
func Fanout(sinks ...Storage) Storage {
	out := make(fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f fanout) PutEvents(ctx context.Context, events []model.LedgerEvent) error {
	var errs []error
	for _, s := range f {
		if err := s.PutEvents(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
