package storagetest

import (
	"context"

	"github.com/flasheng/flasheng/internal/storage"
)

// FlakyStore wraps a real store and injects begin, commit and rollback failures.
// Not safe for concurrent use.
type FlakyStore struct {
	storage.Store
	BeginErr    error
	CommitErr   error
	RollbackErr error
	Begun       int
	Committed   int
	RolledBack  int

	// AfterBegin runs once a transaction is open
	AfterBegin func()
}

func NewFlaky(s storage.Store) *FlakyStore {
	return &FlakyStore{Store: s}
}

func (s *FlakyStore) Begin(ctx context.Context) (storage.Tx, error) {
	if s.BeginErr != nil {
		return nil, s.BeginErr
	}
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	s.Begun++
	if s.AfterBegin != nil {
		s.AfterBegin()
	}
	return &flakyTx{Tx: tx, store: s}, nil
}

type flakyTx struct {
	storage.Tx
	store *FlakyStore
}

// Commit leaves the native transaction open when failing, as after a lost commit round trip
func (t *flakyTx) Commit() error {
	if t.store.CommitErr != nil {
		return t.store.CommitErr
	}
	if err := t.Tx.Commit(); err != nil {
		return err
	}
	t.store.Committed++
	return nil
}

func (t *flakyTx) Rollback() error {
	t.store.RolledBack++
	err := t.Tx.Rollback()
	if t.store.RollbackErr != nil {
		return t.store.RollbackErr
	}
	return err
}
