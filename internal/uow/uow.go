package uow

import (
	"context"
	"database/sql"
	"errors"

	"github.com/flasheng/flasheng/internal/domain"
	"github.com/flasheng/flasheng/internal/repository"
	"github.com/flasheng/flasheng/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNotActive = errors.New("unit of work is not active")

type state int

const (
	stateIdle state = iota
	stateActive
	stateDone
	stateClosed
)

// Factory creates units of work over a registry
type Factory struct {
	registry *storage.Registry
}

func NewFactory(registry *storage.Registry) *Factory {
	return &Factory{registry: registry}
}

func (f *Factory) Registry() *storage.Registry {
	return f.registry
}

// Colocated reports whether two resources share a store
func (f *Factory) Colocated(a, b string) bool {
	return f.registry.Colocated(a, b)
}

// Repos bundle on plain store sessions, auto-commit per statement
func (f *Factory) Repos() (*repository.Repositories, error) {
	sessions, err := f.sessions(nil)
	if err != nil {
		return nil, err
	}
	return repository.NewRepositories(sessions), nil
}

// New builds a unit of work over the stores backing the given resources,
// every bound resource when none are named.
func (f *Factory) New(resources ...string) (*UnitOfWork, error) {
	parts, err := f.registry.Participants(resources...)
	if err != nil {
		return nil, err
	}
	repos, err := f.Repos()
	if err != nil {
		return nil, err
	}
	return &UnitOfWork{
		factory:      f,
		participants: parts,
		txs:          make([]storage.Tx, len(parts)),
		repos:        repos,
	}, nil
}

// sessions resolves one gorm session per resource. A resource whose store has an
// open transaction gets that transaction, even when it was not named as a participant.
func (f *Factory) sessions(open map[storage.Store]storage.Tx) (repository.Sessions, error) {
	pick := func(res string) (*gorm.DB, error) {
		s, err := f.registry.Resolve(res)
		if err != nil {
			return nil, err
		}
		if tx, ok := open[s]; ok {
			return tx.DB(), nil
		}
		return s.DB(), nil
	}
	var (
		sess repository.Sessions
		err  error
	)
	if sess.Users, err = pick(domain.ResourceUsers); err != nil {
		return sess, err
	}
	if sess.Flashcards, err = pick(domain.ResourceFlashcards); err != nil {
		return sess, err
	}
	if sess.Catalog, err = pick(domain.ResourceCatalog); err != nil {
		return sess, err
	}
	if sess.Orders, err = pick(domain.ResourceOrders); err != nil {
		return sess, err
	}
	return sess, nil
}

// UnitOfWork binds one native transaction per participating store for one
// business operation. Commit is sequential in registry order and is not atomic
// across stores: a failure after the first commit yields a PartialCommitError.
// A UnitOfWork must not be shared between goroutines.
type UnitOfWork struct {
	factory      *Factory
	participants []storage.Participant
	txs          []storage.Tx
	repos        *repository.Repositories
	state        state
}

// Participants names of the participating stores in commit order
func (u *UnitOfWork) Participants() []string {
	names := make([]string, len(u.participants))
	for i, p := range u.participants {
		names[i] = p.Name()
	}
	return names
}

// Repos current bundle: bound to the open transactions while active, plain sessions otherwise
func (u *UnitOfWork) Repos() *repository.Repositories {
	return u.repos
}

func (u *UnitOfWork) Active() bool {
	return u.state == stateActive
}

// Begin opens a transaction on every participant. On failure the ones already
// opened are rolled back and nothing is left open.
func (u *UnitOfWork) Begin(ctx context.Context) error {
	if u.state != stateIdle {
		return errors.New("unit of work already used")
	}
	if err := ctx.Err(); err != nil {
		return &domain.CancelledError{Err: err}
	}
	for i, p := range u.participants {
		tx, err := p.Store.Begin(ctx)
		if err != nil {
			if failures := u.rollbackFrom(0); len(failures) > 0 {
				zap.L().Warn("release after failed begin incomplete",
					zap.String("namespace", "uow"),
					zap.Int("failures", len(failures)))
			}
			u.state = stateDone
			if ctxErr := ctx.Err(); ctxErr != nil {
				return &domain.CancelledError{Err: ctxErr, Cause: err}
			}
			return &domain.UnavailableError{Resource: p.Name(), Err: err}
		}
		u.txs[i] = tx
	}

	open := make(map[storage.Store]storage.Tx, len(u.participants))
	for i, p := range u.participants {
		open[p.Store] = u.txs[i]
	}
	sessions, err := u.factory.sessions(open)
	if err != nil {
		u.rollbackFrom(0)
		u.state = stateDone
		return err
	}
	u.repos = repository.NewRepositories(sessions)
	u.state = stateActive
	return nil
}

// Commit commits participants one at a time in fixed order. A driver error or
// an ended context stops the sequence: the remaining participants are rolled
// back and a PartialCommitError reports which ones were already durable.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.state != stateActive {
		return ErrNotActive
	}
	defer u.finish()

	for i := range u.participants {
		err := ctx.Err()
		if err == nil {
			err = u.txs[i].Commit()
		}
		if err != nil {
			failures := u.rollbackFrom(i)
			names := u.Participants()
			zap.L().Error("partial commit",
				zap.String("namespace", "uow"),
				zap.Strings("committed", names[:i]),
				zap.Strings("uncommitted", names[i:]),
				zap.Int("rollback_failures", len(failures)),
				zap.Error(err))
			return &domain.PartialCommitError{
				Committed:   append([]string{}, names[:i]...),
				Uncommitted: append([]string{}, names[i:]...),
				Err:         err,
			}
		}
		u.txs[i] = nil
	}
	return nil
}

// Rollback rolls back every open transaction in reverse order. Each participant
// is attempted regardless of earlier failures; the failures are logged and
// returned as a RollbackError without a cause.
func (u *UnitOfWork) Rollback() error {
	if u.state != stateActive {
		return nil
	}
	defer u.finish()

	failures := u.rollbackFrom(0)
	if len(failures) == 0 {
		return nil
	}
	return &domain.RollbackError{Failures: failures}
}

// Close releases the unit of work, rolling back if still active. Safe to call repeatedly.
func (u *UnitOfWork) Close() {
	if u.state == stateClosed {
		return
	}
	if u.state == stateActive {
		_ = u.Rollback()
	}
	u.state = stateClosed
}

// rollbackFrom rolls back open transactions at index >= from, last first
func (u *UnitOfWork) rollbackFrom(from int) []domain.ResourceFailure {
	var failures []domain.ResourceFailure
	for i := len(u.txs) - 1; i >= from; i-- {
		tx := u.txs[i]
		if tx == nil {
			continue
		}
		u.txs[i] = nil
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			name := u.participants[i].Name()
			zap.L().Error("rollback failed",
				zap.String("namespace", "uow"),
				zap.String("resource", name),
				zap.Error(err))
			failures = append(failures, domain.ResourceFailure{Resource: name, Err: err})
		}
	}
	return failures
}

// finish marks the unit done and rebinds the bundle to plain sessions
func (u *UnitOfWork) finish() {
	u.state = stateDone
	if repos, err := u.factory.Repos(); err == nil {
		u.repos = repos
	}
}
