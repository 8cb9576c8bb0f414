package database

import (
	"context"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/letsspeak/core"
)

// postgres error codes worth retrying the whole transaction for
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

type Transactor struct {
	db      core.DB
	retries int
}

var _ core.Transactor = (*Transactor)(nil)

func NewTransactor(db core.DB) *Transactor {
	return &Transactor{db: db, retries: 3}
}

// InTx runs fn in a transaction, retrying it from scratch on serialization failures and deadlocks.
// fn must therefore not keep state across calls.
func (t *Transactor) InTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	var err error
	for attempt := 0; attempt <= t.retries; attempt++ {
		if err = t.inTx(ctx, fn); !isRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return err
}

func (t *Transactor) inTx(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.WithMessagef(err, "rolling back: %v", rbErr)
			}
			return
		}
		err = errors.Wrap(tx.Commit(), "committing transaction")
	}()

	return fn(tx)
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
	}
	return false
}
