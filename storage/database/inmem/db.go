package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/letsspeak/core"
	"github.com/trezcool/letsspeak/core/schedule"
)

type (
	// DB keeps every table in memory. Transactions run one at a time and are rolled back by
	// restoring the tables as they were when the transaction started.
	//
	// There is no isolation from callers outside InTx: they read uncommitted writes, and
	// their own writes made while a transaction runs are lost if it rolls back.
	DB struct {
		mu   sync.RWMutex
		txMu sync.Mutex

		trainer map[string]schedule.Trainer
		course  map[string]schedule.Course
		lecture map[string]schedule.Lecture
	}

	snapshot struct {
		trainer map[string]schedule.Trainer
		course  map[string]schedule.Course
		lecture map[string]schedule.Lecture
	}
)

var _ core.Transactor = (*DB)(nil)

func Open() *DB {
	return &DB{
		trainer: make(map[string]schedule.Trainer),
		course:  make(map[string]schedule.Course),
		lecture: make(map[string]schedule.Lecture),
	}
}

// InTx runs fn with a nil executor; the in-memory repositories ignore it.
func (db *DB) InTx(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	if err = ctx.Err(); err != nil {
		return err
	}

	snap := db.snapshot()
	defer func() {
		if p := recover(); p != nil {
			db.restore(snap)
			panic(p)
		}
		if err != nil {
			db.restore(snap)
		}
	}()
	return fn(nil)
}

func (db *DB) snapshot() snapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()

	s := snapshot{
		trainer: make(map[string]schedule.Trainer, len(db.trainer)),
		course:  make(map[string]schedule.Course, len(db.course)),
		lecture: make(map[string]schedule.Lecture, len(db.lecture)),
	}
	for k, v := range db.trainer {
		s.trainer[k] = v
	}
	for k, v := range db.course {
		s.course[k] = v
	}
	for k, v := range db.lecture {
		s.lecture[k] = v
	}
	return s
}

func (db *DB) restore(s snapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.trainer = s.trainer
	db.course = s.course
	db.lecture = s.lecture
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.trainer = make(map[string]schedule.Trainer)
	db.course = make(map[string]schedule.Course)
	db.lecture = make(map[string]schedule.Lecture)
}
