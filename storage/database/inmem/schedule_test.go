package inmemdb

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/letsspeak/core"
	"github.com/trezcool/letsspeak/core/schedule"
	"github.com/trezcool/letsspeak/tests"
)

func TestScheduleRepository(t *testing.T) {
	testutil.RunScheduleRepositoryTests(t, func(t *testing.T) schedule.Repository {
		return NewScheduleRepository(Open())
	})
}

func TestDB_InTx(t *testing.T) {
	ctx := context.Background()
	db := Open()
	repo := NewScheduleRepository(db)

	t.Run("rollback", func(t *testing.T) {
		var created schedule.Trainer
		err := db.InTx(ctx, func(exec core.DBExecutor) error {
			var err error
			created, err = repo.CreateTrainer(ctx, schedule.Trainer{Name: "Jane"}, exec)
			require.NoError(t, err)
			return errors.New("boom")
		})
		assert.EqualError(t, err, "boom")
		_, err = repo.GetTrainer(ctx, created.ID)
		assert.ErrorIs(t, err, schedule.ErrNotFound)
	})

	t.Run("commit", func(t *testing.T) {
		var created schedule.Trainer
		err := db.InTx(ctx, func(exec core.DBExecutor) error {
			var err error
			created, err = repo.CreateTrainer(ctx, schedule.Trainer{Name: "Jane"}, exec)
			return err
		})
		require.NoError(t, err)
		_, err = repo.GetTrainer(ctx, created.ID)
		assert.NoError(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		called := false
		err := db.InTx(cctx, func(core.DBExecutor) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})

	t.Run("reset", func(t *testing.T) {
		db.Reset()
		n, err := repo.CountLectures(ctx, schedule.LectureFilter{})
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
