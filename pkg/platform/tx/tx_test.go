package tx

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithTxNilLeavesContextUntouched(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithTx(ctx, nil))

	_, ok := From(ctx)
	assert.False(t, ok)
}

func TestFromReturnsStoredTx(t *testing.T) {
	sqlTx := &sql.Tx{}
	ctx := WithTx(context.Background(), sqlTx)

	got, ok := From(ctx)
	assert.True(t, ok)
	assert.Same(t, sqlTx, got)
}

func TestExecutorFromPrefersTx(t *testing.T) {
	db := &sql.DB{}
	sqlTx := &sql.Tx{}

	assert.Same(t, db, ExecutorFrom(context.Background(), db).(*sql.DB))
	assert.Same(t, sqlTx, ExecutorFrom(WithTx(context.Background(), sqlTx), db).(*sql.Tx))
}

func TestOnCommitRunsImmediatelyOutsideUnitOfWork(t *testing.T) {
	ran := false
	OnCommit(context.Background(), func() { ran = true })
	assert.True(t, ran)
}

func TestOnCommitDefersUntilRun(t *testing.T) {
	ctx, run := WithCommitHooks(context.Background())

	var order []int
	OnCommit(ctx, func() { order = append(order, 1) })
	OnCommit(ctx, func() { order = append(order, 2) })
	assert.Empty(t, order)

	run()
	assert.Equal(t, []int{1, 2}, order)

	run()
	assert.Equal(t, []int{1, 2}, order, "hooks run once")
}
