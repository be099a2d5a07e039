package async_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"funnelscope/internal/pkg/async"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteCollectsAllResults(t *testing.T) {
	pool := async.NewPool(3)

	tasks := make([]async.Task, 0, 10)
	for i := 0; i < 10; i++ {
		n := i
		tasks = append(tasks, async.Task{
			Name:    fmt.Sprintf("task-%d", n),
			Execute: func() (interface{}, error) { return n * n, nil },
		})
	}

	results := pool.Execute(context.Background(), tasks)

	require.Len(t, results, 10)
	for i := 0; i < 10; i++ {
		result := results[fmt.Sprintf("task-%d", i)]
		require.NoError(t, result.Err)
		assert.Equal(t, i*i, result.Data)
	}
}

func TestExecutePropagatesTaskErrors(t *testing.T) {
	pool := async.NewPool(2)
	boom := errors.New("boom")

	results := pool.Execute(context.Background(), []async.Task{
		{Name: "ok", Execute: func() (interface{}, error) { return "fine", nil }},
		{Name: "fail", Execute: func() (interface{}, error) { return nil, boom }},
	})

	require.Len(t, results, 2)
	assert.NoError(t, results["ok"].Err)
	assert.ErrorIs(t, results["fail"].Err, boom)
}

func TestExecuteCancelledContext(t *testing.T) {
	pool := async.NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := pool.Execute(ctx, []async.Task{
		{Name: "never", Execute: func() (interface{}, error) { return nil, nil }},
	})

	assert.LessOrEqual(t, len(results), 1, "cancelled runs must not block or invent results")
}

func TestExecuteNoTasks(t *testing.T) {
	pool := async.NewPool(4)
	results := pool.Execute(context.Background(), nil)
	assert.Empty(t, results)
}
