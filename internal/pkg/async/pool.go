package async

import (
	"context"
	"sync"
)

// Task is a named unit of work. Names must be unique within one Execute
// call since results are keyed by them.
type Task struct {
	Name    string
	Execute func() (interface{}, error)
}

// Result carries one task's output or error.
type Result struct {
	Name string
	Data interface{}
	Err  error
}

// Pool runs independent tasks concurrently with a bounded worker count.
// Report building uses it to compute the global breakdown and each
// segmentation axis in parallel; tasks share no mutable state, so no
// ordering or locking applies.
type Pool struct {
	workerCount int
}

func NewPool(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{workerCount: workerCount}
}

func (p *Pool) worker(ctx context.Context, tasks <-chan Task, results chan<- Result, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case task, ok := <-tasks:
			if !ok {
				return
			}
			data, err := task.Execute()
			results <- Result{Name: task.Name, Data: data, Err: err}
		case <-ctx.Done():
			return
		}
	}
}

// Execute runs all tasks and returns their results keyed by task name.
// Cancelling the context abandons tasks not yet started; results of tasks
// that already ran are still returned.
func (p *Pool) Execute(ctx context.Context, tasks []Task) map[string]Result {
	taskCh := make(chan Task)
	// Buffered to len(tasks) so a worker never blocks on delivery and every
	// started task's result survives cancellation.
	resultCh := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go p.worker(ctx, taskCh, resultCh, &wg)
	}

	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make(map[string]Result, len(tasks))
	for result := range resultCh {
		results[result.Name] = result
	}
	return results
}
