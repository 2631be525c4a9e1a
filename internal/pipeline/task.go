package pipeline

import "context"

// Task is a pipeline run executing in the background. Its progress is
// observable only through the state store; the task itself exposes
// completion and the terminal error.
type Task struct {
	id   string
	done chan struct{}
	err  error
}

func newTask(id string) *Task {
	return &Task{id: id, done: make(chan struct{})}
}

// ID returns the pipeline run id.
func (t *Task) ID() string { return t.id }

// Done is closed when the task reaches a terminal status.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the error that failed the run. It is nil while the task is
// running and after a successful run.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}
