package tool

import (
	"context"
	"fmt"
	"time"
)

// LocalExecutor runs FamilyLocal tools in-process and translates their
// results into the status stream contract.
type LocalExecutor struct {
	nowFunc func() time.Time
}

// NewLocalExecutor creates a LocalExecutor.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{nowFunc: time.Now}
}

// Execute runs the tool's Run function on its own goroutine. The stream gets
// a started status, then a single terminal status. A panicking tool yields a
// failed status, never a crash.
func (e *LocalExecutor) Execute(ctx context.Context, req Request, t Tool) <-chan Status {
	out := make(chan Status, 4)
	started := e.nowFunc()

	go func() {
		defer close(out)
		out <- Status{Kind: StatusStarted, Message: t.Name, At: started}

		summary, err := e.run(ctx, req, t)
		ended := e.nowFunc()

		if err != nil {
			outcome := &Outcome{Failure: &Failure{
				Message:   err.Error(),
				Retryable: ctx.Err() == nil,
				Started:   started,
				Ended:     ended,
			}}
			out <- Status{Kind: StatusFailed, Message: err.Error(), At: ended, Outcome: outcome}
			return
		}

		outcome := &Outcome{Success: &Success{
			Summary: summary,
			Started: started,
			Ended:   ended,
		}}
		out <- Status{Kind: StatusCompleted, Message: summary, At: ended, Outcome: outcome}
	}()

	return out
}

// run invokes the tool with panic recovery.
func (e *LocalExecutor) run(ctx context.Context, req Request, t Tool) (summary string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", t.ID, r)
		}
	}()

	if t.Run == nil {
		return "", fmt.Errorf("tool %s has no local implementation", t.ID)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return t.Run(ctx, req)
}
