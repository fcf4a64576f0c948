package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ShayCichocki/ensemble/internal/logx"
)

// ErrNoTasks indicates Race was called with an empty task list.
var ErrNoTasks = errors.New("no tasks to race")

// Contender is one entrant in a race.
type Contender[R any] struct {
	// ID identifies the contender in outcomes and aggregate errors.
	ID string
	// Run executes the contender under the race's combined cancel signal.
	Run func(ctx context.Context) (R, error)
}

// RaceOutcome is the result of a Race call.
type RaceOutcome[R any] struct {
	// Winner is the ID of the first contender to return successfully.
	Winner string
	// Result is the winner's return value.
	Result R
	// Aborted is set when the parent was cancelled before a winner emerged.
	Aborted bool
}

// Race runs every contender concurrently and returns the first successful
// result, cancelling the rest. All contenders are awaited before returning
// so cancellation-induced errors are drained. When every contender fails,
// an aggregate error naming each contender and its error is returned. A
// parent already cancelled, or cancelled before any success, yields an
// aborted outcome rather than an error.
func Race[R any](ctx context.Context, tasks []Contender[R]) (RaceOutcome[R], error) {
	if len(tasks) == 0 {
		return RaceOutcome[R]{}, ErrNoTasks
	}
	if ctx.Err() != nil {
		return RaceOutcome[R]{Aborted: true}, nil
	}

	inner, cancel := context.WithCancel(ctx)
	defer cancel()

	type entry struct {
		id     string
		result R
		err    error
	}
	resCh := make(chan entry, len(tasks))

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task Contender[R]) {
			defer wg.Done()
			r, err := task.Run(inner)
			resCh <- entry{id: task.ID, result: r, err: err}
		}(task)
	}

	var (
		winner   *entry
		failures []entry
	)
	for range tasks {
		e := <-resCh
		if e.err == nil && winner == nil {
			winner = &e
			// First success wins; ask everyone else to stop.
			cancel()
			logx.Debugf("[pool] race won by %s", e.id)
		} else if e.err != nil {
			failures = append(failures, e)
		}
	}
	wg.Wait()

	if winner != nil {
		return RaceOutcome[R]{Winner: winner.id, Result: winner.result}, nil
	}
	if ctx.Err() != nil {
		return RaceOutcome[R]{Aborted: true}, nil
	}

	var sb strings.Builder
	sb.WriteString("all tasks failed:")
	for _, f := range failures {
		fmt.Fprintf(&sb, " %s: %v;", f.id, f.err)
	}
	return RaceOutcome[R]{}, errors.New(strings.TrimSuffix(sb.String(), ";"))
}
