package orchestrator

import (
	"context"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/agentflow/internal/domain"
)

// Engine — блокирующий вариант.
//
// Tasks выполняются по одному в порядке готовности и объявления.
// Готовые tasks с parallel выполняются группой в ограниченном
// errgroup, и engine ждёт всю группу перед следующим выбором.
// Task, ожидающий ввода, останавливает только свою ветку: независимые
// tasks выполняются до конца, после чего workflow встаёт на паузу.
type Engine struct {
	core
}

// New создаёт блокирующий Engine.
func New(cfg Config) *Engine {
	return &Engine{core: newCore(cfg)}
}

// Run выполняет workflow до завершения или паузы.
func (e *Engine) Run(ctx context.Context, wf *domain.Workflow, input map[string]any) (*Report, error) {
	return e.run(ctx, wf, input, e.drive)
}

// Resume передаёт ввод ожидающему task и продолжает выполнение.
func (e *Engine) Resume(ctx context.Context, wf *domain.Workflow, taskID string, input map[string]any) (*Report, error) {
	return e.resume(ctx, wf, taskID, input, e.drive)
}

func (e *Engine) drive(ctx context.Context, rs *runState) error {
	for {
		if err := ctx.Err(); err != nil {
			return e.cancel(ctx, rs, err)
		}

		readyTasks := e.settle(ctx, rs)
		if len(readyTasks) == 0 {
			return nil
		}

		first := readyTasks[0]
		if !first.Parallel {
			e.runTask(ctx, rs, first)
			continue
		}

		group := make([]*domain.Task, 0, len(readyTasks))
		for _, t := range readyTasks {
			if t.Parallel {
				group = append(group, t)
			}
		}
		e.runGroup(ctx, rs, group)
	}
}

// runGroup выполняет параллельную группу и ждёт всех её участников.
func (e *Engine) runGroup(ctx context.Context, rs *runState, group []*domain.Task) {
	if len(group) == 1 {
		e.runTask(ctx, rs, group[0])
		return
	}

	ids := make([]string, len(group))
	for i, t := range group {
		ids[i] = t.ID
	}
	rs.logger.Debug("dispatching parallel group", "tasks", ids, "limit", e.maxParallel)

	var g errgroup.Group
	g.SetLimit(e.maxParallel)
	for _, t := range group {
		g.Go(func() error {
			e.runTask(ctx, rs, t)
			return nil
		})
	}
	_ = g.Wait()
}

// runTask выполняет task со всеми повторными попытками.
func (e *Engine) runTask(ctx context.Context, rs *runState, t *domain.Task) {
	var b retry.Backoff
	backoffReady := false

	for {
		a := e.begin(ctx, rs, t)
		if a == nil {
			return
		}

		out := e.call(ctx, a)
		if e.conclude(ctx, rs, a, out) != outcomeRetry {
			return
		}

		if !backoffReady {
			b = newBackoff(rs.retry)
			backoffReady = true
		}
		if err := e.backoff(ctx, rs, t, b); err != nil {
			e.abandon(ctx, rs, t, err)
			return
		}
	}
}
