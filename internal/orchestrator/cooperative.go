package orchestrator

import (
	"context"

	"github.com/sethvargo/go-retry"

	"github.com/shaiso/agentflow/internal/domain"
)

// CooperativeEngine — кооперативный вариант.
//
// Весь учёт (выбор, разрешение input, условия, переходы) выполняет одна
// горутина. В отдельных горутинах выполняются только вызовы стратегий и
// ожидание перед повтором, поэтому пока одна стратегия ждёт I/O,
// независимые готовые tasks продолжают выполняться. Порядок запуска
// и итоговое состояние совпадают с Engine для тех же входных данных и
// исходов стратегий.
type CooperativeEngine struct {
	core
}

// NewCooperative создаёт CooperativeEngine.
func NewCooperative(cfg Config) *CooperativeEngine {
	return &CooperativeEngine{core: newCore(cfg)}
}

// Run выполняет workflow до завершения или паузы.
func (e *CooperativeEngine) Run(ctx context.Context, wf *domain.Workflow, input map[string]any) (*Report, error) {
	return e.run(ctx, wf, input, e.drive)
}

// Resume передаёт ввод ожидающему task и продолжает выполнение.
func (e *CooperativeEngine) Resume(ctx context.Context, wf *domain.Workflow, taskID string, input map[string]any) (*Report, error) {
	return e.resume(ctx, wf, taskID, input, e.drive)
}

// event — сообщение от горутины стратегии или ожидания повтора.
type event struct {
	// attempt и out заполнены, когда стратегия вернула результат.
	attempt *attempt
	out     *domain.Output

	// wake заполнен, когда истекла задержка перед повтором.
	wake *domain.Task
	err  error
}

// loop — состояние одного вызова drive.
type loop struct {
	events   chan event
	inFlight int
	backoffs map[string]retry.Backoff
}

func (e *CooperativeEngine) drive(ctx context.Context, rs *runState) error {
	l := &loop{
		events:   make(chan event),
		backoffs: make(map[string]retry.Backoff),
	}

	var cause error
	for {
		if cause == nil && ctx.Err() != nil {
			cause = ctx.Err()
		}
		if cause == nil {
			e.startReady(ctx, rs, l)
		}
		if l.inFlight == 0 {
			break
		}

		ev := <-l.events
		l.inFlight--

		switch {
		case ev.attempt != nil:
			if e.conclude(ctx, rs, ev.attempt, ev.out) == outcomeRetry {
				e.scheduleRetry(ctx, rs, l, ev.attempt.task)
			}
		case ev.err != nil:
			e.abandon(ctx, rs, ev.wake, ev.err)
		default:
			if a := e.begin(ctx, rs, ev.wake); a != nil {
				e.launch(ctx, l, a)
			}
		}
	}

	if cause != nil {
		return e.cancel(ctx, rs, cause)
	}
	return nil
}

// startReady запускает tasks, пока есть свободные слоты и очередной task определён.
func (e *CooperativeEngine) startReady(ctx context.Context, rs *runState, l *loop) {
	for l.inFlight < e.maxParallel {
		e.settle(ctx, rs)

		var t *domain.Task
		rs.wf.View(func(v *domain.View) {
			t = rs.next(v)
		})
		if t == nil {
			return
		}
		if a := e.begin(ctx, rs, t); a != nil {
			e.launch(ctx, l, a)
		}
	}
}

// launch вызывает стратегию в отдельной горутине.
func (e *CooperativeEngine) launch(ctx context.Context, l *loop, a *attempt) {
	l.inFlight++
	go func() {
		l.events <- event{attempt: a, out: e.call(ctx, a)}
	}()
}

// scheduleRetry ждёт задержку в отдельной горутине, не блокируя учёт.
func (e *CooperativeEngine) scheduleRetry(ctx context.Context, rs *runState, l *loop, t *domain.Task) {
	b, ok := l.backoffs[t.ID]
	if !ok {
		b = newBackoff(rs.retry)
		l.backoffs[t.ID] = b
	}

	l.inFlight++
	go func() {
		err := e.backoff(ctx, rs, t, b)
		l.events <- event{wake: t, err: err}
	}()
}
