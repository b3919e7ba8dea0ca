package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/strategy"
	"github.com/shaiso/agentflow/internal/tools"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func intPtr(v int) *int { return &v }

// variant — конструктор одного из вариантов engine.
type variant struct {
	name string
	make func(cfg Config) Runner
}

var variants = []variant{
	{name: ModeBlocking, make: func(cfg Config) Runner { return New(cfg) }},
	{name: ModeCooperative, make: func(cfg Config) Runner { return NewCooperative(cfg) }},
}

// fixture собирает workflow и engine для одного теста.
type fixture struct {
	tools    *tools.Registry
	handlers domain.HandlerSet
	observer Observer
	strict   bool
}

func newFixture() *fixture {
	reg := tools.NewRegistry()
	reg.Register(tools.NewFunc("ok", func(_ context.Context, in map[string]any) (any, error) {
		return map[string]any{"echo": in}, nil
	}))
	reg.Register(tools.NewFunc("boom", func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("tool exploded")
	}))
	return &fixture{tools: reg, handlers: domain.HandlerSet{}, strict: true}
}

func (f *fixture) build(t *testing.T, def *domain.WorkflowDef) *domain.Workflow {
	t.Helper()
	wf, err := engine.Build(def, engine.Options{
		Tools:             f.tools,
		AllowMissingTools: !f.strict,
		Handlers:          f.handlers,
		Logger:            quietLogger,
	})
	require.NoError(t, err)
	return wf
}

func (f *fixture) config() Config {
	return Config{
		Strategies:  strategy.NewRegistry(nil, f.tools, quietLogger),
		MaxParallel: 4,
		Observer:    f.observer,
		Logger:      quietLogger,
	}
}

func taskState(t *testing.T, r *Report, id string) domain.TaskState {
	t.Helper()
	for _, ts := range r.Tasks {
		if ts.ID == id {
			return ts
		}
	}
	t.Fatalf("task %s not in report", id)
	return domain.TaskState{}
}

func TestRun_RetryThenSucceed(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			f := newFixture()
			var calls atomic.Int32
			f.handlers["flaky"] = domain.InputOnlyHandler(func(context.Context, map[string]any) (any, error) {
				if calls.Add(1) <= 2 {
					return nil, errors.New("transient")
				}
				return "done", nil
			})

			wf := f.build(t, &domain.WorkflowDef{
				ID:    "retry",
				Tasks: []domain.TaskDef{{ID: "t", Kind: "inline", Handler: "flaky", MaxRetries: intPtr(2)}},
			})

			report, err := v.make(f.config()).Run(context.Background(), wf, nil)
			require.NoError(t, err)

			ts := taskState(t, report, "t")
			assert.Equal(t, domain.TaskStatusCompleted, ts.Status)
			assert.Equal(t, 2, ts.RetriesUsed)
			assert.Equal(t, "done", ts.Output.Result)
			assert.Equal(t, domain.WorkflowStatusCompleted, report.Status)
			assert.Equal(t, int32(3), calls.Load())
		})
	}
}

func TestRun_RetriesExhausted(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			f := newFixture()
			wf := f.build(t, &domain.WorkflowDef{
				ID:    "exhausted",
				Tasks: []domain.TaskDef{{ID: "t", Kind: "tool", Tool: "boom", MaxRetries: intPtr(3)}},
			})

			report, err := v.make(f.config()).Run(context.Background(), wf, nil)
			require.NoError(t, err)

			ts := taskState(t, report, "t")
			assert.Equal(t, domain.TaskStatusFailed, ts.Status)
			assert.Equal(t, 3, ts.RetriesUsed)
			require.NotNil(t, ts.Error)
			assert.Equal(t, 4, ts.Error.Attempts)
			assert.Equal(t, domain.WorkflowStatusFailed, report.Status)
			assert.Equal(t, ExitExecution, report.ExitCode)
		})
	}
}

func TestRun_ConditionFalseFollowsFailureRoute(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			f := newFixture()
			f.handlers["score"] = domain.InputOnlyHandler(func(context.Context, map[string]any) (any, error) {
				return map[string]any{"score": 0.2}, nil
			})

			wf := f.build(t, &domain.WorkflowDef{
				ID:   "cond",
				Vars: map[string]any{"threshold": 0.5},
				Tasks: []domain.TaskDef{
					{ID: "classify", Kind: "inline", Handler: "score",
						Condition: "result.score > vars.threshold", OnSuccess: "high", OnFailure: "low"},
					{ID: "high", Kind: "tool", Tool: "ok"},
					{ID: "low", Kind: "tool", Tool: "ok", Inputs: map[string]any{"score": "${classify.score}"}},
				},
			})

			report, err := v.make(f.config()).Run(context.Background(), wf, nil)
			require.NoError(t, err)

			classify := taskState(t, report, "classify")
			assert.Equal(t, domain.TaskStatusCompleted, classify.Status)
			assert.True(t, classify.Output.Success)
			assert.Equal(t, domain.RouteFailure, classify.Route)

			assert.Equal(t, domain.TaskStatusSkipped, taskState(t, report, "high").Status)

			low := taskState(t, report, "low")
			assert.Equal(t, domain.TaskStatusCompleted, low.Status)
			assert.Equal(t, map[string]any{"echo": map[string]any{"score": 0.2}}, low.Output.Result)

			assert.Equal(t, domain.WorkflowStatusCompleted, report.Status)
			assert.Empty(t, report.Errors)
		})
	}
}

func TestRun_ParallelSiblingsFinishBeforeDependent(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			f := newFixture()

			var mu sync.Mutex
			var log []string
			record := func(s string) {
				mu.Lock()
				defer mu.Unlock()
				log = append(log, s)
			}

			// Оба соседа ждут друг друга: тест зависнет, если они не выполняются одновременно.
			var barrier sync.WaitGroup
			barrier.Add(2)
			sibling := func(name string) domain.Handler {
				return domain.InputOnlyHandler(func(ctx context.Context, _ map[string]any) (any, error) {
					record(name + ":start")
					barrier.Done()
					done := make(chan struct{})
					go func() { barrier.Wait(); close(done) }()
					select {
					case <-done:
					case <-time.After(2 * time.Second):
						return nil, errors.New("siblings did not run concurrently")
					}
					record(name + ":end")
					return name, nil
				})
			}
			f.handlers["left"] = sibling("left")
			f.handlers["right"] = sibling("right")
			f.handlers["join"] = domain.InputOnlyHandler(func(_ context.Context, in map[string]any) (any, error) {
				record("join:start")
				return []any{in["l"], in["r"]}, nil
			})

			wf := f.build(t, &domain.WorkflowDef{
				ID: "parallel",
				Tasks: []domain.TaskDef{
					{ID: "root", Kind: "tool", Tool: "ok"},
					{ID: "left", Kind: "inline", Handler: "left", DependsOn: []string{"root"}, Parallel: true},
					{ID: "right", Kind: "inline", Handler: "right", DependsOn: []string{"root"}, Parallel: true},
					{ID: "join", Kind: "inline", Handler: "join", DependsOn: []string{"left", "right"},
						Inputs: map[string]any{"l": "${left}", "r": "${right}"}},
				},
			})

			report, err := v.make(f.config()).Run(context.Background(), wf, nil)
			require.NoError(t, err)
			require.Equal(t, domain.WorkflowStatusCompleted, report.Status, "errors: %v", report.Errors)

			require.Len(t, log, 5)
			assert.Equal(t, "join:start", log[4])
			assert.ElementsMatch(t, []string{"left:start", "right:start"}, log[:2])
			assert.Equal(t, []any{"left", "right"}, taskState(t, report, "join").Output.Result)
		})
	}
}

func TestRun_FailureHandledByBranch(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			f := newFixture()
			wf := f.build(t, &domain.WorkflowDef{
				ID: "handled",
				Tasks: []domain.TaskDef{
					{ID: "A", Kind: "tool", Tool: "ok"},
					{ID: "B", Kind: "tool", Tool: "boom", DependsOn: []string{"A"}, MaxRetries: intPtr(1), OnFailure: "C"},
					{ID: "C", Kind: "tool", Tool: "ok", Inputs: map[string]any{
						"reason": "${error.B.message}",
						"note":   "B failed with ${error.B.kind}",
					}},
				},
			})

			report, err := v.make(f.config()).Run(context.Background(), wf, nil)
			require.NoError(t, err)

			assert.Equal(t, domain.TaskStatusCompleted, taskState(t, report, "A").Status)

			b := taskState(t, report, "B")
			assert.Equal(t, domain.TaskStatusFailed, b.Status)
			assert.Equal(t, 1, b.RetriesUsed)
			require.NotNil(t, b.Error)
			assert.True(t, b.Error.Recovered)
			assert.Equal(t, 2, b.Error.Attempts)

			c := taskState(t, report, "C")
			assert.Equal(t, domain.TaskStatusCompleted, c.Status)
			assert.Equal(t, map[string]any{"echo": map[string]any{
				"reason": "tool exploded",
				"note":   "B failed with execution",
			}}, c.Output.Result)

			assert.Equal(t, domain.WorkflowStatusCompleted, report.Status)
			assert.Equal(t, ExitSuccess, report.ExitCode)
		})
	}
}

func TestRun_ErrorChain(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			f := newFixture()
			f.strict = false
			wf := f.build(t, &domain.WorkflowDef{
				ID: "chain",
				Tasks: []domain.TaskDef{
					{ID: "fetch", Kind: "tool", Tool: "boom", OnFailure: "fallback"},
					{ID: "fallback", Kind: "tool", Tool: "missing"},
					{ID: "after", Kind: "tool", Tool: "ok", DependsOn: []string{"fallback"}},
				},
			})

			report, err := v.make(f.config()).Run(context.Background(), wf, nil)
			require.NoError(t, err)

			assert.Equal(t, domain.WorkflowStatusFailed, report.Status)
			assert.Equal(t, domain.TaskStatusSkipped, taskState(t, report, "after").Status)

			require.Len(t, report.Errors, 2)
			assert.Equal(t, "fallback", report.Errors[0].TaskID)
			assert.Equal(t, domain.ErrorKindResource, report.Errors[0].Kind)
			assert.Equal(t, "fetch", report.Errors[0].CausedBy)
			assert.Equal(t, "fetch", report.Errors[1].TaskID)
			assert.Equal(t, ExitResource, report.ExitCode)
		})
	}
}

func TestRun_OptionalFailureAndSkipPropagation(t *testing.T) {
	tests := []struct {
		name         string
		propagate    bool
		wantFinal    domain.TaskStatus
		wantWorkflow domain.WorkflowStatus
		wantMiddle   domain.TaskStatus
	}{
		{
			name:         "skips cascade",
			wantFinal:    domain.TaskStatusSkipped,
			wantMiddle:   domain.TaskStatusSkipped,
			wantWorkflow: domain.WorkflowStatusCompleted,
		},
		{
			name:         "skip propagation",
			propagate:    true,
			wantFinal:    domain.TaskStatusCompleted,
			wantMiddle:   domain.TaskStatusSkipped,
			wantWorkflow: domain.WorkflowStatusCompleted,
		},
	}

	for _, tt := range tests {
		for _, v := range variants {
			t.Run(tt.name+"/"+v.name, func(t *testing.T) {
				f := newFixture()
				wf := f.build(t, &domain.WorkflowDef{
					ID:              "optional",
					SkipPropagation: tt.propagate,
					Tasks: []domain.TaskDef{
						{ID: "probe", Kind: "tool", Tool: "boom", Optional: true},
						{ID: "use", Kind: "tool", Tool: "ok", DependsOn: []string{"probe"}},
						{ID: "final", Kind: "tool", Tool: "ok", DependsOn: []string{"use"}},
					},
				})

				report, err := v.make(f.config()).Run(context.Background(), wf, nil)
				require.NoError(t, err)

				assert.Equal(t, domain.TaskStatusFailed, taskState(t, report, "probe").Status)
				assert.Equal(t, tt.wantMiddle, taskState(t, report, "use").Status)
				assert.Equal(t, tt.wantFinal, taskState(t, report, "final").Status)
				assert.Equal(t, tt.wantWorkflow, report.Status)
			})
		}
	}
}

func TestRun_InputValidation(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			f := newFixture()
			wf := f.build(t, &domain.WorkflowDef{
				ID:     "input",
				Inputs: map[string]domain.InputDef{"query": {Type: "string", Required: true}},
				Tasks: []domain.TaskDef{
					{ID: "search", Kind: "tool", Tool: "ok", Inputs: map[string]any{"q": "${input.query}"}},
				},
			})

			report, err := v.make(f.config()).Run(context.Background(), wf, map[string]any{"query": 42})
			require.NoError(t, err)

			assert.Equal(t, domain.WorkflowStatusFailed, report.Status)
			assert.Equal(t, ExitInput, report.ExitCode)
			require.Len(t, report.Errors, 1)
			assert.Equal(t, domain.ErrorKindInput, report.Errors[0].Kind)
			assert.Equal(t, domain.TaskStatusSkipped, taskState(t, report, "search").Status)
		})
	}
}

func TestRun_InputDefaultsReachTasks(t *testing.T) {
	f := newFixture()
	wf := f.build(t, &domain.WorkflowDef{
		ID:     "defaults",
		Inputs: map[string]domain.InputDef{"limit": {Type: "integer", Default: 3}},
		Tasks: []domain.TaskDef{
			{ID: "search", Kind: "tool", Tool: "ok", Inputs: map[string]any{"limit": "${input.limit}"}},
		},
	})

	report, err := New(f.config()).Run(context.Background(), wf, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"echo": map[string]any{"limit": 3}}, taskState(t, report, "search").Output.Result)
}

func TestRun_ResolutionFailureIsNotRetried(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			f := newFixture()
			wf := f.build(t, &domain.WorkflowDef{
				ID: "resolve",
				Tasks: []domain.TaskDef{
					{ID: "a", Kind: "tool", Tool: "ok"},
					{ID: "b", Kind: "tool", Tool: "ok", DependsOn: []string{"a"}, MaxRetries: intPtr(5),
						Inputs: map[string]any{"x": "${a.result.missing[0]}"}},
				},
			})

			report, err := v.make(f.config()).Run(context.Background(), wf, nil)
			require.NoError(t, err)

			b := taskState(t, report, "b")
			assert.Equal(t, domain.TaskStatusFailed, b.Status)
			assert.Equal(t, 0, b.RetriesUsed)
			assert.Equal(t, domain.ErrorKindValidation, b.Error.Kind)
			assert.Contains(t, b.Error.Message, "missing")
			assert.Equal(t, ExitValidation, report.ExitCode)
		})
	}
}

func TestRun_PauseAndResume(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			f := newFixture()
			f.handlers["ask"] = domain.InputOnlyHandler(func(_ context.Context, in map[string]any) (any, error) {
				answer, ok := in["answer"]
				if !ok {
					return map[string]any{"status": "needs_input", "question": "Which region?"}, nil
				}
				return answer, nil
			})

			wf := f.build(t, &domain.WorkflowDef{
				ID: "clarify",
				Tasks: []domain.TaskDef{
					{ID: "ask", Kind: "inline", Handler: "ask"},
					{ID: "deploy", Kind: "tool", Tool: "ok", DependsOn: []string{"ask"},
						Inputs: map[string]any{"region": "${ask}"}},
					{ID: "side", Kind: "tool", Tool: "ok"},
				},
			})
			runner := v.make(f.config())

			report, err := runner.Run(context.Background(), wf, nil)
			require.NoError(t, err)
			assert.Equal(t, domain.WorkflowStatusPaused, report.Status)
			assert.Equal(t, ExitSuccess, report.ExitCode)
			assert.Equal(t, map[string]string{"ask": "Which region?"}, report.Questions)
			assert.Equal(t, domain.TaskStatusAwaitingInput, taskState(t, report, "ask").Status)
			assert.Equal(t, domain.TaskStatusPending, taskState(t, report, "deploy").Status)
			assert.Equal(t, domain.TaskStatusCompleted, taskState(t, report, "side").Status,
				"tasks outside the awaiting branch run before the pause")

			_, err = runner.Resume(context.Background(), wf, "deploy", nil)
			assert.ErrorIs(t, err, ErrTaskNotAwaiting)

			report, err = runner.Resume(context.Background(), wf, "ask", map[string]any{"answer": "eu-west"})
			require.NoError(t, err)
			assert.Equal(t, domain.WorkflowStatusCompleted, report.Status)
			assert.Equal(t, map[string]any{"echo": map[string]any{"region": "eu-west"}},
				taskState(t, report, "deploy").Output.Result)
			assert.Equal(t, domain.TaskStatusCompleted, taskState(t, report, "side").Status)

			_, err = runner.Resume(context.Background(), wf, "ask", nil)
			assert.ErrorIs(t, err, ErrNotPaused)
		})
	}
}

func TestRun_SnapshotRoundTrip(t *testing.T) {
	f := newFixture()
	wf := f.build(t, &domain.WorkflowDef{
		ID: "snapshot",
		Tasks: []domain.TaskDef{
			{ID: "a", Kind: "tool", Tool: "ok"},
			{ID: "b", Kind: "tool", Tool: "boom", DependsOn: []string{"a"}},
			{ID: "c", Kind: "tool", Tool: "ok", DependsOn: []string{"b"}},
		},
	})

	report, err := New(f.config()).Run(context.Background(), wf, nil)
	require.NoError(t, err)
	require.Equal(t, domain.WorkflowStatusFailed, report.Status)

	data, err := report.Snapshot().Marshal()
	require.NoError(t, err)

	restored, err := domain.UnmarshalSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, report.Status, restored.Derive())
	assert.Equal(t, wf.Snapshot().Statuses(), restored.Statuses())
}

func TestRun_VariantsProduceIdenticalState(t *testing.T) {
	def := func() *domain.WorkflowDef {
		return &domain.WorkflowDef{
			ID:   "same",
			Vars: map[string]any{"min": 2},
			Tasks: []domain.TaskDef{
				{ID: "seed", Kind: "inline", Handler: "seed"},
				// audit читает ошибку задачи, с которой не связан рёбрами.
				{ID: "audit", Kind: "tool", Tool: "ok", Inputs: map[string]any{"why": "${error.lint.message}"}},
				{ID: "lint", Kind: "inline", Handler: "slow_fail", Optional: true},
				{ID: "p1", Kind: "tool", Tool: "ok", DependsOn: []string{"seed"}, Parallel: true,
					Inputs: map[string]any{"first": "${seed.items[0]}"}},
				{ID: "p2", Kind: "tool", Tool: "boom", DependsOn: []string{"seed"}, Parallel: true,
					MaxRetries: intPtr(1), OnFailure: "recover"},
				{ID: "recover", Kind: "tool", Tool: "ok", Inputs: map[string]any{"why": "${error.p2}"},
					OnSuccess: "merge"},
				{ID: "gate", Kind: "inline", Handler: "seed", DependsOn: []string{"p1"},
					Condition: "size(result.items) >= vars.min", OnSuccess: "wide", OnFailure: "narrow"},
				{ID: "wide", Kind: "inline", Handler: "slow_ok", OnSuccess: "merge"},
				{ID: "narrow", Kind: "tool", Tool: "ok"},
				// merge — цель двух веток.
				{ID: "merge", Kind: "tool", Tool: "ok"},
				{ID: "confirm", Kind: "inline", Handler: "ask"},
				{ID: "ship", Kind: "tool", Tool: "ok", DependsOn: []string{"confirm", "merge"},
					Inputs: map[string]any{"answer": "${confirm}"}},
			},
		}
	}

	normalize := func(r *Report) []domain.TaskState {
		out := make([]domain.TaskState, len(r.Tasks))
		for i, ts := range r.Tasks {
			ts.DurationMs = 0
			out[i] = ts
		}
		return out
	}

	paused := make(map[string][]domain.TaskState)
	final := make(map[string][]domain.TaskState)
	for _, v := range variants {
		f := newFixture()
		f.handlers["seed"] = domain.InputOnlyHandler(func(context.Context, map[string]any) (any, error) {
			return map[string]any{"items": []any{"x", "y", "z"}}, nil
		})
		f.handlers["slow_fail"] = domain.InputOnlyHandler(func(context.Context, map[string]any) (any, error) {
			time.Sleep(30 * time.Millisecond)
			return nil, errors.New("lint failed")
		})
		f.handlers["slow_ok"] = domain.InputOnlyHandler(func(context.Context, map[string]any) (any, error) {
			time.Sleep(20 * time.Millisecond)
			return "wide", nil
		})
		f.handlers["ask"] = domain.InputOnlyHandler(func(_ context.Context, in map[string]any) (any, error) {
			if answer, ok := in["answer"]; ok {
				return answer, nil
			}
			return map[string]any{"status": "needs_input", "question": "Ship it?"}, nil
		})
		wf := f.build(t, def())
		runner := v.make(f.config())

		report, err := runner.Run(context.Background(), wf, nil)
		require.NoError(t, err)
		require.Equal(t, domain.WorkflowStatusPaused, report.Status, "errors: %v", report.Errors)
		paused[v.name] = normalize(report)

		audit := taskState(t, report, "audit")
		require.Equal(t, domain.TaskStatusCompleted, audit.Status, v.name)
		assert.Equal(t, map[string]any{"echo": map[string]any{"why": "lint failed"}}, audit.Output.Result, v.name)

		report, err = runner.Resume(context.Background(), wf, "confirm", map[string]any{"answer": "yes"})
		require.NoError(t, err)
		require.Equal(t, domain.WorkflowStatusCompleted, report.Status, "errors: %v", report.Errors)
		final[v.name] = normalize(report)
	}

	assert.Equal(t, paused[ModeBlocking], paused[ModeCooperative])
	assert.Equal(t, final[ModeBlocking], final[ModeCooperative])
}

func TestRun_StartOrderMatchesAcrossVariants(t *testing.T) {
	def := &domain.WorkflowDef{
		ID: "order",
		Tasks: []domain.TaskDef{
			{ID: "r1", Kind: "inline", Handler: "slow"},
			{ID: "d1", Kind: "tool", Tool: "ok", DependsOn: []string{"r1"}},
			{ID: "r2", Kind: "inline", Handler: "slower"},
			{ID: "r3", Kind: "tool", Tool: "ok"},
			{ID: "d2", Kind: "tool", Tool: "ok", DependsOn: []string{"r2"}},
			{ID: "r4", Kind: "tool", Tool: "ok"},
			{ID: "d3", Kind: "tool", Tool: "ok", DependsOn: []string{"r3", "r4"}},
		},
	}

	orders := make(map[string][]string)
	for _, v := range variants {
		rec := &recordingObserver{}
		f := newFixture()
		f.observer = rec
		f.handlers["slow"] = domain.InputOnlyHandler(func(context.Context, map[string]any) (any, error) {
			time.Sleep(20 * time.Millisecond)
			return "slow", nil
		})
		f.handlers["slower"] = domain.InputOnlyHandler(func(context.Context, map[string]any) (any, error) {
			time.Sleep(40 * time.Millisecond)
			return "slower", nil
		})

		report, err := v.make(f.config()).Run(context.Background(), f.build(t, def), nil)
		require.NoError(t, err)
		require.Equal(t, domain.WorkflowStatusCompleted, report.Status)
		orders[v.name] = rec.started
	}

	assert.Equal(t, []string{"r1", "d1", "r2", "r3", "d2", "r4", "d3"}, orders[ModeBlocking])
	assert.Equal(t, orders[ModeBlocking], orders[ModeCooperative])
}

func TestRun_ErrorChainStartsAtFirstDeclaredFailure(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			f := newFixture()
			f.handlers["slow_fail"] = domain.InputOnlyHandler(func(context.Context, map[string]any) (any, error) {
				time.Sleep(30 * time.Millisecond)
				return nil, errors.New("slow failure")
			})

			wf := f.build(t, &domain.WorkflowDef{
				ID: "first",
				Tasks: []domain.TaskDef{
					{ID: "slow", Kind: "inline", Handler: "slow_fail"},
					{ID: "fast", Kind: "tool", Tool: "boom"},
				},
			})

			report, err := v.make(f.config()).Run(context.Background(), wf, nil)
			require.NoError(t, err)

			require.Equal(t, domain.WorkflowStatusFailed, report.Status)
			require.NotEmpty(t, report.Errors)
			assert.Equal(t, "slow", report.Errors[0].TaskID)
		})
	}
}

func TestRun_Misuse(t *testing.T) {
	f := newFixture()
	runner := New(f.config())

	_, err := runner.Run(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNilWorkflow)

	wf := f.build(t, &domain.WorkflowDef{ID: "once", Tasks: []domain.TaskDef{{ID: "a", Kind: "tool", Tool: "ok"}}})
	_, err = runner.Run(context.Background(), wf, nil)
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), wf, nil)
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	_, err = NewRunner("eventual", f.config())
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestRun_Cancelled(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			f := newFixture()
			wf := f.build(t, &domain.WorkflowDef{ID: "cancel", Tasks: []domain.TaskDef{{ID: "a", Kind: "tool", Tool: "ok"}}})

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			report, err := v.make(f.config()).Run(ctx, wf, nil)
			assert.ErrorIs(t, err, ErrRunCancelled)
			require.NotNil(t, report)
			assert.Equal(t, domain.WorkflowStatusFailed, report.Status)
			assert.Equal(t, domain.TaskStatusSkipped, taskState(t, report, "a").Status)
		})
	}
}

type recordingObserver struct {
	NopObserver

	mu       sync.Mutex
	started  []string
	finished map[string]domain.TaskStatus
	retried  int
	final    *WorkflowEvent
}

func (o *recordingObserver) TaskStarted(_ context.Context, ev TaskEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, ev.TaskID)
}

func (o *recordingObserver) TaskRetried(context.Context, TaskEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retried++
}

func (o *recordingObserver) TaskFinished(_ context.Context, ev TaskEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.finished == nil {
		o.finished = make(map[string]domain.TaskStatus)
	}
	o.finished[ev.TaskID] = ev.Status
}

func (o *recordingObserver) WorkflowFinished(_ context.Context, ev WorkflowEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.final = &ev
}

func TestRun_Observer(t *testing.T) {
	rec := &recordingObserver{}
	f := newFixture()
	f.observer = MultiObserver{NopObserver{}, rec}

	wf := f.build(t, &domain.WorkflowDef{
		ID: "observed",
		Tasks: []domain.TaskDef{
			{ID: "a", Kind: "tool", Tool: "boom", MaxRetries: intPtr(1), OnFailure: "b"},
			{ID: "b", Kind: "tool", Tool: "ok"},
			{ID: "c", Kind: "tool", Tool: "ok", DependsOn: []string{"a"}},
		},
	})

	_, err := New(f.config()).Run(context.Background(), wf, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "a", "b"}, rec.started)
	assert.Equal(t, 1, rec.retried)
	assert.Equal(t, map[string]domain.TaskStatus{
		"a": domain.TaskStatusFailed,
		"b": domain.TaskStatusCompleted,
		"c": domain.TaskStatusSkipped,
	}, rec.finished)
	require.NotNil(t, rec.final)
	assert.Equal(t, domain.WorkflowStatusCompleted, rec.final.Status)
}

func TestRun_BackoffWaitsBetweenAttempts(t *testing.T) {
	f := newFixture()
	wf := f.build(t, &domain.WorkflowDef{
		ID: "backoff",
		Defaults: &domain.TaskDefaults{
			Retry: &domain.RetryPolicy{Backoff: BackoffFixed, InitialDelayMs: 30},
		},
		Tasks: []domain.TaskDef{{ID: "a", Kind: "tool", Tool: "boom", MaxRetries: intPtr(2)}},
	})

	start := time.Now()
	report, err := New(f.config()).Run(context.Background(), wf, nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Equal(t, 2, taskState(t, report, "a").RetriesUsed)
}

func TestExitCodeForKind(t *testing.T) {
	tests := []struct {
		kind domain.ErrorKind
		want int
	}{
		{domain.ErrorKindValidation, ExitValidation},
		{domain.ErrorKindResource, ExitResource},
		{domain.ErrorKindExecution, ExitExecution},
		{domain.ErrorKindInput, ExitInput},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCodeForKind(tt.kind), tt.kind)
	}
	assert.Equal(t, ExitSuccess, ExitCode(domain.WorkflowStatusPaused, nil))
	assert.Equal(t, ExitExecution, ExitCode(domain.WorkflowStatusFailed, nil))
}
