package runs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/orchestrator"
	"github.com/shaiso/agentflow/internal/strategy"
	"github.com/shaiso/agentflow/internal/tools"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type memoryStore struct {
	mu      sync.Mutex
	reports []*orchestrator.Report
	err     error
}

func (s *memoryStore) Save(_ context.Context, r *orchestrator.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return s.err
}

func newManager(t *testing.T, store Store) *Manager {
	t.Helper()

	reg := tools.NewRegistry()
	reg.Register(tools.NewEchoTool())

	handlers := domain.HandlerSet{
		"ask": domain.InputOnlyHandler(func(_ context.Context, in map[string]any) (any, error) {
			if answer, ok := in["answer"]; ok {
				return answer, nil
			}
			return map[string]any{"status": "needs_input", "question": "Which region?"}, nil
		}),
	}

	return New(Config{
		Runner: orchestrator.New(orchestrator.Config{
			Strategies: strategy.NewRegistry(nil, reg, quietLogger),
			Logger:     quietLogger,
		}),
		Tools:       reg,
		StrictTools: true,
		Handlers:    handlers,
		Store:       store,
		Logger:      quietLogger,
	})
}

func echoDef() *domain.WorkflowDef {
	return &domain.WorkflowDef{
		ID: "echo",
		Tasks: []domain.TaskDef{
			{ID: "a", Kind: "tool", Tool: "echo", Inputs: map[string]any{"v": 1}},
			{ID: "b", Kind: "tool", Tool: "echo", DependsOn: []string{"a"}, Inputs: map[string]any{"prev": "${a.v}"}},
		},
	}
}

func TestManager_Start(t *testing.T) {
	store := &memoryStore{}
	m := newManager(t, store)

	run, report, err := m.Start(context.Background(), echoDef(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusCompleted, report.Status)
	assert.Equal(t, run.ID(), report.RunID)

	got, err := m.Get(run.ID())
	require.NoError(t, err)
	assert.Same(t, run, got)
	assert.Equal(t, domain.WorkflowStatusCompleted, got.Report().Status)

	require.Len(t, store.reports, 1)
	assert.Equal(t, report.RunID, store.reports[0].RunID)

	select {
	case <-run.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestManager_RejectsInvalidDefinition(t *testing.T) {
	m := newManager(t, nil)
	def := &domain.WorkflowDef{ID: "bad", Tasks: []domain.TaskDef{{ID: "a", Kind: "tool", Tool: "missing"}}}

	assert.ErrorIs(t, m.Validate(def), engine.ErrToolUnavailable)

	_, _, err := m.Start(context.Background(), def, nil)
	assert.ErrorIs(t, err, engine.ErrToolUnavailable)
	assert.Empty(t, m.List(), "invalid definitions are not registered")
}

func TestManager_Resume(t *testing.T) {
	store := &memoryStore{}
	m := newManager(t, store)
	def := &domain.WorkflowDef{
		ID: "clarify",
		Tasks: []domain.TaskDef{
			{ID: "ask", Kind: "inline", Handler: "ask"},
			{ID: "deploy", Kind: "tool", Tool: "echo", DependsOn: []string{"ask"}, Inputs: map[string]any{"region": "${ask}"}},
		},
	}

	run, report, err := m.Start(context.Background(), def, nil)
	require.NoError(t, err)
	require.True(t, report.Paused())

	report, err = m.Resume(context.Background(), run.ID(), "ask", map[string]any{"answer": "eu"})
	require.NoError(t, err)
	assert.True(t, report.Succeeded())
	assert.Len(t, store.reports, 2, "paused and final reports are archived")

	_, err = m.Resume(context.Background(), uuid.New(), "ask", nil)
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = m.Resume(context.Background(), run.ID(), "ask", nil)
	assert.ErrorIs(t, err, orchestrator.ErrNotPaused)
}

func TestManager_RejectedResumeIsLoggedWithRunFields(t *testing.T) {
	var buf bytes.Buffer
	m := newManager(t, nil)
	m.logger = slog.New(slog.NewJSONHandler(&buf, nil))

	run, _, err := m.Start(context.Background(), echoDef(), nil)
	require.NoError(t, err)

	report, err := m.Resume(context.Background(), run.ID(), "a", nil)
	require.ErrorIs(t, err, orchestrator.ErrNotPaused)
	assert.Nil(t, report)
	assert.NoError(t, run.Err(), "a rejected resume does not change the run")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "resume rejected", entry["msg"])
	assert.Equal(t, "echo", entry["workflow_id"])
	assert.Equal(t, run.ID().String(), entry["run_id"])
	assert.Equal(t, "a", entry["task_id"])
}

func TestManager_Submit(t *testing.T) {
	m := newManager(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	run, err := m.Submit(ctx, echoDef(), nil)
	require.NoError(t, err)
	cancel()

	select {
	case <-run.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("submitted run did not finish")
	}
	assert.NoError(t, run.Err(), "request cancellation does not cancel a submitted run")
	assert.Equal(t, domain.WorkflowStatusCompleted, run.Report().Status)
}

func TestManager_ArchiveFailureIsNotFatal(t *testing.T) {
	m := newManager(t, &memoryStore{err: errors.New("db down")})

	_, report, err := m.Start(context.Background(), echoDef(), nil)
	require.NoError(t, err)
	assert.True(t, report.Succeeded())
}

func TestManager_List(t *testing.T) {
	m := newManager(t, nil)

	first, _, err := m.Start(context.Background(), echoDef(), nil)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, _, err := m.Start(context.Background(), echoDef(), nil)
	require.NoError(t, err)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID(), list[0].ID())
	assert.Equal(t, first.ID(), list[1].ID())
}
