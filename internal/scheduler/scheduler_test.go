package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/agentflow/internal/domain"
)

func TestCalculateNextDue(t *testing.T) {
	from := time.Date(2025, 3, 1, 10, 7, 30, 0, time.UTC)

	tests := []struct {
		name    string
		sched   domain.Schedule
		want    time.Time
		wantErr bool
	}{
		{
			name:  "every five minutes",
			sched: domain.Schedule{CronExpr: "*/5 * * * *"},
			want:  time.Date(2025, 3, 1, 10, 10, 0, 0, time.UTC),
		},
		{
			name:  "daily at nine in timezone",
			sched: domain.Schedule{CronExpr: "0 9 * * *", Timezone: "Europe/Moscow"},
			want:  time.Date(2025, 3, 2, 6, 0, 0, 0, time.UTC),
		},
		{
			name:  "descriptor",
			sched: domain.Schedule{CronExpr: "@every 1m"},
			want:  time.Date(2025, 3, 1, 10, 8, 30, 0, time.UTC),
		},
		{
			name:  "interval",
			sched: domain.Schedule{IntervalSec: 90},
			want:  from.Add(90 * time.Second),
		},
		{name: "bad cron", sched: domain.Schedule{CronExpr: "not a cron"}, wantErr: true},
		{name: "nothing set", sched: domain.Schedule{}, wantErr: true},
		{name: "bad timezone", sched: domain.Schedule{IntervalSec: 1, Timezone: "Mars/Olympus"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateNextDue(&tt.sched, from)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestScheduler_Tick(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	var launched []string

	s := New(Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Launcher: LauncherFunc(func(_ context.Context, sched *domain.Schedule) (uuid.UUID, error) {
			launched = append(launched, sched.Name)
			if sched.Name == "broken" {
				return uuid.Nil, errors.New("definition not found")
			}
			return uuid.New(), nil
		}),
	})

	ok := &domain.Schedule{Name: "ok", DefinitionPath: "wf.yaml", IntervalSec: 60}
	broken := &domain.Schedule{Name: "broken", DefinitionPath: "missing.yaml", IntervalSec: 60}
	require.NoError(t, s.Add(ok, now))
	require.NoError(t, s.Add(broken, now))

	assert.Equal(t, 0, s.Tick(context.Background(), now.Add(30*time.Second)))
	assert.Empty(t, launched)

	due := now.Add(time.Minute)
	assert.Equal(t, 1, s.Tick(context.Background(), due))
	assert.ElementsMatch(t, []string{"ok", "broken"}, launched)

	assert.Equal(t, 1, ok.Runs)
	require.NotNil(t, ok.LastRunID)
	assert.True(t, ok.NextDueAt.Equal(due.Add(time.Minute)))
	assert.True(t, broken.NextDueAt.Equal(due.Add(time.Minute)), "failed launch still advances the schedule")
	assert.Equal(t, 0, broken.Runs)

	assert.Equal(t, 0, s.Tick(context.Background(), due.Add(time.Second)))
}

func TestScheduler_AddRejectsInvalid(t *testing.T) {
	s := New(Config{})
	err := s.Add(&domain.Schedule{CronExpr: "61 * * * *"}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	err = s.Add(&domain.Schedule{}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidSchedule)
	assert.Empty(t, s.Schedules())
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runs := make(chan struct{}, 10)

	s := New(Config{
		TickInterval: 5 * time.Millisecond,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Launcher: LauncherFunc(func(context.Context, *domain.Schedule) (uuid.UUID, error) {
			runs <- struct{}{}
			return uuid.New(), nil
		}),
	})
	require.NoError(t, s.Add(&domain.Schedule{Name: "fast", IntervalSec: 1}, time.Now().Add(-2*time.Second)))

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-runs:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled run was not launched")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
