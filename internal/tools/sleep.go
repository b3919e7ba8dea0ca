package tools

import (
	"context"
	"fmt"
	"time"
)

const (
	// ToolSleep — имя инструмента задержки.
	ToolSleep = "sleep"

	inputDurationSec = "duration_sec"
	inputDurationMs  = "duration_ms"
)

// SleepTool — инструмент задержки.
//
// Приостанавливает выполнение на указанное время.
// Отмена контекста прерывает ожидание.
//
// Input:
//
//	{
//	    "duration_sec": 10,    // задержка в секундах
//	    // или
//	    "duration_ms": 5000    // задержка в миллисекундах
//	}
type SleepTool struct{}

// NewSleepTool создаёт SleepTool.
func NewSleepTool() *SleepTool {
	return &SleepTool{}
}

// Name возвращает имя инструмента.
func (s *SleepTool) Name() string {
	return ToolSleep
}

// Invoke выполняет задержку.
func (s *SleepTool) Invoke(ctx context.Context, input map[string]any) (any, error) {
	duration, err := s.parseDuration(input)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrToolCancelled, ctx.Err())
	case <-timer.C:
		return map[string]any{
			"duration_ms": duration.Milliseconds(),
		}, nil
	}
}

func (s *SleepTool) parseDuration(input map[string]any) (time.Duration, error) {
	if sec := GetInt(input, inputDurationSec); sec > 0 {
		return time.Duration(sec) * time.Second, nil
	}
	if ms := GetInt(input, inputDurationMs); ms > 0 {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return 0, fmt.Errorf("%w: %s: duration_sec or duration_ms required", ErrInvalidInput, ToolSleep)
}
