package cli

import (
	"errors"
	"fmt"
)

// ExitError — завершение команды с заданным кодом выхода.
//
// Сообщение уже выведено командой, main только завершает процесс.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode возвращает код выхода для ошибки команды.
// nil — 0, ExitError — его код, остальные ошибки — 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
