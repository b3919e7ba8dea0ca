package tools

import "context"

// ToolEcho — имя инструмента, возвращающего свой input.
const ToolEcho = "echo"

// EchoTool возвращает input без изменений. Полезен для сборки данных
// из нескольких upstream tasks в одну запись.
type EchoTool struct{}

// NewEchoTool создаёт EchoTool.
func NewEchoTool() *EchoTool {
	return &EchoTool{}
}

// Name возвращает имя инструмента.
func (e *EchoTool) Name() string {
	return ToolEcho
}

// Invoke возвращает input.
func (e *EchoTool) Invoke(ctx context.Context, input map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = v
	}
	return out, nil
}
