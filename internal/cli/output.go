package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/orchestrator"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с заданными потоками.
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
	}
}

// JSONMode сообщает, включён ли JSON вывод.
func (o *Output) JSONMode() bool {
	return o.jsonMode
}

// Writer возвращает поток данных.
func (o *Output) Writer() io.Writer {
	return o.w
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

// Report выводит отчёт о запуске.
//
// В текстовом режиме: строка статуса, таблица tasks, вопросы
// ожидающих tasks и цепочка ошибок от первой к исходной причине.
func (o *Output) Report(r *orchestrator.Report) {
	if o.jsonMode {
		o.JSON(r)
		return
	}

	fmt.Fprintf(o.w, "Run %s (%s): %s, exit code %d, %dms\n\n",
		r.RunID, r.WorkflowID, r.Status, r.ExitCode, r.DurationMs)

	rows := make([][]string, len(r.Tasks))
	for i, t := range r.Tasks {
		result := ""
		if t.Output != nil && t.Output.Success {
			result = truncate(engine.Stringify(t.Output.Result), 60)
		}
		rows[i] = []string{t.ID, string(t.Kind), string(t.Status), strconv.Itoa(t.RetriesUsed), t.Route, result}
	}
	o.Table([]string{"TASK", "KIND", "STATUS", "RETRIES", "ROUTE", "RESULT"}, rows)

	if len(r.Questions) > 0 {
		fmt.Fprintln(o.w, "\nAwaiting input:")
		ids := make([]string, 0, len(r.Questions))
		for id := range r.Questions {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(o.w, "  %s: %s\n", id, r.Questions[id])
		}
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(o.w, "\nErrors:")
		for i, rec := range r.Errors {
			prefix := "  "
			if i > 0 {
				prefix = strings.Repeat("  ", i+1) + "caused by "
			}
			fmt.Fprintln(o.w, prefix+rec.Error())
		}
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
