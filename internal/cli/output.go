package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// emptyCell — заполнитель пустой ячейки таблицы.
const emptyCell = "-"

// Output печатает результаты команд relay.
//
// Данные (таблицы, JSON, текст ответа backend'а) идут в stdout,
// пояснения и предупреждения — в stderr, чтобы вывод можно было
// передавать дальше по конвейеру.
type Output struct {
	jsonMode bool
	stdout   io.Writer
	stderr   io.Writer
}

// NewOutput создаёт Output поверх os.Stdout и os.Stderr.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с заданными потоками.
func NewOutputTo(jsonMode bool, stdout, stderr io.Writer) *Output {
	return &Output{jsonMode: jsonMode, stdout: stdout, stderr: stderr}
}

// JSONMode сообщает, включён ли --json.
func (o *Output) JSONMode() bool {
	return o.jsonMode
}

// Print выводит v как JSON в режиме --json, иначе таблицей.
func (o *Output) Print(headers []string, rows [][]string, v any) {
	if o.jsonMode {
		o.JSON(v)
		return
	}
	o.Table(headers, rows)
}

// Table печатает выровненную таблицу. Пустые ячейки заменяются на "-".
func (o *Output) Table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		o.Info("no results")
		return
	}

	tw := tabwriter.NewWriter(o.stdout, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	underline := make([]string, len(headers))
	for i, h := range headers {
		underline[i] = strings.Repeat("-", len(h))
	}

	writeRow(tw, headers)
	writeRow(tw, underline)
	for _, row := range rows {
		writeRow(tw, row)
	}
}

// Details печатает пары "ключ: значение" одним выровненным блоком.
func (o *Output) Details(pairs [][2]string) {
	tw := tabwriter.NewWriter(o.stdout, 0, 0, 1, ' ', 0)
	defer tw.Flush()

	for _, p := range pairs {
		value := p[1]
		if value == "" {
			value = emptyCell
		}
		fmt.Fprintf(tw, "%s:\t%s\n", p[0], value)
	}
}

// JSON печатает v с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		o.Warn("encode output: " + err.Error())
	}
}

// Text печатает строку в stdout как есть.
func (o *Output) Text(s string) {
	fmt.Fprintln(o.stdout, s)
}

// Info печатает пояснение в stderr.
func (o *Output) Info(format string, args ...any) {
	fmt.Fprintf(o.stderr, format+"\n", args...)
}

// Warn печатает предупреждение в stderr.
func (o *Output) Warn(msg string) {
	fmt.Fprintln(o.stderr, "warning: "+msg)
}

// writeRow пишет строку таблицы, заменяя пустые ячейки.
func writeRow(w io.Writer, cells []string) {
	out := make([]string, len(cells))
	for i, c := range cells {
		if c == "" {
			c = emptyCell
		}
		out[i] = c
	}
	fmt.Fprintln(w, strings.Join(out, "\t"))
}
