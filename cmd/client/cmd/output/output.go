// Package output печать результатов команд: цветной текст для терминала или JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	stdout  io.Writer = os.Stdout
	asJSON  bool
	success = color.New(color.FgGreen, color.Bold)
	warning = color.New(color.FgYellow)
	failure = color.New(color.FgRed, color.Bold)
	muted   = color.New(color.FgHiBlack)
)

// Setup выбирает формат вывода. Цвет включается только для терминала.
func Setup(jsonOutput, noColor bool) {
	asJSON = jsonOutput
	color.NoColor = noColor || jsonOutput || !isTerminal(os.Stdout)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// SetWriter подменяет вывод, для тестов
func SetWriter(w io.Writer) {
	stdout = w
}

// JSONMode включен ли вывод в JSON
func JSONMode() bool {
	return asJSON
}

// JSON печатает v с отступами
func JSON(v any) error {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func Println(a ...any) {
	fmt.Fprintln(stdout, a...)
}

func Printf(format string, a ...any) {
	fmt.Fprintf(stdout, format, a...)
}

func Success(format string, a ...any) {
	success.Fprintf(stdout, format+"\n", a...)
}

func Warn(format string, a ...any) {
	warning.Fprintf(stdout, format+"\n", a...)
}

func Fail(format string, a ...any) {
	failure.Fprintf(stdout, format+"\n", a...)
}

func Muted(format string, a ...any) {
	muted.Fprintf(stdout, format+"\n", a...)
}

// Writer текущий вывод, например для tabwriter
func Writer() io.Writer {
	return stdout
}
