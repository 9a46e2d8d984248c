package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const statusLabelWidth = 20

var statusKinds = map[statusKind]struct {
	label string
	color string
}{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

// statusBlock accumulates sectioned status lines for the status command.
type statusBlock struct {
	colorize bool
	lines    []string
}

func newStatusBlock(colorize bool) *statusBlock {
	return &statusBlock{colorize: colorize}
}

func (b *statusBlock) section(title string) {
	if len(b.lines) > 0 {
		b.lines = append(b.lines, "")
	}
	heading := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(heading))
	b.lines = append(b.lines, b.paint(ansiBlue, heading), b.paint(ansiBlue, rule))
}

func (b *statusBlock) line(label string, kind statusKind, message string) {
	b.lines = append(b.lines, renderStatusLine(label, kind, message, b.colorize))
}

// check renders a pass/fail line, downgrading failures to a warning when soft.
func (b *statusBlock) check(label string, passed, soft bool, message string) {
	kind := statusOK
	switch {
	case passed:
	case soft:
		kind = statusWarn
	default:
		kind = statusError
	}
	b.line(label, kind, message)
}

func (b *statusBlock) paint(color, s string) string {
	if !b.colorize {
		return s
	}
	return color + s + ansiReset
}

func (b *statusBlock) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintln(w, strings.Join(b.lines, "\n"))
	return int64(n), err
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	meta := statusKinds[kind]
	statusText := fmt.Sprintf("[%s]", meta.label)
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", statusText)
	if colorize {
		return meta.color + base + ansiReset
	}
	return base
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
