// Package ui provides terminal output components for the knowledge CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// UI writes human-readable output. In JSON mode every method is silent so
// that stdout carries only the JSON document.
type UI struct {
	out      io.Writer
	err      io.Writer
	noColor  bool
	jsonMode bool
}

// New creates a UI writing to out and err.
func New(out, err io.Writer, jsonMode, noColor bool) *UI {
	return &UI{
		out:      out,
		err:      err,
		noColor:  noColor || !IsTerminal(out),
		jsonMode: jsonMode,
	}
}

func (ui *UI) paint(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if ui.noColor {
		c.DisableColor()
	} else {
		c.EnableColor()
	}
	return c
}

// Success prints a success message.
func (ui *UI) Success(format string, args ...any) {
	if ui.jsonMode {
		return
	}
	ui.paint(color.FgGreen).Fprintf(ui.out, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Error prints an error message to the error stream.
func (ui *UI) Error(format string, args ...any) {
	if ui.jsonMode {
		return
	}
	ui.paint(color.FgRed).Fprintf(ui.err, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (ui *UI) Warning(format string, args ...any) {
	if ui.jsonMode {
		return
	}
	ui.paint(color.FgYellow).Fprintf(ui.out, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info prints an info message.
func (ui *UI) Info(format string, args ...any) {
	if ui.jsonMode {
		return
	}
	ui.paint(color.FgCyan).Fprintf(ui.out, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// Section prints a section header.
func (ui *UI) Section(title string) {
	if ui.jsonMode {
		return
	}
	fmt.Fprintln(ui.out)
	ui.paint(color.FgMagenta, color.Bold).Fprintf(ui.out, "━━━ %s ━━━\n", strings.ToUpper(title))
	fmt.Fprintln(ui.out)
}

// KeyValue prints a key-value pair.
func (ui *UI) KeyValue(key string, value any) {
	if ui.jsonMode {
		return
	}
	ui.paint(color.FgYellow).Fprintf(ui.out, "  %s: ", key)
	fmt.Fprintf(ui.out, "%v\n", value)
}

// Box prints content inside a bordered box with a title row.
func (ui *UI) Box(title, content string) {
	if ui.jsonMode {
		return
	}

	lines := strings.Split(content, "\n")
	width := displayWidth(title)
	for _, line := range lines {
		if w := displayWidth(line); w > width {
			width = w
		}
	}
	if width < 40 {
		width = 40
	}

	border := ui.paint(color.FgCyan)
	border.Fprintf(ui.out, "┌%s┐\n", strings.Repeat("─", width+2))
	if title != "" {
		border.Fprint(ui.out, "│")
		ui.paint(color.Bold).Fprintf(ui.out, " %s ", pad(title, width))
		border.Fprintln(ui.out, "│")
		border.Fprintf(ui.out, "├%s┤\n", strings.Repeat("─", width+2))
	}
	for _, line := range lines {
		border.Fprint(ui.out, "│")
		fmt.Fprintf(ui.out, " %s ", pad(line, width))
		border.Fprintln(ui.out, "│")
	}
	border.Fprintf(ui.out, "└%s┘\n", strings.Repeat("─", width+2))
}

// Table prints a bordered table.
func (ui *UI) Table(headers []string, rows [][]string) {
	if ui.jsonMode || len(headers) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = displayWidth(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && displayWidth(cell) > widths[i] {
				widths[i] = displayWidth(cell)
			}
		}
	}

	border := ui.paint(color.FgCyan, color.Bold)
	rule := func(left, mid, right string) {
		border.Fprint(ui.out, left)
		for i, w := range widths {
			border.Fprint(ui.out, strings.Repeat("─", w+2))
			if i < len(widths)-1 {
				border.Fprint(ui.out, mid)
			}
		}
		border.Fprintln(ui.out, right)
	}
	line := func(cells []string) {
		border.Fprint(ui.out, "│")
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			fmt.Fprintf(ui.out, " %s ", pad(cell, w))
			border.Fprint(ui.out, "│")
		}
		fmt.Fprintln(ui.out)
	}

	rule("┌", "┬", "┐")
	line(headers)
	rule("├", "┼", "┤")
	for _, row := range rows {
		line(row)
	}
	rule("└", "┴", "┘")
}

// JSON reports whether the UI is in JSON mode.
func (ui *UI) JSON() bool {
	return ui.jsonMode
}

// Spinner wraps a spinner for indeterminate progress. A nil *Spinner is a
// valid no-op.
type Spinner struct {
	spinner *spinner.Spinner
}

// Spinner creates a spinner on the error stream. It returns nil in JSON
// mode or when the error stream is not a terminal.
func (ui *UI) Spinner(message string) *Spinner {
	if ui.jsonMode || !IsTerminal(ui.err) {
		return nil
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = ui.err
	return &Spinner{spinner: s}
}

// Start starts the spinner animation.
func (s *Spinner) Start() {
	if s != nil {
		s.spinner.Start()
	}
}

// Stop stops the spinner animation.
func (s *Spinner) Stop() {
	if s != nil {
		s.spinner.Stop()
	}
}

// ProgressBar wraps a progress bar for batch runs. A nil *ProgressBar is a
// valid no-op.
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// ProgressBar creates a progress bar on the error stream, or nil in JSON mode.
func (ui *UI) ProgressBar(total int, description string) *ProgressBar {
	if ui.jsonMode {
		return nil
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(ui.err),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("queries"),
		progressbar.OptionShowIts(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(ui.err)
		}),
		progressbar.OptionEnableColorCodes(!ui.noColor),
	)
	return &ProgressBar{bar: bar}
}

// Add advances the bar by one.
func (p *ProgressBar) Add() {
	if p != nil {
		_ = p.bar.Add(1)
	}
}

// Finish completes the bar.
func (p *ProgressBar) Finish() {
	if p != nil {
		_ = p.bar.Finish()
	}
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// IsTerminal reports whether w is a character device.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func displayWidth(s string) int {
	return len([]rune(s))
}

func pad(s string, width int) string {
	if n := displayWidth(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
