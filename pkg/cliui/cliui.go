// Package cliui provides reusable terminal UI helpers (spinners, step indicators,
// markdown rendering) for wenshu CLI commands.
package cliui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	SuccessMark  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	StepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	LabelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true)
	UserStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	AnswerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	NameStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	HeaderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	DimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	WarnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	KeyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	ValueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

// spinnerFrames is the braille dot spinner.
var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Step prints an animated spinner on w while fn runs, then replaces it with
// a ✓ or ✗ mark and the elapsed time.
func Step(w io.Writer, msg string, fn func() error) error {
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for frame := 0; ; frame++ {
			fmt.Fprintf(w, "\r  %s %s",
				spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]),
				msg,
			)

			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	close(done)
	<-stopped

	fmt.Fprintf(w, "\r  %s %s %s\n",
		Mark(err),
		msg,
		StepStyle.Render(fmt.Sprintf("(%s)", FormatDuration(elapsed))),
	)
	return err
}

// PrintError writes a failed command's error to w as a single styled line.
func PrintError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", FailMark, ErrorStyle.Render("Error: "+err.Error()))
}

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// RenderMarkdown renders markdown content for terminal display using glamour.
func RenderMarkdown(content string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return content, err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}

	return rendered, nil
}

// KeyValue prints an aligned "label  value" line.
func KeyValue(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %s %s\n", LabelStyle.Render(fmt.Sprintf("%-16s", label)), value)
}

// Answer renders an assistant answer as markdown, falling back to the plain
// text when the renderer fails.
func Answer(w io.Writer, answer string) {
	rendered, err := RenderMarkdown(answer)
	if err != nil {
		fmt.Fprintln(w, AnswerStyle.Render(answer))
		return
	}
	fmt.Fprint(w, rendered)
}

// Exchange prints one question and answer pair of the chat history.
func Exchange(w io.Writer, when time.Time, query, answer string) {
	fmt.Fprintf(w, "%s %s\n", StepStyle.Render(when.Local().Format("2006-01-02 15:04")), UserStyle.Render(query))
	fmt.Fprintf(w, "  %s\n\n", AnswerStyle.Render(answer))
}
