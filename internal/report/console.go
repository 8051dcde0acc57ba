// Package report prints human-readable progress for a precache run.
package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"precache/internal/models"
	"precache/pkg/utils"
)

const installHint = "Ensure your plugin is installed and running from the Application Installation Directory."

type Console struct {
	out      io.Writer
	errOut   io.Writer
	progress bool

	errorStyle lipgloss.Style
	okStyle    lipgloss.Style
	warnStyle  lipgloss.Style
	nameStyle  lipgloss.Style
}

type Option func(c *Console)

// WithProgress draws a byte progress bar while each file streams.
func WithProgress(enabled bool) Option {
	return func(c *Console) {
		c.progress = enabled
	}
}

func NewConsole(out, errOut io.Writer, opts ...Option) *Console {
	r := lipgloss.NewRenderer(out)
	c := &Console{
		out:        out,
		errOut:     errOut,
		errorStyle: r.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		okStyle:    r.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		warnStyle:  r.NewStyle().Foreground(lipgloss.Color("214")),
		nameStyle:  r.NewStyle().Foreground(lipgloss.Color("229")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Console) Downloading(basename string) {
	fmt.Fprintf(c.out, "Downloading %s.\n", c.nameStyle.Render(fmt.Sprintf("%q", basename)))
}

func (c *Console) Result(res models.DownloadResult) {
	if res.Succeeded() {
		fmt.Fprintf(c.out, "  %s (%s)\n", c.okStyle.Render("Complete."), utils.FormatBytes(res.Bytes))
		return
	}

	fmt.Fprintf(c.out, "  %s Failed to download file: %s\n", c.errorStyle.Render("ERROR:"), failureReason(res))
	if res.StaleRemoved {
		fmt.Fprintf(c.out, "  Deleting previous pre-cached file %q.\n", res.LocalPath)
	}
}

func (c *Console) Summary(res *models.SyncResult) {
	line := fmt.Sprintf("Successfully downloaded %d of %d into cache.", res.SuccessCount, res.TotalCount)
	style := c.okStyle
	if res.SuccessCount < res.TotalCount {
		style = c.warnStyle
	}
	fmt.Fprintln(c.out, style.Render(line))
}

// Fatal reports an error that ended the run before the summary.
func (c *Console) Fatal(err error) {
	fmt.Fprintf(c.errOut, "%s Failed to precache items. %v\n", c.errorStyle.Render("ERROR:"), err)
	fmt.Fprintf(c.errOut, "%s %s\n", c.errorStyle.Render("ERROR:"), installHint)
}

func failureReason(res models.DownloadResult) string {
	switch res.Failure {
	case models.FailureStatus:
		return fmt.Sprintf("server answered %d", res.StatusCode)
	case models.FailureLocked:
		return "file is in use by another process"
	case models.FailureResolve:
		return fmt.Sprintf("cannot resolve %q: %v", res.Entry, res.Err)
	default:
		if res.Err != nil {
			return res.Err.Error()
		}
		return string(res.Failure)
	}
}
