package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"shelfarr/internal/daemonctl"
	"shelfarr/internal/ipc"
)

// Severities used by status lines; they match daemonctl.StatusLine.Severity.
const (
	sevOK    = "ok"
	sevInfo  = "info"
	sevWarn  = "warn"
	sevError = "error"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

var severityColors = map[string]text.Color{
	sevOK:    text.FgGreen,
	sevInfo:  text.FgBlue,
	sevWarn:  text.FgYellow,
	sevError: text.FgRed,
}

func normalizeSeverity(severity string) string {
	severity = strings.ToLower(strings.TrimSpace(severity))
	if severity == "warning" {
		return sevWarn
	}
	if _, ok := severityColors[severity]; ok {
		return severity
	}
	return sevInfo
}

//	  Label:               [SEVERITY] message
func renderStatusLine(label, severity, message string, colorize bool) string {
	severity = normalizeSeverity(severity)
	tag := "[" + strings.ToUpper(severity) + "]"
	if message != "" {
		tag += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", tag)
	if colorize {
		return severityColors[severity].Sprint(line)
	}
	return line
}

func renderSectionHeader(title string, colorize bool) []string {
	heading := "== " + strings.TrimSpace(title) + " =="
	lines := []string{heading, strings.Repeat("-", len(heading))}
	if colorize {
		for i := range lines {
			lines[i] = text.FgBlue.Sprint(lines[i])
		}
	}
	return lines
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// dependencyLines renders the summary, one line per dependency and a final
// line naming everything missing.
func dependencyLines(deps []ipc.DependencyStatus, summary daemonctl.DependencySummary, colorize bool) []string {
	lines := []string{renderStatusLine("Summary", summary.Severity, summary.Detail, colorize)}
	var missing []string
	for _, dep := range deps {
		if dep.Available {
			msg := "Ready"
			if dep.Command != "" {
				msg += " (command: " + dep.Command + ")"
			}
			lines = append(lines, renderStatusLine(dep.Name, sevOK, msg, colorize))
			continue
		}
		detail := cmpOr(strings.TrimSpace(dep.Detail), "not available")
		severity := sevError
		if dep.Optional {
			severity = sevWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, severity, detail, colorize))
		missing = append(missing, dep.Name)
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", sevWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}

func cmpOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// formatStatusLabel turns "publish_pending"-style keys into "Publish Pending".
func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(status, "_", " "))
}
