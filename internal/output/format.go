// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"strings"

	"taskboard/internal/service"
)

const (
	// ListSeparator is the separator line around a filter header.
	ListSeparator = "------------"
)

// FormatTask formats a task line.
// Format: "{N:>4}  [{x| }] {TITLE}  #{ID}\n", followed by an indented
// description line when the task has one.
func FormatTask(w io.Writer, num int, task service.Task) {
	mark := " "
	if task.Completed {
		mark = "x"
	}
	fmt.Fprintf(w, "%4d  [%s] %s  #%d\n", num, mark, normalizeTitle(task.Title), task.ID)
	if desc := normalizeText(task.Description); desc != "" {
		fmt.Fprintf(w, "          %s\n", desc)
	}
}

// FormatFilterHeader formats the section header shown above a filtered list.
func FormatFilterHeader(w io.Writer, filter service.Filter, count int) {
	fmt.Fprintln(w, ListSeparator)
	fmt.Fprintf(w, "%s (%d)\n", filterTitle(filter), count)
	fmt.Fprintln(w, ListSeparator)
}

// FormatEmpty prints the line shown when a listing has no tasks.
func FormatEmpty(w io.Writer, filter service.Filter) {
	if filter == service.FilterAll || filter == "" {
		fmt.Fprintln(w, "no tasks found")
		return
	}
	fmt.Fprintf(w, "no %s tasks found\n", filter)
}

// FormatSession formats the signed-in user.
// Format: "{NAME} <{EMAIL}>" with " [offline]" for locally minted sessions.
func FormatSession(w io.Writer, s service.Session, offline bool) {
	line := s.User.Email
	if name := strings.TrimSpace(s.User.Name); name != "" {
		line = fmt.Sprintf("%s <%s>", name, s.User.Email)
	}
	if offline {
		line += " [offline]"
	}
	fmt.Fprintln(w, line)
}

func filterTitle(filter service.Filter) string {
	switch filter {
	case service.FilterPending:
		return "Pending"
	case service.FilterCompleted:
		return "Completed"
	default:
		return "All"
	}
}

// normalizeTitle normalizes a task title for display.
// - Empty or whitespace-only titles become "(untitled)"
// - Newlines are replaced with spaces
func normalizeTitle(title string) string {
	title = normalizeText(title)
	if title == "" {
		return "(untitled)"
	}
	return title
}

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
