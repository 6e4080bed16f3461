package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"taskboard/internal/service"
)

// TaskRef represents a parsed task reference.
type TaskRef struct {
	Position int  // 1-based position in the listing, when !ByID
	ID       int  // task id, when ByID
	ByID     bool // true for "#ID" references
}

// ErrTaskRefRequired indicates no task reference was provided.
var ErrTaskRefRequired = errors.New("task reference required")

// ParseTaskRef parses a task reference from args.
//
// Parsing rules:
//  1. "N" (all digits) is the Nth task of the listing for the active filter
//  2. "#N" is the task with id N
//  3. anything else is an invalid task reference
func ParseTaskRef(args []string) (TaskRef, error) {
	if len(args) == 0 {
		return TaskRef{}, ErrTaskRefRequired
	}
	if len(args) > 1 {
		return TaskRef{}, fmt.Errorf("unexpected argument: %s", args[1])
	}

	arg := args[0]
	if digits, ok := strings.CutPrefix(arg, "#"); ok {
		id, err := parseNumber(digits)
		if err != nil {
			return TaskRef{}, fmt.Errorf("invalid task reference: %s", arg)
		}
		return TaskRef{ID: id, ByID: true}, nil
	}

	pos, err := parseNumber(arg)
	if err != nil {
		return TaskRef{}, fmt.Errorf("invalid task reference: %s", arg)
	}
	return TaskRef{Position: pos}, nil
}

func (r TaskRef) String() string {
	if r.ByID {
		return "#" + strconv.Itoa(r.ID)
	}
	return strconv.Itoa(r.Position)
}

// Resolve finds the referenced task in a listing.
func (r TaskRef) Resolve(tasks []service.Task) (service.Task, error) {
	if r.ByID {
		for _, t := range tasks {
			if t.ID == r.ID {
				return t, nil
			}
		}
		return service.Task{}, fmt.Errorf("task not found: #%d", r.ID)
	}
	if r.Position < 1 || r.Position > len(tasks) {
		return service.Task{}, fmt.Errorf("task number out of range: %d", r.Position)
	}
	return tasks[r.Position-1], nil
}

// parseNumber parses a non-empty string of ASCII digits.
func parseNumber(s string) (int, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.Atoi(s)
}
