package service

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func sampleTasks() []Task {
	return []Task{
		{ID: 3, Title: "Write report", Completed: false},
		{ID: 2, Title: "Buy milk", Completed: true},
		{ID: 1, Title: "Call mom", Completed: false},
	}
}

func TestApplyFilter_Pending(t *testing.T) {
	got := ApplyFilter(sampleTasks(), FilterPending)
	if len(got) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(got))
	}
	for _, task := range got {
		if task.Completed {
			t.Errorf("pending filter returned completed task %d", task.ID)
		}
	}
	if got[0].ID != 3 || got[1].ID != 1 {
		t.Errorf("expected order [3 1], got [%d %d]", got[0].ID, got[1].ID)
	}
}

func TestApplyFilter_CompletedIsComplement(t *testing.T) {
	tasks := sampleTasks()
	pending := ApplyFilter(tasks, FilterPending)
	completed := ApplyFilter(tasks, FilterCompleted)
	if len(pending)+len(completed) != len(tasks) {
		t.Fatalf("expected pending+completed == %d, got %d+%d", len(tasks), len(pending), len(completed))
	}
	if len(completed) != 1 || completed[0].ID != 2 {
		t.Errorf("expected only task 2, got %+v", completed)
	}
}

func TestApplyFilter_AllAndIdempotent(t *testing.T) {
	tasks := sampleTasks()
	all := ApplyFilter(tasks, FilterAll)
	if len(all) != len(tasks) {
		t.Fatalf("expected %d tasks, got %d", len(tasks), len(all))
	}

	once := ApplyFilter(tasks, FilterPending)
	twice := ApplyFilter(once, FilterPending)
	if len(once) != len(twice) {
		t.Errorf("expected idempotent filter, got %d then %d", len(once), len(twice))
	}
}

func TestApplyFilter_DoesNotMutateInput(t *testing.T) {
	tasks := sampleTasks()
	out := ApplyFilter(tasks, FilterCompleted)
	out[0].Title = "changed"
	if tasks[1].Title != "Buy milk" {
		t.Errorf("input was modified: %q", tasks[1].Title)
	}
}

func TestParseFilter(t *testing.T) {
	cases := map[string]Filter{
		"":           FilterAll,
		"all":        FilterAll,
		" Pending ":  FilterPending,
		"COMPLETED":  FilterCompleted,
	}
	for in, want := range cases {
		got, err := ParseFilter(in)
		if err != nil {
			t.Errorf("ParseFilter(%q): unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseFilter(%q): expected %q, got %q", in, want, got)
		}
	}

	if _, err := ParseFilter("done"); err == nil {
		t.Error("expected error for unknown filter")
	}
}

func TestFilterNext(t *testing.T) {
	if FilterAll.Next() != FilterPending {
		t.Errorf("expected pending after all")
	}
	if FilterCompleted.Next() != FilterAll {
		t.Errorf("expected all after completed")
	}
}

func TestValidateTitle(t *testing.T) {
	if err := ValidateTitle("   "); err != ErrTitleRequired {
		t.Errorf("expected ErrTitleRequired, got %v", err)
	}
	if err := ValidateTitle(strings.Repeat("a", MaxTitleLength)); err != nil {
		t.Errorf("expected 200 chars to be valid, got %v", err)
	}
	if err := ValidateTitle(strings.Repeat("a", MaxTitleLength+1)); err != ErrTitleTooLong {
		t.Errorf("expected ErrTitleTooLong, got %v", err)
	}
}

func TestTaskPatchApply(t *testing.T) {
	task := Task{ID: 1, Title: "Buy milk", Description: "2 liters"}
	got := CompletedPatch(true).Apply(task)
	if !got.Completed {
		t.Error("expected completed to be set")
	}
	if got.Title != "Buy milk" || got.Description != "2 liters" {
		t.Errorf("expected other fields untouched, got %+v", got)
	}
	if task.Completed {
		t.Error("Apply must not modify its argument")
	}
}

func TestTaskPatchJSONOmitsNilFields(t *testing.T) {
	data, err := json.Marshal(CompletedPatch(false))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"completed":false}` {
		t.Errorf("expected only completed field, got %s", data)
	}
}

func TestTimestamp_ZonelessBackendFormat(t *testing.T) {
	var task Task
	body := `{"id":7,"title":"x","completed":false,"user_id":"u1",` +
		`"created_at":"2024-05-01T10:00:00.123456","updated_at":"2024-05-01T10:00:00Z"}`
	if err := json.Unmarshal([]byte(body), &task); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC)
	if !task.CreatedAt.Equal(want) {
		t.Errorf("expected %v, got %v", want, task.CreatedAt.Time)
	}
	if task.UpdatedAt.IsZero() {
		t.Error("expected RFC 3339 timestamp to parse")
	}
}

func TestTimestamp_Null(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte("null"), &ts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !ts.IsZero() {
		t.Error("expected zero time for null")
	}
}
