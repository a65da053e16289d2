package opt

import (
	"errors"
	"testing"
)

func TestNewTaskValidation(t *testing.T) {
	cases := []struct {
		name     string
		id       string
		dur, pri int
		opts     []TaskOption
		field    string
	}{
		{"ok", "a", 30, 1, nil, ""},
		{"empty id", "", 30, 1, nil, "id"},
		{"zero duration", "a", 0, 1, nil, "duration"},
		{"negative priority", "a", 30, -2, nil, "priority"},
		{"priority at cap", "a", 30, MaxPriority, nil, ""},
		{"priority above cap", "a", 30, MaxPriority + 1, nil, "priority"},
		{"huge priority", "a", 50, 1 << 62, nil, "priority"},
		{"longer than a day", "a", DayMinutes + 1, 1, nil, "duration"},
		{"negative earliest", "a", 30, 1, []TaskOption{WithEarliestStart(-1)}, "earliestStart"},
		{"deadline before earliest", "a", 30, 1, []TaskOption{WithEarliestStart(600), WithDeadline(600)}, "deadline"},
		{"window ok", "a", 30, 1, []TaskOption{WithEarliestStart(540), WithDeadline(600), Mandatory()}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task, err := NewTask(tc.id, "task", tc.dur, tc.pri, tc.opts...)
			if tc.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if task.ID != tc.id {
					t.Fatalf("id: got %q", task.ID)
				}
				return
			}
			var ite *InvalidTaskError
			if !errors.As(err, &ite) {
				t.Fatalf("want InvalidTaskError, got %v", err)
			}
			if ite.Field != tc.field {
				t.Fatalf("field: got %q want %q", ite.Field, tc.field)
			}
			if !errors.Is(err, ErrInvalidTask) {
				t.Fatalf("errors.Is ErrInvalidTask failed")
			}
		})
	}
}

func TestNewHorizon(t *testing.T) {
	h, err := NewHorizon(Window{Start: 540, End: 720}, Window{ID: "pm", Start: 780, End: 1020})
	if err != nil {
		t.Fatalf("NewHorizon: %v", err)
	}
	if h.Windows[0].ID != "w1" || h.Windows[1].ID != "pm" {
		t.Fatalf("ids: %+v", h.Windows)
	}
	if h.Capacity() != 180+240 {
		t.Fatalf("capacity: got %d", h.Capacity())
	}
	if h.Start() != 540 || h.End() != 1020 {
		t.Fatalf("bounds: %d-%d", h.Start(), h.End())
	}
	// touching windows are disjoint
	if _, err := NewHorizon(Window{Start: 0, End: 60}, Window{Start: 60, End: 120}); err != nil {
		t.Fatalf("touching windows rejected: %v", err)
	}

	bad := [][]Window{
		nil,
		{{Start: 60, End: 60}},
		{{Start: 120, End: 180}, {Start: 0, End: 60}},
		{{Start: 0, End: 90}, {Start: 60, End: 120}},
		{{ID: "x", Start: 0, End: 10}, {ID: "x", Start: 20, End: 30}},
		{{Start: -5, End: 10}},
		{{Start: 1380, End: 1620}},
	}
	for i, ws := range bad {
		_, err := NewHorizon(ws...)
		var iwe *InvalidWindowError
		if !errors.As(err, &iwe) || !errors.Is(err, ErrInvalidWindow) {
			t.Fatalf("case %d: want InvalidWindowError, got %v", i, err)
		}
	}
}

func TestNewInstance(t *testing.T) {
	h, _ := NewHorizon(Window{Start: 540, End: 720})
	a, _ := NewTask("a", "A", 30, 1)
	if _, err := NewInstance([]Task{a, a}, h); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("duplicate ids: got %v", err)
	}
	early, _ := NewTask("e", "E", 30, 1, WithEarliestStart(100))
	if _, err := NewInstance([]Task{early}, h); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("earliest outside horizon: got %v", err)
	}
	late, _ := NewTask("l", "L", 30, 1, WithDeadline(800))
	if _, err := NewInstance([]Task{late}, h); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("deadline outside horizon: got %v", err)
	}
	in := []Task{a}
	inst, err := NewInstance(in, h)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	in[0].Duration = 999
	if inst.Tasks[0].Duration != 30 {
		t.Fatalf("instance shares caller slice")
	}
}
