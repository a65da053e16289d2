package integrations

import (
	"context"
	"strconv"

	"dayplan/internal/model"
)

// TaskSource is anything that can produce a day's task list: a CSV export,
// a YAML problem file, a ticketing system.
type TaskSource interface {
	Name() string
	FetchTasks(ctx context.Context) ([]model.TaskIn, error)
}

// RowError points at the record a source could not map.
type RowError struct {
	Source string
	Row    int // 1-based, counting the header
	Column string
	Err    error
}

func (e *RowError) Error() string {
	if e.Column == "" {
		return e.Source + ": row " + strconv.Itoa(e.Row) + ": " + e.Err.Error()
	}
	return e.Source + ": row " + strconv.Itoa(e.Row) + " column " + e.Column + ": " + e.Err.Error()
}

func (e *RowError) Unwrap() error { return e.Err }
