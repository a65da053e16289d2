// Package csvtasks reads a task list from CSV, the format the planning
// spreadsheet exports: name,duration,priority[,earliest,deadline,mandatory].
package csvtasks

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"dayplan/internal/integrations"
	"dayplan/internal/model"
)

// Adapter reads tasks from a CSV file on disk, or from Reader when set.
type Adapter struct {
	Path   string
	Reader io.Reader
}

func (a Adapter) Name() string { return "csv" }

var columnAliases = map[string]string{
	"id": "id", "task_id": "id",
	"name": "name", "task": "name", "title": "name",
	"duration": "duration", "duration_min": "duration", "minutes": "duration",
	"priority": "priority",
	"earliest": "earliest", "earliest_start": "earliest", "start_after": "earliest",
	"deadline": "deadline", "due": "deadline",
	"mandatory": "mandatory", "required": "mandatory",
}

var defaultOrder = []string{"name", "duration", "priority", "earliest", "deadline", "mandatory"}

// FetchTasks parses the whole file. A header row is optional; without one
// columns are taken in the default order.
func (a Adapter) FetchTasks(ctx context.Context) ([]model.TaskIn, error) {
	r := a.Reader
	if r == nil {
		f, err := os.Open(a.Path)
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		defer f.Close()
		r = f
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var cols []string
	var out []model.TaskIn
	row := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			return nil, &integrations.RowError{Source: a.Name(), Row: row, Err: err}
		}
		if cols == nil {
			if h, ok := header(rec); ok {
				cols = h
				continue
			}
			cols = defaultOrder
		}
		if blank(rec) {
			continue
		}
		t, rerr := parseRow(cols, rec)
		if rerr != nil {
			rerr.Source, rerr.Row = a.Name(), row
			return nil, rerr
		}
		out = append(out, t)
	}
	return out, nil
}

func header(rec []string) ([]string, bool) {
	cols := make([]string, len(rec))
	named := false
	for i, c := range rec {
		key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(c), " ", "_"))
		if canon, ok := columnAliases[key]; ok {
			cols[i] = canon
			named = true
		}
	}
	return cols, named
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseRow(cols, rec []string) (model.TaskIn, *integrations.RowError) {
	var t model.TaskIn
	for i, v := range rec {
		if i >= len(cols) || cols[i] == "" {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		switch cols[i] {
		case "id":
			t.ID = v
		case "name":
			t.Name = v
		case "duration":
			n, err := strconv.Atoi(strings.TrimSuffix(v, "m"))
			if err != nil {
				return t, &integrations.RowError{Column: "duration", Err: fmt.Errorf("want whole minutes, got %q", v)}
			}
			t.DurationMin = n
		case "priority":
			p, err := model.ParsePriority(v)
			if err != nil {
				return t, &integrations.RowError{Column: "priority", Err: err}
			}
			t.Priority = p
		case "earliest":
			if _, err := model.ParseClock(v); err != nil {
				return t, &integrations.RowError{Column: "earliest", Err: err}
			}
			t.EarliestStart = v
		case "deadline":
			if _, err := model.ParseClock(v); err != nil {
				return t, &integrations.RowError{Column: "deadline", Err: err}
			}
			t.Deadline = v
		case "mandatory":
			b, err := parseBool(v)
			if err != nil {
				return t, &integrations.RowError{Column: "mandatory", Err: err}
			}
			t.Mandatory = b
		}
	}
	if t.Name == "" {
		return t, &integrations.RowError{Column: "name", Err: errors.New("missing")}
	}
	return t, nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "y", "yes", "true", "x":
		return true, nil
	case "0", "n", "no", "false":
		return false, nil
	}
	return false, fmt.Errorf("want yes/no, got %q", v)
}

var _ integrations.TaskSource = Adapter{}
