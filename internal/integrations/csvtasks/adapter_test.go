package csvtasks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dayplan/internal/integrations"
)

func TestFetchTasksWithHeader(t *testing.T) {
	in := "Task,Minutes,Priority,Deadline,Required\n" +
		"Write report,60,High,12:00,yes\n" +
		"# comment line\n" +
		"Email,30,2,,\n" +
		",,,,\n"
	tasks, err := Adapter{Reader: strings.NewReader(in)}.FetchTasks(context.Background())
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks: %+v", tasks)
	}
	a := tasks[0]
	if a.Name != "Write report" || a.DurationMin != 60 || a.Priority != 3 || a.Deadline != "12:00" || !a.Mandatory {
		t.Fatalf("row 1: %+v", a)
	}
	if tasks[1].Priority != 2 || tasks[1].Mandatory {
		t.Fatalf("row 2: %+v", tasks[1])
	}
}

func TestFetchTasksPositional(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.csv")
	if err := os.WriteFile(path, []byte("Review,90m,Low,10:00\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	tasks, err := Adapter{Path: path}.FetchTasks(context.Background())
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].DurationMin != 90 || tasks[0].Priority != 1 || tasks[0].EarliestStart != "10:00" {
		t.Fatalf("tasks: %+v", tasks)
	}
}

func TestFetchTasksErrors(t *testing.T) {
	cases := map[string]string{
		"name,duration,priority\nA,ten,1\n":                "duration",
		"name,duration,priority\nA,10,urgent\n":            "priority",
		"name,duration,priority,earliest\nA,10,1,9am\n":    "earliest",
		"name,duration,priority,mandatory\nA,10,1,maybe\n": "mandatory",
		"name,duration,priority\n,10,1\n":                  "name",
	}
	for in, col := range cases {
		_, err := Adapter{Reader: strings.NewReader(in)}.FetchTasks(context.Background())
		var re *integrations.RowError
		if !errors.As(err, &re) || re.Column != col || re.Row != 2 {
			t.Fatalf("%q: want row 2 column %s, got %v", in, col, err)
		}
	}
	if _, err := (Adapter{Path: "/nonexistent/tasks.csv"}).FetchTasks(context.Background()); err == nil {
		t.Fatalf("missing file should fail")
	}
}
