package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dayplan/internal/auth"
	"dayplan/internal/model"
	"dayplan/internal/opt"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

const abcCSV = "name,duration,priority\nWrite report,60,5\nEmail,30,3\nReview,90,8\n"

func TestSolveCSVText(t *testing.T) {
	path := writeFile(t, "today.csv", abcCSV)
	out, _, err := execute(t, "solve", "--tasks", path, "--window", "09:00-11:30", "--mode", "exact", "--workers", "1")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	for _, want := range []string{"09:00", "10:00", "Write report", "Review", "Not scheduled:", "Email", "Total priority 13", "optimal"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSolveCSVJSONDefaultHorizon(t *testing.T) {
	path := writeFile(t, "today.csv", abcCSV)
	out, _, err := execute(t, "solve", "--tasks", path, "--minutes", "180", "--json")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	var s model.ScheduleOut
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("json: %v\n%s", err, out)
	}
	// 60+30+90 fills 09:00-12:00 exactly
	if s.TotalPriority != 16 || len(s.Assignments) != 3 || s.IdleMin != 0 || s.Metrics == nil {
		t.Fatalf("schedule: %+v", s)
	}
}

func TestSolveProblemFileWithProgress(t *testing.T) {
	path := writeFile(t, "monday.yaml", `
planDate: "2024-05-06"
windows:
  - {start: "09:00", end: "11:30"}
tasks:
  - {id: A, name: Write report, durationMin: 60, priority: 5}
  - {id: B, name: Email, durationMin: 30, priority: Medium}
  - {id: C, name: Review, durationMin: 90, priority: High}
solver:
  mode: greedy
`)
	// the flag overrides the file's greedy mode
	out, errOut, err := execute(t, "solve", "--problem", path, "--mode", "exact", "--progress", "--json")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	var s model.ScheduleOut
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatal(err)
	}
	// A(5)+C(3) = 8 beats A(5)+B(2) = 7 and B(2)+C(3) = 5
	if s.Mode != "exact" || s.TotalPriority != 8 || s.PlanDate != "2024-05-06" {
		t.Fatalf("schedule: %+v", s)
	}
	if !strings.Contains(errOut, "incumbent: priority=") {
		t.Fatalf("no progress on stderr: %q", errOut)
	}
}

func TestSolveErrors(t *testing.T) {
	path := writeFile(t, "today.csv", abcCSV)
	if _, _, err := execute(t, "solve"); err == nil {
		t.Fatal("want error without --tasks or --problem")
	}
	if _, _, err := execute(t, "solve", "--tasks", path, "--window", "09:00"); err == nil || !strings.Contains(err.Error(), "HH:MM-HH:MM") {
		t.Fatalf("bad window: %v", err)
	}
	if _, _, err := execute(t, "solve", "--tasks", path, "--window", "25:00-26:00"); err == nil || !strings.Contains(err.Error(), "invalid problem") {
		t.Fatalf("bad clock: %v", err)
	}
	if _, _, err := execute(t, "solve", "--tasks", path, "--tie-break", "fastest"); err == nil {
		t.Fatal("want error for unknown tie-break")
	}
	long := writeFile(t, "long.csv", "name,duration,priority\nMarathon,300,3\n")
	_, _, err := execute(t, "solve", "--tasks", long, "--window", "09:00-10:00")
	if !errors.Is(err, opt.ErrInfeasible) {
		t.Fatalf("want ErrInfeasible, got %v", err)
	}
}

func TestTokenVerifies(t *testing.T) {
	out, _, err := execute(t, "token", "--tenant", "t_cli", "--role", "admin", "--secret", "cli-secret-1")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	v, err := auth.New(auth.ModeHMAC, "cli-secret-1")
	if err != nil {
		t.Fatal(err)
	}
	p, err := v.Verify(strings.TrimSpace(out))
	if err != nil || p.Tenant != "t_cli" || !p.IsAdmin() {
		t.Fatalf("verify: %+v %v", p, err)
	}
	if _, _, err := execute(t, "token", "--role", "owner", "--secret", "x"); err == nil {
		t.Fatal("want error for unknown role")
	}
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	if err != nil || !strings.HasPrefix(out, "dayplan ") {
		t.Fatalf("version: %q %v", out, err)
	}
}
