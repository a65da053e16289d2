package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"dayplan/internal/opt"
	"dayplan/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// Field and Value point at the offending input for validation problems.
	Field string `json:"field,omitempty"`
	Value any    `json:"value,omitempty"`
}

const maxBodyBytes = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeProblemBody(w, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

func writeProblemBody(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// decodeJSON reads a size-limited JSON body, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// solveProblem maps solver errors to problem responses:
// invalid input 400, over-commitment 409, infeasible 422.
func solveProblem(err error, instance string) Problem {
	var (
		it *opt.InvalidTaskError
		iw *opt.InvalidWindowError
		oc *opt.OverCommittedError
		in *opt.InfeasibleError
	)
	switch {
	case errors.As(err, &it):
		return Problem{Type: "/problems/invalid-task", Title: "Invalid task", Status: http.StatusBadRequest,
			Detail: err.Error(), Instance: instance, Field: fieldPath("tasks", it.TaskID, it.Field), Value: it.Value}
	case errors.As(err, &iw):
		return Problem{Type: "/problems/invalid-window", Title: "Invalid window", Status: http.StatusBadRequest,
			Detail: err.Error(), Instance: instance, Field: fieldPath("windows", iw.WindowID, iw.Field)}
	case errors.As(err, &oc):
		return Problem{Type: "/problems/over-committed", Title: "Mandatory tasks exceed available time", Status: http.StatusConflict,
			Detail: err.Error(), Instance: instance}
	case errors.As(err, &in):
		return Problem{Type: "/problems/infeasible", Title: "No task fits any window", Status: http.StatusUnprocessableEntity,
			Detail: err.Error(), Instance: instance, Value: in.Reasons}
	}
	return Problem{Type: "about:blank", Title: "Solve failed", Status: http.StatusInternalServerError, Detail: err.Error(), Instance: instance}
}

// errorKind labels solve errors for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, opt.ErrInvalidTask):
		return "invalid_task"
	case errors.Is(err, opt.ErrInvalidWindow):
		return "invalid_window"
	case errors.Is(err, opt.ErrOverCommitted):
		return "over_committed"
	case errors.Is(err, opt.ErrInfeasible):
		return "infeasible"
	}
	return "internal"
}

func fieldPath(list, id, field string) string {
	switch {
	case id == "" && field == "":
		return list
	case id == "":
		return list + "." + field
	case field == "":
		return fmt.Sprintf("%s[%s]", list, id)
	}
	return fmt.Sprintf("%s[%s].%s", list, id, field)
}

// storeProblem writes 404 for store.ErrNotFound and 500 otherwise.
func storeProblem(w http.ResponseWriter, r *http.Request, title string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
		return
	}
	writeProblem(w, http.StatusInternalServerError, title, err.Error(), r.URL.Path)
}

// pageParams reads cursor and limit, clamping limit to [1, 500].
func pageParams(r *http.Request) (string, int) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}
	return r.URL.Query().Get("cursor"), limit
}
