// Package problemfile loads a whole ScheduleRequest from a YAML or JSON
// file, the format `dayplan solve --problem` takes.
package problemfile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"dayplan/internal/integrations"
	"dayplan/internal/model"
)

// Load reads path; .json files are decoded as JSON, anything else as YAML.
func Load(path string) (model.ScheduleRequest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return model.ScheduleRequest{}, fmt.Errorf("problem: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return decodeJSON(b)
	}
	return Decode(b)
}

// Decode parses a YAML document. Unknown keys are rejected so typos in a
// hand-written problem surface early.
func Decode(b []byte) (model.ScheduleRequest, error) {
	var req model.ScheduleRequest
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return model.ScheduleRequest{}, fmt.Errorf("problem: %w", err)
	}
	return req, nil
}

func decodeJSON(b []byte) (model.ScheduleRequest, error) {
	var req model.ScheduleRequest
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return model.ScheduleRequest{}, fmt.Errorf("problem: %w", err)
	}
	return req, nil
}

// Source exposes the tasks of a problem file as a TaskSource.
type Source struct{ Path string }

func (s Source) Name() string { return "problem-file" }

func (s Source) FetchTasks(ctx context.Context) ([]model.TaskIn, error) {
	req, err := Load(s.Path)
	if err != nil {
		return nil, err
	}
	return req.Tasks, nil
}

var _ integrations.TaskSource = Source{}
