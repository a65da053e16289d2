package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"dayplan/internal/model"
)

// validationProblem turns a validator error into a 400 problem naming the
// first offending field.
func validationProblem(err error, instance string) Problem {
	p := Problem{Type: "/problems/validation", Title: "Invalid request", Status: http.StatusBadRequest, Detail: err.Error(), Instance: instance}
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		fe := ves[0]
		// Namespace is "ScheduleRequest.tasks[0].durationMin"; drop the struct name.
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		p.Field = field
		p.Value = fe.Value()
		p.Detail = fmt.Sprintf("%s failed %q", field, describeTag(fe))
		if len(ves) > 1 {
			p.Detail += fmt.Sprintf(" (and %d more)", len(ves)-1)
		}
	}
	return p
}

func describeTag(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

func (s *Server) validateScheduleRequest(req *model.ScheduleRequest) error {
	return s.Validate.Struct(req)
}
