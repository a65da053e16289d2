package api

import (
	"net/http"
	"time"

	"dayplan/internal/buildinfo"
)

// DebugJSON reports build info and the non-secret parts of the config.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.admin(w, r); !ok {
		return
	}
	pending := 0
	s.pending.Range(func(_, _ any) bool { pending++; return true })
	c := s.Cfg
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":                 c.Port,
			"authMode":             c.Auth.Mode,
			"logLevel":             c.LogLevel,
			"rateRps":              c.RateRPS,
			"rateBurst":            c.RateBurst,
			"solver":               c.Solver,
			"webhookMaxAttempts":   c.Webhooks.MaxAttempts,
			"hasDatabaseUrl":       c.DatabaseURL != "",
			"hasRedisUrl":          c.RedisURL != "",
			"detachedSolvesActive": pending,
		},
	})
}
