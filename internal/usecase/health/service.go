// Package health aggregates component readiness into one report.
package health

import "context"

// Status is the aggregated health status.
type Status string

const (
	// Healthy means every checked component responded.
	Healthy Status = "ok"
	// Degraded means at least one component failed its check.
	Degraded Status = "degraded"
)

// CheckResult is the outcome of a single component check.
type CheckResult string

const (
	CheckOK    CheckResult = "ok"
	CheckError CheckResult = "error"
)

// Report carries the aggregate status and the per-component outcomes.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service runs the component health checks.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
}

// New creates a Service. embedding can be nil, in which case the embedding
// provider is not checked.
func New(db DBPinger, embedding EmbeddingChecker) *Service {
	return &Service{db: db, embedding: embedding}
}

// Check probes the vector index and, when configured, the embedding provider.
func (s *Service) Check(ctx context.Context) Report {
	r := Report{Status: Healthy, Checks: make(map[string]CheckResult)}

	r.record("vector_index", s.db.Ping(ctx))
	if s.embedding != nil {
		r.record("embedding", s.embedding.HealthCheck(ctx))
	}
	return r
}

func (r *Report) record(name string, err error) {
	if err != nil {
		r.Checks[name] = CheckError
		r.Status = Degraded
		return
	}
	r.Checks[name] = CheckOK
}
