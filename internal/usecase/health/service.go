package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates the database is down, so no tool can work.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status   Status                 `json:"status"`
	Checks   map[string]CheckResult `json:"checks"`
	Listings int                    `json:"listings"`
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	index     IndexCounter
	embedding EmbeddingChecker
	timeout   time.Duration
}

// New creates a Service. index and embedding can be nil.
func New(db DBPinger, index IndexCounter, embedding EmbeddingChecker) *Service {
	return &Service{db: db, index: index, embedding: embedding, timeout: 3 * time.Second}
}

// Check runs all component checks concurrently, each bounded by the check timeout.
func (s *Service) Check(ctx context.Context) Report {
	var (
		mu     sync.Mutex
		checks = make(map[string]CheckResult)
		count  int
	)
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			checks[name] = CheckError
			return
		}
		checks[name] = CheckOK
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		record("database", s.db.Ping(ctx))
		return nil
	})
	if s.index != nil {
		g.Go(func() error {
			n, err := s.index.Count(ctx)
			if err == nil {
				mu.Lock()
				count = n
				mu.Unlock()
			}
			record("index", err)
			return nil
		})
	}
	if s.embedding != nil {
		g.Go(func() error {
			record("embedding", s.embedding.HealthCheck(ctx))
			return nil
		})
	}
	_ = g.Wait()

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks["database"] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks, Listings: count}
}
