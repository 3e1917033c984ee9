package aireview

import (
	"context"
	"time"

	"github.com/openharvest/outreach-platform/pkg/logging"
)

const analyzeTimeout = 20 * time.Second

// Service wraps an Analyzer with the degradation policy: callers
// always get a usable review. When the analyzer is missing, fails, or
// returns malformed output, the fixed default review is substituted
// and Degraded is set so the caller can warn the volunteer without
// blocking the save.
type Service struct {
	analyzer Analyzer
	logger   *logging.Logger
}

// Result is a review plus whether it is the degraded default.
type Result struct {
	Review   Review
	Degraded bool
}

// NewService creates the wrapper. analyzer may be nil when no AI key
// is configured; every request then degrades.
func NewService(analyzer Analyzer, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{analyzer: analyzer, logger: logger}
}

// Enabled reports whether a real analyzer is configured.
func (s *Service) Enabled() bool {
	return s.analyzer != nil
}

// Assess produces a review for the notes. It never returns an error.
func (s *Service) Assess(ctx context.Context, notes string) Result {
	if s.analyzer == nil {
		return Result{Review: DefaultReview(), Degraded: true}
	}

	ctx, cancel := context.WithTimeout(ctx, analyzeTimeout)
	defer cancel()

	review, err := s.analyzer.Analyze(ctx, notes)
	if err != nil {
		s.logger.Warn("ai analysis failed, using default review", "error", err)
		return Result{Review: DefaultReview(), Degraded: true}
	}
	return Result{Review: review}
}
