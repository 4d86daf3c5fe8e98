package positions

import (
	"fmt"

	"github.com/rs/zerolog"
)

// RecomputeJob is the scheduled safety-net recompute. Recompute is
// idempotent, so re-running it nightly is harmless; it exists to heal any
// aggregate drift (e.g. after a crash between a log write and its
// synchronous recompute).
type RecomputeJob struct {
	service *Service
	log     zerolog.Logger
}

// NewRecomputeJob creates the nightly recompute job
func NewRecomputeJob(service *Service, log zerolog.Logger) *RecomputeJob {
	return &RecomputeJob{
		service: service,
		log:     log.With().Str("job", "recompute_all").Logger(),
	}
}

// Name returns the job name for scheduler logging
func (j *RecomputeJob) Name() string {
	return "recompute_all"
}

// Run recomputes every instrument's aggregate
func (j *RecomputeJob) Run() error {
	result, err := j.service.RecomputeAll()
	if err != nil {
		return fmt.Errorf("batch recompute failed: %w", err)
	}

	if len(result.Errors) > 0 {
		j.log.Warn().
			Int("succeeded", result.Succeeded).
			Int("failed", len(result.Errors)).
			Msg("Batch recompute finished with failures")
		return fmt.Errorf("batch recompute: %d of %d instruments failed",
			len(result.Errors), result.Succeeded+len(result.Errors))
	}

	return nil
}
