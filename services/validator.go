package services

import (
	"context"
	"time"
)

// Verdict is the classification result for a report image or a completion
// proof.
type Verdict struct {
	Valid      bool    `json:"valid"`
	Confidence float64 `json:"confidence"`
	Fraud      bool    `json:"fraud"`
	Reason     string  `json:"reason,omitempty"`
}

// ValidationContext tells the validator what it is looking at.
type ValidationContext struct {
	Kind     string // JobReport or JobTaskProof
	EntityID string
	UserID   string
	Category string
}

// Validator is the pluggable fraud/validity classifier. Classify may take an
// arbitrary amount of time; callers bound it with the context.
type Validator interface {
	Classify(ctx context.Context, mediaRef string, vctx ValidationContext) (Verdict, error)
}

// Validation job kinds, matched by the verdict worker.
const (
	JobReport    = "report"
	JobTaskProof = "task_proof"
)

// ValidationJob asks for an out-of-band verdict on an entity. Jobs carry ids,
// never live records: the worker re-fetches fresh state before applying the
// verdict.
type ValidationJob struct {
	Kind     string
	EntityID string
	UserID   string
	MediaRef string
	Category string
}

// ValidationQueue decouples the pipelines from the worker that runs the
// validator.
type ValidationQueue interface {
	Enqueue(job ValidationJob)
}

// SimulatedValidator approves everything after a fixed delay, mirroring the
// stub classifier the platform launched with.
type SimulatedValidator struct {
	Delay time.Duration
}

func (v SimulatedValidator) Classify(ctx context.Context, mediaRef string, vctx ValidationContext) (Verdict, error) {
	select {
	case <-time.After(v.Delay):
	case <-ctx.Done():
		return Verdict{}, unavailable(ctx.Err())
	}
	return Verdict{
		Valid:      true,
		Confidence: 0.95,
		Reason:     "Simulated verification",
	}, nil
}
