package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// Pipeline names.
const (
	PipelineRecommendations = "recommendations"
	PipelineItinerary       = "itinerary"
)

// StageFunc runs one stage and returns values for the stage's declared
// output keys. Outputs returned alongside an error are still recorded.
type StageFunc func(ctx context.Context, s *State) (map[Key]any, error)

// Stage is one ordered unit of a pipeline.
type Stage struct {
	Name   string
	Reads  []Key
	Writes []Key
	Run    StageFunc
}

// StageObserver receives timing for each finished stage.
type StageObserver interface {
	ObserveStage(pipeline, stage string, d time.Duration, err error)
}

// Pipeline runs stages strictly in order over one State.
type Pipeline struct {
	name     string
	stages   []Stage
	timeout  time.Duration
	logger   *slog.Logger
	observer StageObserver
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithStageTimeout bounds each stage's context. Zero disables the bound.
func WithStageTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.timeout = d }
}

// WithObserver registers a stage observer.
func WithObserver(o StageObserver) PipelineOption {
	return func(p *Pipeline) { p.observer = o }
}

// NewPipeline builds a named pipeline over stages.
func NewPipeline(name string, stages []Stage, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		name:   name,
		stages: stages,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// StageNames returns the stage names in execution order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, st := range p.stages {
		names[i] = st.Name
	}
	return names
}

// Run executes every stage in order and stops at the first failure.
func (p *Pipeline) Run(ctx context.Context, s *State) error {
	for _, st := range p.stages {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: st.Name, Err: err}
		}
		if err := p.runStage(ctx, s, st); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runStage(ctx context.Context, s *State, st Stage) (err error) {
	log := p.logger.With("trip_id", s.TripID(), "pipeline", p.name, "stage", st.Name)
	log.Debug("Stage starting")
	start := time.Now()

	defer func() {
		if p.observer != nil {
			p.observer.ObserveStage(p.name, st.Name, time.Since(start), err)
		}
		if err != nil {
			log.Warn("Stage failed", "error", err)
			s.AddProgress(st.Name, "Stage failed", map[string]any{"error": err.Error()})
			return
		}
		log.Debug("Stage finished", "duration", time.Since(start))
		s.AddProgress(st.Name, "Stage completed", map[string]any{"pipeline": p.name})
	}()

	stageCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	out, runErr := st.Run(stageCtx, s)
	for k := range out {
		if !slices.Contains(st.Writes, k) {
			return &StageError{Stage: st.Name, Err: fmt.Errorf("undeclared write to %s", k)}
		}
	}
	for k, v := range out {
		s.Set(k, v)
	}
	if runErr != nil {
		return &StageError{Stage: st.Name, Err: runErr}
	}

	for _, k := range st.Writes {
		if !s.Has(k) {
			return &StageOutputMissingError{Stage: st.Name, Key: k}
		}
	}
	return nil
}

// RunResult is the structured outcome handed to the service boundary.
type RunResult struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	FailedStage string `json:"failed_stage,omitempty"`
}

// NewRunResult summarizes a Run error.
func NewRunResult(err error) RunResult {
	if err == nil {
		return RunResult{Success: true}
	}
	return RunResult{Error: err.Error(), FailedStage: FailedStage(err)}
}
