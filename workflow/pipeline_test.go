package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu     sync.Mutex
	stages []string
	errs   []error
}

func (o *recordingObserver) ObserveStage(_, stage string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
	o.errs = append(o.errs, err)
}

func writer(name string, key Key, value any, ran *[]string) Stage {
	return Stage{
		Name:   name,
		Writes: []Key{key},
		Run: func(context.Context, *State) (map[Key]any, error) {
			*ran = append(*ran, name)
			return map[Key]any{key: value}, nil
		},
	}
}

func TestPipeline_RunsInOrder(t *testing.T) {
	var ran []string
	obs := &recordingObserver{}
	p := NewPipeline("test", []Stage{
		writer("first", KeySelectedDestination, "Lisbon", &ran),
		writer("second", KeyFeedbackItems, []string{"more beach"}, &ran),
	}, WithObserver(obs))

	s := InitializeState("trip-1", nil, WithClock(fixedClock()))
	require.NoError(t, p.Run(context.Background(), s))

	assert.Equal(t, []string{"first", "second"}, ran)
	assert.Equal(t, []string{"first", "second"}, p.StageNames())
	assert.Equal(t, "Lisbon", s.SelectedDestination())
	assert.Equal(t, []string{"first", "second"}, obs.stages)

	events := s.ProgressEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "Stage completed", events[0].Message)
}

func TestPipeline_MissingOutputStops(t *testing.T) {
	var ran []string
	p := NewPipeline("test", []Stage{
		writer("empty", KeyFeedbackItems, []string{}, &ran),
		writer("never", KeySelectedDestination, "Lisbon", &ran),
	})

	s := InitializeState("trip-1", nil)
	err := p.Run(context.Background(), s)

	var missing *StageOutputMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "empty", missing.Stage)
	assert.Equal(t, KeyFeedbackItems, missing.Key)
	assert.Equal(t, []string{"empty"}, ran, "no stage runs after a missing output")

	result := NewRunResult(err)
	assert.False(t, result.Success)
	assert.Equal(t, "empty", result.FailedStage)
	assert.Contains(t, result.Error, "feedback_items")
}

func TestPipeline_RejectsUndeclaredWrite(t *testing.T) {
	p := NewPipeline("test", []Stage{{
		Name:   "sneaky",
		Writes: []Key{KeySelectedDestination},
		Run: func(context.Context, *State) (map[Key]any, error) {
			return map[Key]any{KeySelectedDestination: "Lisbon", KeyRegenCount: 99}, nil
		},
	}})

	s := InitializeState("trip-1", nil)
	err := p.Run(context.Background(), s)
	require.Error(t, err)
	assert.Equal(t, "sneaky", FailedStage(err))
	assert.Zero(t, s.RegenCount())
	assert.False(t, s.Has(KeySelectedDestination))
}

func TestPipeline_StageErrorKeepsOutputs(t *testing.T) {
	boom := errors.New("boom")
	p := NewPipeline("test", []Stage{{
		Name:   "partial",
		Writes: []Key{KeySelectedDestination},
		Run: func(context.Context, *State) (map[Key]any, error) {
			return map[Key]any{KeySelectedDestination: "Lisbon"}, boom
		},
	}})

	s := InitializeState("trip-1", nil)
	err := p.Run(context.Background(), s)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "Lisbon", s.SelectedDestination())
	assert.Equal(t, "Stage failed", s.ProgressEvents()[0].Message)
}

func TestPipeline_StageTimeout(t *testing.T) {
	p := NewPipeline("test", []Stage{{
		Name:   "slow",
		Writes: []Key{KeySelectedDestination},
		Run: func(ctx context.Context, _ *State) (map[Key]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}}, WithStageTimeout(10*time.Millisecond))

	err := p.Run(context.Background(), InitializeState("trip-1", nil))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "slow", FailedStage(err))
}

func TestPipeline_CancelledBeforeStart(t *testing.T) {
	var ran []string
	p := NewPipeline("test", []Stage{writer("first", KeySelectedDestination, "Lisbon", &ran)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Run(ctx, InitializeState("trip-1", nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ran)
}

func TestNewRunResult_Success(t *testing.T) {
	assert.Equal(t, RunResult{Success: true}, NewRunResult(nil))
}
