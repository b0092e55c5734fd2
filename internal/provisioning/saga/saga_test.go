package saga

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, s)
}

func (j *journal) step(name string, doErr, undoErr error) Step {
	return Step{
		Name: name,
		Do: func(context.Context) error {
			j.add("do:" + name)
			return doErr
		},
		Undo: func(context.Context) error {
			j.add("undo:" + name)
			return undoErr
		},
	}
}

func newRunner(opts ...Option) *Runner {
	opts = append(opts, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return NewRunner(opts...)
}

func TestExecuteAllStepsSucceed(t *testing.T) {
	j := &journal{}
	failure := newRunner().Execute(context.Background(), "test", []Step{
		j.step("a", nil, nil),
		j.step("b", nil, nil),
	})
	assert.Nil(t, failure)
	assert.Equal(t, []string{"do:a", "do:b"}, j.calls)
}

func TestExecuteCompensatesInReverse(t *testing.T) {
	j := &journal{}
	boom := errors.New("boom")
	failure := newRunner().Execute(context.Background(), "test", []Step{
		j.step("a", nil, nil),
		j.step("b", nil, nil),
		j.step("c", boom, nil),
		j.step("d", nil, nil),
	})
	require.NotNil(t, failure)
	assert.Equal(t, "c", failure.Step)
	assert.ErrorIs(t, failure, boom)
	assert.Empty(t, failure.Residue)
	assert.Equal(t, []string{"do:a", "do:b", "do:c", "undo:c", "undo:b", "undo:a"}, j.calls)
}

func TestExecuteCollectsResidueAndKeepsOriginalError(t *testing.T) {
	j := &journal{}
	boom := errors.New("boom")
	stuck := errors.New("realm still present")
	failure := newRunner().Execute(context.Background(), "test", []Step{
		j.step("registry", nil, nil),
		j.step("realm", nil, stuck),
		j.step("client", boom, nil),
	})
	require.NotNil(t, failure)
	assert.ErrorIs(t, failure, boom)
	require.Len(t, failure.Residue, 1)
	assert.Equal(t, "realm", failure.Residue[0].Step)
	assert.ErrorIs(t, failure.Residue[0].Err, stuck)
	// Compensation continues past a failing undo.
	assert.Equal(t, []string{"do:registry", "do:realm", "do:client", "undo:client", "undo:realm", "undo:registry"}, j.calls)
}

// A step can take effect remotely and still report failure; its own undo
// must run.
func TestExecuteUndoesTheFailingStep(t *testing.T) {
	created := false
	failure := newRunner().Execute(context.Background(), "test", []Step{
		{
			Name: "realm",
			Do: func(context.Context) error {
				created = true
				return errors.New("502 bad gateway")
			},
			Undo: func(context.Context) error {
				created = false
				return nil
			},
		},
	})
	require.NotNil(t, failure)
	assert.Equal(t, "realm", failure.Step)
	assert.Empty(t, failure.Residue)
	assert.False(t, created)
}

func TestExecuteSkipsNilUndo(t *testing.T) {
	j := &journal{}
	failure := newRunner().Execute(context.Background(), "test", []Step{
		j.step("a", nil, nil),
		{Name: "b", Do: func(context.Context) error { j.add("do:b"); return nil }},
		j.step("c", errors.New("boom"), nil),
	})
	require.NotNil(t, failure)
	assert.Equal(t, []string{"do:a", "do:b", "do:c", "undo:c", "undo:a"}, j.calls)
}

func TestExecuteStopsWhenCallerCancels(t *testing.T) {
	j := &journal{}
	ctx, cancel := context.WithCancel(context.Background())

	steps := []Step{
		j.step("a", nil, nil),
		{
			Name: "b",
			Do: func(stepCtx context.Context) error {
				cancel()
				// The running step is detached from the caller.
				if stepCtx.Err() != nil {
					return stepCtx.Err()
				}
				j.add("do:b")
				return nil
			},
			Undo: func(stepCtx context.Context) error {
				if stepCtx.Err() != nil {
					return stepCtx.Err()
				}
				j.add("undo:b")
				return nil
			},
		},
		j.step("c", nil, nil),
	}

	failure := newRunner().Execute(ctx, "test", steps)
	require.NotNil(t, failure)
	assert.Equal(t, "c", failure.Step)
	assert.ErrorIs(t, failure, context.Canceled)
	assert.Empty(t, failure.Residue)
	assert.Equal(t, []string{"do:a", "do:b", "undo:b", "undo:a"}, j.calls)
}

func TestExecuteAppliesStepTimeout(t *testing.T) {
	failure := newRunner(WithStepTimeout(20*time.Millisecond)).Execute(context.Background(), "test", []Step{
		{Name: "slow", Do: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	})
	require.NotNil(t, failure)
	assert.Equal(t, "slow", failure.Step)
	assert.ErrorIs(t, failure, context.DeadlineExceeded)
}

func TestExecuteRecoversPanics(t *testing.T) {
	j := &journal{}
	failure := newRunner().Execute(context.Background(), "test", []Step{
		j.step("a", nil, nil),
		{Name: "b", Do: func(context.Context) error { panic("nil map") }},
	})
	require.NotNil(t, failure)
	assert.Equal(t, "b", failure.Step)
	assert.Contains(t, failure.Error(), "panicked")
	assert.Equal(t, []string{"do:a", "undo:a"}, j.calls)
}
