package sweep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lastmile/pkg/requestcontext"
)

type fakeExpirer struct {
	calls   int
	expired int
	err     error
	actorID string
}

func (f *fakeExpirer) ExpireDue(ctx context.Context, batchSize int) (int, error) {
	f.calls++
	f.actorID = requestcontext.Actor(ctx).ID
	return f.expired, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnceAttributesSystemActor(t *testing.T) {
	expirer := &fakeExpirer{expired: 3}
	sweeper := NewSweeper(expirer, nil, WithLogger(discardLogger()))

	sweeper.RunOnce(context.Background())

	require.Equal(t, 1, expirer.calls)
	assert.Equal(t, requestcontext.SystemActor.ID, expirer.actorID)
}

func TestRunOnceSurvivesServiceError(t *testing.T) {
	expirer := &fakeExpirer{err: errors.New("db down")}
	sweeper := NewSweeper(expirer, nil, WithLogger(discardLogger()))

	// Must not panic; the next tick retries.
	sweeper.RunOnce(context.Background())
	sweeper.RunOnce(context.Background())

	assert.Equal(t, 2, expirer.calls)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sweeper := NewSweeper(&fakeExpirer{}, nil, WithLogger(discardLogger()))
	err := sweeper.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
