package verify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xdao.co/memoproof/digest"
)

func TestSession_LastRequestWins(t *testing.T) {
	var s Session
	ctx := context.Background()

	started := make(chan struct{})
	first := s.Start(ctx, func(ctx context.Context) Outcome {
		close(started)
		<-ctx.Done()
		// A stale result the caller must never see.
		return Outcome{Status: StatusFound}
	})
	<-started

	d := digest.Sum([]byte("second"))
	second := s.Start(ctx, func(ctx context.Context) Outcome {
		return Outcome{Status: StatusNotFound, Digest: d}
	})
	require.NotEqual(t, first.ID, second.ID)
	require.Same(t, second, s.Current())

	_, err := first.Wait(ctx)
	require.ErrorIs(t, err, ErrSuperseded)
	require.True(t, first.Superseded())

	out, err := second.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusNotFound, out.Status)
	require.Equal(t, d, out.Digest)
}

func TestSession_SupersededPollStopsPromptly(t *testing.T) {
	l := newFakeLedger()
	e := New(l, nil)
	e.PollInterval = time.Hour
	var s Session
	ctx := context.Background()

	first := s.Start(ctx, func(ctx context.Context) Outcome {
		return e.Poll(ctx, digest.Sum([]byte("a")), sigN(1))
	})
	s.Start(ctx, func(ctx context.Context) Outcome { return Outcome{} })

	select {
	case <-first.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("superseded poll kept running")
	}
	_, err := first.Wait(ctx)
	require.ErrorIs(t, err, ErrSuperseded)
}

func TestTask_WaitHonorsContext(t *testing.T) {
	var s Session
	task := s.Start(context.Background(), func(ctx context.Context) Outcome {
		<-ctx.Done()
		return Outcome{}
	})
	defer task.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := task.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
