package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgecomet/distill/internal/scrape/browser"
	"github.com/edgecomet/distill/internal/scrape/browser/browsertest"
)

func newTestHandle(t *testing.T) (*ProcessHandle, *IdleCache, *browsertest.Launcher) {
	t.Helper()
	launcher := browsertest.NewLauncher()
	cache := NewIdleCache(time.Minute, zap.NewNop())
	h, err := NewProcessHandle(context.Background(), launcher, cache, time.Second, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h, cache, launcher
}

func TestNewProcessHandle_LaunchFailure(t *testing.T) {
	launcher := browsertest.NewLauncher()
	launcher.FailNextLaunch(errors.New("chrome not found"))

	_, err := NewProcessHandle(context.Background(), launcher, NewIdleCache(time.Second, zap.NewNop()),
		time.Second, nil, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chrome not found")
}

func TestProcessHandle_CreateTab(t *testing.T) {
	h, _, launcher := newTestHandle(t)

	tab, gen, err := h.CreateTab(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tab)
	assert.Equal(t, uint64(1), gen)
	assert.Equal(t, 1, launcher.Launches())
	assert.Equal(t, "FakeChrome/1.0", h.Version())
}

func TestProcessHandle_ProcessLostTriggersSingleRestart(t *testing.T) {
	h, cache, launcher := newTestHandle(t)

	// An idle tab from the first process must be dropped by the restart
	cached, _, err := h.CreateTab(context.Background())
	require.NoError(t, err)
	cache.Offer("cached", cached, h.Generation())

	first := launcher.Current()
	first.Crash()

	tab, gen, err := h.CreateTab(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tab)

	assert.Equal(t, 2, launcher.Launches())
	assert.Equal(t, int64(1), h.Restarts())
	assert.Equal(t, uint64(2), gen)
	assert.Equal(t, 0, cache.Len())
	assert.True(t, cached.(*browsertest.Tab).Closed())
	assert.True(t, first.Closed())

	// The new tab belongs to the replacement process
	assert.Len(t, launcher.Current().Tabs(), 1)
	assert.NoError(t, tab.Ping(context.Background()))
}

func TestProcessHandle_NonProcessLostErrorPropagates(t *testing.T) {
	h, _, launcher := newTestHandle(t)
	launcher.Current().FailNextTab(errors.New("target quota exceeded"))

	_, _, err := h.CreateTab(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTabCreate)
	assert.Contains(t, err.Error(), "target quota exceeded")

	assert.Equal(t, 1, launcher.Launches())
	assert.Equal(t, int64(0), h.Restarts())
}

func TestProcessHandle_SecondFailureAfterRestartPropagates(t *testing.T) {
	h, _, launcher := newTestHandle(t)
	launcher.Current().Crash()

	launcher.OnLaunch(func(p *browsertest.Process) {
		p.FailNextTab(errors.New("connection closed"))
	})

	_, _, err := h.CreateTab(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTabCreate)
	assert.Equal(t, int64(1), h.Restarts(), "no second restart")
	assert.Equal(t, 2, launcher.Launches())
}

func TestProcessHandle_RestartFailure(t *testing.T) {
	h, _, launcher := newTestHandle(t)
	launcher.Current().Crash()
	launcher.FailNextLaunch(errors.New("out of memory"))

	_, _, err := h.CreateTab(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRestartFailed)
	assert.Equal(t, int64(0), h.Restarts())
	assert.Equal(t, uint64(1), h.Generation())
}

func TestProcessHandle_ConcurrentRestartsCoalesce(t *testing.T) {
	h, _, launcher := newTestHandle(t)
	gen := h.Generation()
	launcher.Current().Crash()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.Restart(context.Background(), gen)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 2, launcher.Launches())
	assert.Equal(t, int64(1), h.Restarts())
	assert.Equal(t, gen+1, h.Generation())
}

func TestProcessHandle_ConcurrentCreateDuringCrash(t *testing.T) {
	h, _, launcher := newTestHandle(t)
	launcher.Current().Crash()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tab, _, err := h.CreateTab(context.Background())
			if err == nil {
				_ = tab.Close()
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 2, launcher.Launches(), "callers that saw the same dead process share one restart")
}

func TestProcessHandle_Close(t *testing.T) {
	h, _, launcher := newTestHandle(t)
	require.NoError(t, h.Close())
	assert.True(t, launcher.Current().Closed())

	_, _, err := h.CreateTab(context.Background())
	assert.ErrorIs(t, err, ErrPoolShutdown)

	err = h.Restart(context.Background(), h.Generation())
	assert.ErrorIs(t, err, ErrPoolShutdown)

	assert.NoError(t, h.Close())
}

func TestProcessHandle_ClosedProcessErrorIsProcessLost(t *testing.T) {
	h, _, launcher := newTestHandle(t)
	launcher.Current().FailNextTab(browser.ErrProcessClosed)

	tab, _, err := h.CreateTab(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tab)
	assert.Equal(t, int64(1), h.Restarts())
}
