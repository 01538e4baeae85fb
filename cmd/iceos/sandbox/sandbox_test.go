package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

func TestGuard_Limits(t *testing.T) {
	g := NewGuard(sdk.ResourceLimits{Timeout: 5 * time.Second, MemoryBytes: 1 << 20}, nil)

	limits := g.Limits(0)
	assert.Equal(t, 5*time.Second, limits.Timeout)
	assert.Equal(t, int64(1<<20), limits.MemoryBytes)

	limits = g.Limits(250)
	assert.Equal(t, 250*time.Millisecond, limits.Timeout)
	assert.Equal(t, int64(1<<20), limits.MemoryBytes, "node timeout does not disturb other defaults")
}

func TestGuard_RunPassesThrough(t *testing.T) {
	g := NewGuard(sdk.ResourceLimits{}, nil)
	result, err := g.Run(context.Background(), sdk.ResourceLimits{Timeout: time.Second}, func(ctx context.Context) (*sdk.NodeExecutionResult, error) {
		return &sdk.NodeExecutionResult{Success: true, Output: map[string]interface{}{"ok": true}}, nil
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestGuard_WallClockTimeout(t *testing.T) {
	g := NewGuard(sdk.ResourceLimits{}, nil)
	_, err := g.Run(context.Background(), sdk.ResourceLimits{Timeout: 20 * time.Millisecond}, func(ctx context.Context) (*sdk.NodeExecutionResult, error) {
		select {
		case <-time.After(5 * time.Second):
			return &sdk.NodeExecutionResult{Success: true}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	require.Error(t, err)
	assert.Equal(t, sdk.ErrTimeout, sdk.KindOf(err))
}

func TestGuard_CallerCancellation(t *testing.T) {
	g := NewGuard(sdk.ResourceLimits{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := g.Run(ctx, sdk.ResourceLimits{Timeout: time.Minute}, func(ctx context.Context) (*sdk.NodeExecutionResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.Error(t, err)
	assert.Equal(t, sdk.ErrCanceled, sdk.KindOf(err))
}

func TestGuard_PanicBecomesInternalError(t *testing.T) {
	g := NewGuard(sdk.ResourceLimits{}, nil)
	_, err := g.Run(context.Background(), sdk.ResourceLimits{}, func(ctx context.Context) (*sdk.NodeExecutionResult, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.Equal(t, sdk.ErrInternal, sdk.KindOf(err))
	assert.Contains(t, err.Error(), "panic")
}

func TestDevRunner_JSONLiterals(t *testing.T) {
	r := NewDevRunner("python-wasm")
	assert.Equal(t, "python-wasm", r.Language())

	cases := []struct {
		code string
		want interface{}
	}{
		{`result = {"total": 42}`, map[string]interface{}{"total": float64(42)}},
		{`result = [1, 2, 3]`, []interface{}{float64(1), float64(2), float64(3)}},
		{`result = "done"`, "done"},
		{`result = 'single'`, "single"},
		{`result = True`, true},
		{`result = False`, false},
		{`result = None`, nil},
		{"x = 1\nresult = 7", float64(7)},
	}
	for _, tc := range cases {
		got, err := r.Run(context.Background(), tc.code, nil, nil, sdk.ResourceLimits{})
		require.NoError(t, err, tc.code)
		assert.Equal(t, tc.want, got, tc.code)
	}
}

func TestDevRunner_CtxReferences(t *testing.T) {
	r := NewDevRunner("python-wasm")
	input := map[string]interface{}{"count": float64(5)}

	for _, code := range []string{
		`result = ctx["count"]`,
		`result = ctx['count']`,
		`result = ctx.count`,
	} {
		got, err := r.Run(context.Background(), code, nil, input, sdk.ResourceLimits{})
		require.NoError(t, err, code)
		assert.Equal(t, float64(5), got, code)
	}
}

func TestDevRunner_RejectsArbitraryCode(t *testing.T) {
	r := NewDevRunner("python-wasm")

	_, err := r.Run(context.Background(), "print('hi')", nil, nil, sdk.ResourceLimits{})
	require.Error(t, err)
	assert.Equal(t, sdk.ErrValidation, sdk.KindOf(err))

	_, err = r.Run(context.Background(), "result = compute(x)", nil, nil, sdk.ResourceLimits{})
	require.Error(t, err)
	assert.Equal(t, sdk.ErrValidation, sdk.KindOf(err))
}

func TestDevRunner_LastAssignmentWins(t *testing.T) {
	r := NewDevRunner("python-wasm")
	got, err := r.Run(context.Background(), "result = 1\nresult = 2", nil, nil, sdk.ResourceLimits{})
	require.NoError(t, err)
	assert.Equal(t, float64(2), got)
}

func TestDevRunner_CanceledContext(t *testing.T) {
	r := NewDevRunner("python-wasm")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, "result = 1", nil, nil, sdk.ResourceLimits{})
	require.Error(t, err)
	assert.Equal(t, sdk.ErrCanceled, sdk.KindOf(err))
}
