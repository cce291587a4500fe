package sandbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fame "github.com/fame-ai/orchestrator"
	"github.com/fame-ai/orchestrator/sandbox"
)

func TestLocalExecutorRefusesWhenIsolationRequired(t *testing.T) {
	exec := sandbox.NewLocalExecutor(nil)
	assert.False(t, exec.Available())

	_, err := exec.Run(context.Background(), "print('hi')", "python", sandbox.Limits{
		WallTimeout:      time.Second,
		RequireIsolation: true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fame.ErrSandboxUnavailable))
}

func TestLocalExecutorRejectsUnsupportedLanguage(t *testing.T) {
	exec := sandbox.NewLocalExecutor(nil)
	_, err := exec.Run(context.Background(), "1+1", "cobol", sandbox.Limits{WallTimeout: time.Second})
	require.Error(t, err)
}

func TestDefaultLimits(t *testing.T) {
	l := sandbox.DefaultLimits()
	assert.Equal(t, 30*time.Second, l.WallTimeout)
	assert.Equal(t, int64(512*1024*1024), l.MemoryCap)
	assert.Equal(t, 0.5, l.CPUShare)
	assert.False(t, l.NetworkOK)
}
