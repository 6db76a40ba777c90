package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type countingCleanup struct {
	n int
}

func (c *countingCleanup) Cleanup() {
	c.n++
}

func TestBaseBackgroundService(t *testing.T) {
	require := require.New(t)

	svc := *NewBaseBackgroundService("test")
	require.Equal("test", svc.Name())
	require.NoError(svc.Start(), "Start")

	select {
	case <-svc.Quit():
		t.Fatalf("quit channel closed before Stop")
	default:
	}

	svc.Stop()
	require.NotPanics(svc.Stop, "second Stop should be a no-op")

	select {
	case <-svc.Quit():
	default:
		t.Fatalf("quit channel not closed after Stop")
	}
}

func TestCleanupOnlyService(t *testing.T) {
	require := require.New(t)

	var c countingCleanup
	svc := NewCleanupOnlyService(&c, "cleanup")
	require.Equal("cleanup", svc.Name())

	select {
	case <-svc.Quit():
	default:
		t.Fatalf("cleanup only service should be terminated")
	}
	require.NotPanics(svc.Stop, "Stop")

	svc.Cleanup()
	require.Equal(1, c.n, "Cleanup should reach the wrapped service")
}
