package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterruptContextReleasesSignals(t *testing.T) {
	//Keeps process alive if SIGUSR1 arrives while nothing else listens
	observer := make(chan os.Signal, 2)
	signal.Notify(observer, syscall.SIGUSR1)
	defer signal.Stop(observer)

	ctx, stop := interruptContext(context.Background(), syscall.SIGUSR1)
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("signal did not cancel context")
	}
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	<-observer

	//Context handler is released after first signal, others keep receiving
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	select {
	case <-observer:
	case <-time.After(2 * time.Second):
		t.Fatal("second signal not delivered")
	}
}

func TestInterruptContextFollowsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := interruptContext(parent, syscall.SIGUSR1)
	defer stop()

	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("parent cancel not propagated")
	}
}
