package main

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureLogging(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.Disabled) })

	for debug, want := range map[string]zerolog.Level{
		"":        zerolog.Disabled,
		"0":       zerolog.Disabled,
		" FALSE ": zerolog.Disabled,
		"1":       zerolog.DebugLevel,
		"yes":     zerolog.DebugLevel,
	} {
		assert.Equal(t, want, configureLogging(debug, &bytes.Buffer{}), "DEBUG_GIGSYNC=%q", debug)
	}
}

func TestConfigureLogging_WritesToGivenWriter(t *testing.T) {
	saved := log.Logger
	t.Cleanup(func() {
		log.Logger = saved
		zerolog.SetGlobalLevel(zerolog.Disabled)
	})

	var buf bytes.Buffer
	configureLogging("true", &buf)
	log.Debug().Str("room", "room-1").Msg("Chat connected")

	assert.Contains(t, buf.String(), "Chat connected")
	assert.Contains(t, buf.String(), "room=room-1")
}

func interruptSelf(t *testing.T) {
	t.Helper()
	self, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, self.Signal(os.Interrupt))
}

func TestInterruptContext_CancelsThenExitsAfterGrace(t *testing.T) {
	exited := make(chan int, 1)
	ctx, stop := interruptContext(context.Background(), 20*time.Millisecond, func(code int) { exited <- code })
	defer stop()

	interruptSelf(t)

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled by the interrupt")
	}
	select {
	case code := <-exited:
		assert.Equal(t, 130, code)
	case <-time.After(2 * time.Second):
		t.Fatal("process was not ended after the grace period")
	}
}

func TestInterruptContext_SecondInterruptSkipsGrace(t *testing.T) {
	exited := make(chan int, 1)
	ctx, stop := interruptContext(context.Background(), time.Hour, func(code int) { exited <- code })
	defer stop()

	interruptSelf(t)
	<-ctx.Done()
	interruptSelf(t)

	select {
	case code := <-exited:
		assert.Equal(t, 130, code)
	case <-time.After(2 * time.Second):
		t.Fatal("second interrupt did not end the process")
	}
}

func TestInterruptContext_NormalFinishDoesNotExit(t *testing.T) {
	exited := make(chan int, 1)
	ctx, stop := interruptContext(context.Background(), time.Millisecond, func(code int) { exited <- code })

	stop()
	assert.Error(t, ctx.Err())
	select {
	case code := <-exited:
		t.Fatalf("exit(%d) called without an interrupt", code)
	case <-time.After(50 * time.Millisecond):
	}
}
