package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/habedi/gigsync/cmd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// interruptGrace is how long commands get to wind down after Ctrl-C before the process exits.
const interruptGrace = time.Second

func main() {
	configureLogging(os.Getenv("DEBUG_GIGSYNC"), os.Stderr)

	ctx, stop := interruptContext(context.Background(), interruptGrace, os.Exit)
	defer stop()

	cmd.Execute(ctx)
}

// configureLogging turns on debug output to w unless debug is empty, "0" or "false".
func configureLogging(debug string, w io.Writer) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(debug)) {
	case "", "0", "false":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, NoColor: true})
	}
	return zerolog.GlobalLevel()
}

// interruptContext is cancelled by the first Ctrl-C so running commands can close their
// connections and keep the stored session intact. A command still running after grace, or a
// second Ctrl-C, ends the process with exit code 130.
func interruptContext(parent context.Context, grace time.Duration, exit func(int)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
		case <-ctx.Done():
			return
		}

		log.Warn().Dur("grace", grace).Msg("Interrupt received, stopping.")
		cancel()
		select {
		case <-sigs:
		case <-time.After(grace):
		}
		exit(130)
	}()
	return ctx, cancel
}
