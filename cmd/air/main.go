// Command air is a demo ChannelRunner: it wires a synthetic pattern-generator
// producer through a FrameRingBuffer into a ProgramOutput, routing emitted
// frames to a log/stat-recording OutputSink. It exists to exercise the core
// end-to-end; it is not the real ChannelManager/traffic/schedule layer.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/retrovue/air/internal/channel"
	"github.com/retrovue/air/internal/clock"
	"github.com/retrovue/air/internal/output"
	"github.com/retrovue/air/internal/producer"
	"github.com/retrovue/air/internal/ring"
)

func main() {
	log := newLogger()

	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	channelName := envOr("AIR_CHANNEL_NAME", "demo")
	videoCap, _ := strconv.Atoi(envOr("AIR_VIDEO_LANE_CAPACITY", "0"))
	audioCap, _ := strconv.Atoi(envOr("AIR_AUDIO_LANE_CAPACITY", "0"))

	clk := clock.NewSystemClock()
	buf := ring.New(videoCap, audioCap)

	po := output.New(channelName, clk, log)
	po.SetInputBuffer(buf)
	po.SetOnSuccessorVideoEmitted(func() {
		log.Info("successor observer fired", "channel", channelName)
	})

	sink := newLoggingSink(log, channelName)
	po.SetOutputBus(sink)

	registry := channel.NewRegistry(log)
	if _, ok := registry.Create(channelName, po); !ok {
		return errAlreadyRegistered(channelName)
	}
	defer registry.Remove(channelName)

	gen := producer.New(buf, clk, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return po.Start()
	})

	g.Go(func() error {
		return gen.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		po.Stop()
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				stats := po.Stats()
				log.Info("stats",
					"channel", channelName,
					"real", stats.RealFramesEmitted,
					"freeze", stats.FreezeFramesEmitted,
					"pad", stats.PadFramesEmitted,
					"audio", stats.AudioFramesRouted,
					"late", stats.PacingLateEvents,
					"freeze_streak", stats.CurrentFreezeStreak,
				)
			}
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if envOr("AIR_DEBUG", "") != "" {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

// envOr returns the environment variable key's value, or fallback if unset
// or empty.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func errAlreadyRegistered(name string) error {
	return fmt.Errorf("air: channel %q already registered", name)
}
