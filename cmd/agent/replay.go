package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/presence"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/hrisclient"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/realtime"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/track"
	presenceService "github.com/cmlabs-hris/hris-presence-go/internal/service/presence"
)

var (
	trackFile   string
	replaySpeed float64
	settleFor   time.Duration
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded track through the presence engine",
	Long:  "Feeds JSON-lines samples ({lat, lng, accuracy, heading?, at}) to the engine as if they came from the location sensor, printing every clock change.",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(trackFile)
		if err != nil {
			return fmt.Errorf("open track: %w", err)
		}
		points, err := track.Read(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("read track %s: %w", trackFile, err)
		}

		creds, err := credentialStore().Load()
		if err != nil {
			return err
		}
		return runReplay(cmd.Context(), cmd.OutOrStdout(), creds.Token, creds.UserID, points)
	},
}

func init() {
	replayCmd.Flags().StringVar(&trackFile, "track", "", "JSON-lines track file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1, "playback speed multiplier; 0 replays without pauses")
	replayCmd.Flags().DurationVar(&settleFor, "settle", 3*time.Second, "how long to wait for outstanding confirmations before closing")
	_ = replayCmd.MarkFlagRequired("track")

	rootCmd.AddCommand(replayCmd)
}

func runReplay(ctx context.Context, out io.Writer, token, userID string, points []track.Point) error {
	client := hrisclient.NewClient(cfg.Agent.ServerURL, token)

	origin, err := client.Origin(ctx)
	if err != nil {
		if !errors.Is(err, hrisclient.ErrNotFound) {
			return fmt.Errorf("fetch origin: %w", err)
		}
		slog.Warn("No origin configured, waiting for origin-updated")
		origin = nil
	}

	channel := realtime.NewClient(realtime.ClientConfig{
		URL:                  cfg.RealtimeURL(),
		Token:                token,
		MaxReconnectAttempts: cfg.Presence.MaxReconnectAttempts,
		ReconnectDelay:       cfg.Presence.ReconnectDelay,
	})

	source := track.NewSource(points, replaySpeed)
	engine := presenceService.NewEngine(source, nil, channel, presenceService.EngineConfig{
		UserID:         userID,
		ConfirmSamples: cfg.Presence.ConfirmSamples,
		TickInterval:   cfg.Presence.TickInterval,
		Sampler: presenceService.SamplerConfig{
			ThrottleInterval:  cfg.Presence.ThrottleInterval,
			AccuracyThreshold: cfg.Presence.AccuracyThreshold,
			Watch:             presence.DefaultWatchOptions(),
		},
	})
	engine.SetOrigin(origin)

	today, err := client.Today(ctx)
	switch {
	case errors.Is(err, hrisclient.ErrNotFound):
	case err != nil:
		return fmt.Errorf("fetch today's attendance: %w", err)
	default:
		if err := engine.Restore(today); err != nil {
			slog.Warn("Ignoring today's attendance", "error", err)
		}
	}

	engine.OnChange(changePrinter(out))

	if err := engine.Start(ctx); err != nil {
		_ = engine.Close()
		return fmt.Errorf("start engine: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return source.Play(gctx)
	})
	err = g.Wait()

	waitSettled(ctx, engine, settleFor)
	if cerr := engine.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// changePrinter writes a line whenever the presented clock or zone changes.
func changePrinter(out io.Writer) func(presenceService.Status) {
	var (
		mu   sync.Mutex
		last *presenceService.Status
	)
	return func(s presenceService.Status) {
		mu.Lock()
		defer mu.Unlock()
		if last != nil &&
			last.State.Membership == s.State.Membership &&
			last.Clock.Status == s.Clock.Status &&
			last.Clock.PendingIntent == s.Clock.PendingIntent &&
			last.Clock.Source == s.Clock.Source &&
			last.Connection == s.Connection {
			return
		}
		last = &s

		distance := "-"
		if s.Snapshot != nil && s.Snapshot.OriginKnown {
			distance = fmt.Sprintf("%.1fm", s.Snapshot.DistanceMeters)
		}
		fmt.Fprintf(out, "%s zone=%s distance=%s clock=%s pending=%s source=%s worked=%ds channel=%s\n",
			time.Now().Format(time.TimeOnly),
			s.State.Membership, distance, s.Clock.Status, s.Clock.PendingIntent,
			s.Clock.Source, s.Clock.WorkedSeconds, s.Connection)
	}
}

func waitSettled(ctx context.Context, engine *presenceService.Engine, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for engine.Status().Outstanding > 0 {
		select {
		case <-ticker.C:
		case <-deadline.C:
			slog.Warn("Closing with unconfirmed intents", "outstanding", engine.Status().Outstanding)
			return
		case <-ctx.Done():
			return
		}
	}
}
