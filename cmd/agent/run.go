package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/johnwmail/clipsync/config"
	"github.com/johnwmail/clipsync/internal/capture"
	"github.com/johnwmail/clipsync/internal/identity"
	"github.com/johnwmail/clipsync/internal/services"
	"github.com/johnwmail/clipsync/models"
	"github.com/johnwmail/clipsync/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	defaults := config.DefaultConfig()

	fset := runCommand.Flags()
	fset.StringP("token", "t", "", "identity token issued by 'clipsync-agent token'")
	fset.StringP("user", "u", "", "user id to sync as when no token is used")
	fset.String("device", defaults.Device, "origin label written with every clip")
	fset.Int("history-limit", defaults.HistoryLimit, "number of live clips to follow")
	fset.Duration("capture-interval", defaults.CaptureInterval, "clipboard poll interval")
	fset.Bool("no-capture", false, "follow the live list without reading the local clipboard")

	Command.AddCommand(runCommand)
}

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Capture the clipboard and follow the live clip list",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := agentConfig()
		if err != nil {
			return err
		}
		ident, err := agentIdentity(cfg)
		if err != nil {
			return err
		}
		logger := slog.Default()

		store, err := storage.NewClipStore(cfg, logger)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close storage", "error", err)
			}
		}()

		svc := services.NewClipService(store, nil, services.Options{
			HistoryLimit: cfg.HistoryLimit,
			Logger:       logger,
		})
		session := services.NewSession(svc, ident, nil, services.SessionConfig{
			Origin:           models.NormalizeOrigin(cfg.Device),
			SweepCap:         cfg.ClientSweepCap,
			SweepInterval:    cfg.ClientSweepInterval,
			RefilterInterval: cfg.RefilterInterval,
		}, logger)
		if err := session.Start(); err != nil {
			session.Stop()
			return fmt.Errorf("start session: %w", err)
		}
		defer session.Stop()

		ctx := cmd.Context()
		if !viper.GetBool("no-capture") {
			reader, err := capture.DetectReader()
			if err != nil {
				return err
			}
			logger.Info("Capturing clipboard", "tool", reader.Tool(), "interval", cfg.CaptureInterval)
			loop := capture.NewLoop(reader, session, cfg.CaptureInterval, logger)
			go loop.Run(ctx)
		}

		logger.Info("clipsync agent running", "version", Command.Version, "device", cfg.Device)
		follow(ctx, session, logger)
		return nil
	},
}

// agentIdentity picks the identity provider: a token when given, else a fixed user id
func agentIdentity(cfg *config.Config) (identity.Provider, error) {
	if token := viper.GetString("token"); token != "" {
		if cfg.JWTSecret == "" {
			return nil, errors.New("--jwt-secret is required to verify --token")
		}
		return identity.NewToken(token, cfg.JWTSecret), nil
	}
	if user := viper.GetString("user"); user != "" {
		return identity.Static(user), nil
	}
	return nil, fmt.Errorf("%w: pass --token or --user", identity.ErrUnauthenticated)
}

// follow logs session output until ctx is done or the session closes
func follow(ctx context.Context, session *services.Session, logger *slog.Logger) {
	updates := session.Updates()
	events := session.Events()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down agent")
			return
		case clips, ok := <-updates:
			if !ok {
				return
			}
			logClips(logger, clips)
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case services.EventSubscriptionError:
				logger.Error("Live subscription failed", "error", ev.Err)
			case services.EventUploadProgress:
				logger.Debug("Upload progress", "uploading", ev.Uploading)
			default:
				logger.Info(ev.Message)
			}
		}
	}
}

func logClips(logger *slog.Logger, clips []models.Clip) {
	if len(clips) == 0 {
		logger.Info("No live clips")
		return
	}
	newest := clips[0]
	preview := newest.Text()
	if newest.Kind() == models.KindImage {
		preview = newest.ImageRef()
	}
	logger.Info("Live clips updated", "count", len(clips), "newest", truncate(preview, previewRunes), "from", newest.Origin)
}

const previewRunes = 60

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
