package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/insectcam/internal/actor"
	"github.com/alfredjeanlab/insectcam/internal/archive"
	"github.com/alfredjeanlab/insectcam/internal/camera"
	"github.com/alfredjeanlab/insectcam/internal/config"
	"github.com/alfredjeanlab/insectcam/internal/detection"
	"github.com/alfredjeanlab/insectcam/internal/envelope"
	"github.com/alfredjeanlab/insectcam/internal/events"
	"github.com/alfredjeanlab/insectcam/internal/gateway"
	"github.com/alfredjeanlab/insectcam/internal/health"
	"github.com/alfredjeanlab/insectcam/internal/sessions"
	"github.com/alfredjeanlab/insectcam/internal/state"
	"github.com/alfredjeanlab/insectcam/internal/store"
	"github.com/alfredjeanlab/insectcam/internal/store/postgres"
	"github.com/alfredjeanlab/insectcam/internal/store/sqlite"
	"github.com/alfredjeanlab/insectcam/internal/streams"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the appliance control plane",
	GroupID: "system",
	// Override PersistentPreRunE so we don't dial a gateway.
	PersistentPreRunE: offline,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

// openStore picks the backend from the URL scheme: sqlite://path (or a bare
// path) for the embedded store, postgres:// for a networked one.
func openStore(url string) (store.Store, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return postgres.New(url)
	case strings.HasPrefix(url, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(url, "sqlite://"))
	case strings.Contains(url, "://"):
		return nil, fmt.Errorf("unsupported database URL %q (want sqlite:// or postgres://)", url)
	default:
		return sqlite.Open(url)
	}
}

// buses holds the root endpoints of the two fan-out buses and the frame
// queue. The root senders keep the buses open across actor restarts.
type buses struct {
	commands *streams.Sender[envelope.Envelope]
	events   *streams.Sender[envelope.Envelope]
	frames   *streams.Queue[camera.Frame]
}

func newBuses(cfg *config.Config) *buses {
	cmdTx, cmdRx := streams.NewBroadcast[envelope.Envelope](cfg.BusCapacity)
	evTx, evRx := streams.NewBroadcast[envelope.Envelope](cfg.BusCapacity)
	// Every actor subscribes for itself; nothing reads the first receivers.
	cmdRx.Close()
	evRx.Close()
	return &buses{
		commands: cmdTx,
		events:   evTx,
		frames:   streams.NewQueue[camera.Frame](cfg.FrameQueue),
	}
}

func (b *buses) Close() {
	b.commands.Close()
	b.events.Close()
	b.frames.Close()
}

// newSupervisor registers every actor. Each factory mints fresh bus
// endpoints, so a restarted actor starts from a clean cursor.
func newSupervisor(cfg *config.Config, st store.Store, b *buses, pub events.Publisher, dests []archive.Destination, logger *slog.Logger) (*actor.Supervisor, error) {
	policy, err := actor.ParsePolicy(cfg.RestartPolicy)
	if err != nil {
		return nil, fmt.Errorf("ICAM_RESTART_POLICY: %w", err)
	}
	sup := actor.NewSupervisor(policy, cfg.RestartBackoff, logger)

	sup.Add("sessions", func() (actor.Actor, error) {
		return sessions.New(st, b.commands.Subscribe(), b.events.Clone(),
			sessions.WithLogger(logger.With("actor", "sessions"))), nil
	})
	sup.Add("state", func() (actor.Actor, error) {
		return state.New(b.commands.Subscribe(), b.commands.Clone(), b.events.Clone(),
			logger.With("actor", "state")), nil
	})
	sup.Add("camera", func() (actor.Actor, error) {
		src := camera.NewSyntheticSource(cfg.CameraInterval)
		return camera.New(src, b.frames, b.commands.Subscribe(), b.events.Clone(),
			logger.With("actor", "camera")), nil
	})
	sup.Add("detection", func() (actor.Actor, error) {
		var d detection.Detector = detection.NopDetector{}
		if cfg.Detector == "motion" {
			d = detection.NewMotionDetector(cfg.MotionThreshold)
		}
		return detection.New(st, b.frames, b.events.Clone(), d,
			detection.WithLogger(logger.With("actor", "detection"))), nil
	})
	sup.Add("gateway", func() (actor.Actor, error) {
		return gateway.New(cfg.WSAddr, b.commands.Clone(), b.events.Subscribe(),
			gateway.WithLogger(logger.With("actor", "gateway")),
			gateway.WithHandoffCapacity(cfg.HandoffCapacity)), nil
	})
	if pub != nil {
		sup.Add("mirror", func() (actor.Actor, error) {
			return events.NewMirror(b.events.Subscribe(), pub, cfg.NATSPrefix, logger.With("actor", "mirror")), nil
		})
	}
	if len(dests) > 0 {
		sup.Add("archive", func() (actor.Actor, error) {
			return archive.NewArchiver(st, b.events.Subscribe(), dests, logger.With("actor", "archive")), nil
		})
	}
	return sup, nil
}

func archiveDestinations(ctx context.Context, cfg *config.Config, logger *slog.Logger) []archive.Destination {
	var dests []archive.Destination
	if cfg.ArchiveS3Bucket != "" {
		s3Dest, err := archive.NewS3Destination(ctx, cfg.ArchiveS3Bucket, cfg.ArchiveS3Prefix, cfg.ArchiveS3Region, cfg.ArchiveS3Endpoint)
		if err != nil {
			logger.Error("failed to create S3 archive destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("S3 archive enabled", "bucket", cfg.ArchiveS3Bucket, "prefix", cfg.ArchiveS3Prefix)
		}
	}
	if cfg.ArchiveDir != "" {
		dests = append(dests, archive.NewDirDestination(cfg.ArchiveDir))
		logger.Info("local archive enabled", "dir", cfg.ArchiveDir)
	}
	return dests
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := openStore(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}
	}()

	var pub events.Publisher
	if cfg.NATSURL != "" {
		p, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return err
		}
		pub = p
		defer pub.Close()
		logger.Info("event mirror enabled", "nats_url", cfg.NATSURL, "prefix", cfg.NATSPrefix)
	} else {
		logger.Info("event mirror disabled (ICAM_NATS_URL not set)")
	}

	b := newBuses(cfg)
	defer b.Close()

	sup, err := newSupervisor(cfg, st, b, pub, archiveDestinations(ctx, cfg, logger), logger)
	if err != nil {
		return err
	}

	if cfg.HealthAddr != "" {
		hs := health.NewService(sup.Names()...)
		sup.OnStart = func(name string) { hs.SetActor(name, true) }
		sup.OnExit = func(e actor.Exit) { hs.SetActor(e.Name, false) }

		lis, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			return err
		}
		grpcServer := health.NewGRPCServer(hs, logger.With("component", "health"))
		go func() {
			logger.Info("health server listening", "addr", cfg.HealthAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("health server error", "err", err)
			}
		}()
		defer func() {
			hs.Shutdown()
			grpcServer.GracefulStop()
			logger.Info("health server stopped")
		}()
	}

	logger.Info("insectcam started", "ws_addr", cfg.WSAddr, "actors", sup.Names(), "policy", cfg.RestartPolicy)
	err = sup.Run(ctx)
	if err != nil {
		logger.Error("supervisor stopped", "err", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
