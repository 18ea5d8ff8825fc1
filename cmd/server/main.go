// Command server starts the course-stream HTTP API and its gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/and161185/course-stream/internal/access"
	"github.com/and161185/course-stream/internal/clock"
	"github.com/and161185/course-stream/internal/config"
	"github.com/and161185/course-stream/internal/crypto"
	"github.com/and161185/course-stream/internal/limiter"
	"github.com/and161185/course-stream/internal/migrate"
	"github.com/and161185/course-stream/internal/replay"
	"github.com/and161185/course-stream/internal/repository/postgres"
	grpcserver "github.com/and161185/course-stream/internal/server/grpc"
	httpserver "github.com/and161185/course-stream/internal/server/http"
	"github.com/and161185/course-stream/internal/service"
	"github.com/and161185/course-stream/internal/token"
	"github.com/and161185/course-stream/internal/urlpolicy"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogDev)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.Migrate {
		if err := migrate.Up(ctx, cfg.DSN, logger); err != nil {
			return err
		}
	}

	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		return fmt.Errorf("pgxpool: %w", err)
	}
	defer db.Close()

	keys, err := crypto.DeriveKeys(cfg.AppSecret)
	if err != nil {
		return err
	}
	codec, err := crypto.NewCodec(keys.URL)
	if err != nil {
		return err
	}
	clk := clock.Real()
	signer := token.NewSigner(keys.Capability, token.DefaultIssuer, clk)

	// Repositories
	users := postgres.NewUserRepo(db)
	modules := postgres.NewModuleRepo(db)
	oracle := access.NewOracle(postgres.NewAccessRepo(db))

	guard, sweeper := newReplayGuard(cfg, db, clk)
	lim := limiter.NewPG(db.Pool, limiter.Options{
		Window:   cfg.Limiter.Window,
		MaxFails: cfg.Limiter.MaxFails,
		BlockFor: cfg.Limiter.BlockFor,
		Clock:    clk,
	})

	// Services
	validator := urlpolicy.New(urlpolicy.Policy{
		AllowedDomains: cfg.Videos.AllowedDomains,
		RequireHTTPS:   cfg.Videos.RequireHTTPS,
		Timeout:        cfg.Videos.HeadTimeout,
	}, nil, logger.Named("urlpolicy"))
	sessions := service.NewSessionService(users, keys.Session, cfg.SessionTTL, clk)
	videos := service.NewVideoService(modules, oracle, validator, codec, clk, logger.Named("videos"))
	tokens := service.NewTokenService(modules, oracle, codec, signer, service.TokenOptions{
		StreamTTL:       cfg.Videos.TokenTTL,
		DeepLinkTTL:     cfg.DeepLinks.TokenTTL,
		AppLink:         cfg.DeepLinks.AppLink,
		AndroidFallback: cfg.DeepLinks.FallbackURL,
		IOSFallback:     cfg.DeepLinks.IOSFallbackURL,
	}, logger.Named("tokens"))
	stream := service.NewStreamService(signer, codec, oracle, logger.Named("stream"))
	deepLinks := service.NewDeepLinkService(signer, guard, oracle, sessions, lim, clk, logger.Named("deeplink"))

	go replay.RunSweeper(ctx, sweeper, cfg.Replay.SweepInterval, logger.Named("replay"))

	api := httpserver.NewServer(&httpserver.Options{
		Address:        cfg.Addr,
		AllowedOrigins: cfg.CORSOrigins,
		Videos:         videos,
		Tokens:         tokens,
		Stream:         stream,
		DeepLinks:      deepLinks,
		Sessions:       sessions,
		Ping:           db.Ping,
		Log:            logger.Named("http"),
	})

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- api.Start()
	}()

	var hs *grpcserver.Health
	if cfg.Health.Addr != "" {
		hs, err = newHealth(cfg, db.Ping, logger.Named("health"))
		if err != nil {
			return err
		}
		lis, err := net.Listen("tcp", cfg.Health.Addr)
		if err != nil {
			return fmt.Errorf("listen health: %w", err)
		}
		go hs.Watch(ctx, 10*time.Second)
		go func() {
			logger.Info("health listening", zap.String("addr", cfg.Health.Addr), zap.Bool("tls", cfg.Health.TLSCert != ""))
			errCh <- hs.Serve(lis)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if hs != nil {
		hs.Stop(shutdownCtx)
	}
	if err := api.Stop(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return runErr
}

// newReplayGuard picks the replay backend. The memory store is only safe with a single instance.
func newReplayGuard(cfg config.Config, db *postgres.DB, clk clock.Clock) (replay.Guard, replay.Sweeper) {
	if cfg.Replay.Store == config.ReplayMemory {
		m := replay.NewMemory(clk)
		return m, m
	}
	pg := replay.NewPG(db.Pool, clk)
	return pg, pg
}

func newHealth(cfg config.Config, ping grpcserver.Pinger, logger *zap.Logger) (*grpcserver.Health, error) {
	var opts []grpc.ServerOption
	if cfg.Health.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.Health.TLSCert, cfg.Health.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("load TLS cert/key: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}
	hs := grpcserver.NewHealth(ping, logger, opts...)
	if cfg.Health.Dev {
		hs.EnableReflection()
	}
	return hs, nil
}
