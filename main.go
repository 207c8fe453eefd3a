package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tubematch/internal/billing"
	"tubematch/internal/config"
	"tubematch/internal/db"
	httpapi "tubematch/internal/http"
	"tubematch/internal/identity"
	"tubematch/internal/lib/sl"
	"tubematch/internal/scoring"
	"tubematch/internal/services"
	"tubematch/internal/token"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "load .env failed: %v\n", err)
		}
	} else if !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "stat .env failed: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := setupLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", sl.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()
	if err := db.Migrate(pool); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}

	codec, err := token.NewCodec(cfg.ClaimSecret)
	if err != nil {
		return err
	}
	if !cfg.GoogleConfigured() {
		log.Warn("google sign-in is not configured")
	}
	google := identity.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL,
		identity.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
	stripe := billing.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret, nil)

	pipeline, closeCache, err := newPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()

	store := services.NewStore(pool)
	oracle := services.NewOracle(store, codec, cfg.CookieSecure)
	reconciler := services.NewReconciler(store, stripe, oracle, log)

	server := httpapi.NewServer(cfg, httpapi.Deps{
		Identity:   google,
		Oracle:     oracle,
		Reconciler: reconciler,
		Billing:    stripe,
		Analyzer:   pipeline,
		Codec:      codec,
		Log:        log,
	})
	httpServer := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", slog.String("addr", cfg.ServerAddr), slog.String("env", cfg.Env))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// newPipeline wires the video platform, transcript source and configured
// language model. Video metadata goes through Redis when REDIS_ADDR is set.
func newPipeline(ctx context.Context, cfg config.Config, log *slog.Logger) (*scoring.Pipeline, func(), error) {
	yt, err := scoring.NewYouTube(ctx, cfg.YouTubeAPIKey)
	if err != nil {
		return nil, nil, err
	}
	var videos scoring.VideoSource = yt
	closeCache := func() {}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, video cache disabled", sl.Err(err))
			_ = rdb.Close()
		} else {
			videos = scoring.NewCachedVideoSource(yt, rdb, cfg.VideoCacheTTL, log)
			closeCache = func() { _ = rdb.Close() }
		}
	}

	var scorer scoring.Scorer
	switch cfg.LLMProvider {
	case "gemini":
		scorer, err = scoring.NewGeminiScorer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		scorer, err = scoring.NewOpenAIScorer(cfg.OpenAIAPIKey, cfg.OpenAIModel, "")
	}
	if err != nil {
		return nil, nil, err
	}

	transcripts := scoring.NewTimedText(&http.Client{Timeout: cfg.HTTPTimeout})
	return scoring.NewPipeline(videos, transcripts, scorer, log), closeCache, nil
}

func setupLogger(cfg config.Config) *slog.Logger {
	if cfg.IsLocal() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
