// Package main implements the document Q&A API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/WessleyAI/wessley-rag/engine/generate"
	"github.com/WessleyAI/wessley-rag/engine/rag"
	"github.com/WessleyAI/wessley-rag/engine/semantic"
	"github.com/WessleyAI/wessley-rag/pkg/config"
	"github.com/WessleyAI/wessley-rag/pkg/metrics"
	"github.com/WessleyAI/wessley-rag/pkg/mid"
	"github.com/WessleyAI/wessley-rag/pkg/natsutil"
	"github.com/WessleyAI/wessley-rag/pkg/resilience"
)

const serviceName = "rag-api"

func main() {
	configPath := flag.String("config", "", "optional YAML settings file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	settings, err := config.Load(*configPath)
	if err == nil {
		err = settings.Validate()
	}
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(settings, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

// clients are the long-lived connections shared by every session.
type clients struct {
	deps   rag.SessionDeps
	events *natsutil.Events
	close  func()
}

func connect(s config.Settings, met *metrics.Metrics, logger *slog.Logger) (*clients, error) {
	if s.OpenAI.APIKey == "" {
		logger.Warn("no OpenAI API key configured, model calls will fail")
	}
	oc := openai.DefaultConfig(s.OpenAI.APIKey)
	if s.OpenAI.BaseURL != "" {
		oc.BaseURL = s.OpenAI.BaseURL
	}
	oc.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	api := openai.NewClientWithConfig(oc)

	var (
		store   semantic.Store
		closers []func()
	)
	if s.Qdrant.Addr != "" {
		vs, err := semantic.New(s.Qdrant.Addr)
		if err != nil {
			return nil, fmt.Errorf("qdrant connect: %w", err)
		}
		closers = append(closers, func() { _ = vs.Close() })
		store = vs
		logger.Info("using qdrant vector store", "addr", s.Qdrant.Addr)
	} else {
		store = semantic.NewMemory()
		logger.Info("using in-memory vector store")
	}

	events, err := natsutil.Connect(s.NATS.URL, logger)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, err
	}
	closers = append(closers, func() { _ = events.Close() })

	breaker := func(name string) *resilience.Breaker {
		return resilience.NewBreaker(resilience.BreakerOpts{
			FailThreshold: s.Limits.BreakerFailures,
			Timeout:       s.Limits.BreakerTimeout,
			OnStateChange: func(from, to resilience.State) {
				logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
				met.BreakerState(name, int(to))
			},
		})
	}

	return &clients{
		deps: rag.SessionDeps{
			Embeddings:   api,
			Chat:         generate.NewOpenAI(api),
			Store:        store,
			Logger:       logger,
			Metrics:      met,
			EmbedBreaker: breaker("embeddings"),
			ChatBreaker:  breaker("chat"),
			Limiter:      resilience.NewLimiter(resilience.LimiterOpts{Rate: s.Limits.RPS, Burst: s.Limits.Burst}),
			Observer: func(st rag.State) {
				logger.Debug("rag state", "state", st.String())
			},
		},
		events: events,
		close: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

func run(s config.Settings, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	met := metrics.New()
	c, err := connect(s, met, logger)
	if err != nil {
		return err
	}
	defer c.close()

	session, err := rag.NewSession(s.RAG, c.deps)
	if err != nil {
		return fmt.Errorf("new session: %w", err)
	}

	api := newServer(session, c.events, met, logger)
	handler := mid.Chain(api.routes(),
		mid.RequestID(),
		mid.Logger(logger),
		mid.Recover(logger),
		mid.CORS(s.Server.CORSOrigin),
		mid.MaxBody(s.Server.MaxUploadMB<<20),
		mid.OTel(serviceName),
	)

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(s.Server.Port),
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", s.Server.Port, "collection", s.RAG.CollectionName)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
