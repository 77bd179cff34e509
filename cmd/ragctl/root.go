package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/WessleyAI/wessley-rag/engine/generate"
	"github.com/WessleyAI/wessley-rag/engine/rag"
	"github.com/WessleyAI/wessley-rag/engine/semantic"
	"github.com/WessleyAI/wessley-rag/pkg/config"
	"github.com/WessleyAI/wessley-rag/pkg/resilience"
)

// depsFunc builds the clients a session runs on. The returned func
// releases them.
type depsFunc func(s config.Settings, logger *slog.Logger) (rag.SessionDeps, func(), error)

// app is the state shared by all subcommands.
type app struct {
	cfgFile  string
	verbose  bool
	settings config.Settings
	logger   *slog.Logger
	newDeps  depsFunc

	// flag overrides of rag.* settings
	model      string
	embedModel string
	k          int
	chunkSize  int
	overlap    int
	collection string
	qdrantAddr string
}

func newApp() *app {
	return &app{newDeps: openAIDeps}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "ragctl",
		Short: "Ask questions about your documents",
		Long: `ragctl indexes PDF and text files into a vector collection and answers
questions from the retrieved passages.

Example usage:
  ragctl ask --file notes.pdf --file todo.txt "what is due on friday?"
  ragctl chat --file handbook.pdf
  ragctl config`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "YAML settings file")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log pipeline progress")
	pf.StringVar(&a.model, "model", "", "chat model")
	pf.StringVar(&a.embedModel, "embedding-model", "", "embedding model")
	pf.IntVarP(&a.k, "top-k", "k", 0, "number of passages to retrieve")
	pf.IntVar(&a.chunkSize, "chunk-size", 0, "chunk size in characters")
	pf.IntVar(&a.overlap, "overlap", 0, "chunk overlap in characters")
	pf.StringVar(&a.collection, "collection", "", "collection name")
	pf.StringVar(&a.qdrantAddr, "qdrant", "", "Qdrant gRPC address (default: in-memory store)")

	root.AddCommand(newAskCmd(a), newChatCmd(a), newConfigCmd(a))
	return root
}

// load reads settings and applies the flags that were set.
func (a *app) load(cmd *cobra.Command) error {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelInfo
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	s, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if f.Changed("model") {
		s.RAG.ModelName = a.model
	}
	if f.Changed("embedding-model") {
		s.RAG.EmbeddingModel = a.embedModel
	}
	if f.Changed("top-k") {
		s.RAG.K = a.k
	}
	if f.Changed("chunk-size") {
		s.RAG.ChunkSize = a.chunkSize
	}
	if f.Changed("overlap") {
		s.RAG.Overlap = a.overlap
	}
	if f.Changed("collection") {
		s.RAG.CollectionName = a.collection
	}
	if f.Changed("qdrant") {
		s.Qdrant.Addr = a.qdrantAddr
	}
	a.settings = s
	return nil
}

// session validates the settings and opens a session over fresh clients.
func (a *app) session() (*rag.Session, func(), error) {
	if err := a.settings.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	deps, release, err := a.newDeps(a.settings, a.logger)
	if err != nil {
		return nil, nil, err
	}
	sess, err := rag.NewSession(a.settings.RAG, deps)
	if err != nil {
		release()
		return nil, nil, err
	}
	return sess, func() {
		_ = sess.Close()
		release()
	}, nil
}

func openAIDeps(s config.Settings, logger *slog.Logger) (rag.SessionDeps, func(), error) {
	if s.OpenAI.APIKey == "" {
		return rag.SessionDeps{}, nil, fmt.Errorf("no API key: set OPENAI_API_KEY or %s_OPENAI_API_KEY", config.EnvPrefix)
	}
	oc := openai.DefaultConfig(s.OpenAI.APIKey)
	if s.OpenAI.BaseURL != "" {
		oc.BaseURL = s.OpenAI.BaseURL
	}
	oc.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	api := openai.NewClientWithConfig(oc)

	var (
		store   semantic.Store = semantic.NewMemory()
		release                = func() {}
	)
	if s.Qdrant.Addr != "" {
		vs, err := semantic.New(s.Qdrant.Addr)
		if err != nil {
			return rag.SessionDeps{}, nil, fmt.Errorf("qdrant connect: %w", err)
		}
		store, release = vs, func() { _ = vs.Close() }
	}

	breakerOpts := resilience.BreakerOpts{
		FailThreshold: s.Limits.BreakerFailures,
		Timeout:       s.Limits.BreakerTimeout,
	}
	return rag.SessionDeps{
		Embeddings:   api,
		Chat:         generate.NewOpenAI(api),
		Store:        store,
		Logger:       logger,
		EmbedBreaker: resilience.NewBreaker(breakerOpts),
		ChatBreaker:  resilience.NewBreaker(breakerOpts),
		Limiter:      resilience.NewLimiter(resilience.LimiterOpts{Rate: s.Limits.RPS, Burst: s.Limits.Burst}),
	}, release, nil
}

// stderrIsTerminal reports whether progress output goes to a terminal.
func stderrIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	st, err := f.Stat()
	return err == nil && st.Mode()&os.ModeCharDevice != 0
}
