package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"watchrag/internal/alert"
	"watchrag/internal/audit"
	"watchrag/internal/calibration"
	"watchrag/internal/config"
	"watchrag/internal/domain"
	"watchrag/internal/embedding/hashing"
	"watchrag/internal/embedding/minilm"
	"watchrag/internal/embedding/openai"
	"watchrag/internal/generator"
	"watchrag/internal/logging"
	"watchrag/internal/service"
	"watchrag/internal/vectorstore"
	"watchrag/internal/vectorstore/memory"
	"watchrag/internal/vectorstore/pgvector"
	"watchrag/internal/vectorstore/qdrant"
	"watchrag/internal/vectorstore/sqlite"
)

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "watchrag",
	Short:         "Catalogue-grounded assistant for a watch shop",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML or TOML config file (optional; uses ~/.config/watchrag/config.yaml if not provided)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Fatalf("watchrag: %v", err)
	}
}

// app holds the components built from config for one command run.
type app struct {
	cfg        *config.AppConfig
	log        *slog.Logger
	store      *audit.Store
	embedder   domain.Embedder
	index      *vectorstore.Index
	dispatcher *alert.Dispatcher
	svc        *service.RAGService
}

func loadConfig() (*config.AppConfig, *slog.Logger, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	level := logging.ParseLevel(cfg.Log.Level)
	if verbose {
		level = slog.LevelDebug
	}
	return cfg, logging.New(level, os.Stderr), nil
}

// openStore builds only the audit store, for the inspection commands.
func openStore() (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		return nil, fmt.Errorf("audit store init failed: %w", err)
	}
	return &app{cfg: cfg, log: logger, store: store}, nil
}

// newApp assembles the pipeline. The generator and alert delivery are only
// built when withAnswers is set, so ingestion runs without an LLM key.
func newApp(ctx context.Context, withAnswers bool) (*app, error) {
	a, err := openStore()
	if err != nil {
		return nil, err
	}
	cfg := a.cfg

	emb, err := buildEmbedder(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	st, err := buildStorage(ctx, cfg)
	if err != nil {
		if c, ok := emb.(io.Closer); ok {
			c.Close()
		}
		a.Close()
		return nil, err
	}
	a.embedder = emb
	a.index = vectorstore.NewIndex(emb, st, cfg.VectorStore.MaxRetries)

	deps := service.Dependencies{
		Index:      a.index,
		Calibrator: calibration.New(cfg.Retrieval.ScaleFactor),
		Detector:   alert.NewDetector(cfg.Alert.Threshold, cfg.Alert.Phrases),
		Store:      a.store,
		Log:        a.log,
	}
	if withAnswers {
		gen, err := generator.New(generator.Config{
			BaseURL:           cfg.Generator.BaseURL,
			APIKeyEnv:         cfg.Generator.APIKeyEnv,
			Model:             cfg.Generator.Model,
			Persona:           cfg.Generator.Persona,
			Template:          cfg.Generator.Template,
			Timeout:           time.Duration(cfg.Generator.TimeoutSecs) * time.Second,
			MaxRetries:        cfg.Generator.MaxRetries,
			RequestsPerSecond: cfg.Generator.RequestsPerSecond,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("generator init failed: %w", err)
		}
		notifier, err := buildNotifier(cfg, a.log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.dispatcher = alert.NewDispatcher(notifier, cfg.Alert.QueueSize, a.log)
		deps.Generator = gen
		deps.Alerts = a.dispatcher
	}

	a.svc = service.NewRAGService(deps, service.Options{
		TopK:          cfg.Retrieval.TopK,
		BatchSize:     cfg.Ingest.BatchSize,
		AnswerTimeout: cfg.AnswerTimeout(),
		Fallback:      cfg.Answer.Fallback,
	})
	return a, nil
}

// Close drains pending alerts and releases storage.
func (a *app) Close() {
	if a.dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := a.dispatcher.Close(ctx); err != nil {
			a.log.Warn("Pending alerts not delivered", slog.Any("error", err))
		}
		cancel()
	}
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			a.log.Warn("Failed to close vector store", slog.Any("error", err))
		}
	}
	if c, ok := a.embedder.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.log.Warn("Failed to close embedder", slog.Any("error", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("Failed to close audit store", slog.Any("error", err))
		}
	}
}

func buildEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "hashing", "":
		dim := hashing.DefaultDimension
		if cfg.Embedder.Hashing != nil {
			dim = cfg.Embedder.Hashing.Dimension
		}
		return hashing.NewEmbedder(dim), nil
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		c := cfg.Embedder.OpenAI
		client, err := openai.NewClient(openai.Config{
			BaseURL:           c.BaseURL,
			APIKeyEnv:         c.APIKeyEnv,
			Model:             c.Model,
			Timeout:           time.Duration(c.TimeoutSecs) * time.Second,
			BatchSize:         c.BatchSize,
			Concurrency:       c.Concurrency,
			MaxRetries:        cfg.VectorStore.MaxRetries,
			RequestsPerSecond: c.RequestsPerSecond,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	case "minilm":
		var mc minilm.Config
		if cfg.Embedder.MiniLM != nil {
			mc = minilm.Config{Model: cfg.Embedder.MiniLM.Model, ModelDir: cfg.Embedder.MiniLM.ModelDir}
		}
		emb, err := minilm.New(mc)
		if err != nil {
			return nil, fmt.Errorf("minilm embedder init failed: %w", err)
		}
		return emb, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func buildStorage(ctx context.Context, cfg *config.AppConfig) (vectorstore.Storage, error) {
	switch cfg.VectorStore.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "sqlite", "":
		st, err := sqlite.Open(cfg.VectorStore.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite vector store init failed: %w", err)
		}
		return st, nil
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		q := cfg.VectorStore.Qdrant
		return qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     os.Getenv(q.APIKeyEnv),
			Collection: q.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		}), nil
	case "pgvector":
		if cfg.VectorStore.PGVector == nil {
			return nil, fmt.Errorf("pgvector config missing")
		}
		p := cfg.VectorStore.PGVector
		st, err := pgvector.Open(ctx, pgvector.Config{DSN: os.Getenv(p.DSNEnv), Table: p.Table})
		if err != nil {
			return nil, fmt.Errorf("pgvector init failed: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

func buildNotifier(cfg *config.AppConfig, logger *slog.Logger) (domain.Notifier, error) {
	switch cfg.Alert.Notifier {
	case "log", "":
		return alert.LogNotifier{Log: logger}, nil
	case "smtp":
		s := cfg.Alert.SMTP
		n, err := alert.NewSMTPNotifier(alert.SMTPConfig{
			Host:         s.Host,
			Port:         s.Port,
			Username:     s.Username,
			PasswordEnv:  s.PasswordEnv,
			From:         s.From,
			RecipientEnv: s.RecipientEnv,
		})
		if err != nil {
			return nil, fmt.Errorf("smtp notifier init failed: %w", err)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unknown alert notifier: %s", cfg.Alert.Notifier)
	}
}
