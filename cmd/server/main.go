package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/johncui/haiku/pkg/api"
	"github.com/johncui/haiku/pkg/haiku"
	"github.com/johncui/haiku/pkg/model"
	"github.com/johncui/haiku/pkg/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg := loadConfig()
	if err := cfg.validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, providerName, err := resolveProvider(ctx, cfg.Provider)
	if err != nil {
		log.Fatalf("failed to init provider: %v", err)
	}

	var sessions model.SessionStore
	if cfg.Mode == api.ModeMemory {
		sessions, err = store.Open(ctx, store.Options{
			Backend:     store.Backend(cfg.Store),
			DBPath:      cfg.DBPath,
			PostgresDSN: cfg.PostgresDSN,
			Capacity:    cfg.SessionCapacity,
			Logger:      logger,
		})
		if err != nil {
			log.Fatalf("failed to init session store: %v", err)
		}
		defer sessions.Close()
	}

	svc, err := haiku.New(haiku.Options{
		Provider:     provider,
		ProviderName: providerName,
		Store:        sessions,
		MemoryWindow: cfg.MemoryWindow,
		Timeout:      cfg.Provider.Timeout,
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("failed to init haiku service: %v", err)
	}

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: api.NewRouter(svc, api.Options{
			Mode:           cfg.Mode,
			DefaultSession: cfg.DefaultSession,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "err", err)
		}
	}()

	logger.Info("starting haiku server", "addr", cfg.ListenAddr, "mode", cfg.Mode, "provider", providerName, "store", cfg.Store)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

// ------------ config & helpers ------------

type config struct {
	ListenAddr      string
	Mode            api.Mode
	Provider        providerConfig
	Store           string
	DBPath          string
	PostgresDSN     string
	SessionCapacity int
	MemoryWindow    int
	DefaultSession  string
}

// validate rejects settings that would start a server with routes it cannot serve.
func (c config) validate() error {
	mode, err := api.ParseMode(string(c.Mode))
	if err != nil {
		return err
	}
	if mode == api.ModeMemory && c.DefaultSession == "" {
		return errors.New("default session must not be empty")
	}
	return nil
}

func loadConfig() config {
	return config{
		ListenAddr: getenv("HAIKU_LISTEN_ADDR", ":8080"),
		Mode:       api.Mode(getenv("HAIKU_MODE", string(api.ModeMemory))),
		Provider: providerConfig{
			Name:         os.Getenv("HAIKU_PROVIDER"),
			APIKey:       os.Getenv("HAIKU_API_KEY"),
			OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
			GeminiKey:    os.Getenv("GEMINI_API_KEY"),
			AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
			Model:        os.Getenv("HAIKU_MODEL"),
			BaseURL:      os.Getenv("HAIKU_BASE_URL"),
			MaxRetries:   getenvInt("HAIKU_MAX_RETRIES", -1),
			Timeout:      getenvDuration("HAIKU_PROVIDER_TIMEOUT", 60*time.Second),
		},
		Store:           getenv("HAIKU_STORE", string(store.BackendMemory)),
		DBPath:          getenv("HAIKU_DB_PATH", "haiku.db"),
		PostgresDSN:     os.Getenv("HAIKU_POSTGRES_DSN"),
		SessionCapacity: getenvInt("HAIKU_SESSION_CAPACITY", 0),
		MemoryWindow:    getenvInt("HAIKU_MEMORY_WINDOW", 10),
		DefaultSession:  getenv("HAIKU_DEFAULT_SESSION", haiku.DefaultSession),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
