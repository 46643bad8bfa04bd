package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackzampolin/tagflow/internal/classify"
	"github.com/jackzampolin/tagflow/internal/config"
	"github.com/jackzampolin/tagflow/internal/daemon"
	"github.com/jackzampolin/tagflow/internal/ocr"
	"github.com/jackzampolin/tagflow/internal/pagesource"
	"github.com/jackzampolin/tagflow/internal/paperless"
	"github.com/jackzampolin/tagflow/internal/providers"
	"github.com/jackzampolin/tagflow/internal/retry"
)

// app holds the shared components both pipeline stages are built from.
type app struct {
	cfg      *config.Config
	mgr      *config.Manager
	logger   *slog.Logger
	logLevel *slog.LevelVar
	store    *paperless.Client
	retry    *retry.Executor
}

// newApp loads configuration and constructs the shared store client and
// retry executor.
func newApp(cfgFile string) (*app, error) {
	manager, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg := manager.Get()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, logLevel := newLogger(cfg.Log)

	exec := retry.New(retry.Config{
		MaxAttempts: cfg.Daemon.MaxRetries,
		BaseDelay:   time.Second,
		MaxDelay:    cfg.Daemon.MaxRetryBackoff(),
		Logger:      logger,
	})

	store, err := paperless.New(paperless.Config{
		BaseURL: cfg.Paperless.URL,
		Token:   cfg.Paperless.Token,
		Timeout: cfg.Daemon.RequestTimeout(),
		Retry:   exec,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		mgr:      manager,
		logger:   logger,
		logLevel: logLevel,
		store:    store,
		retry:    exec,
	}, nil
}

// watch enables config hot-reload. Components read their settings at
// construction, so most changes take effect on restart; the log level is
// applied immediately.
func (a *app) watch() {
	a.mgr.OnChange(func(cfg *config.Config) {
		a.logLevel.Set(parseLogLevel(cfg.Log.Level))
		a.logger.Info("configuration reloaded", "level", cfg.Log.Level)
	})
	a.mgr.WatchConfig()
}

func newLogger(cfg config.LogConfig) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(parseLogLevel(cfg.Level))
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), level
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts)), level
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// backend constructs the model backend selected by provider.type.
func (a *app) backend() (providers.Backend, error) {
	cfg := providers.BackendConfig{
		APIKey:  a.cfg.Provider.APIKey,
		BaseURL: a.cfg.Provider.OllamaBaseURL,
		Timeout: a.cfg.Daemon.RequestTimeout(),
	}
	switch a.cfg.Provider.Type {
	case providers.LocalBackendName:
		return providers.NewLocalBackend(cfg)
	default:
		return providers.NewCloudBackend(cfg)
	}
}

// ocrLoop builds the transcription stage's polling loop.
func (a *app) ocrLoop() (*daemon.Loop, error) {
	backend, err := a.backend()
	if err != nil {
		return nil, err
	}

	transcriber := providers.NewTranscriber(providers.TranscriberConfig{
		Backend:        backend,
		Models:         a.cfg.Models(),
		RefusalMarkers: a.cfg.OCR.RefusalMarkers,
		Retry:          a.retry,
		Logger:         a.logger,
	})

	splitter := pagesource.NewPDFSplitter(pagesource.Config{
		DPI:    a.cfg.OCR.DPI,
		Logger: a.logger,
	})

	stage := a.cfg.OCRStage()
	processor, err := ocr.NewProcessor(ocr.Config{
		Store:             a.store,
		Splitter:          splitter,
		Transcriber:       transcriber,
		Stage:             stage,
		PageWorkers:       a.cfg.OCR.PageWorkers,
		IncludePageModels: a.cfg.OCR.IncludePageModels,
		Logger:            a.logger,
	})
	if err != nil {
		return nil, err
	}

	return &daemon.Loop{
		Name:     "ocr",
		Interval: a.cfg.Daemon.PollInterval(),
		Fetch:    daemon.NewFetcher(a.store, stage, a.logger),
		Process:  processor.Process,
		Workers:  a.cfg.Daemon.DocumentWorkers,
		Logger:   a.logger,
	}, nil
}

// classifyLoop builds the classification stage's polling loop.
func (a *app) classifyLoop() (*daemon.Loop, error) {
	backend, err := a.backend()
	if err != nil {
		return nil, err
	}

	classifier := providers.NewClassifier(providers.ClassifierConfig{
		Backend: backend,
		Models:  a.cfg.Models(),
		Retry:   a.retry,
		Logger:  a.logger,
	})

	taxonomy := classify.NewTaxonomyCache(a.store, a.logger)

	stage := a.cfg.ClassifyStage()
	processor, err := classify.NewProcessor(classify.Config{
		Store:               a.store,
		Classifier:          classifier,
		Taxonomy:            taxonomy,
		Stage:               stage,
		RequeueTag:          a.cfg.OCR.PreTag,
		PersonField:         a.cfg.Classify.PersonField,
		DefaultCountryTag:   a.cfg.Classify.DefaultCountryTag,
		TagLimit:            a.cfg.Classify.TagLimit,
		TaxonomyLimit:       a.cfg.Classify.TaxonomyLimit,
		MaxPages:            a.cfg.Classify.MaxPages,
		TailPages:           a.cfg.Classify.TailPages,
		HeaderlessCharLimit: a.cfg.Classify.HeaderlessCharLimit,
		MaxChars:            a.cfg.Classify.MaxChars,
		Logger:              a.logger,
	})
	if err != nil {
		return nil, err
	}

	return &daemon.Loop{
		Name:        "classify",
		Interval:    a.cfg.Daemon.PollInterval(),
		Fetch:       daemon.NewFetcher(a.store, stage, a.logger),
		Process:     processor.Process,
		BeforeBatch: taxonomy.Refresh,
		Workers:     a.cfg.Daemon.DocumentWorkers,
		Logger:      a.logger,
	}, nil
}
