package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"mediarelay/internal/channel"
	"mediarelay/internal/chatwoot"
	"mediarelay/internal/compose"
	"mediarelay/internal/config"
	"mediarelay/internal/domain"
	"mediarelay/internal/fetch"
	"mediarelay/internal/media"
	"mediarelay/internal/metrics"
	"mediarelay/internal/pipeline"
	"mediarelay/internal/provider"
	"mediarelay/internal/server"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (and the Telegram ingress when enabled)",
		Long:  "Starts the relay API, the optional metrics listener and the optional Telegram ingress. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = newLogger(cfg.Log)
	logger.Info("starting mediarelay", "version", version, "config", cfgPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		reg *prometheus.Registry
		m   *metrics.Metrics
	)
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(reg)
	}

	orch, err := buildPipeline(cfg, m)
	if err != nil {
		return err
	}

	if cfg.Channels.Telegram.Enabled {
		tg := newTelegram(cfg.Channels.Telegram, orch, m)
		go func() {
			if err := tg.Start(ctx); err != nil {
				logger.Error("telegram ingress stopped", "error", err)
			}
		}()
	}

	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		BodyLimit:       cfg.Server.BodyLimit,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Registry:        reg,
		MetricsAddr:     cfg.Metrics.Addr,
		MetricsPath:     cfg.Metrics.Path,
		Pipeline:        orch,
		Logger:          logger,
	})
	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("mediarelay stopped")
	return nil
}

// buildPipeline constructs every collaborator explicitly and injects it.
func buildPipeline(cfg *config.Config, m *metrics.Metrics) (*pipeline.Orchestrator, error) {
	catalog, err := compose.LoadCatalog(cfg.Compose.TemplatesFile, logger)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	ai := provider.NewSet(cfg.AI, logger)

	return pipeline.New(pipeline.Config{
		Fetcher: fetch.New(fetch.Config{
			Timeout:   cfg.Fetch.Timeout,
			MaxBytes:  cfg.Fetch.MaxBytes,
			Username:  cfg.Fetch.BasicAuth.Username,
			Password:  cfg.Fetch.BasicAuth.Password,
			AuthHosts: cfg.Fetch.BasicAuth.Hosts,
			Logger:    logger,
		}),
		Transcriber: media.NewTranscriber(ai.Speech, logger),
		Vision: media.NewVisionDescriber(media.VisionConfig{
			Chat:      ai.Chat,
			Model:     cfg.AI.ChatModel,
			Prompt:    cfg.AI.VisionPrompt,
			MaxTokens: cfg.AI.MaxTokens,
			Logger:    logger,
		}),
		Documents: media.NewDocumentExtractor(media.DocumentConfig{
			Chat:         ai.Chat,
			Model:        cfg.AI.ChatModel,
			MaxTokens:    cfg.AI.MaxTokens,
			SummaryChars: cfg.AI.SummaryChars,
			Logger:       logger,
		}),
		Composer:    compose.New(catalog),
		Delivery:    chatwoot.New(chatwoot.Config{Timeout: cfg.Chatwoot.Timeout, Logger: logger}),
		AttachMedia: cfg.Chatwoot.AttachMedia,
		Metrics:     m,
		Logger:      logger,
	}), nil
}

func newTelegram(cfg config.TelegramConfig, orch *pipeline.Orchestrator, m *metrics.Metrics) *channel.Telegram {
	return channel.NewTelegram(channel.TelegramConfig{
		Token:     cfg.Token,
		AllowFrom: cfg.AllowFrom,
		Debug:     cfg.Debug,
		Target: domain.DeliveryTarget{
			APIURL:    cfg.Chatwoot.APIURL,
			APIToken:  cfg.Chatwoot.APIToken,
			AccountID: domain.ID(cfg.Chatwoot.AccountID),
			InboxID:   domain.ID(cfg.Chatwoot.InboxID),
		},
		Pipeline: orch,
		Metrics:  m,
		Logger:   logger,
	})
}
