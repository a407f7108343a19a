package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhuguadundan/videowhisper/internal/api"
	"github.com/zhuguadundan/videowhisper/internal/audio"
	"github.com/zhuguadundan/videowhisper/internal/config"
	"github.com/zhuguadundan/videowhisper/internal/files"
	"github.com/zhuguadundan/videowhisper/internal/llm"
	"github.com/zhuguadundan/videowhisper/internal/media"
	"github.com/zhuguadundan/videowhisper/internal/observability"
	"github.com/zhuguadundan/videowhisper/internal/pipeline"
	"github.com/zhuguadundan/videowhisper/internal/safety"
	"github.com/zhuguadundan/videowhisper/internal/stt"
	"github.com/zhuguadundan/videowhisper/internal/task"
)

var (
	flagConfigPath string
	flagAddr       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the transcription pipeline as an HTTP service",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&flagConfigPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	serveCmd.Flags().StringVarP(&flagAddr, "addr", "a", ":8080", "listen address")
}

// runServe wires every collaborator together and blocks serving HTTP until
// SIGINT/SIGTERM.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.InitLogger("logs/app.log")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.Info("configuration loaded", "config", safety.Redact(cfg))

	tp, err := observability.InitTracer(context.Background(), "videowhisper", Version, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	for _, dir := range []string{cfg.System.TempDir, cfg.System.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	registry := task.NewRegistry(cfg.System.TempDir+"/.task_history.json", logger)
	defer registry.Close()
	if n, err := registry.RecoverOnBoot(); err != nil {
		logger.Error("recover on boot", "error", err)
	} else if n > 0 {
		logger.Info("marked stale tasks failed on restart", "count", n)
	}

	urlPolicy := safety.URLPolicy{
		AllowInsecureHTTP:     cfg.Security.AllowInsecureHTTP,
		AllowPrivateAddresses: cfg.Security.AllowPrivateAddresses,
		AllowedHosts:          cfg.Security.AllowedAPIHosts,
		EnforceAllowlist:      cfg.Security.EnforceAPIHostsWhitelist,
	}

	fetcher := &media.Fetcher{BinaryPath: "yt-dlp", URLPolicy: urlPolicy}
	splitter := &audio.Splitter{FFmpegPath: "ffmpeg"}

	sttVendorCfg := vendorConfigFor(cfg, cfg.STTVendor)
	sttClient := stt.NewOpenAICompatClient(sttVendorCfg.APIKey, sttVendorCfg.BaseURL, sttVendorCfg.Model)

	llmVendorCfg := vendorConfigFor(cfg, cfg.LLMVendor)
	llmProv, err := llm.NewProvider(context.Background(), llm.Config{
		Vendor:  llm.Vendor(cfg.LLMVendor),
		APIKey:  llmVendorCfg.APIKey,
		BaseURL: llmVendorCfg.BaseURL,
		Model:   llmVendorCfg.Model,
	}, urlPolicy)
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}
	llmProv = llm.WithRetry(llmProv, llm.RetryConfig{})

	engineCfg := pipeline.Config{
		Dirs: pipeline.Dirs{
			TempDir:   cfg.System.TempDir,
			OutputDir: cfg.System.OutputDir,
		},
		LongAudioThresholdSeconds: float64(cfg.Processing.LongAudioThresholdSeconds),
		SegmentDurationSeconds:    float64(cfg.Processing.SegmentDurationSeconds),
		ProcessingTimeout:         time.Duration(cfg.System.ProcessingTimeoutSec) * time.Second,
		MaxConcurrentTasks:        cfg.Security.MaxConcurrentTasks,
		MaxPendingTasks:           cfg.Security.MaxPendingTasks,
		KeepTempFiles:             cfg.System.KeepTempFiles,
		STT: stt.Config{
			ShortAudioMaxRetries:   cfg.Processing.ShortAudioMaxRetries,
			MaxConsecutiveFailures: cfg.Processing.MaxConsecutiveFailures,
			RetrySleepShort:        time.Duration(cfg.Processing.RetrySleepShortSeconds * float64(time.Second)),
			RetrySleepLong:         time.Duration(cfg.Processing.RetrySleepLongSeconds * float64(time.Second)),
		},
	}
	engine := pipeline.New(registry, fetcher, splitter, sttClient, llmProv, engineCfg, logger)
	defer engine.Close()

	fileManager := files.New(cfg.System.OutputDir, cfg.System.TempDir)

	server := api.NewServer(registry, engine, fileManager, cfg, logger)

	httpServer := &http.Server{
		Addr:    flagAddr,
		Handler: server.Routes(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", flagAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
}

func vendorConfigFor(cfg *config.Config, vendor string) config.VendorConfig {
	switch vendor {
	case "openai":
		return cfg.APIs.OpenAI
	case "gemini":
		return cfg.APIs.Gemini
	default:
		return cfg.APIs.SiliconFlow
	}
}
