package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"videocorpus/internal/adapters/downloader"
	"videocorpus/internal/adapters/ffmpeg"
	"videocorpus/internal/adapters/localstorage"
	"videocorpus/internal/adapters/onnx"
	"videocorpus/internal/adapters/youtube"
	"videocorpus/internal/adapters/ytdlp"
	"videocorpus/internal/config"
	"videocorpus/internal/core/domain"
	"videocorpus/internal/logger"
	"videocorpus/internal/service"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cmd, _ := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	configFile       string
	baseDir          string
	maxPerQuery      int
	target           int
	noDownload       bool
	resolution       string
	searchInterval   time.Duration
	downloadCooldown time.Duration
	modelPath        string
}

func newRootCmd() (*cobra.Command, *flags) {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "videocorpus [query...]",
		Short: "Collect a person-cropped research video corpus from YouTube",
		Long: `videocorpus searches YouTube for each query, records metadata for new videos,
downloads them with yt-dlp and writes a copy cropped to the first detected person.

Examples:
  videocorpus
  videocorpus "baby laughing videos" "baby first smile" --target 50
  videocorpus --config configs/videocorpus.yaml --no-download`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configFile)
			if err != nil {
				return err
			}
			applyFlags(cmd, f, args, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.configFile, "config", "c", "", "YAML config file")
	fs.StringVar(&f.baseDir, "base-dir", config.DefaultBaseDir, "base directory for all output")
	fs.IntVar(&f.maxPerQuery, "max-per-query", config.DefaultMaxResultsPerQuery, "maximum search results per query")
	fs.IntVarP(&f.target, "target", "n", config.DefaultTargetTotalVideos, "stop searching once this many new videos are collected")
	fs.BoolVar(&f.noDownload, "no-download", false, "only collect metadata")
	fs.StringVarP(&f.resolution, "resolution", "r", config.DefaultResolution, "preferred download resolution")
	fs.DurationVar(&f.searchInterval, "search-interval", config.DefaultSearchInterval, "pause between search page requests")
	fs.DurationVar(&f.downloadCooldown, "download-cooldown", config.DefaultDownloadCooldown, "pause after every download attempt")
	fs.StringVar(&f.modelPath, "model", config.DefaultModelPath, "YOLOv8 ONNX model path")

	return cmd, f
}

// applyFlags overrides cfg with explicitly set flags. Positional args replace the query list.
func applyFlags(cmd *cobra.Command, f *flags, args []string, cfg *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("base-dir") {
		cfg.BaseDir = f.baseDir
	}
	if fs.Changed("max-per-query") {
		cfg.MaxResultsPerQuery = f.maxPerQuery
	}
	if fs.Changed("target") {
		cfg.TargetTotalVideos = f.target
	}
	if fs.Changed("no-download") {
		cfg.Download = !f.noDownload
	}
	if fs.Changed("resolution") {
		cfg.Resolution = f.resolution
	}
	if fs.Changed("search-interval") {
		cfg.SearchInterval = f.searchInterval
	}
	if fs.Changed("download-cooldown") {
		cfg.DownloadCooldown = f.downloadCooldown
	}
	if fs.Changed("model") {
		cfg.Detector.ModelPath = f.modelPath
	}
	if len(args) > 0 {
		cfg.Queries = args
	}
}

func run(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	log := logger.NewWithConfig("videocorpus", logger.Config{AppEnv: cfg.AppEnv})
	child := func(component string) *logger.Logger {
		return logger.NewWithConfig(component, logger.Config{AppEnv: cfg.AppEnv})
	}

	log.LogInfof("=== Video Corpus Collector ===")
	log.LogInfof("Base directory: %s", cfg.BaseDir)
	log.LogInfof("Queries: %d, target: %d, download: %t", len(cfg.Queries), cfg.TargetTotalVideos, cfg.Download)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			log.LogWarnf("Received interrupt signal, finishing current step and saving results...")
			cancel()
		case <-ctx.Done():
		}
	}()

	store := localstorage.NewLocalStorage(cfg.BaseDir, cfg.DownloadDir, cfg.ProcessedDir, child("storage"))

	searcher, err := youtube.NewClient(ctx, cfg.APIKey, cfg.SearchInterval, child("youtube"))
	if err != nil {
		return err
	}

	var (
		downloads *service.DownloadManager
		frames    *service.FrameProcessor
	)
	if cfg.Download {
		if _, err := downloader.NewHTTPDownloader(child("model")).EnsureFile(ctx, cfg.Detector.ModelURL, cfg.Detector.ModelPath); err != nil {
			return fmt.Errorf("detection model unavailable: %w", err)
		}

		detector, err := onnx.NewDetector(onnx.Options{
			ModelPath:   cfg.Detector.ModelPath,
			LibraryPath: cfg.Detector.LibraryPath,
			Confidence:  cfg.Detector.Confidence,
			IoU:         cfg.Detector.IoU,
		}, child("detector"))
		if err != nil {
			return err
		}
		defer func() {
			if err := detector.Close(); err != nil {
				log.LogError("failed to release detector", err)
			}
		}()

		downloads = service.NewDownloadManager(ytdlp.NewSource(0, child("ytdlp")), store.DownloadDir(), cfg.DownloadCooldown, child("download"))
		codec := ffmpeg.NewCodec(cfg.FFmpegPath, cfg.FFprobePath, child("ffmpeg"))
		frames = service.NewFrameProcessor(codec, detector, store.ProcessedDir(), cfg.Detector.PersonClass, child("frames"))
	}

	orchestrator := service.NewOrchestrator(searcher, store, downloads, frames, service.Options{
		MaxResultsPerQuery: cfg.MaxResultsPerQuery,
		TargetTotalVideos:  cfg.TargetTotalVideos,
		Download:           cfg.Download,
		Resolution:         cfg.Resolution,
	}, child("orchestrator"))

	result, err := orchestrator.Run(ctx, cfg.Queries)
	if err != nil {
		log.LogError("Run failed", err)
		return err
	}

	printSummary(result)
	return nil
}

func printSummary(result *domain.RunResult) {
	fmt.Println("\n=== Run Summary ===")
	fmt.Printf("Run ID:            %s\n", result.RunID)
	fmt.Printf("New videos:        %d\n", len(result.Records))
	fmt.Printf("Downloaded:        %d\n", result.Downloaded)
	fmt.Printf("Processed:         %d\n", len(result.Processed))
	fmt.Printf("Failed queries:    %d\n", result.FailedQueryCount)
	fmt.Printf("Failed downloads:  %d\n", result.FailedDownloadCount)
	fmt.Printf("Failed processing: %d\n", result.FailedProcessingCount)
	if result.MetadataPath != "" {
		fmt.Printf("Metadata:          %s\n", result.MetadataPath)
	}
	for _, p := range []string{result.FailedQueriesPath, result.FailedDownloadsPath, result.FailedProcessingPath} {
		if p != "" {
			fmt.Printf("Failure log:       %s\n", p)
		}
	}
	fmt.Printf("Completed At:      %s\n", result.CompletedAt.Format("2006-01-02 15:04:05 UTC"))
}
