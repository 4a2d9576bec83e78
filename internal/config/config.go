package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the construction-time parameters of a collection run.
type Config struct {
	AppEnv string `yaml:"app_env"`
	APIKey string `yaml:"api_key"`

	BaseDir      string `yaml:"base_dir"`
	DownloadDir  string `yaml:"download_dir"`
	ProcessedDir string `yaml:"processed_dir"`

	Queries            []string `yaml:"queries"`
	MaxResultsPerQuery int      `yaml:"max_results_per_query"`
	TargetTotalVideos  int      `yaml:"target_total_videos"`
	Download           bool     `yaml:"download"`
	Resolution         string   `yaml:"resolution"`

	SearchInterval   time.Duration `yaml:"search_interval"`
	DownloadCooldown time.Duration `yaml:"download_cooldown"`

	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`

	Detector DetectorConfig `yaml:"detector"`
}

// DetectorConfig configures the person detection model.
type DetectorConfig struct {
	ModelPath   string  `yaml:"model_path"`
	ModelURL    string  `yaml:"model_url"`
	LibraryPath string  `yaml:"library_path"` // onnxruntime shared library
	PersonClass int     `yaml:"person_class"`
	Confidence  float32 `yaml:"confidence"`
	IoU         float32 `yaml:"iou"`
}

// Default values
const (
	DefaultBaseDir            = "video-corpus"
	DefaultDownloadDir        = "downloaded_videos"
	DefaultProcessedDir       = "yolo_processed_videos"
	DefaultMaxResultsPerQuery = 25
	DefaultTargetTotalVideos  = 500
	DefaultResolution         = "720p"
	DefaultSearchInterval     = 1 * time.Second
	DefaultDownloadCooldown   = 1 * time.Second
	DefaultModelPath          = "yolov8n.onnx"
	DefaultConfidence         = 0.25
	DefaultIoU                = 0.7
)

var resolutionRE = regexp.MustCompile(`^[1-9][0-9]*p$`)

// DefaultQueries is the research query list used when none is configured.
var DefaultQueries = []string{
	"baby smiling compilation",
	"baby laughing videos",
	"baby first smile captured",
	"baby facial expressions",
	"baby giggles compilation",
	"baby happy moments",
	"cute baby reactions",
	"baby emotional expressions",
	"infant smile reaction",
	"baby joy moments",
	"Asian baby laughing compilation",
	"African baby smiling videos",
	"European baby giggles compilation",
	"Hispanic baby happy moments",
	"Middle Eastern baby reactions",
	"Indigenous baby joyful moments",
	"Latino baby smiling compilation",
	"Caucasian baby laughing videos",
	"Pacific Islander baby giggles compilation",
	"South Asian baby happy moments",
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		AppEnv:             "development",
		BaseDir:            DefaultBaseDir,
		Queries:            append([]string(nil), DefaultQueries...),
		DownloadDir:        DefaultDownloadDir,
		ProcessedDir:       DefaultProcessedDir,
		MaxResultsPerQuery: DefaultMaxResultsPerQuery,
		TargetTotalVideos:  DefaultTargetTotalVideos,
		Download:           true,
		Resolution:         DefaultResolution,
		SearchInterval:     DefaultSearchInterval,
		DownloadCooldown:   DefaultDownloadCooldown,
		FFmpegPath:         "ffmpeg",
		FFprobePath:        "ffprobe",
		Detector: DetectorConfig{
			ModelPath:   DefaultModelPath,
			PersonClass: 0,
			Confidence:  DefaultConfidence,
			IoU:         DefaultIoU,
		},
	}
}

// Load builds a Config from defaults, an optional YAML file and the environment, in that order.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.AppEnv = getenv("APP_ENV", cfg.AppEnv)
	cfg.APIKey = getenv("YOUTUBE_DATA_API_KEY", cfg.APIKey)
	cfg.BaseDir = getenv("VIDEOCORPUS_BASE_DIR", cfg.BaseDir)
	cfg.DownloadDir = getenv("VIDEOCORPUS_DOWNLOAD_DIR", cfg.DownloadDir)
	cfg.ProcessedDir = getenv("VIDEOCORPUS_PROCESSED_DIR", cfg.ProcessedDir)
	cfg.MaxResultsPerQuery = getenvInt("VIDEOCORPUS_MAX_RESULTS_PER_QUERY", cfg.MaxResultsPerQuery)
	cfg.TargetTotalVideos = getenvInt("VIDEOCORPUS_TARGET_TOTAL_VIDEOS", cfg.TargetTotalVideos)
	cfg.Download = getenvBool("VIDEOCORPUS_DOWNLOAD", cfg.Download)
	cfg.Resolution = getenv("VIDEOCORPUS_RESOLUTION", cfg.Resolution)
	cfg.SearchInterval = getenvDuration("VIDEOCORPUS_SEARCH_INTERVAL", cfg.SearchInterval)
	cfg.DownloadCooldown = getenvDuration("VIDEOCORPUS_DOWNLOAD_COOLDOWN", cfg.DownloadCooldown)
	cfg.FFmpegPath = getenv("FFMPEG_PATH", cfg.FFmpegPath)
	cfg.FFprobePath = getenv("FFPROBE_PATH", cfg.FFprobePath)
	cfg.Detector.ModelPath = getenv("YOLO_MODEL_PATH", cfg.Detector.ModelPath)
	cfg.Detector.ModelURL = getenv("YOLO_MODEL_URL", cfg.Detector.ModelURL)
	cfg.Detector.LibraryPath = getenv("ONNXRUNTIME_LIB", cfg.Detector.LibraryPath)
	if q := os.Getenv("VIDEOCORPUS_QUERIES"); q != "" {
		cfg.Queries = splitQueries(q)
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.APIKey == "":
		return errors.New("missing YouTube API key: set YOUTUBE_DATA_API_KEY or api_key")
	case len(c.Queries) == 0:
		return errors.New("at least one search query is required")
	case c.MaxResultsPerQuery <= 0:
		return fmt.Errorf("max_results_per_query must be positive, got %d", c.MaxResultsPerQuery)
	case c.TargetTotalVideos <= 0:
		return fmt.Errorf("target_total_videos must be positive, got %d", c.TargetTotalVideos)
	case !resolutionRE.MatchString(c.Resolution):
		return fmt.Errorf("invalid resolution %q (expected e.g. 720p)", c.Resolution)
	case c.BaseDir == "":
		return errors.New("base_dir is required")
	}
	return nil
}

// splitQueries parses a "|"-separated list, dropping blanks.
func splitQueries(s string) []string {
	var out []string
	for _, q := range strings.Split(s, "|") {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
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
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
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
