package localstorage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"videocorpus/internal/core/domain"
	"videocorpus/internal/logger"
)

const (
	// DataDirName holds metadata CSVs and failure logs under the base directory.
	DataDirName = "youtube_research_data"

	metadataPrefix  = "youtube_videos_"
	timestampLayout = "20060102_150405"
)

// MetadataHeader is the fixed column order of every metadata CSV.
var MetadataHeader = []string{
	"video_id", "title", "description", "published_at", "channel_id", "channel_title",
	"view_count", "like_count", "comment_count", "duration", "video_url", "query",
}

// LocalStorage implements ports.MetadataStore for the local filesystem.
type LocalStorage struct {
	BaseDir      string
	downloadDir  string
	processedDir string
	logger       *logger.Logger
	now          func() time.Time
}

// NewLocalStorage creates a new LocalStorage rooted at baseDir. downloadDir and
// processedDir are relative to baseDir unless absolute.
func NewLocalStorage(baseDir, downloadDir, processedDir string, log *logger.Logger) *LocalStorage {
	if log == nil {
		log = logger.Nop()
	}
	return &LocalStorage{
		BaseDir:      baseDir,
		downloadDir:  underBase(baseDir, downloadDir),
		processedDir: underBase(baseDir, processedDir),
		logger:       log,
		now:          time.Now,
	}
}

func underBase(base, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(base, dir)
}

// Init creates the data, download and processed directories.
func (s *LocalStorage) Init(ctx context.Context) error {
	for _, dir := range []string{s.DataDir(), s.downloadDir, s.processedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DataDir returns the directory holding metadata and failure logs.
func (s *LocalStorage) DataDir() string {
	return filepath.Join(s.BaseDir, DataDirName)
}

// DownloadDir returns the directory downloaded videos go to.
func (s *LocalStorage) DownloadDir() string { return s.downloadDir }

// ProcessedDir returns the directory processed videos go to.
func (s *LocalStorage) ProcessedDir() string { return s.processedDir }

// LoadKnownIDs unions the video_id column of every CSV in the data directory.
// Files that cannot be parsed are skipped with a warning.
func (s *LocalStorage) LoadKnownIDs(ctx context.Context) (*domain.IDSet, error) {
	ids := domain.NewIDSet()

	files, err := filepath.Glob(filepath.Join(s.DataDir(), "*.csv"))
	if err != nil {
		return ids, fmt.Errorf("failed to list metadata files: %w", err)
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return ids, err
		}
		fileIDs, err := readVideoIDs(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", filepath.Base(path)).Msg("skipping unreadable metadata file")
			continue
		}
		ids.Merge(domain.NewIDSet(fileIDs...))
	}

	s.logger.LogInfof("Loaded %d known video ids from %d metadata files", ids.Len(), len(files))
	return ids, nil
}

// readVideoIDs returns the video_id column of one CSV. The file is rejected as a
// whole when any row is malformed.
func readVideoIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty file")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := -1
	for i, name := range header {
		if strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF")) == "video_id" {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, errors.New("no video_id column")
	}

	var ids []string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if id := strings.TrimSpace(row[col]); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// SaveMetadata writes records to a timestamped CSV. Nothing is written for an
// empty slice.
func (s *LocalStorage) SaveMetadata(ctx context.Context, records []domain.VideoRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	name := metadataPrefix + s.now().Format(timestampLayout) + ".csv"
	path := filepath.Join(s.DataDir(), name)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create metadata file %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(MetadataHeader); err != nil {
		return "", fmt.Errorf("failed to write metadata header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(recordRow(rec)); err != nil {
			return "", fmt.Errorf("failed to write metadata row %s: %w", rec.VideoID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush metadata file: %w", err)
	}

	s.logger.LogSuccessf("Saved metadata for %d videos to %s", len(records), path)
	return path, nil
}

func recordRow(r domain.VideoRecord) []string {
	return []string{
		r.VideoID,
		r.Title,
		r.Description,
		r.PublishedAt,
		r.ChannelID,
		r.ChannelTitle,
		strconv.FormatUint(r.ViewCount, 10),
		strconv.FormatUint(r.LikeCount, 10),
		strconv.FormatUint(r.CommentCount, 10),
		r.Duration,
		r.URL,
		r.Query,
	}
}

// SaveFailures writes failures to <name>.json in the data directory. Nothing is
// written for an empty slice.
func (s *LocalStorage) SaveFailures(ctx context.Context, name string, failures []domain.Failure) (string, error) {
	if len(failures) == 0 {
		return "", nil
	}

	data, err := json.MarshalIndent(failures, "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", name, err)
	}

	path := filepath.Join(s.DataDir(), name+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", filepath.Base(path), err)
	}

	s.logger.LogWarnf("Saved %d entries to %s", len(failures), path)
	return path, nil
}
