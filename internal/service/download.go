package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"videocorpus/internal/core/domain"
	"videocorpus/internal/core/ports"
	"videocorpus/internal/logger"
)

// DownloadManager fetches one video per call through a StreamSource.
type DownloadManager struct {
	source   ports.StreamSource
	dir      string
	cooldown time.Duration
	logger   *logger.Logger
}

// NewDownloadManager creates a manager writing into dir. cooldown is waited
// after every attempt.
func NewDownloadManager(source ports.StreamSource, dir string, cooldown time.Duration, log *logger.Logger) *DownloadManager {
	if log == nil {
		log = logger.Nop()
	}
	return &DownloadManager{
		source:   source,
		dir:      dir,
		cooldown: cooldown,
		logger:   log,
	}
}

// Download fetches rec at the requested resolution (or the best available one).
// Successes mark the id as seen and failures are appended to state; neither is retried.
func (m *DownloadManager) Download(ctx context.Context, rec domain.VideoRecord, resolution string, state *domain.RunState) domain.DownloadResult {
	result := domain.DownloadResult{Record: rec}

	path, err := m.fetch(ctx, rec, resolution)
	if err != nil {
		result.Err = err
		state.RecordDownloadFailure(rec, err)
		m.logger.Error().Err(err).Str("video_id", rec.VideoID).Msg("download failed")
	} else {
		result.Path = path
		state.Seen.Add(rec.VideoID)
		m.logger.LogSuccessf("Downloaded %s -> %s", rec.VideoID, filepath.Base(path))
	}

	m.pause(ctx)
	return result
}

func (m *DownloadManager) fetch(ctx context.Context, rec domain.VideoRecord, resolution string) (string, error) {
	streams, err := m.source.Streams(ctx, rec.URL)
	if err != nil {
		return "", err
	}

	stream, err := SelectStream(streams, resolution)
	if err != nil {
		return "", err
	}
	if stream.Resolution() != resolution {
		m.logger.LogWarnf("%s: %s not available, using %s", rec.VideoID, resolution, stream.Resolution())
	}

	path := filepath.Join(m.dir, FileName(rec.Title, rec.VideoID))
	if err := m.source.Fetch(ctx, rec.URL, stream, path); err != nil {
		removePartial(path)
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		removePartial(path)
		return "", fmt.Errorf("download produced no file: %w", err)
	}
	return path, nil
}

// pause waits for the cooldown or until ctx is done.
func (m *DownloadManager) pause(ctx context.Context) {
	if m.cooldown <= 0 {
		return
	}
	t := time.NewTimer(m.cooldown)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func removePartial(path string) {
	os.Remove(path)
	os.Remove(path + ".part")
}

// SelectStream picks the progressive MP4 stream matching resolution, falling
// back to the tallest one. Ties keep the first listed stream.
func SelectStream(streams []domain.Stream, resolution string) (domain.Stream, error) {
	var best domain.Stream
	found := false
	for _, s := range streams {
		if !s.Progressive || s.Ext != "mp4" {
			continue
		}
		if s.Resolution() == resolution {
			return s, nil
		}
		if !found || s.Height > best.Height {
			best, found = s, true
		}
	}
	if !found {
		return domain.Stream{}, domain.ErrNoStreams
	}
	return best, nil
}

// SanitizeTitle keeps letters, numbers and " ._-()" and replaces anything else with '_'.
func SanitizeTitle(title string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || strings.ContainsRune(" ._-()", r) {
			return r
		}
		return '_'
	}, title)
}

// FileName returns the on-disk name of a downloaded video.
func FileName(title, videoID string) string {
	return fmt.Sprintf("%s (%s).mp4", SanitizeTitle(title), videoID)
}
