package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"videocorpus/internal/core/domain"
	"videocorpus/internal/logger"
)

// DefaultTimeout bounds a single probe or download invocation.
const DefaultTimeout = 10 * time.Minute

// Source implements ports.StreamSource on top of the yt-dlp executable.
type Source struct {
	timeout time.Duration
	logger  *logger.Logger
}

// NewSource creates a stream source. A non-positive timeout selects DefaultTimeout.
func NewSource(timeout time.Duration, log *logger.Logger) *Source {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Source{timeout: timeout, logger: log}
}

// probeInfo is the subset of yt-dlp's info JSON needed to pick a rendition.
type probeInfo struct {
	Formats []probeFormat `json:"formats"`
}

type probeFormat struct {
	FormatID string   `json:"format_id"`
	Height   *float64 `json:"height"`
	Ext      string   `json:"ext"`
	VCodec   string   `json:"vcodec"`
	ACodec   string   `json:"acodec"`
}

// Streams probes the video page without downloading and returns every listed format.
func (s *Source) Streams(ctx context.Context, videoURL string) ([]domain.Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := ytdlp.New().
		SkipDownload().
		DumpJSON().
		NoPlaylist().
		NoWarnings().
		Run(ctx, videoURL)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp probe %s: %w", videoURL, err)
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("yt-dlp probe %s: %w", videoURL, err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("yt-dlp probe %s: empty result", videoURL)
	}

	raw, err := json.Marshal(infos[0])
	if err != nil {
		return nil, fmt.Errorf("yt-dlp probe %s: %w", videoURL, err)
	}
	return parseStreams(raw)
}

// parseStreams converts a yt-dlp info document into streams, preserving format order.
func parseStreams(raw []byte) ([]domain.Stream, error) {
	var info probeInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode formats: %w", err)
	}

	streams := make([]domain.Stream, 0, len(info.Formats))
	for _, f := range info.Formats {
		if f.FormatID == "" {
			continue
		}
		st := domain.Stream{
			ID:          f.FormatID,
			Ext:         f.Ext,
			Progressive: hasCodec(f.VCodec) && hasCodec(f.ACodec),
		}
		if f.Height != nil {
			st.Height = int(*f.Height)
		}
		streams = append(streams, st)
	}
	return streams, nil
}

func hasCodec(c string) bool {
	return c != "" && c != "none"
}

// Fetch downloads exactly the given format to destPath.
func (s *Source) Fetch(ctx context.Context, videoURL string, stream domain.Stream, destPath string) error {
	if stream.ID == "" {
		return errors.New("stream has no format id")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	_, err := ytdlp.New().
		Format(stream.ID).
		Output(destPath).
		NoPlaylist().
		NoPart().
		ForceOverwrites().
		NoWarnings().
		Run(ctx, videoURL)
	if err != nil {
		return fmt.Errorf("yt-dlp download %s: %w", videoURL, err)
	}

	s.logger.Debug().
		Str("format", stream.ID).
		Str("resolution", stream.Resolution()).
		Dur("took", time.Since(start)).
		Msg("yt-dlp finished")
	return nil
}
