package ports

import (
	"context"
	"image"
	"io"

	"videocorpus/internal/core/domain"
)

// Searcher defines the contract for discovering videos through a search API.
type Searcher interface {
	// Search pages through results for query until maxResults items or the last page.
	// On a mid-pagination failure it returns the items collected so far along with the error.
	Search(ctx context.Context, query string, maxResults int) ([]domain.SearchItem, error)

	// FetchDetails retrieves the statistics of a single video.
	FetchDetails(ctx context.Context, videoID string) (domain.VideoDetails, error)
}

// StreamSource defines the contract of the external download tool.
type StreamSource interface {
	// Streams lists the renditions available for a video page URL.
	Streams(ctx context.Context, videoURL string) ([]domain.Stream, error)

	// Fetch downloads the given stream to destPath.
	Fetch(ctx context.Context, videoURL string, stream domain.Stream, destPath string) error
}

// Downloader defines the contract for fetching a file over the network.
// Returns a ReadCloser that the caller must close.
type Downloader interface {
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// MetadataStore defines the contract for persisting run artifacts.
type MetadataStore interface {
	// Init creates the directory layout.
	Init(ctx context.Context) error

	// LoadKnownIDs rebuilds the de-duplication set from prior metadata files.
	LoadKnownIDs(ctx context.Context) (*domain.IDSet, error)

	// SaveMetadata writes one row per record. It is a no-op for an empty slice.
	SaveMetadata(ctx context.Context, records []domain.VideoRecord) (string, error)

	// SaveFailures writes a failure log. It is a no-op for an empty slice.
	SaveFailures(ctx context.Context, name string, failures []domain.Failure) (string, error)

	// DownloadDir returns the directory downloaded videos go to.
	DownloadDir() string

	// ProcessedDir returns the directory processed videos go to.
	ProcessedDir() string
}

// Detector runs an object detection model on a single frame.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]domain.Detection, error)
}

// FrameReader yields decoded frames in order. ReadFrame returns io.EOF after the last frame.
type FrameReader interface {
	Info() domain.StreamInfo
	ReadFrame() (*image.RGBA, error)
	Close() error
}

// FrameWriter encodes frames into an output video.
type FrameWriter interface {
	WriteFrame(frame image.Image) error
	Close() error
}

// VideoCodec opens readers and writers over video files.
type VideoCodec interface {
	OpenReader(ctx context.Context, path string) (FrameReader, error)
	CreateWriter(ctx context.Context, path string, info domain.StreamInfo) (FrameWriter, error)
}
