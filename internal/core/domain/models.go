package domain

import (
	"fmt"
	"image"
	"time"
)

// VideoURLTemplate builds the canonical watch URL for a video ID.
const VideoURLTemplate = "https://www.youtube.com/watch?v=%s"

// VideoRecord is one accepted search result with its statistics merged in.
type VideoRecord struct {
	VideoID      string `json:"video_id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	PublishedAt  string `json:"published_at"`
	ChannelID    string `json:"channel_id"`
	ChannelTitle string `json:"channel_title"`
	ViewCount    uint64 `json:"view_count"`
	LikeCount    uint64 `json:"like_count"`
	CommentCount uint64 `json:"comment_count"`
	Duration     string `json:"duration"` // ISO-8601, e.g. "PT1M3S"
	URL          string `json:"video_url"`
	Query        string `json:"query"`
}

// SearchItem is a raw search hit before statistics are fetched.
type SearchItem struct {
	VideoID      string
	Title        string
	Description  string
	PublishedAt  string
	ChannelID    string
	ChannelTitle string
}

// VideoDetails holds the secondary statistics of a video.
type VideoDetails struct {
	ViewCount    uint64
	LikeCount    uint64
	CommentCount uint64
	Duration     string
}

// NewRecord merges a search hit with its details.
func NewRecord(item SearchItem, details VideoDetails, query string) VideoRecord {
	return VideoRecord{
		VideoID:      item.VideoID,
		Title:        item.Title,
		Description:  item.Description,
		PublishedAt:  item.PublishedAt,
		ChannelID:    item.ChannelID,
		ChannelTitle: item.ChannelTitle,
		ViewCount:    details.ViewCount,
		LikeCount:    details.LikeCount,
		CommentCount: details.CommentCount,
		Duration:     details.Duration,
		URL:          fmt.Sprintf(VideoURLTemplate, item.VideoID),
		Query:        query,
	}
}

// Stream is one downloadable rendition of a video.
type Stream struct {
	ID          string
	Height      int
	Ext         string
	Progressive bool // carries both audio and video
}

// Resolution renders the stream height as a label like "720p".
func (s Stream) Resolution() string {
	if s.Height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dp", s.Height)
}

// DownloadResult pairs a record with either a local path or an error.
type DownloadResult struct {
	Record VideoRecord
	Path   string
	Err    error
}

// OK reports whether the download produced a file.
func (r DownloadResult) OK() bool {
	return r.Err == nil && r.Path != ""
}

// Failure is one entry of a failure log.
type Failure struct {
	Query    string `json:"query,omitempty"`
	VideoID  string `json:"video_id,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
	Error    string `json:"error"`
}

// ProcessedVideo describes one output of the frame processor.
type ProcessedVideo struct {
	VideoID string
	Path    string
	Frames  int
	Cropped int // frames written as a person crop
}

// Box is a bounding box in pixel coordinates.
type Box struct {
	X1, Y1, X2, Y2 float64
}

// Rect truncates the box to integer pixel bounds.
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
}

// Detection is a single detector output.
type Detection struct {
	Class int
	Score float32
	Box   Box
}

// StreamInfo describes the geometry and timing of a video stream.
type StreamInfo struct {
	Width  int
	Height int
	FPS    float64
}

// RunResult holds the outcome of a collection run.
type RunResult struct {
	RunID                 string
	Records               []VideoRecord
	MetadataPath          string
	FailedQueriesPath     string
	FailedDownloadsPath   string
	FailedProcessingPath  string
	Downloaded            int
	Processed             []ProcessedVideo
	FailedQueryCount      int
	FailedDownloadCount   int
	FailedProcessingCount int
	StartedAt             time.Time
	CompletedAt           time.Time
}
