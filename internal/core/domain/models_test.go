package domain

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRecord(t *testing.T) {
	item := SearchItem{VideoID: "abc123", Title: "T", ChannelTitle: "C"}
	rec := NewRecord(item, VideoDetails{ViewCount: 1000, Duration: "PT1M3S"}, "baby laughing videos")

	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", rec.URL)
	assert.Equal(t, uint64(1000), rec.ViewCount)
	assert.Equal(t, "PT1M3S", rec.Duration)
	assert.Equal(t, "C", rec.ChannelTitle)
	assert.Equal(t, "baby laughing videos", rec.Query)
}

func TestStreamResolution(t *testing.T) {
	assert.Equal(t, "720p", Stream{Height: 720}.Resolution())
	assert.Equal(t, "", Stream{}.Resolution())
}

func TestDownloadResultOK(t *testing.T) {
	assert.True(t, DownloadResult{Path: "a.mp4"}.OK())
	assert.False(t, DownloadResult{}.OK())
	assert.False(t, DownloadResult{Path: "a.mp4", Err: ErrNoStreams}.OK())
}

func TestBoxRect(t *testing.T) {
	assert.Equal(t, image.Rect(1, 2, 30, 40), Box{X1: 1.7, Y1: 2.2, X2: 30.9, Y2: 40.1}.Rect())
}
