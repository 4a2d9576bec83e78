package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videocorpus/internal/core/domain"
)

func TestSelectStream(t *testing.T) {
	audio := domain.Stream{ID: "140", Ext: "m4a"}
	videoOnly := domain.Stream{ID: "137", Height: 1080, Ext: "mp4"}
	webm := domain.Stream{ID: "43", Height: 1080, Ext: "webm", Progressive: true}
	p360 := domain.Stream{ID: "18", Height: 360, Ext: "mp4", Progressive: true}
	p480 := domain.Stream{ID: "59", Height: 480, Ext: "mp4", Progressive: true}
	p720 := domain.Stream{ID: "22", Height: 720, Ext: "mp4", Progressive: true}
	p480b := domain.Stream{ID: "78", Height: 480, Ext: "mp4", Progressive: true}

	tests := []struct {
		name       string
		streams    []domain.Stream
		resolution string
		want       domain.Stream
		wantErr    error
	}{
		{"exact match", []domain.Stream{p360, p720, p480}, "720p", p720, nil},
		{"fallback to tallest", []domain.Stream{p360, p480, videoOnly, webm}, "720p", p480, nil},
		{"tie keeps first", []domain.Stream{p480, p480b}, "1080p", p480, nil},
		{"lower requested", []domain.Stream{p720, p360}, "360p", p360, nil},
		{"no progressive mp4", []domain.Stream{audio, videoOnly, webm}, "720p", domain.Stream{}, domain.ErrNoStreams},
		{"empty", nil, "720p", domain.Stream{}, domain.ErrNoStreams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectStream(tt.streams, tt.resolution)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeTitle(t *testing.T) {
	tests := map[string]string{
		"Baby Laughing (Compilation) 2024": "Baby Laughing (Compilation) 2024",
		"a/b\\c:d*e?f\"g<h>i|j":            "a_b_c_d_e_f_g_h_i_j",
		"cute_baby-smile.v2":               "cute_baby-smile.v2",
		"Bébé sourit 😊!":                   "Bébé sourit __",
		"Top 10 ½ marathon ²":              "Top 10 ½ marathon ²",
		"":                                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeTitle(in), in)
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "Baby_s first laugh (abc123).mp4", FileName("Baby's first laugh", "abc123"))
	// identical titles still map to distinct files
	assert.NotEqual(t, FileName("same", "id1"), FileName("same", "id2"))
}

func newRecord(id, title string) domain.VideoRecord {
	return domain.NewRecord(domain.SearchItem{VideoID: id, Title: title}, domain.VideoDetails{}, "q")
}

func TestDownloadSuccess(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	m := NewDownloadManager(src, dir, 0, nil)
	state := domain.NewRunState(nil)

	rec := newRecord("abc123", "Baby laughs!")
	res := m.Download(context.Background(), rec, "720p", state)

	require.True(t, res.OK(), res.Err)
	assert.Equal(t, filepath.Join(dir, "Baby laughs_ (abc123).mp4"), res.Path)
	assert.FileExists(t, res.Path)
	assert.Equal(t, "22", src.fetched[0].ID)
	assert.True(t, state.Seen.Has("abc123"))
	assert.Empty(t, state.FailedDownloads)
}

func TestDownloadFallsBackToBestResolution(t *testing.T) {
	rec := newRecord("abc123", "x")
	src := &fakeSource{streams: map[string][]domain.Stream{rec.URL: {
		{ID: "18", Height: 360, Ext: "mp4", Progressive: true},
		{ID: "59", Height: 480, Ext: "mp4", Progressive: true},
	}}}
	m := NewDownloadManager(src, t.TempDir(), 0, nil)

	res := m.Download(context.Background(), rec, "1080p", domain.NewRunState(nil))
	require.True(t, res.OK())
	assert.Equal(t, "59", src.fetched[0].ID)
}

func TestDownloadNoStreams(t *testing.T) {
	rec := newRecord("abc123", "x")
	src := &fakeSource{streams: map[string][]domain.Stream{rec.URL: {{ID: "140", Ext: "m4a"}}}}
	m := NewDownloadManager(src, t.TempDir(), 0, nil)
	state := domain.NewRunState(nil)

	res := m.Download(context.Background(), rec, "720p", state)
	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, domain.ErrNoStreams)
	require.Len(t, state.FailedDownloads, 1)
	assert.Equal(t, domain.Failure{
		VideoID:  "abc123",
		VideoURL: "https://www.youtube.com/watch?v=abc123",
		Error:    "no suitable streams found",
	}, state.FailedDownloads[0])
	assert.False(t, state.Seen.Has("abc123"))
	assert.Empty(t, src.fetched)
}

func TestDownloadFailureRemovesPartialFile(t *testing.T) {
	dir := t.TempDir()
	rec := newRecord("abc123", "x")
	src := &fakeSource{fetchErr: map[string]error{rec.URL: errors.New("connection reset")}, partial: true}
	m := NewDownloadManager(src, dir, 0, nil)
	state := domain.NewRunState(nil)

	res := m.Download(context.Background(), rec, "720p", state)
	assert.False(t, res.OK())
	require.Len(t, src.fetchedTo, 1)
	assert.NoFileExists(t, src.fetchedTo[0])
	assert.Len(t, state.FailedDownloads, 1)
	assert.Len(t, src.fetched, 1, "no retry")
}

func TestDownloadListError(t *testing.T) {
	rec := newRecord("abc123", "x")
	src := &fakeSource{listErr: map[string]error{rec.URL: errors.New("video unavailable")}}
	state := domain.NewRunState(nil)

	res := NewDownloadManager(src, t.TempDir(), 0, nil).Download(context.Background(), rec, "720p", state)
	assert.EqualError(t, res.Err, "video unavailable")
	assert.Len(t, state.FailedDownloads, 1)
}

func TestDownloadCooldown(t *testing.T) {
	m := NewDownloadManager(&fakeSource{}, t.TempDir(), 50*time.Millisecond, nil)

	start := time.Now()
	m.Download(context.Background(), newRecord("a", "a"), "720p", domain.NewRunState(nil))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// a cancelled context cuts the cooldown short
	m.cooldown = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start = time.Now()
	m.Download(ctx, newRecord("b", "b"), "720p", domain.NewRunState(nil))
	assert.Less(t, time.Since(start), time.Minute)
}

func TestRemovePartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.mp4")
	require.NoError(t, os.WriteFile(path+".part", []byte("x"), 0644))
	removePartial(path)
	assert.NoFileExists(t, path+".part")
}
