package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"sync"

	"videocorpus/internal/core/domain"
	"videocorpus/internal/core/ports"
)

// fakeSearcher serves canned results per query.
type fakeSearcher struct {
	results    map[string][]domain.SearchItem
	errs       map[string]error
	details    map[string]domain.VideoDetails
	detailErrs map[string]error
	queries    []string
	lookups    []string
}

func (f *fakeSearcher) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchItem, error) {
	f.queries = append(f.queries, query)
	items := f.results[query]
	if len(items) > maxResults {
		items = items[:maxResults]
	}
	return items, f.errs[query]
}

func (f *fakeSearcher) FetchDetails(ctx context.Context, videoID string) (domain.VideoDetails, error) {
	f.lookups = append(f.lookups, videoID)
	if err := f.detailErrs[videoID]; err != nil {
		return domain.VideoDetails{}, err
	}
	return f.details[videoID], nil
}

func items(ids ...string) []domain.SearchItem {
	out := make([]domain.SearchItem, len(ids))
	for i, id := range ids {
		out[i] = domain.SearchItem{VideoID: id, Title: "Title " + id}
	}
	return out
}

// fakeStore keeps everything in memory.
type fakeStore struct {
	known      []string
	downloads  string
	processed  string
	saved      []domain.VideoRecord
	failures   map[string][]domain.Failure
	initErr    error
	saveErr    error
	saveCalled bool
}

func (f *fakeStore) Init(ctx context.Context) error { return f.initErr }

func (f *fakeStore) LoadKnownIDs(ctx context.Context) (*domain.IDSet, error) {
	return domain.NewIDSet(f.known...), nil
}

func (f *fakeStore) SaveMetadata(ctx context.Context, records []domain.VideoRecord) (string, error) {
	f.saveCalled = true
	if f.saveErr != nil {
		return "", f.saveErr
	}
	if len(records) == 0 {
		return "", nil
	}
	f.saved = append([]domain.VideoRecord(nil), records...)
	return "metadata.csv", nil
}

func (f *fakeStore) SaveFailures(ctx context.Context, name string, failures []domain.Failure) (string, error) {
	if len(failures) == 0 {
		return "", nil
	}
	if f.failures == nil {
		f.failures = map[string][]domain.Failure{}
	}
	f.failures[name] = append([]domain.Failure(nil), failures...)
	return name + ".json", nil
}

func (f *fakeStore) DownloadDir() string  { return f.downloads }
func (f *fakeStore) ProcessedDir() string { return f.processed }

// fakeSource lists canned streams and writes a small file on Fetch.
type fakeSource struct {
	streams   map[string][]domain.Stream
	listErr   map[string]error
	fetchErr  map[string]error
	partial   bool // write the file even when failing
	fetched   []domain.Stream
	fetchedTo []string
}

var progressive720 = []domain.Stream{
	{ID: "18", Height: 360, Ext: "mp4", Progressive: true},
	{ID: "22", Height: 720, Ext: "mp4", Progressive: true},
}

func (f *fakeSource) Streams(ctx context.Context, videoURL string) ([]domain.Stream, error) {
	if err := f.listErr[videoURL]; err != nil {
		return nil, err
	}
	if s, ok := f.streams[videoURL]; ok {
		return s, nil
	}
	return progressive720, nil
}

func (f *fakeSource) Fetch(ctx context.Context, videoURL string, stream domain.Stream, destPath string) error {
	f.fetched = append(f.fetched, stream)
	f.fetchedTo = append(f.fetchedTo, destPath)
	err := f.fetchErr[videoURL]
	if err == nil || f.partial {
		if werr := os.WriteFile(destPath, []byte("video:"+videoURL), 0644); werr != nil {
			return werr
		}
	}
	return err
}

// fakeCodec decodes every file into a fixed number of solid frames and records
// what gets written.
type fakeCodec struct {
	mu        sync.Mutex
	frames    int
	info      domain.StreamInfo
	openErr   error
	createErr error
	readErrAt int // frame index at which ReadFrame fails, 0 disables
	writers   map[string]*fakeWriter
	readers   []*fakeReader
}

func newFakeCodec(frames, w, h int) *fakeCodec {
	return &fakeCodec{
		frames:  frames,
		info:    domain.StreamInfo{Width: w, Height: h, FPS: 30},
		writers: map[string]*fakeWriter{},
	}
}

func (c *fakeCodec) OpenReader(ctx context.Context, path string) (ports.FrameReader, error) {
	if c.openErr != nil {
		return nil, c.openErr
	}
	r := &fakeReader{info: c.info, total: c.frames, failAt: c.readErrAt}
	c.mu.Lock()
	c.readers = append(c.readers, r)
	c.mu.Unlock()
	return r, nil
}

func (c *fakeCodec) CreateWriter(ctx context.Context, path string, info domain.StreamInfo) (ports.FrameWriter, error) {
	if c.createErr != nil {
		return nil, c.createErr
	}
	if err := os.WriteFile(path, nil, 0644); err != nil {
		return nil, err
	}
	w := &fakeWriter{info: info}
	c.mu.Lock()
	c.writers[path] = w
	c.mu.Unlock()
	return w, nil
}

type fakeReader struct {
	info   domain.StreamInfo
	total  int
	failAt int
	next   int
	closed bool
}

func (r *fakeReader) Info() domain.StreamInfo { return r.info }

func (r *fakeReader) ReadFrame() (*image.RGBA, error) {
	if r.failAt > 0 && r.next == r.failAt {
		return nil, errors.New("corrupt packet")
	}
	if r.next >= r.total {
		return nil, io.EOF
	}
	img := image.NewRGBA(image.Rect(0, 0, r.info.Width, r.info.Height))
	for y := 0; y < r.info.Height; y++ {
		for x := 0; x < r.info.Width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(r.next), A: 255})
		}
	}
	r.next++
	return img, nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type fakeWriter struct {
	info   domain.StreamInfo
	frames []image.Image
	closed bool
}

func (w *fakeWriter) WriteFrame(frame image.Image) error {
	if w.closed {
		return errors.New("write after close")
	}
	w.frames = append(w.frames, frame)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

// fakeDetector returns the same detections for every frame.
type fakeDetector struct {
	dets  []domain.Detection
	err   error
	calls int
}

func (d *fakeDetector) Detect(ctx context.Context, frame image.Image) ([]domain.Detection, error) {
	d.calls++
	if d.err != nil {
		return nil, fmt.Errorf("detector: %w", d.err)
	}
	return d.dets, nil
}

func person(x1, y1, x2, y2 float64) domain.Detection {
	return domain.Detection{Class: PersonClass, Score: 0.9, Box: domain.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}}
}
