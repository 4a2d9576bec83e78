package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/image/draw"

	"videocorpus/internal/core/domain"
	"videocorpus/internal/core/ports"
	"videocorpus/internal/logger"
)

const (
	FFmpegCommand  = "ffmpeg"
	FFprobeCommand = "ffprobe"

	// DefaultEncoder is the ffmpeg video encoder used for processed output.
	DefaultEncoder = "libx264"

	// FallbackFPS is used when the container reports no usable frame rate.
	FallbackFPS = 30.0

	bytesPerPixel = 4 // rgba
)

// Codec implements ports.VideoCodec by piping raw RGBA frames through ffmpeg.
type Codec struct {
	FFmpegPath  string
	FFprobePath string
	Encoder     string
	logger      *logger.Logger
}

// NewCodec creates a codec. Empty paths fall back to the executables on PATH.
func NewCodec(ffmpegPath, ffprobePath string, log *logger.Logger) *Codec {
	if ffmpegPath == "" {
		ffmpegPath = FFmpegCommand
	}
	if ffprobePath == "" {
		ffprobePath = FFprobeCommand
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Codec{
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
		Encoder:     DefaultEncoder,
		logger:      log,
	}
}

// Probe reads the geometry and frame rate of the first video stream.
func (c *Codec) Probe(ctx context.Context, path string) (domain.StreamInfo, error) {
	cmd := exec.CommandContext(ctx, c.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate",
		"-of", "json",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return domain.StreamInfo{}, fmt.Errorf("failed to run ffprobe on %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(out)
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

func parseProbe(out []byte) (domain.StreamInfo, error) {
	var p probeOutput
	if err := json.Unmarshal(out, &p); err != nil {
		return domain.StreamInfo{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(p.Streams) == 0 {
		return domain.StreamInfo{}, errors.New("no video stream")
	}

	s := p.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return domain.StreamInfo{}, fmt.Errorf("invalid frame size %dx%d", s.Width, s.Height)
	}

	fps := parseRate(s.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(s.RFrameRate)
	}
	if fps <= 0 {
		fps = FallbackFPS
	}
	return domain.StreamInfo{Width: s.Width, Height: s.Height, FPS: fps}, nil
}

// parseRate parses "30000/1001" or "25". Invalid input yields 0.
func parseRate(s string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func formatRate(fps float64) string {
	return strconv.FormatFloat(fps, 'f', -1, 64)
}

// OpenReader probes path and starts a decoder streaming raw RGBA frames.
func (c *Codec) OpenReader(ctx context.Context, path string) (ports.FrameReader, error) {
	info, err := c.Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, c.FFmpegPath, decodeArgs(path)...)
	r := &frameReader{info: info, cmd: cmd, cancel: cancel}
	cmd.Stderr = &r.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg decoder: %w", err)
	}
	r.out = bufio.NewReaderSize(stdout, info.Width*info.Height*bytesPerPixel)

	c.logger.Debug().Str("path", path).Int("width", info.Width).Int("height", info.Height).
		Float64("fps", info.FPS).Msg("decoder started")
	return r, nil
}

func decodeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-noautorotate",
		"-i", path,
		"-map", "0:v:0",
		"-fps_mode", "passthrough", // one output frame per decoded frame, even for VFR input
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	}
}

type frameReader struct {
	info   domain.StreamInfo
	cmd    *exec.Cmd
	cancel context.CancelFunc
	out    *bufio.Reader
	stderr bytes.Buffer
	done   bool
	err    error
}

func (r *frameReader) Info() domain.StreamInfo { return r.info }

// ReadFrame returns the next frame, or io.EOF once the decoder exited cleanly.
func (r *frameReader) ReadFrame() (*image.RGBA, error) {
	if r.done {
		if r.err != nil {
			return nil, r.err
		}
		return nil, io.EOF
	}

	img := image.NewRGBA(image.Rect(0, 0, r.info.Width, r.info.Height))
	_, err := io.ReadFull(r.out, img.Pix)
	switch {
	case err == nil:
		return img, nil
	case errors.Is(err, io.EOF):
		if werr := r.wait(); werr != nil {
			return nil, werr
		}
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		r.wait()
		r.err = errors.New("ffmpeg decoder: truncated frame")
		return nil, r.err
	default:
		r.wait()
		r.err = fmt.Errorf("ffmpeg decoder: %w", err)
		return nil, r.err
	}
}

func (r *frameReader) wait() error {
	if r.done {
		return r.err
	}
	r.done = true
	if err := r.cmd.Wait(); err != nil {
		r.err = fmt.Errorf("ffmpeg decoder: %w: %s", err, strings.TrimSpace(r.stderr.String()))
	}
	r.cancel()
	return r.err
}

// Close stops the decoder if it is still running.
func (r *frameReader) Close() error {
	if r.done {
		return nil
	}
	r.cancel()
	r.done = true
	_ = r.cmd.Wait()
	return nil
}

// CreateWriter starts an encoder producing an MP4 at path with the geometry and
// frame rate of info. Frames of any other size are scaled to fit.
func (c *Codec) CreateWriter(ctx context.Context, path string, info domain.StreamInfo) (ports.FrameWriter, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", info.Width, info.Height)
	}
	if info.FPS <= 0 {
		info.FPS = FallbackFPS
	}

	cmd := exec.CommandContext(ctx, c.FFmpegPath, encodeArgs(path, info, c.Encoder)...)
	w := &frameWriter{
		cmd:    cmd,
		canvas: image.NewRGBA(image.Rect(0, 0, info.Width, info.Height)),
	}
	cmd.Stderr = &w.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg encoder: %w", err)
	}
	w.in = stdin
	return w, nil
}

func encodeArgs(path string, info domain.StreamInfo, encoder string) []string {
	if encoder == "" {
		encoder = DefaultEncoder
	}
	return []string{
		"-v", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"-r", formatRate(info.FPS),
		"-i", "-",
		"-an",
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2", // yuv420p needs even dimensions
		"-c:v", encoder,
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		path,
	}
}

type frameWriter struct {
	cmd    *exec.Cmd
	in     io.WriteCloser
	canvas *image.RGBA
	stderr bytes.Buffer
	closed bool
}

// WriteFrame encodes one frame.
func (w *frameWriter) WriteFrame(frame image.Image) error {
	if w.closed {
		return errors.New("ffmpeg encoder: write after close")
	}
	if _, err := w.in.Write(w.pixels(frame)); err != nil {
		return fmt.Errorf("ffmpeg encoder: %w", err)
	}
	return nil
}

// pixels returns frame as tightly packed RGBA of the output size. Frames of
// another size are scaled to fit, keeping their aspect ratio, on a black canvas.
func (w *frameWriter) pixels(frame image.Image) []byte {
	dst := w.canvas.Bounds()
	src := frame.Bounds()

	if rgba, ok := frame.(*image.RGBA); ok && rgba.Rect == dst && rgba.Stride == dst.Dx()*bytesPerPixel {
		return rgba.Pix[:len(w.canvas.Pix)]
	}
	if src.Size() == dst.Size() {
		draw.Draw(w.canvas, dst, frame, src.Min, draw.Src)
		return w.canvas.Pix
	}

	fit := fitRect(src.Size(), dst)
	if fit != dst {
		draw.Draw(w.canvas, dst, image.Black, image.Point{}, draw.Src)
	}
	draw.ApproxBiLinear.Scale(w.canvas, fit, frame, src, draw.Src, nil)
	return w.canvas.Pix
}

// fitRect returns the largest rectangle with the aspect ratio of size that
// fits in dst, centered.
func fitRect(size image.Point, dst image.Rectangle) image.Rectangle {
	dw, dh := dst.Dx(), dst.Dy()
	if size.X <= 0 || size.Y <= 0 {
		return dst
	}
	w, h := dw, size.Y*dw/size.X
	if h > dh {
		w, h = size.X*dh/size.Y, dh
	}
	w, h = max(w, 1), max(h, 1)
	x0 := dst.Min.X + (dw-w)/2
	y0 := dst.Min.Y + (dh-h)/2
	return image.Rect(x0, y0, x0+w, y0+h)
}

// Close flushes the encoder and waits for the output file to be finalized.
func (w *frameWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	cerr := w.in.Close()
	if err := w.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg encoder: %w: %s", err, strings.TrimSpace(w.stderr.String()))
	}
	if cerr != nil {
		return fmt.Errorf("ffmpeg encoder: %w", cerr)
	}
	return nil
}
