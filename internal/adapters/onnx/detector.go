package onnx

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"

	"videocorpus/internal/core/domain"
	"videocorpus/internal/logger"
)

// YOLOv8 export defaults.
const (
	DefaultInputSize  = 640
	DefaultNumClasses = 80
	DefaultNumBoxes   = 8400
	InputName         = "images"
	OutputName        = "output0"
)

// Options configures the detector.
type Options struct {
	ModelPath   string
	LibraryPath string // onnxruntime shared library, empty for the platform default
	Confidence  float32
	IoU         float32
	InputSize   int
	NumClasses  int
	NumBoxes    int
}

func (o *Options) setDefaults() {
	if o.InputSize <= 0 {
		o.InputSize = DefaultInputSize
	}
	if o.NumClasses <= 0 {
		o.NumClasses = DefaultNumClasses
	}
	if o.NumBoxes <= 0 {
		o.NumBoxes = DefaultNumBoxes
	}
}

// Detector implements ports.Detector with a YOLOv8 model on ONNX Runtime.
// A session is not safe for concurrent Run calls, so Detect serializes.
type Detector struct {
	mu      sync.Mutex
	opts    Options
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	canvas  *image.RGBA
	logger  *logger.Logger
}

// NewDetector initializes the runtime and loads the model once.
func NewDetector(opts Options, log *logger.Logger) (*Detector, error) {
	opts.setDefaults()
	if log == nil {
		log = logger.Nop()
	}
	if opts.ModelPath == "" {
		return nil, errors.New("model path is required")
	}

	if !ort.IsInitialized() {
		if opts.LibraryPath != "" {
			ort.SetSharedLibraryPath(opts.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize onnxruntime: %w", err)
		}
	}

	size := int64(opts.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("failed to allocate input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+opts.NumClasses), int64(opts.NumBoxes)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("failed to allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{InputName}, []string{OutputName},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("failed to load model %s: %w", opts.ModelPath, err)
	}

	log.LogSuccessf("Loaded detection model %s", opts.ModelPath)
	return &Detector{
		opts:    opts,
		session: session,
		input:   input,
		output:  output,
		canvas:  image.NewRGBA(image.Rect(0, 0, opts.InputSize, opts.InputSize)),
		logger:  log,
	}, nil
}

// Detect runs the model on frame and returns detections in frame pixel
// coordinates, highest score first.
func (d *Detector) Detect(ctx context.Context, frame image.Image) ([]domain.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := frame.Bounds()
	if b.Empty() {
		return nil, errors.New("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	preprocess(frame, d.canvas, d.input.GetData())
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	scaleX := float64(b.Dx()) / float64(d.opts.InputSize)
	scaleY := float64(b.Dy()) / float64(d.opts.InputSize)
	dets := parseOutput(d.output.GetData(), d.opts.NumClasses, d.opts.NumBoxes, d.opts.Confidence, scaleX, scaleY)
	return nms(dets, d.opts.IoU), nil
}

// Close releases the session and tensors. The runtime environment is torn down too.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	if d.session != nil {
		errs = append(errs, d.session.Destroy())
		d.session = nil
	}
	if d.input != nil {
		errs = append(errs, d.input.Destroy())
		d.input = nil
	}
	if d.output != nil {
		errs = append(errs, d.output.Destroy())
		d.output = nil
	}
	if ort.IsInitialized() {
		errs = append(errs, ort.DestroyEnvironment())
	}
	return errors.Join(errs...)
}

// preprocess stretches frame onto canvas and writes it to dst as planar RGB in [0,1].
func preprocess(frame image.Image, canvas *image.RGBA, dst []float32) {
	cb := canvas.Bounds()
	draw.ApproxBiLinear.Scale(canvas, cb, frame, frame.Bounds(), draw.Src, nil)

	w, h := cb.Dx(), cb.Dy()
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := canvas.PixOffset(x, y)
			p := y*w + x
			dst[p] = float32(canvas.Pix[i]) / 255
			dst[plane+p] = float32(canvas.Pix[i+1]) / 255
			dst[2*plane+p] = float32(canvas.Pix[i+2]) / 255
		}
	}
}

// parseOutput decodes a [4+classes, boxes] YOLOv8 head. Each candidate keeps
// its best class when that score reaches minScore.
func parseOutput(data []float32, numClasses, numBoxes int, minScore float32, scaleX, scaleY float64) []domain.Detection {
	if len(data) < (4+numClasses)*numBoxes {
		return nil
	}

	var dets []domain.Detection
	for i := 0; i < numBoxes; i++ {
		best, bestScore := -1, float32(0)
		for c := 0; c < numClasses; c++ {
			if s := data[(4+c)*numBoxes+i]; best < 0 || s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 || bestScore < minScore {
			continue
		}

		cx := float64(data[i])
		cy := float64(data[numBoxes+i])
		w := float64(data[2*numBoxes+i])
		h := float64(data[3*numBoxes+i])
		dets = append(dets, domain.Detection{
			Class: best,
			Score: bestScore,
			Box: domain.Box{
				X1: (cx - w/2) * scaleX,
				Y1: (cy - h/2) * scaleY,
				X2: (cx + w/2) * scaleX,
				Y2: (cy + h/2) * scaleY,
			},
		})
	}
	return dets
}

// nms applies per-class non-maximum suppression and returns survivors sorted by
// score, descending. Equal scores keep their input order.
func nms(dets []domain.Detection, iouThreshold float32) []domain.Detection {
	sorted := make([]domain.Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	kept := make([]domain.Detection, 0, len(sorted))
	for _, d := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.Class == d.Class && iou(k.Box, d.Box) > float64(iouThreshold) {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}

func iou(a, b domain.Box) float64 {
	ix1, iy1 := max(a.X1, b.X1), max(a.Y1, b.Y1)
	ix2, iy2 := min(a.X2, b.X2), min(a.Y2, b.Y2)
	iw, ih := ix2-ix1, iy2-iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := area(a) + area(b) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func area(b domain.Box) float64 {
	w, h := b.X2-b.X1, b.Y2-b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}
