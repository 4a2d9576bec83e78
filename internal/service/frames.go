package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"videocorpus/internal/core/domain"
	"videocorpus/internal/core/ports"
	"videocorpus/internal/logger"
)

// PersonClass is the COCO class index of "person".
const PersonClass = 0

// ProcessedPrefix is prepended to the input file name to form the output name.
const ProcessedPrefix = "processed_"

// FrameProcessor crops every frame of a video to the first detected person.
type FrameProcessor struct {
	codec       ports.VideoCodec
	detector    ports.Detector
	outDir      string
	personClass int
	logger      *logger.Logger
}

// NewFrameProcessor creates a processor writing into outDir.
func NewFrameProcessor(codec ports.VideoCodec, detector ports.Detector, outDir string, personClass int, log *logger.Logger) *FrameProcessor {
	if log == nil {
		log = logger.Nop()
	}
	return &FrameProcessor{
		codec:       codec,
		detector:    detector,
		outDir:      outDir,
		personClass: personClass,
		logger:      log,
	}
}

// OutputPath returns where the processed copy of inputPath is written.
func (p *FrameProcessor) OutputPath(inputPath string) string {
	return filepath.Join(p.outDir, ProcessedPrefix+filepath.Base(inputPath))
}

// Process writes one output frame per input frame: the person crop when a
// person is detected, the unchanged frame otherwise. A failed run leaves no
// output file behind.
func (p *FrameProcessor) Process(ctx context.Context, inputPath string) (result domain.ProcessedVideo, err error) {
	outPath := p.OutputPath(inputPath)
	result.Path = outPath

	reader, err := p.codec.OpenReader(ctx, inputPath)
	if err != nil {
		return result, fmt.Errorf("open %s: %w", filepath.Base(inputPath), err)
	}
	defer reader.Close()

	writer, err := p.codec.CreateWriter(ctx, outPath, reader.Info())
	if err != nil {
		os.Remove(outPath)
		return result, fmt.Errorf("create %s: %w", filepath.Base(outPath), err)
	}

	writerOpen := true
	defer func() {
		if writerOpen {
			writer.Close()
		}
		if err != nil {
			os.Remove(outPath)
		}
	}()

	for {
		if err = ctx.Err(); err != nil {
			return result, err
		}

		frame, rerr := reader.ReadFrame()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			err = fmt.Errorf("read frame %d: %w", result.Frames, rerr)
			return result, err
		}

		dets, derr := p.detector.Detect(ctx, frame)
		if derr != nil {
			err = fmt.Errorf("detect frame %d: %w", result.Frames, derr)
			return result, err
		}

		out, cropped := CropToClass(frame, dets, p.personClass)
		if werr := writer.WriteFrame(out); werr != nil {
			err = fmt.Errorf("write frame %d: %w", result.Frames, werr)
			return result, err
		}

		result.Frames++
		if cropped {
			result.Cropped++
		}
	}

	writerOpen = false
	if err = writer.Close(); err != nil {
		err = fmt.Errorf("finalize %s: %w", filepath.Base(outPath), err)
		return result, err
	}

	p.logger.LogSuccessf("Processed %s: %d frames, %d cropped", filepath.Base(inputPath), result.Frames, result.Cropped)
	return result, nil
}

// CropToClass returns the region of frame inside the first detection of class,
// clamped to the frame. The frame itself is returned when there is no such
// detection or its box has no area inside the frame.
func CropToClass(frame *image.RGBA, dets []domain.Detection, class int) (image.Image, bool) {
	for _, d := range dets {
		if d.Class != class {
			continue
		}
		rect := d.Box.Rect().Intersect(frame.Bounds())
		if rect.Empty() {
			return frame, false
		}
		return frame.SubImage(rect), true
	}
	return frame, false
}
