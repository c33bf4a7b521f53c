// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	stddraw "image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/jeranaias/educhat/internal/model"
	"github.com/jeranaias/educhat/internal/registry"
)

// =============================================================================
// OPTIONS AND TIER POLICY
// =============================================================================

// Options controls one compression pass.
type Options struct {
	MaxWidth  int
	MaxHeight int
	// Quality is the JPEG quality, 1-100.
	Quality int
}

// Policy is the size-tiered compression policy. The three-tier shape is
// fixed; the thresholds and per-tier parameters are tunables.
//
// Files at or under PassThroughBytes are sent unmodified. Files between
// PassThroughBytes and AggressiveBytes use the Standard tier; files at
// or over AggressiveBytes use the smaller, lower-quality Aggressive
// tier. Thumbnail parameterizes ToPersistable and is deliberately
// smaller than either transmission tier.
type Policy struct {
	PassThroughBytes int64
	AggressiveBytes  int64

	Standard   Options
	Aggressive Options
	Thumbnail  Options
}

// DefaultPolicy returns the stock tier parameters.
func DefaultPolicy() Policy {
	return Policy{
		PassThroughBytes: 1 << 20,     // 1MB
		AggressiveBytes:  5 * 1 << 20, // 5MB
		Standard:         Options{MaxWidth: 1280, MaxHeight: 1280, Quality: 80},
		Aggressive:       Options{MaxWidth: 640, MaxHeight: 640, Quality: 60},
		Thumbnail:        Options{MaxWidth: 400, MaxHeight: 300, Quality: 50},
	}
}

// TierFor selects the transmission tier for a file size. The second
// return is false when the file passes through uncompressed.
func (p Policy) TierFor(size int64) (Options, bool) {
	switch {
	case size <= p.PassThroughBytes:
		return Options{}, false
	case size >= p.AggressiveBytes:
		return p.Aggressive, true
	default:
		return p.Standard, true
	}
}

// =============================================================================
// DECODE ERROR
// =============================================================================

// DecodeError reports an image that could not be decoded or re-encoded.
// Callers fall back to the original, uncompressed file.
type DecodeError struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image %q: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// =============================================================================
// PROCESSOR
// =============================================================================

// Processor compresses images for transmission and produces persistable
// thumbnails for storage.
type Processor struct {
	policy Policy
	// Temporary decode handles are parked here so the registry's balance
	// accounting observes them. May be nil.
	registry *registry.Registry
	logger   *slog.Logger
}

// NewProcessor creates a processor with the given policy.
func NewProcessor(policy Policy, reg *registry.Registry, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		policy:   policy,
		registry: reg,
		logger:   logger,
	}
}

// Policy returns the processor's tier policy.
func (p *Processor) Policy() Policy {
	return p.policy
}

// =============================================================================
// COMPRESSION
// =============================================================================

// Compress decodes, scales down and re-encodes an image as JPEG at the
// given quality. The scale factor min(maxW/w, maxH/h) is applied only
// when the image exceeds either bound: images are never upscaled. The
// output carries the original name and a fresh modification time.
//
// A non-image file is returned unchanged. Decode failures return a
// *DecodeError.
func (p *Processor) Compress(file *File, opts Options) (*File, error) {
	if !file.IsImage() {
		return file, nil
	}

	img, release, err := p.decode(file)
	defer release()
	if err != nil {
		return nil, &DecodeError{Name: file.Name, Err: err}
	}

	scaled := scaleDown(img, opts.MaxWidth, opts.MaxHeight)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, &DecodeError{Name: file.Name, Err: err}
	}

	out := &File{
		Name:         file.Name,
		Type:         "image/jpeg",
		Data:         buf.Bytes(),
		LastModified: time.Now(),
	}

	p.logger.Debug("image compressed",
		"name", file.Name,
		"original_bytes", file.Size(),
		"compressed_bytes", out.Size())

	return out, nil
}

// CompressForTransmit applies the tiered policy: pass-through under the
// threshold, otherwise the tier matching the file size.
func (p *Processor) CompressForTransmit(file *File) (*File, error) {
	opts, ok := p.policy.TierFor(file.Size())
	if !ok {
		return file, nil
	}
	return p.Compress(file, opts)
}

// =============================================================================
// PERSISTABLE THUMBNAIL
// =============================================================================

// ToPersistable produces the storage thumbnail: a small JPEG encoded as
// a data URL, using the separately parameterized thumbnail tier.
func (p *Processor) ToPersistable(file *File) (*model.Thumbnail, error) {
	img, release, err := p.decode(file)
	defer release()
	if err != nil {
		return nil, &DecodeError{Name: file.Name, Err: err}
	}

	opts := p.policy.Thumbnail
	scaled := scaleDown(img, opts.MaxWidth, opts.MaxHeight)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, &DecodeError{Name: file.Name, Err: err}
	}

	bounds := scaled.Bounds()
	return &model.Thumbnail{
		DataURL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
	}, nil
}

// DecodeThumbnail extracts the raw JPEG bytes from a thumbnail data URL.
// Used when a persisted image's display reference is re-derived.
func DecodeThumbnail(t *model.Thumbnail) ([]byte, error) {
	const prefix = "data:image/jpeg;base64,"
	if len(t.DataURL) <= len(prefix) || t.DataURL[:len(prefix)] != prefix {
		return nil, fmt.Errorf("malformed thumbnail data URL")
	}
	return base64.StdEncoding.DecodeString(t.DataURL[len(prefix):])
}

// =============================================================================
// DECODE AND SCALE HELPERS
// =============================================================================

// decode reads the image, holding the input bytes behind a temporary
// display handle for the duration of the decode. The handle never
// escapes: the returned release func drops it before Compress or
// ToPersistable returns.
func (p *Processor) decode(file *File) (image.Image, func(), error) {
	release := func() {}
	if p.registry != nil {
		ref := p.registry.Register(registry.NewBlob(file.Name, file.Type, file.Data))
		release = func() { p.registry.Release(ref) }
	}

	img, _, err := image.Decode(bytes.NewReader(file.Data))
	if err != nil {
		return nil, release, err
	}
	return img, release, nil
}

// scaleDown resizes img to fit within maxW x maxH, composited over a
// white matte so transparent regions encode cleanly to JPEG. Images
// already within bounds are matted at their original size.
func scaleDown(img image.Image, maxW, maxH int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	outW, outH := w, h
	if w > maxW || h > maxH {
		ratio := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
		outW = int(float64(w)*ratio + 0.5)
		outH = int(float64(h)*ratio + 0.5)
		if outW < 1 {
			outW = 1
		}
		if outH < 1 {
			outH = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	stddraw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, stddraw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}
