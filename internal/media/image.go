// Package media prepares images for sharing and uploads them to a pinning gateway.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"

	"golang.org/x/image/draw"
)

const (
	// MaxUploadSize is the largest file accepted for upload.
	MaxUploadSize = 5 * 1024 * 1024

	// MaxDimension bounds the longest side of a prepared image.
	MaxDimension = 1024

	jpegQuality = 85
)

// ErrFileTooLarge is returned for files over MaxUploadSize, before any decoding.
var ErrFileTooLarge = errors.New("file too large (max 5MB)")

// CheckSize rejects files over MaxUploadSize.
func CheckSize(size int64) error {
	if size > MaxUploadSize {
		return fmt.Errorf("%w: %d bytes", ErrFileTooLarge, size)
	}
	return nil
}

// Prepare decodes an image, downscales it so the longest side is at most MaxDimension,
// and re-encodes it as JPEG.
func Prepare(r io.Reader) ([]byte, error) {
	limited := io.LimitReader(r, MaxUploadSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if err := CheckSize(int64(len(data))); err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Resize(src, MaxDimension), &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Resize scales src down, keeping its aspect ratio, so neither side exceeds max.
// Images already within bounds are returned unchanged.
func Resize(src image.Image, max int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= max && h <= max {
		return src
	}

	if w > h {
		h = h * max / w
		w = max
	} else {
		w = w * max / h
		h = max
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
