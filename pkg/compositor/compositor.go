// Package compositor stacks decoded images vertically into one sprite image.
package compositor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	ErrEmptyData      = errors.New("compositor: empty image data")
	ErrEmptyComposite = errors.New("compositor: nothing to encode")
	ErrUnknownFormat  = errors.New("compositor: unknown output format")
)

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"

	DefaultJPEGQuality = 90
)

// ParseFormat accepts "jpeg", "jpg" and "png".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "jpeg", "jpg", "":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

func (f Format) Extension() string {
	if f == FormatPNG {
		return ".png"
	}
	return ".jpg"
}

func (f Format) MimeType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

type Options struct {
	Format      Format
	JPEGQuality int // 1-100
}

// Decode decodes PNG, JPEG, GIF, BMP and WebP data.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("compositor: decode: %w", err)
	}
	return img, nil
}

// Stack appends images top to bottom. The composite is as wide as the widest
// image; narrower images are left aligned.
type Stack struct {
	images  []image.Image
	offsets []int
	width   int
	height  int
}

func NewStack() *Stack {
	return &Stack{}
}

// Append adds img below the images appended so far and returns the offset
// of its top edge.
func (s *Stack) Append(img image.Image) int {
	b := img.Bounds()
	offset := s.height

	s.images = append(s.images, img)
	s.offsets = append(s.offsets, offset)
	s.height += b.Dy()
	if b.Dx() > s.width {
		s.width = b.Dx()
	}
	return offset
}

func (s *Stack) Width() int  { return s.width }
func (s *Stack) Height() int { return s.height }
func (s *Stack) Len() int    { return len(s.images) }

// Image renders the stack onto a canvas filled with bg.
func (s *Stack) Image(bg color.Color) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, s.width, s.height))
	xdraw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, xdraw.Src)

	for i, img := range s.images {
		b := img.Bounds()
		dst := image.Rect(0, s.offsets[i], b.Dx(), s.offsets[i]+b.Dy())
		xdraw.Draw(canvas, dst, img, b.Min, xdraw.Over)
	}
	return canvas
}

// Encode writes the composite. JPEG output is flattened onto white.
func (s *Stack) Encode(w io.Writer, opts Options) error {
	if s.Len() == 0 || s.width == 0 || s.height == 0 {
		return ErrEmptyComposite
	}

	switch opts.Format {
	case FormatJPEG, "":
		quality := opts.JPEGQuality
		if quality < 1 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		if err := jpeg.Encode(w, s.Image(color.White), &jpeg.Options{Quality: quality}); err != nil {
			return fmt.Errorf("compositor: encode JPEG: %w", err)
		}
	case FormatPNG:
		if err := png.Encode(w, s.Image(color.Transparent)); err != nil {
			return fmt.Errorf("compositor: encode PNG: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}
	return nil
}

// EncodeToBytes encodes the composite into a byte slice.
func (s *Stack) EncodeToBytes(opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Encode(&buf, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
