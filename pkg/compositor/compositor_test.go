package compositor

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestStack_AppendOffsets(t *testing.T) {
	s := NewStack()
	heights := []int{10, 20, 30}
	var offsets []int
	for _, h := range heights {
		img, err := Decode(solidPNG(t, 5, h, color.Black))
		require.NoError(t, err)
		offsets = append(offsets, s.Append(img))
	}

	assert.Equal(t, []int{0, 10, 30}, offsets)
	assert.Equal(t, 60, s.Height())
	assert.Equal(t, 5, s.Width())
	assert.Equal(t, 3, s.Len())
}

func TestStack_WidthIsMaxAndPixelsLand(t *testing.T) {
	red := color.NRGBA{R: 255, A: 255}
	blue := color.NRGBA{B: 255, A: 255}

	s := NewStack()
	a, err := Decode(solidPNG(t, 4, 2, red))
	require.NoError(t, err)
	b, err := Decode(solidPNG(t, 8, 3, blue))
	require.NoError(t, err)
	s.Append(a)
	s.Append(b)

	out := s.Image(color.Transparent)
	assert.Equal(t, image.Rect(0, 0, 8, 5), out.Bounds())
	assert.Equal(t, red, out.NRGBAAt(0, 0))
	assert.Equal(t, red, out.NRGBAAt(3, 1))
	assert.Equal(t, color.NRGBA{}, out.NRGBAAt(6, 1), "area right of a narrow image stays background")
	assert.Equal(t, blue, out.NRGBAAt(7, 4))
}

func TestStack_EncodeRoundTripDimensions(t *testing.T) {
	s := NewStack()
	for _, h := range []int{7, 9} {
		img, err := Decode(solidPNG(t, 6, h, color.White))
		require.NoError(t, err)
		s.Append(img)
	}

	for _, format := range []Format{FormatJPEG, FormatPNG} {
		data, err := s.EncodeToBytes(Options{Format: format})
		require.NoError(t, err, format)

		cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
		require.NoError(t, err, format)
		assert.Equal(t, string(format), name)
		assert.Equal(t, 6, cfg.Width)
		assert.Equal(t, 16, cfg.Height)
	}
}

func TestStack_EncodeEmpty(t *testing.T) {
	_, err := NewStack().EncodeToBytes(Options{})
	assert.True(t, errors.Is(err, ErrEmptyComposite))
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode(nil)
	assert.True(t, errors.Is(err, ErrEmptyData))

	_, err = Decode([]byte("definitely not an image"))
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("jpg")
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, f)
	assert.Equal(t, ".jpg", f.Extension())

	f, err = ParseFormat("png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", f.MimeType())

	_, err = ParseFormat("tiff")
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}
