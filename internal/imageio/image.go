// Package imageio turns photo files into normalized float tensors of a fixed
// square size.
package imageio

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	// TrainingSize is the side length used by the transfer-learning pipeline.
	TrainingSize = 224
	// PreviewSize is the side length of the lightweight path.
	PreviewSize = 128

	Channels = 3
)

// Tensor is an image in height, width, channel order with values in [0,1].
type Tensor struct {
	Height   int       `json:"height"`
	Width    int       `json:"width"`
	Channels int       `json:"channels"`
	Data     []float32 `json:"-"`
}

// NewTensor returns a zeroed h x w tensor with c channels.
func NewTensor(h, w, c int) *Tensor {
	return &Tensor{Height: h, Width: w, Channels: c, Data: make([]float32, h*w*c)}
}

func (t *Tensor) At(y, x, c int) float32 {
	return t.Data[(y*t.Width+x)*t.Channels+c]
}

func (t *Tensor) Set(y, x, c int, v float32) {
	t.Data[(y*t.Width+x)*t.Channels+c] = v
}

func (t *Tensor) Clone() *Tensor {
	out := *t
	out.Data = make([]float32, len(t.Data))
	copy(out.Data, t.Data)
	return &out
}

// DecodeError reports an image that could not be read or decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("decode image: %v", e.Err)
	}
	return fmt.Sprintf("decode image %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode reads a JPEG, PNG, GIF, BMP or WebP image.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return img, nil
}

// DecodeBytes is Decode over an in-memory image.
func DecodeBytes(data []byte) (image.Image, error) {
	return Decode(bytes.NewReader(data))
}

// DecodeFile decodes the image at path. Errors carry the path.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return img, nil
}

// Preprocess resizes img to size x size with bilinear interpolation and
// scales RGB channels to [0,1]. Alpha is dropped.
func Preprocess(img image.Image, size int) (*Tensor, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid target size %d", size)
	}
	if img.Bounds().Empty() {
		return nil, &DecodeError{Err: fmt.Errorf("empty image")}
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	t := NewTensor(size, size, Channels)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := dst.RGBAAt(x, y)
			i := (y*size + x) * Channels
			t.Data[i] = float32(c.R) / 255
			t.Data[i+1] = float32(c.G) / 255
			t.Data[i+2] = float32(c.B) / 255
		}
	}
	return t, nil
}
