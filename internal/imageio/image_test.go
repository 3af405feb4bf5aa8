package imageio

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haskel/foodia/internal/dataset"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func writeJPEG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func assertNormalized(t *testing.T, tensor *Tensor, size int) {
	t.Helper()
	assert.Equal(t, size, tensor.Height)
	assert.Equal(t, size, tensor.Width)
	assert.Equal(t, Channels, tensor.Channels)
	require.Len(t, tensor.Data, size*size*Channels)
	for i, v := range tensor.Data {
		if v < 0 || v > 1 {
			t.Fatalf("value %f at %d outside [0,1]", v, i)
		}
	}
}

func TestPreprocess_SizeAndRange(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 37, 21))
	for y := 0; y < 21; y++ {
		for x := 0; x < 37; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 12), B: 255, A: 255})
		}
	}

	for _, size := range []int{TrainingSize, PreviewSize, 16} {
		tensor, err := Preprocess(img, size)
		require.NoError(t, err)
		assertNormalized(t, tensor, size)
	}
}

func TestPreprocess_SolidColour(t *testing.T) {
	tensor, err := Preprocess(solid(10, 10, color.RGBA{R: 255, G: 0, B: 51, A: 255}), 4)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, tensor.At(2, 2, 0), 0.01)
	assert.InDelta(t, 0.0, tensor.At(2, 2, 1), 0.01)
	assert.InDelta(t, 0.2, tensor.At(2, 2, 2), 0.01)
}

func TestPreprocess_InvalidSize(t *testing.T) {
	_, err := Preprocess(solid(4, 4, color.RGBA{A: 255}), 0)
	assert.Error(t, err)
}

func TestDecode_Formats(t *testing.T) {
	dir := t.TempDir()
	img := solid(8, 6, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	writePNG(t, filepath.Join(dir, "a.png"), img)
	writeJPEG(t, filepath.Join(dir, "b.jpg"), img)

	for _, name := range []string{"a.png", "b.jpg"} {
		decoded, err := DecodeFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, 8, decoded.Bounds().Dx())
		assert.Equal(t, 6, decoded.Bounds().Dy())
	}
}

func TestDecode_Garbage(t *testing.T) {
	_, err := DecodeBytes([]byte("definitely not an image"))
	require.Error(t, err)

	var de *DecodeError
	assert.True(t, errors.As(err, &de))
}

func TestDecodeFile_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "none.jpg")
	_, err := DecodeFile(path)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, path, de.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoader_SkipsUndecodable(t *testing.T) {
	dir := t.TempDir()
	var records []dataset.Record
	for i, name := range []string{"a.png", "b.png", "c.png"} {
		path := filepath.Join(dir, name)
		writePNG(t, path, solid(5+i, 5, color.RGBA{R: 200, A: 255}))
		records = append(records, dataset.Record{ImagePath: path, Label: "pizza"})
	}
	broken := filepath.Join(dir, "broken.jpg")
	require.NoError(t, os.WriteFile(broken, []byte("nope"), 0644))
	records = append(records, dataset.Record{ImagePath: broken, Label: "ramen"})

	loader := NewLoader(LoaderOptions{Size: 12}, nil)
	samples, report := loader.Load(records)

	require.Len(t, samples, 3)
	assert.Equal(t, 4, report.Requested)
	assert.Equal(t, 4, report.Sampled)
	assert.Equal(t, 3, report.Loaded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{broken}, report.Failures)
	for _, s := range samples {
		assert.Equal(t, "pizza", s.Label)
		assertNormalized(t, s.Image, 12)
	}
}

func TestSubsample(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	a := Subsample(items, 10, 42)
	b := Subsample(items, 10, 42)
	c := Subsample(items, 10, 7)

	require.Len(t, a, 10)
	assert.Equal(t, a, b, "same seed must give the same subset")
	assert.NotEqual(t, a, c)
	assert.IsIncreasing(t, a, "original order is preserved")

	assert.Len(t, Subsample(items, 0, 42), 100)
	assert.Len(t, Subsample(items, 500, 42), 100)
}

func TestLoader_MemoryCap(t *testing.T) {
	dir := t.TempDir()
	var records []dataset.Record
	for i := 0; i < 6; i++ {
		path := filepath.Join(dir, string(rune('a'+i))+".png")
		writePNG(t, path, solid(4, 4, color.RGBA{G: 255, A: 255}))
		records = append(records, dataset.Record{ImagePath: path, Label: "salad"})
	}

	per := uint64(8 * 8 * Channels * 4)
	loader := NewLoader(LoaderOptions{
		Size:           8,
		SampleCap:      -1,
		MemoryFraction: 0.5,
		MemoryProbe:    func() (uint64, error) { return per * 4, nil },
		Seed:           42,
	}, nil)

	samples, report := loader.Load(records)
	assert.Equal(t, 2, report.Cap)
	assert.Len(t, samples, 2)
}

func TestMemoryCap(t *testing.T) {
	assert.Equal(t, 1, MemoryCap(0, 0.5, 224))
	per := uint64(224 * 224 * 3 * 4)
	assert.Equal(t, 50, MemoryCap(per*100, 0.5, 224))
}
