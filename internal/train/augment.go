package train

import (
	"math"
	"math/rand/v2"

	"github.com/haskel/foodia/internal/imageio"
)

// AugmentOptions mirror the usual real-time image augmentation knobs. Shift
// values are fractions of the image size; Zoom z samples scale factors from
// [1-z, 1+z]. Pixels mapped from outside the image take the nearest edge
// value.
type AugmentOptions struct {
	RotationDeg    float64
	WidthShift     float64
	HeightShift    float64
	Zoom           float64
	HorizontalFlip bool
}

func (o AugmentOptions) isIdentity() bool {
	return o.RotationDeg == 0 && o.WidthShift == 0 && o.HeightShift == 0 && o.Zoom == 0 && !o.HorizontalFlip
}

type Augmenter struct {
	opts AugmentOptions
	rng  *rand.Rand
}

func NewAugmenter(opts AugmentOptions, seed uint64) *Augmenter {
	return &Augmenter{opts: opts, rng: rand.New(rand.NewPCG(seed, seed^0xa5a5a5a5))}
}

type transform struct {
	theta  float64
	tx, ty float64
	zx, zy float64
	flip   bool
}

func (a *Augmenter) sample(w, h int) transform {
	uniform := func(r float64) float64 { return (a.rng.Float64()*2 - 1) * r }

	t := transform{zx: 1, zy: 1}
	t.theta = uniform(a.opts.RotationDeg) * math.Pi / 180
	t.tx = uniform(a.opts.WidthShift) * float64(w)
	t.ty = uniform(a.opts.HeightShift) * float64(h)
	if a.opts.Zoom > 0 {
		t.zx = 1 + uniform(a.opts.Zoom)
		t.zy = 1 + uniform(a.opts.Zoom)
	}
	t.flip = a.opts.HorizontalFlip && a.rng.Float64() < 0.5
	return t
}

// Apply returns a randomly transformed copy of src.
func (a *Augmenter) Apply(src *imageio.Tensor) *imageio.Tensor {
	if a.opts.isIdentity() {
		return src
	}
	return warp(src, a.sample(src.Width, src.Height))
}

// warp maps every output pixel back into src and samples it bilinearly.
func warp(src *imageio.Tensor, t transform) *imageio.Tensor {
	w, h := src.Width, src.Height
	dst := imageio.NewTensor(h, w, src.Channels)
	cx, cy := float64(w-1)/2, float64(h-1)/2
	cos, sin := math.Cos(t.theta), math.Sin(t.theta)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ox := float64(x) - cx
			oy := float64(y) - cy
			if t.flip {
				ox = -ox
			}
			rx := cos*ox - sin*oy
			ry := sin*ox + cos*oy
			sx := rx*t.zx + cx - t.tx
			sy := ry*t.zy + cy - t.ty

			for c := 0; c < src.Channels; c++ {
				dst.Set(y, x, c, bilinear(src, sx, sy, c))
			}
		}
	}
	return dst
}

func bilinear(t *imageio.Tensor, x, y float64, c int) float32 {
	x = math.Max(0, math.Min(x, float64(t.Width-1)))
	y = math.Max(0, math.Min(y, float64(t.Height-1)))

	x0, y0 := int(x), int(y)
	x1, y1 := min(x0+1, t.Width-1), min(y0+1, t.Height-1)
	fx, fy := float32(x-float64(x0)), float32(y-float64(y0))

	top := t.At(y0, x0, c)*(1-fx) + t.At(y0, x1, c)*fx
	bottom := t.At(y1, x0, c)*(1-fx) + t.At(y1, x1, c)*fx
	return top*(1-fy) + bottom*fy
}
