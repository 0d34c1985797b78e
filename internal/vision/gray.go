package vision

import (
	"image"
	"image/color"
)

// Gray is a single-channel float image with luma in [0, 255].
type Gray struct {
	W, H int
	Pix  []float32
}

// NewGray allocates a w x h image.
func NewGray(w, h int) *Gray {
	return &Gray{W: w, H: h, Pix: make([]float32, w*h)}
}

func (g *Gray) at(x, y int) float32 {
	return g.Pix[y*g.W+x]
}

// ToGray converts img to luma using BT.601 weights. The result is
// re-based so its origin is (0, 0).
func ToGray(img image.Image) *Gray {
	b := img.Bounds()
	g := NewGray(b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < g.H; y++ {
			row := src.Pix[(y+b.Min.Y-src.Rect.Min.Y)*src.Stride:]
			off := (b.Min.X - src.Rect.Min.X) * 4
			for x := 0; x < g.W; x++ {
				p := row[off+x*4:]
				g.Pix[y*g.W+x] = luma(p[0], p[1], p[2])
			}
		}
	case *image.NRGBA:
		for y := 0; y < g.H; y++ {
			row := src.Pix[(y+b.Min.Y-src.Rect.Min.Y)*src.Stride:]
			off := (b.Min.X - src.Rect.Min.X) * 4
			for x := 0; x < g.W; x++ {
				p := row[off+x*4:]
				g.Pix[y*g.W+x] = luma(p[0], p[1], p[2])
			}
		}
	case *image.Gray:
		for y := 0; y < g.H; y++ {
			for x := 0; x < g.W; x++ {
				g.Pix[y*g.W+x] = float32(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < g.H; y++ {
			for x := 0; x < g.W; x++ {
				c := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
				g.Pix[y*g.W+x] = float32(c.Y)
			}
		}
	}
	return g
}

func luma(r, g, b uint8) float32 {
	return 0.299*float32(r) + 0.587*float32(g) + 0.114*float32(b)
}

// half box-filters g down by two in each dimension.
func (g *Gray) half() *Gray {
	return g.halfAt(0, 0)
}

// halfAt is half with the 2x2 blocks starting at (ox, oy), ox and oy in {0, 1}.
func (g *Gray) halfAt(ox, oy int) *Gray {
	out := NewGray((g.W-ox)/2, (g.H-oy)/2)
	for y := 0; y < out.H; y++ {
		r0 := g.Pix[(oy+2*y)*g.W+ox:]
		r1 := g.Pix[(oy+2*y+1)*g.W+ox:]
		for x := 0; x < out.W; x++ {
			out.Pix[y*out.W+x] = (r0[2*x] + r0[2*x+1] + r1[2*x] + r1[2*x+1]) / 4
		}
	}
	return out
}

// phase is hay downsampled with its block grid shifted by (x, y) full-size
// pixels.
type phase struct {
	x, y int
	g    *Gray
}

// phases downsamples g by 2^levels from every one of the 4^levels grid
// offsets. A pixel (cx, cy) of phase p covers full-size (p.x+cx<<levels,
// p.y+cy<<levels).
func (g *Gray) phases(levels int) []phase {
	out := []phase{{g: g}}
	for l := 0; l < levels; l++ {
		next := make([]phase, 0, len(out)*4)
		for _, p := range out {
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					next = append(next, phase{x: p.x + dx<<l, y: p.y + dy<<l, g: p.g.halfAt(dx, dy)})
				}
			}
		}
		out = next
	}
	return out
}

// integral holds summed-area tables of values and squared values,
// (W+1) x (H+1) with a zero first row and column.
type integral struct {
	w     int
	sum   []float64
	sqsum []float64
}

func newIntegral(g *Gray) *integral {
	w := g.W + 1
	in := &integral{
		w:     w,
		sum:   make([]float64, w*(g.H+1)),
		sqsum: make([]float64, w*(g.H+1)),
	}
	for y := 0; y < g.H; y++ {
		var rowSum, rowSq float64
		for x := 0; x < g.W; x++ {
			v := float64(g.Pix[y*g.W+x])
			rowSum += v
			rowSq += v * v
			i := (y+1)*w + x + 1
			in.sum[i] = in.sum[i-w] + rowSum
			in.sqsum[i] = in.sqsum[i-w] + rowSq
		}
	}
	return in
}

// rect returns the sum and squared sum over the w x h block at (x, y).
func (in *integral) rect(x, y, w, h int) (sum, sq float64) {
	a := y*in.w + x
	b := a + w
	c := (y+h)*in.w + x
	d := c + w
	return in.sum[d] - in.sum[b] - in.sum[c] + in.sum[a],
		in.sqsum[d] - in.sqsum[b] - in.sqsum[c] + in.sqsum[a]
}
