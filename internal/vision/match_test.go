package vision

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"math/rand"
	"testing"
)

// mosaic fills a w x h image with random colour blocks of the given size.
func mosaic(w, h, block int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for by := 0; by < h; by += block {
		for bx := 0; bx < w; bx += block {
			c := color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255}
			draw.Draw(img, image.Rect(bx, by, bx+block, by+block), &image.Uniform{C: c}, image.Point{}, draw.Src)
		}
	}
	return img
}

func crop(img *image.RGBA, r image.Rectangle) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}

func TestMatcher_FindFullResolution(t *testing.T) {
	hay := mosaic(64, 48, 4, 1)
	tmpl := crop(hay, image.Rect(24, 16, 40, 32))

	m, ok := Matcher{}.Find(ToGray(hay), ToGray(tmpl), 0.9)
	if !ok {
		t.Fatal("Find() found nothing")
	}
	if m.Rect.Min != image.Pt(24, 16) {
		t.Errorf("Find() at %v, want (24,16)", m.Rect.Min)
	}
	if m.Score < 0.99 {
		t.Errorf("Score = %v, want ~1", m.Score)
	}
	if got := m.Center(); got != image.Pt(32, 24) {
		t.Errorf("Center() = %v, want (32,24)", got)
	}
}

func TestMatcher_FindCoarseToFine(t *testing.T) {
	hay := mosaic(320, 240, 8, 2)
	want := image.Rect(96, 64, 160, 112)
	tmpl := crop(hay, want)

	matcher := DefaultMatcher()
	if got := matcher.levels(ToGray(tmpl)); got != 2 {
		t.Fatalf("levels() = %d, want 2", got)
	}

	m, ok := matcher.Find(ToGray(hay), ToGray(tmpl), 0.9)
	if !ok {
		t.Fatal("Find() found nothing")
	}
	if m.Rect != want {
		t.Errorf("Find() = %v, want %v", m.Rect, want)
	}
}

func TestMatcher_FindRejectsBelowThreshold(t *testing.T) {
	hay := mosaic(160, 120, 8, 3)
	other := mosaic(48, 48, 8, 99)

	if m, ok := DefaultMatcher().Find(ToGray(hay), ToGray(other), 0.9); ok {
		t.Errorf("Find() = %+v for an absent template", m)
	}
}

func TestMatcher_FindAll(t *testing.T) {
	hay := mosaic(240, 180, 8, 4)
	item := mosaic(32, 32, 8, 5)
	spots := []image.Point{{16, 16}, {160, 120}, {88, 40}}
	for _, p := range spots {
		draw.Draw(hay, image.Rectangle{Min: p, Max: p.Add(image.Pt(32, 32))}, item, image.Point{}, draw.Src)
	}

	matches := DefaultMatcher().FindAll(ToGray(hay), ToGray(item), 0.9)
	if len(matches) != len(spots) {
		t.Fatalf("FindAll() returned %d matches, want %d: %+v", len(matches), len(spots), matches)
	}

	seen := make(map[image.Point]bool)
	for _, m := range matches {
		seen[m.Rect.Min] = true
	}
	for _, p := range spots {
		if !seen[p] {
			t.Errorf("FindAll() missed %v", p)
		}
	}
}

func TestMatcher_FlatTemplate(t *testing.T) {
	hay := mosaic(64, 64, 8, 6)
	white := image.NewRGBA(image.Rect(0, 0, 16, 16))
	draw.Draw(white, white.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(hay, image.Rect(40, 8, 56, 24), image.White, image.Point{}, draw.Src)

	m, ok := Matcher{}.Find(ToGray(hay), ToGray(white), 0.99)
	if !ok {
		t.Fatal("Find() did not match flat template")
	}
	if m.Rect.Min != image.Pt(40, 8) {
		t.Errorf("Find() at %v, want (40,8)", m.Rect.Min)
	}
}

func TestMatcher_TemplateLargerThanHaystack(t *testing.T) {
	hay := ToGray(mosaic(16, 16, 4, 7))
	tmpl := ToGray(mosaic(32, 8, 4, 8))

	if _, ok := DefaultMatcher().Find(hay, tmpl, 0.5); ok {
		t.Error("Find() matched a template wider than the haystack")
	}
	if got := DefaultMatcher().FindAll(hay, tmpl, 0.5); got != nil {
		t.Errorf("FindAll() = %v, want nil", got)
	}
}

func TestToGray_SubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(2, 1, color.RGBA{255, 0, 0, 255})
	sub := img.SubImage(image.Rect(2, 1, 4, 3))

	g := ToGray(sub)
	if g.W != 2 || g.H != 2 {
		t.Fatalf("size = %dx%d, want 2x2", g.W, g.H)
	}
	if got := g.at(0, 0); got < 76 || got > 77 {
		t.Errorf("luma of red = %v, want ~76.2", got)
	}
	if got := g.at(1, 1); got != 0 {
		t.Errorf("luma of black = %v, want 0", got)
	}
}

func TestGray_Phases(t *testing.T) {
	g := ToGray(mosaic(20, 20, 1, 9))
	ps := g.phases(2)
	if len(ps) != 16 {
		t.Fatalf("phases(2) returned %d images, want 16", len(ps))
	}

	seen := make(map[image.Point]bool)
	for _, p := range ps {
		seen[image.Pt(p.x, p.y)] = true
		// First coarse pixel is the mean of the 4x4 block at the offset.
		var sum float32
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				sum += g.at(p.x+x, p.y+y)
			}
		}
		if got, want := p.g.at(0, 0), sum/16; math.Abs(float64(got-want)) > 1e-3 {
			t.Errorf("phase (%d,%d) origin = %v, want %v", p.x, p.y, got, want)
		}
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if !seen[image.Pt(x, y)] {
				t.Errorf("missing phase (%d,%d)", x, y)
			}
		}
	}
}

func TestMatcher_FindFineDetailOffGrid(t *testing.T) {
	hay := mosaic(320, 240, 1, 7)
	tests := []image.Point{{96, 64}, {97, 65}, {99, 67}, {98, 64}}

	for _, at := range tests {
		want := image.Rectangle{Min: at, Max: at.Add(image.Pt(48, 48))}
		tmpl := ToGray(crop(hay, want))
		g := ToGray(hay)

		m, ok := DefaultMatcher().Find(g, tmpl, 0.9)
		if !ok {
			t.Errorf("Find() at %v found nothing", at)
			continue
		}
		if m.Rect != want {
			t.Errorf("Find() = %v, want %v", m.Rect, want)
		}

		all := DefaultMatcher().FindAll(g, tmpl, 0.9)
		if len(all) == 0 || all[0].Rect != want {
			t.Errorf("FindAll() for %v = %+v", at, all)
		}
	}
}

func TestIOU(t *testing.T) {
	a := image.Rect(0, 0, 10, 10)
	if got := iou(a, a); got != 1 {
		t.Errorf("iou(a, a) = %v, want 1", got)
	}
	if got := iou(a, image.Rect(20, 20, 30, 30)); got != 0 {
		t.Errorf("iou(disjoint) = %v, want 0", got)
	}
	if got := iou(a, image.Rect(5, 0, 15, 10)); got < 0.33 || got > 0.34 {
		t.Errorf("iou(half) = %v, want 1/3", got)
	}
}
