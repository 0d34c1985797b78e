package vision

import (
	"image"
	"math"
	"sort"
)

// Match is one template occurrence in haystack coordinates.
type Match struct {
	Rect  image.Rectangle
	Score float64
}

// Center returns the midpoint of the match rectangle.
func (m Match) Center() image.Point {
	return image.Pt((m.Rect.Min.X+m.Rect.Max.X)/2, (m.Rect.Min.Y+m.Rect.Max.Y)/2)
}

// Matcher tunes the coarse-to-fine search.
type Matcher struct {
	// MaxLevels caps the number of halvings. Zero searches at full
	// resolution only.
	MaxLevels int

	// MinSide is the smallest template side allowed on the coarsest level.
	MinSide int

	// Slack lowers the threshold on the coarse level; candidates are
	// re-scored at full resolution against the real threshold.
	Slack float64

	// MaxCandidates bounds how many coarse candidates are refined.
	MaxCandidates int

	// Overlap is the intersection-over-union above which two matches from
	// FindAll are considered the same object.
	Overlap float64
}

// DefaultMatcher returns settings suited to desktop UI captures.
func DefaultMatcher() Matcher {
	return Matcher{
		MaxLevels:     3,
		MinSide:       12,
		Slack:         0.25,
		MaxCandidates: 64,
		Overlap:       0.3,
	}
}

// flatEpsilon is the per-pixel variance below which a block is treated as flat.
const flatEpsilon = 1e-3

// Find returns the best match of tmpl in hay scoring at least threshold.
func (m Matcher) Find(hay, tmpl *Gray, threshold float64) (Match, bool) {
	matches := m.search(hay, tmpl, threshold, false)
	if len(matches) == 0 {
		return Match{}, false
	}
	return matches[0], true
}

// FindAll returns every non-overlapping match scoring at least threshold,
// best first.
func (m Matcher) FindAll(hay, tmpl *Gray, threshold float64) []Match {
	return m.search(hay, tmpl, threshold, true)
}

func (m Matcher) search(hay, tmpl *Gray, threshold float64, all bool) []Match {
	if tmpl.W == 0 || tmpl.H == 0 || tmpl.W > hay.W || tmpl.H > hay.H {
		return nil
	}

	full := newScorer(hay, tmpl)
	levels := m.levels(tmpl)

	var found []Match
	if levels == 0 {
		found = full.scan(threshold, all)
	} else {
		found = m.coarseToFine(hay, tmpl, full, levels, threshold, all)
	}
	if len(found) == 0 {
		return nil
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].Score > found[j].Score })
	if !all {
		return found[:1]
	}
	return suppress(found, m.Overlap)
}

func (m Matcher) levels(tmpl *Gray) int {
	side := tmpl.W
	if tmpl.H < side {
		side = tmpl.H
	}
	n := 0
	for n < m.MaxLevels && side>>(n+1) >= m.MinSide {
		n++
	}
	return n
}

func (m Matcher) coarseToFine(hay, tmpl *Gray, full *scorer, levels int, threshold float64, all bool) []Match {
	t := tmpl
	for i := 0; i < levels; i++ {
		t = t.half()
	}

	// Fine detail that straddles the coarse block grid averages away, so
	// every grid offset gets its own coarse pass.
	var candidates []Match
	scanned := false
	for _, p := range hay.phases(levels) {
		if t.W > p.g.W || t.H > p.g.H {
			continue
		}
		scanned = true
		for _, c := range newScorer(p.g, t).scan(threshold-m.Slack, true) {
			x, y := p.x+c.Rect.Min.X<<levels, p.y+c.Rect.Min.Y<<levels
			candidates = append(candidates, Match{Rect: image.Rect(x, y, x+tmpl.W, y+tmpl.H), Score: c.Score})
		}
	}
	if !scanned {
		return full.scan(threshold, all)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	// Neighbouring phases report the same object; collapse them before
	// the cap so distinct objects are not crowded out.
	candidates = suppress(candidates, m.Overlap)
	if len(candidates) > m.MaxCandidates {
		candidates = candidates[:m.MaxCandidates]
	}

	radius := 1 << levels
	var refined []Match
	for _, c := range candidates {
		x0, y0 := c.Rect.Min.X, c.Rect.Min.Y
		if best, ok := full.window(x0-radius, y0-radius, x0+radius, y0+radius); ok && best.Score >= threshold {
			refined = append(refined, best)
		}
	}
	return refined
}

// scorer evaluates the correlation coefficient of one template against
// every offset of one haystack.
type scorer struct {
	hay   *Gray
	in    *integral
	w, h  int
	n     float64
	zm    []float32 // template minus its mean
	tSq   float64   // sum of zm squared
	tMean float64
}

func newScorer(hay, tmpl *Gray) *scorer {
	s := &scorer{
		hay: hay,
		in:  newIntegral(hay),
		w:   tmpl.W,
		h:   tmpl.H,
		n:   float64(tmpl.W * tmpl.H),
		zm:  make([]float32, len(tmpl.Pix)),
	}
	var sum float64
	for _, v := range tmpl.Pix {
		sum += float64(v)
	}
	s.tMean = sum / s.n
	for i, v := range tmpl.Pix {
		d := float64(v) - s.tMean
		s.zm[i] = float32(d)
		s.tSq += d * d
	}
	return s
}

// at scores the template placed with its top-left corner at (x, y).
func (s *scorer) at(x, y int) float64 {
	sum, sq := s.in.rect(x, y, s.w, s.h)
	varI := sq - sum*sum/s.n

	if s.tSq < flatEpsilon*s.n {
		// A flat template only matches a flat block of the same level.
		if varI > flatEpsilon*s.n {
			return 0
		}
		return 1 - math.Abs(sum/s.n-s.tMean)/255
	}
	if varI <= flatEpsilon*s.n {
		return 0
	}

	var cross float64
	stride := s.hay.W
	for j := 0; j < s.h; j++ {
		row := s.hay.Pix[(y+j)*stride+x : (y+j)*stride+x+s.w]
		tr := s.zm[j*s.w : (j+1)*s.w]
		var acc float32
		for i, v := range row {
			acc += v * tr[i]
		}
		cross += float64(acc)
	}

	score := cross / math.Sqrt(varI*s.tSq)
	switch {
	case score > 1:
		return 1
	case score < -1:
		return -1
	}
	return score
}

// scan scores every offset. With all set it returns each local maximum at
// or above threshold; otherwise only the single best offset qualifies.
func (s *scorer) scan(threshold float64, all bool) []Match {
	cols := s.hay.W - s.w + 1
	rows := s.hay.H - s.h + 1
	scores := make([]float64, cols*rows)
	best, bestIdx := math.Inf(-1), -1
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := s.at(x, y)
			scores[y*cols+x] = v
			if v > best {
				best, bestIdx = v, y*cols+x
			}
		}
	}

	if !all {
		if bestIdx < 0 || best < threshold {
			return nil
		}
		return []Match{s.match(bestIdx%cols, bestIdx/cols, best)}
	}

	var out []Match
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := scores[y*cols+x]
			if v < threshold || !isPeak(scores, cols, rows, x, y) {
				continue
			}
			out = append(out, s.match(x, y, v))
		}
	}
	return out
}

// window returns the best offset with its top-left corner inside the
// clipped rectangle [x0, x1] x [y0, y1].
func (s *scorer) window(x0, y0, x1, y1 int) (Match, bool) {
	maxX, maxY := s.hay.W-s.w, s.hay.H-s.h
	x0, y0 = clamp(x0, 0, maxX), clamp(y0, 0, maxY)
	x1, y1 = clamp(x1, 0, maxX), clamp(y1, 0, maxY)

	best, bx, by := math.Inf(-1), -1, -1
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if v := s.at(x, y); v > best {
				best, bx, by = v, x, y
			}
		}
	}
	if bx < 0 {
		return Match{}, false
	}
	return s.match(bx, by, best), true
}

func (s *scorer) match(x, y int, score float64) Match {
	return Match{Rect: image.Rect(x, y, x+s.w, y+s.h), Score: score}
}

func isPeak(scores []float64, cols, rows, x, y int) bool {
	v := scores[y*cols+x]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			if (dx == 0 && dy == 0) || nx < 0 || ny < 0 || nx >= cols || ny >= rows {
				continue
			}
			n := scores[ny*cols+nx]
			// Ties resolve to the first offset in scan order.
			if n > v || (n == v && (ny < y || (ny == y && nx < x))) {
				return false
			}
		}
	}
	return true
}

// suppress keeps the best of each group of overlapping matches.
// matches must be sorted best first.
func suppress(matches []Match, overlap float64) []Match {
	var kept []Match
	for _, m := range matches {
		dup := false
		for _, k := range kept {
			if iou(m.Rect, k.Rect) > overlap {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, m)
		}
	}
	return kept
}

func iou(a, b image.Rectangle) float64 {
	in := a.Intersect(b)
	if in.Empty() {
		return 0
	}
	ia := float64(in.Dx() * in.Dy())
	ua := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	return ia / ua
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
