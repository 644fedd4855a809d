package indicator

import "spiderexec/internal/model"

// Stochastic calculates the stochastic oscillator %K and %D lines.
//
// Raw %K = 100 * (close - lowestLow(kPeriod)) / (highestHigh(kPeriod) - lowestLow(kPeriod))
// %K     = SMA(raw %K, smoothPeriod)
// %D     = SMA(%K, dPeriod)
//
// Unlike the single-value indicators, Stochastic exposes both lines; the
// Indicator interface's Value() returns %K.
type Stochastic struct {
	kPeriod      int
	dPeriod      int
	smoothPeriod int

	highs  *ring
	lows   *ring
	rawBuf *ring // raw %K window for smoothing
	kBuf   *ring // smoothed %K window for %D

	k, d  float64
	count int
}

// NewStochastic creates a stochastic oscillator with the given %K lookback,
// %D period, and %K smoothing period.
func NewStochastic(kPeriod, dPeriod, smoothPeriod int) *Stochastic {
	return &Stochastic{
		kPeriod:      kPeriod,
		dPeriod:      dPeriod,
		smoothPeriod: smoothPeriod,
		highs:        newRing(kPeriod),
		lows:         newRing(kPeriod),
		rawBuf:       newRing(smoothPeriod),
		kBuf:         newRing(dPeriod),
	}
}

func (s *Stochastic) Name() string { return "STOCH" }

func (s *Stochastic) Update(bar model.Bar) {
	s.count++
	s.highs.push(bar.High)
	s.lows.push(bar.Low)

	hh := s.highs.max()
	ll := s.lows.min()

	raw := 50.0 // flat range: undefined, hold midpoint
	if hh > ll {
		raw = 100 * (bar.Close - ll) / (hh - ll)
	}
	s.rawBuf.push(raw)
	s.k = s.rawBuf.mean()
	s.kBuf.push(s.k)
	s.d = s.kBuf.mean()
}

// Value returns the smoothed %K line.
func (s *Stochastic) Value() float64 { return s.k }

// K returns the smoothed %K line.
func (s *Stochastic) K() float64 { return s.k }

// D returns the %D line.
func (s *Stochastic) D() float64 { return s.d }

func (s *Stochastic) Ready() bool {
	return s.count >= s.kPeriod+s.smoothPeriod+s.dPeriod-2
}

// ring is a fixed-size float window with O(n) aggregates; n is an
// indicator period, small enough that scans beat bookkeeping.
type ring struct {
	buf []float64
	idx int
	n   int
}

func newRing(size int) *ring {
	return &ring{buf: make([]float64, size)}
}

func (r *ring) push(v float64) {
	r.buf[r.idx] = v
	r.idx = (r.idx + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

func (r *ring) max() float64 {
	m := r.buf[0]
	for i := 1; i < r.n; i++ {
		if r.buf[i] > m {
			m = r.buf[i]
		}
	}
	return m
}

func (r *ring) min() float64 {
	m := r.buf[0]
	for i := 1; i < r.n; i++ {
		if r.buf[i] < m {
			m = r.buf[i]
		}
	}
	return m
}

func (r *ring) mean() float64 {
	if r.n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < r.n; i++ {
		sum += r.buf[i]
	}
	return sum / float64(r.n)
}
