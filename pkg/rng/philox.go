package rng

import (
	"math"
	"math/bits"
)

// Philox4x64-10 round and key-schedule constants, and the splitmix64
// increment used for seed folding.
const (
	philoxM0 = 0xD2E7470EE14C6C93
	philoxM1 = 0xCA5A826395121157
	philoxW0 = 0x9E3779B97F4A7C15
	philoxW1 = 0xBB67AE8584CAA73B
)

// Philox is a Philox4x64-10 counter generator. It is deliberately cheap
// to construct: one instance per block per draw is the intended usage, so
// construction cost is part of the sampling budget.
//
// A Philox is not safe for concurrent use; give each goroutine its own.
type Philox struct {
	key [2]uint64
	ctr [4]uint64
	buf [4]uint64
	n   int // unread words left in buf

	spare     float64 // second Box-Muller variate
	haveSpare bool
}

// New creates a generator from arbitrary seed words. The first six words
// load the key and counter directly; any further words are folded in, so
// seeds of any length produce well-separated streams.
func New(seed ...uint64) *Philox {
	p := new(Philox)
	var s [6]uint64
	for i, w := range seed {
		if i < 6 {
			s[i] = w
			continue
		}
		s[i%6] ^= splitmix64(w + philoxW0*uint64(i))
	}
	p.key[0], p.key[1] = s[0], s[1]
	copy(p.ctr[:], s[2:])
	return p
}

// splitmix64 is the finalizer of the splitmix64 generator, used to spread
// folded seed words across the full word.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

// block runs the ten Philox rounds for the current counter into buf, then
// advances the counter.
func (p *Philox) block() {
	c := p.ctr
	k0, k1 := p.key[0], p.key[1]
	for r := 0; r < 10; r++ {
		hi0, lo0 := bits.Mul64(philoxM0, c[0])
		hi1, lo1 := bits.Mul64(philoxM1, c[2])
		c[0] = hi1 ^ c[1] ^ k0
		c[1] = lo1
		c[2] = hi0 ^ c[3] ^ k1
		c[3] = lo0
		k0 += philoxW0
		k1 += philoxW1
	}
	p.buf = c
	p.n = 4

	for i := range p.ctr {
		p.ctr[i]++
		if p.ctr[i] != 0 {
			break
		}
	}
}

// Uint64 returns the next word of the stream.
func (p *Philox) Uint64() uint64 {
	if p.n == 0 {
		p.block()
	}
	p.n--
	return p.buf[3-p.n]
}

// Float64 returns a uniform variate in [0, 1) with 53 random bits.
func (p *Philox) Float64() float64 {
	return float64(p.Uint64()>>11) * 0x1p-53
}

// NormFloat64 returns a standard normal variate via the Box-Muller
// transform. Variates come in pairs; the second is cached.
func (p *Philox) NormFloat64() float64 {
	if p.haveSpare {
		p.haveSpare = false
		return p.spare
	}
	// 1-Float64 is in (0, 1], keeping the logarithm finite.
	u1 := 1 - p.Float64()
	u2 := p.Float64()
	r := math.Sqrt(-2 * math.Log(u1))
	theta := 2 * math.Pi * u2
	p.spare = r * math.Sin(theta)
	p.haveSpare = true
	return r * math.Cos(theta)
}

// ConditionalNegate flips the sign of every value when the condition
// holds. Antithetic pairing is implemented as this post-draw flip; the
// generator's stream state is never touched, so paired streams stay
// word-for-word aligned.
func ConditionalNegate(values []float64, condition bool) []float64 {
	if !condition {
		return values
	}
	for i, v := range values {
		values[i] = -v
	}
	return values
}
