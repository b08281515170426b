package refine

import (
	"math/rand/v2"
	"sync"
)

// Question is what a Chooser picks from.
type Question struct {
	// Candidates are the diseases still in play, sorted.
	Candidates []string
	// Symptoms are the distinguishing symptoms in vocabulary order. Never empty.
	Symptoms []string
	// Coverage counts, per symptom, how many candidates have it.
	Coverage map[string]int
}

// Chooser selects the next symptom to ask about.
type Chooser interface {
	Choose(q Question) string
}

// ChooserFunc adapts a function to Chooser.
type ChooserFunc func(q Question) string

// Choose calls f.
func (f ChooserFunc) Choose(q Question) string { return f(q) }

// SplitChooser picks the symptom that most evenly splits the candidates: the
// one whose coverage is closest to half of them. Ties go to the earliest
// symptom in vocabulary order.
type SplitChooser struct{}

// Choose implements Chooser.
func (SplitChooser) Choose(q Question) string {
	best, bestDist := "", -1
	for _, s := range q.Symptoms {
		// Doubled to stay in integers: |2c - n|.
		d := 2*q.Coverage[s] - len(q.Candidates)
		if d < 0 {
			d = -d
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}

// RandomChooser picks uniformly at random. Safe for concurrent use.
type RandomChooser struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomChooser returns a RandomChooser seeded with seed.
func NewRandomChooser(seed uint64) *RandomChooser {
	return &RandomChooser{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Choose implements Chooser.
func (c *RandomChooser) Choose(q Question) string {
	if len(q.Symptoms) == 0 {
		return ""
	}
	c.mu.Lock()
	i := c.rng.IntN(len(q.Symptoms))
	c.mu.Unlock()
	return q.Symptoms[i]
}
