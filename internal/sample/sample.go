// Package sample implements the token sampling policy: additive logit bias,
// temperature scaling, nucleus (top-p) truncation, and log-probability
// reporting.
package sample

import (
	"math"
	"math/rand"
	"sort"
)

// Policy configures sampling for one generation call. It is immutable for the
// duration of the call.
type Policy struct {
	// Temperature scales logits before sampling; 0 selects greedy argmax.
	Temperature float64
	// TopP enables nucleus sampling when in (0, 1).
	TopP float64
	// RepetitionPenalty penalises recently emitted tokens when > 0.
	// 1 is a legal no-op; 0 disables the filter entirely.
	RepetitionPenalty float64
	// RepetitionContextSize bounds the recent-token history considered by
	// the repetition penalty.
	RepetitionContextSize int
	// LogitBias is added to the named token logits before normalisation.
	LogitBias map[int]float32
	// Seed initialises the sampler RNG so runs are reproducible.
	Seed int64
}

// Sampler draws tokens from logits vectors according to a Policy. It carries
// no state besides its RNG and scratch buffers.
type Sampler struct {
	policy Policy
	rng    *rand.Rand

	scratch []float32
	order   []int
}

// New returns a sampler for the given policy.
func New(p Policy) *Sampler {
	return &Sampler{
		policy: p,
		rng:    rand.New(rand.NewSource(p.Seed)),
	}
}

// Sample picks a token id from the logits vector and returns it together with
// the log-probability vector. Logprobs are logits - logsumexp(logits) over
// the biased logits, computed before sampling touches anything. The function
// is total over finite logits.
func (s *Sampler) Sample(logits []float32) (int, []float32) {
	if len(s.scratch) < len(logits) {
		s.scratch = make([]float32, len(logits))
	}
	biased := s.scratch[:len(logits)]
	copy(biased, logits)
	for id, bias := range s.policy.LogitBias {
		if id >= 0 && id < len(biased) {
			biased[id] += bias
		}
	}

	logprobs := make([]float32, len(biased))
	lse := logSumExp(biased)
	for i, l := range biased {
		logprobs[i] = l - lse
	}

	if s.policy.Temperature == 0 {
		return Argmax(biased), logprobs
	}
	if p := s.policy.TopP; p > 0 && p < 1 {
		return s.topP(biased), logprobs
	}
	return s.categorical(biased), logprobs
}

// categorical samples proportionally to softmax(logits / temperature).
func (s *Sampler) categorical(logits []float32) int {
	invTemp := 1 / s.policy.Temperature
	maxv := logits[Argmax(logits)]
	var sum float64
	probs := make([]float64, len(logits))
	for i, l := range logits {
		e := math.Exp((float64(l) - float64(maxv)) * invTemp)
		probs[i] = e
		sum += e
	}
	r := s.rng.Float64() * sum
	var c float64
	for i, p := range probs {
		c += p
		if r <= c {
			return i
		}
	}
	return len(logits) - 1
}

// topP restricts the candidate set to the smallest group of highest
// probability tokens whose cumulative mass reaches TopP, renormalises, and
// samples within it.
func (s *Sampler) topP(logits []float32) int {
	invTemp := 1 / s.policy.Temperature
	maxv := logits[Argmax(logits)]
	probs := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		e := math.Exp((float64(l) - float64(maxv)) * invTemp)
		probs[i] = e
		sum += e
	}
	for i := range probs {
		probs[i] /= sum
	}

	if cap(s.order) < len(logits) {
		s.order = make([]int, len(logits))
	}
	order := s.order[:len(logits)]
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return probs[order[a]] > probs[order[b]] })

	cut := len(order)
	var cum float64
	for i, id := range order {
		cum += probs[id]
		if cum >= s.policy.TopP {
			cut = i + 1
			break
		}
	}

	r := s.rng.Float64() * cum
	var c float64
	for i := 0; i < cut; i++ {
		c += probs[order[i]]
		if r <= c {
			return order[i]
		}
	}
	return order[cut-1]
}

// Argmax returns the index of the maximum value; ties resolve to the lowest
// index. It panics on an empty slice.
func Argmax(x []float32) int {
	if len(x) == 0 {
		panic("sample: argmax of empty slice")
	}
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}

func logSumExp(x []float32) float32 {
	maxv := x[Argmax(x)]
	var sum float64
	for _, l := range x {
		sum += math.Exp(float64(l - maxv))
	}
	return maxv + float32(math.Log(sum))
}
