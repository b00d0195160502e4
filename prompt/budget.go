package prompt

import (
	"errors"
	"fmt"
	"sort"
)

// ErrBudgetExceeded reports a budget that cannot be honored: either the
// floors alone outgrow the total, or an instruction template is longer
// than its view's entire allocation.
var ErrBudgetExceeded = errors.New("token budget exceeded")

// Estimator converts text to an approximate token count using a byte
// heuristic. It over-counts slightly on dense prose, which keeps assembled
// prompts on the safe side of the model window.
type Estimator struct {
	BytesPerToken int
}

// DefaultEstimator assumes four bytes per token.
func DefaultEstimator() Estimator {
	return Estimator{BytesPerToken: 4}
}

// Estimate returns ceil(len(s) / BytesPerToken).
func (e Estimator) Estimate(s string) int {
	per := e.BytesPerToken
	if per <= 0 {
		per = 4
	}
	if len(s) == 0 {
		return 0
	}
	return (len(s) + per - 1) / per
}

// AllocateBudgets splits the total prompt budget across the named views in
// proportion to their weights. Every view receives at least floor tokens and
// the allocations never sum past total. Views absent from weights, or with a
// non-positive weight, count as weight 1.
func AllocateBudgets(total int, names []string, weights map[string]float64, floor int) (map[string]int, error) {
	if len(names) == 0 {
		return map[string]int{}, nil
	}
	if floor < 1 {
		floor = 1
	}
	if total < floor*len(names) {
		return nil, fmt.Errorf("%w: total %d cannot cover a floor of %d for %d views", ErrBudgetExceeded, total, floor, len(names))
	}

	ordered := append([]string(nil), names...)
	sort.Strings(ordered)

	resolved := make(map[string]float64, len(ordered))
	var weightSum float64
	for _, name := range ordered {
		w := weights[name]
		if w <= 0 {
			w = 1
		}
		resolved[name] = w
		weightSum += w
	}

	spread := total - floor*len(ordered)
	out := make(map[string]int, len(ordered))
	allocated := 0
	for _, name := range ordered {
		share := floor + int(float64(spread)*resolved[name]/weightSum)
		out[name] = share
		allocated += share
	}

	// Flooring the shares can leave a few tokens unspent; hand them to the
	// heaviest views one at a time.
	leftovers := total - allocated
	if leftovers > 0 {
		byWeight := append([]string(nil), ordered...)
		sort.SliceStable(byWeight, func(i, j int) bool {
			if resolved[byWeight[i]] != resolved[byWeight[j]] {
				return resolved[byWeight[i]] > resolved[byWeight[j]]
			}
			return byWeight[i] < byWeight[j]
		})
		for i := 0; leftovers > 0; i++ {
			out[byWeight[i%len(byWeight)]]++
			leftovers--
		}
	}
	return out, nil
}
