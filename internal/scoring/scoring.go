// Package scoring turns check results into a weighted 0-100 score.
//
// pass earns the full weight, warn half of it and fail nothing. skip and error results are
// excluded from both the earned total and the denominator. Percentages are rounded half to
// even using integer arithmetic, so ties such as 1.5% or 62.5% always resolve the same way.
package scoring

import (
	"github.com/scan-io-git/cloudsentinel/internal/model"
)

type tally struct {
	// earned in half-weight units so warn stays integral
	halves int
	total  int
}

func (t *tally) add(r model.Result) {
	switch r.Status {
	case model.StatusPass:
		t.halves += 2 * r.Weight
		t.total += r.Weight
	case model.StatusWarn:
		t.halves += r.Weight
		t.total += r.Weight
	case model.StatusFail:
		t.total += r.Weight
	}
}

func (t tally) score() int {
	if t.total == 0 {
		return 0
	}
	return roundHalfEven(100*t.halves, 2*t.total)
}

// roundHalfEven returns num/den rounded to the nearest integer, ties to even. num >= 0, den > 0.
func roundHalfEven(num, den int) int {
	q, r := num/den, num%den
	switch {
	case 2*r > den:
		q++
	case 2*r == den && q%2 == 1:
		q++
	}
	return q
}

// Rules returns the contribution factor of each status; nil means excluded.
func Rules() map[model.Status]*float64 {
	f := func(v float64) *float64 { return &v }
	return map[model.Status]*float64{
		model.StatusPass:  f(1.0),
		model.StatusWarn:  f(0.5),
		model.StatusFail:  f(0.0),
		model.StatusSkip:  nil,
		model.StatusError: nil,
	}
}

// Compute scores results. It is a pure function of the multiset of results: order never
// matters and the input is not modified.
func Compute(results []model.Result) (int, model.Breakdown) {
	var overall tally
	domains := make(map[string]*tally)
	counts := make(map[model.Status]int, len(model.Statuses))
	for _, st := range model.Statuses {
		counts[st] = 0
	}

	for _, r := range results {
		counts[r.Status]++
		d, ok := domains[r.Domain]
		if !ok {
			d = &tally{}
			domains[r.Domain] = d
		}
		d.add(r)
		overall.add(r)
	}

	domainScores := make(map[string]int, len(domains))
	for name, d := range domains {
		domainScores[name] = d.score()
	}

	score := overall.score()
	return score, model.Breakdown{
		TotalWeight:  overall.total,
		Earned:       float64(overall.halves) / 2,
		StatusCounts: counts,
		DomainScores: domainScores,
		Rules:        Rules(),
	}
}
