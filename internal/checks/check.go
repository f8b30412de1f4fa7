package checks

import (
	"context"
	"fmt"

	"github.com/scan-io-git/cloudsentinel/internal/model"
	sentinelerrors "github.com/scan-io-git/cloudsentinel/pkg/shared/errors"
)

// Definition is the static description of a check. Everything except the status,
// evidence and recommendation of a result comes from here.
type Definition struct {
	ID         string
	Title      string
	Domain     string
	Severity   model.Severity
	Weight     int
	References []string
	// ErrorHint names the permission or precondition the check needs. It becomes the
	// recommendation when the check quarantines itself.
	ErrorHint string
}

// Validate rejects definitions that could never produce a valid result.
func (d Definition) Validate() error {
	_, err := model.NewResult(model.Result{
		ID:       d.ID,
		Status:   model.StatusSkip,
		Severity: d.Severity,
		Weight:   d.Weight,
	})
	if err != nil {
		return fmt.Errorf("check %q: %w", d.ID, err)
	}
	if d.Title == "" || d.Domain == "" {
		return fmt.Errorf("check %q: title and domain are required", d.ID)
	}
	return nil
}

// Outcome is what a check body decides.
type Outcome struct {
	Status         model.Status
	Evidence       map[string]interface{}
	Recommendation string
}

// Result builds a Result from the definition and an outcome. An empty recommendation is
// left empty; the check body decides whether it has advice.
func (d Definition) Result(o Outcome) (model.Result, error) {
	refs := make([]string, len(d.References))
	copy(refs, d.References)
	return model.NewResult(model.Result{
		ID:             d.ID,
		Title:          d.Title,
		Domain:         d.Domain,
		Severity:       d.Severity,
		Status:         o.Status,
		Weight:         d.Weight,
		Evidence:       o.Evidence,
		Recommendation: o.Recommendation,
		References:     refs,
	})
}

// ErrorResult is the self-quarantine result: status error, the diagnostic in evidence.error
// and the error hint as recommendation.
func (d Definition) ErrorResult(err error) model.Result {
	evidence := map[string]interface{}{
		"error": sentinelerrors.DescribeAWSError(err),
	}
	if code := sentinelerrors.AWSErrorCode(err); code != "" {
		evidence["error_code"] = code
	}
	hint := d.ErrorHint
	if hint == "" {
		hint = fmt.Sprintf("Ensure the scanning role has the read permissions %s needs.", d.ID)
	}
	weight := d.Weight
	if weight <= 0 {
		weight = model.DefaultWeight
	}
	return model.Result{
		ID:             d.ID,
		Title:          d.Title,
		Domain:         d.Domain,
		Severity:       d.Severity,
		Status:         model.StatusError,
		Weight:         weight,
		Evidence:       evidence,
		Recommendation: hint,
		References:     []string{},
	}
}

// Check evaluates one control against an environment of type E.
type Check[E any] interface {
	Definition() Definition
	Evaluate(ctx context.Context, env E, region string) model.Result
}

// EvalFunc is a check body. Returning an error quarantines the check.
type EvalFunc[E any] func(ctx context.Context, env E, region string) (Outcome, error)

type funcCheck[E any] struct {
	def Definition
	fn  EvalFunc[E]
}

// New wraps fn as a Check. The returned check never panics and always yields exactly one
// result.
func New[E any](def Definition, fn EvalFunc[E]) Check[E] {
	return &funcCheck[E]{def: def, fn: fn}
}

func (c *funcCheck[E]) Definition() Definition {
	return c.def
}

func (c *funcCheck[E]) Evaluate(ctx context.Context, env E, region string) (result model.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			result = c.def.ErrorResult(fmt.Errorf("check panicked: %v", rec))
		}
	}()

	out, err := c.fn(ctx, env, region)
	if err != nil {
		return c.def.ErrorResult(err)
	}
	r, err := c.def.Result(out)
	if err != nil {
		return c.def.ErrorResult(fmt.Errorf("invalid result: %w", err))
	}
	return r
}
