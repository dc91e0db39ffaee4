// Package param implements lazily averaged perceptron weights.
//
// A Parameter accumulates updates without touching the weight used for
// scoring, and integrates its weight over time only when folded, so the
// averaged weight is available in closed form at the end of training.
package param

import "errors"

var (
	// ErrNonMonotonic is returned when a parameter is folded at an iteration
	// that does not follow the last folded one.
	ErrNonMonotonic = errors.New("param: fold iterations must strictly increase")
	// ErrFinalized is returned when a parameter is folded or averaged after
	// it has already been averaged.
	ErrFinalized = errors.New("param: parameter already averaged")
	// ErrNoIterations is returned when averaging over zero iterations.
	ErrNoIterations = errors.New("param: cannot average over zero iterations")
)

// Parameter is a single averaged weight.
// The zero value is a parameter with weight 0 that has not been folded yet.
type Parameter struct {
	// Weight is the current value read by inference.
	Weight float64

	pending float64
	sum     float64
	// folded is the number of iterations integrated into sum, i.e. the last
	// folded iteration plus one.
	folded int
	final  bool
}

// Update adds delta to the pending update. Weight is unchanged until Fold.
func (p *Parameter) Update(delta float64) {
	p.pending += delta
}

// Pending returns the accumulated update not yet folded into Weight.
func (p *Parameter) Pending() float64 {
	return p.pending
}

// RunningSum returns the integral of Weight over the folded iterations.
func (p *Parameter) RunningSum() float64 {
	return p.sum
}

// LastFold returns the last folded iteration, or -1 if never folded.
func (p *Parameter) LastFold() int {
	return p.folded - 1
}

// Final reports whether the parameter has been averaged.
func (p *Parameter) Final() bool {
	return p.final
}

// Fold integrates Weight over the iterations since the last fold up to and
// including iteration, then applies the pending update.
func (p *Parameter) Fold(iteration int) error {
	if p.final {
		return ErrFinalized
	}
	if iteration < p.folded {
		return ErrNonMonotonic
	}
	p.sum += p.Weight * float64(iteration+1-p.folded)
	p.Weight += p.pending
	p.pending = 0
	p.folded = iteration + 1
	return nil
}

// Average collapses the parameter to the mean of its weight over the
// iterations [0, total). It may be called once.
func (p *Parameter) Average(total int) error {
	if p.final {
		return ErrFinalized
	}
	if total <= 0 {
		return ErrNoIterations
	}
	if p.folded > total {
		return ErrNonMonotonic
	}
	if p.folded < total {
		if err := p.Fold(total - 1); err != nil {
			return err
		}
	}
	// An update folded at total-1 only affects iteration total.
	p.pending = 0
	p.Weight = p.sum / float64(total)
	p.final = true
	return nil
}
