package montecarlo

import (
	"fmt"

	"github.com/optionfolio/optionfolio/internal/models"
)

// UnsupportedInstrumentError reports a variant tag the payoff evaluator does
// not recognize. It is fatal to the simulation call and never retried.
type UnsupportedInstrumentError struct {
	Variant models.InstrumentVariant
}

func (e *UnsupportedInstrumentError) Error() string {
	return fmt.Sprintf("unsupported instrument variant: %q", string(e.Variant))
}

// InvalidTermsError reports contract terms that cannot be simulated, such as
// a missing strike on an option variant or a non-positive quantity. It is
// surfaced before any simulation runs.
type InvalidTermsError struct {
	Reason string
}

func (e *InvalidTermsError) Error() string {
	return "invalid position terms: " + e.Reason
}
