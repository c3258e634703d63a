package owlmon

import "errors"

var (
	// ErrUnknownSymbol marks a transition label that references an atom
	// absent from the translation map.
	ErrUnknownSymbol = errors.New("transition label references an atom missing from the translation map")

	// ErrMissingAnyEntry marks a translation map without the reserved
	// wildcard entry.
	ErrMissingAnyEntry = errors.New(`translation map lacks the reserved "any" entry`)

	// ErrTraceInconsistent is surfaced when both monitor state-sets are
	// empty at once: the oracle found no formula interpretation consistent
	// with the trace at all.
	ErrTraceInconsistent = errors.New("trace is inconsistent with both the formula and its negation")

	// ErrProductTooLarge marks a rigid-name product exploration that grew
	// past its structural bound, which means the history memoization broke.
	ErrProductTooLarge = errors.New("rigid-name product exceeded its state bound")

	// ErrUnknownAbstraction marks a propositional abstraction the edge-list
	// compiler has no automaton for.
	ErrUnknownAbstraction = errors.New("no automaton known for propositional abstraction")
)
