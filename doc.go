// Package owlmon implements automaton-based runtime verification of linear
// temporal properties whose atomic propositions stand for axioms about the
// current observation.
//
// A TemporalFormula pairs a propositional LTL abstraction with a translation
// map from atoms to axioms. A Builder turns the external compiler's output
// into a LabelledAutomaton, keeping each transition iff a satisfiability
// oracle accepts its translated axiom set; when rigid (time-invariant) names
// are declared, a product construction keyed by the history of symbols read
// so far makes them behave as invariants across time points. Trim prunes
// every state that cannot lie on an infinite accepting run. A Monitor holds
// the trimmed automatons for a formula and its negation, advances both live
// state-sets per observation, and derives a three-valued verdict from their
// emptiness.
//
// LTL-to-automaton translation and the oracle's reasoning are external; the
// sat subpackage ships a propositional oracle for tests and the CLI.
package owlmon
