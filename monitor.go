package owlmon

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/sync/errgroup"
)

// Verdict is the three-valued runtime-monitoring output.
type Verdict int

const (
	// VerdictUndecided means the trace seen so far decides nothing yet.
	VerdictUndecided Verdict = iota
	// VerdictTrue means the property definitely holds on every extension.
	VerdictTrue
	// VerdictFalse means the property definitely fails on every extension.
	VerdictFalse
)

func (v Verdict) String() string {
	switch v {
	case VerdictTrue:
		return "true"
	case VerdictFalse:
		return "false"
	case VerdictUndecided:
		return "undecided"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// monitorSide pairs one trimmed automaton with its live state-set and the
// formula whose translation map resolves its labels.
type monitorSide struct {
	formula *TemporalFormula
	a       *LabelledAutomaton
	live    *bitset.BitSet
}

// Monitor tracks a temporal property over a stream of observations. It owns
// two trimmed automatons, one for the formula and one for its negation, and
// a live state-set for each; the verdict is derived from which of the two
// sets has run empty. Not safe for concurrent use.
type Monitor struct {
	oracle Oracle
	logger *slog.Logger

	global []Axiom
	pos    monitorSide
	neg    monitorSide

	steps int
}

type monitorConfig struct {
	global      []Axiom
	constraints *TemporalFormula
}

type MonitorOption func(*monitorConfig)

// WithGlobalContext adds background axioms that hold at every time point.
func WithGlobalContext(axioms ...Axiom) MonitorOption {
	return func(c *monitorConfig) { c.global = append(c.global, axioms...) }
}

// WithConstraints conjoins a constraint formula onto both the property and
// its negation before the automatons are built.
func WithConstraints(g *TemporalFormula) MonitorOption {
	return func(c *monitorConfig) { c.constraints = g }
}

// NewMonitor builds and trims the automaton pair for formula and its
// negation, each through the given builder, and initializes the live
// state-set pair to the two initial-state sets. The two sides build
// concurrently; a failure on either side fails construction.
func NewMonitor(ctx context.Context, b *Builder, formula *TemporalFormula, opts ...MonitorOption) (*Monitor, error) {
	var cfg monitorConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	pos := formula
	neg := formula.Negation()
	if cfg.constraints != nil {
		pos = pos.Conjunction(cfg.constraints)
		neg = neg.Conjunction(cfg.constraints)
	}

	m := &Monitor{
		oracle: b.oracle,
		logger: b.logger,
		global: cfg.global,
		pos:    monitorSide{formula: pos},
		neg:    monitorSide{formula: neg},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, side := range []*monitorSide{&m.pos, &m.neg} {
		side := side
		g.Go(func() error {
			a, err := b.Build(gctx, side.formula, cfg.global)
			if err != nil {
				return fmt.Errorf("build %q: %w", side.formula.Abstraction(), err)
			}
			a.Trim()
			side.a = a
			side.live = a.InitialStates()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

// Step advances both live state-sets by one observation. For each automaton,
// a live state's outgoing symbol is followed iff the symbol's axiom set is
// jointly satisfiable with the observation (and the global context). The
// step is atomic: both successor sets are computed fully before either is
// committed, so a failed step leaves the monitor unchanged. Stepping an
// already empty side yields an empty successor set, which keeps a decided
// verdict sticky.
func (m *Monitor) Step(ctx context.Context, observation []Axiom) error {
	nextPos, err := m.successors(ctx, &m.pos, observation)
	if err != nil {
		return err
	}
	nextNeg, err := m.successors(ctx, &m.neg, observation)
	if err != nil {
		return err
	}

	m.pos.live = nextPos
	m.neg.live = nextNeg
	m.steps++

	if v, err := m.Verdict(); err != nil {
		m.logger.Debug("monitor step", "step", m.steps, "error", err)
	} else {
		m.logger.Debug("monitor step",
			"step", m.steps,
			"verdict", v.String(),
			"live_formula", m.pos.live.Count(),
			"live_negation", m.neg.live.Count())
	}
	return nil
}

// successors computes one side's successor state-set. Distinct outgoing
// symbols are checked against the oracle concurrently and memoized per
// symbol, then destinations are unioned in ascending order; the destination
// set is a commutative accumulation, so evaluation order cannot change it.
func (m *Monitor) successors(ctx context.Context, side *monitorSide, observation []Axiom) (*bitset.BitSet, error) {
	symSet := make(map[Symbol]struct{})
	for s, ok := side.live.NextSet(0); ok; s, ok = side.live.NextSet(s + 1) {
		for sym := range side.a.Transitions(int(s)) {
			symSet[sym] = struct{}{}
		}
	}
	syms := make([]Symbol, 0, len(symSet))
	for sym := range symSet {
		syms = append(syms, sym)
	}
	sort.Slice(syms, func(i, j int) bool { return syms[i] < syms[j] })

	ambient := append(append([]Axiom{}, m.global...), observation...)
	allowed := make([]bool, len(syms))
	g, gctx := errgroup.WithContext(ctx)
	for i, sym := range syms {
		i, sym := i, sym
		g.Go(func() error {
			axioms, err := translateLabel(side.formula, side.a.Alphabet().Literals(sym), ambient)
			if err != nil {
				return err
			}
			ok, err := m.oracle.IsConsistent(gctx, axioms)
			if err != nil {
				return fmt.Errorf("check symbol {%s}: %w", side.a.Alphabet().Key(sym), err)
			}
			allowed[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	follow := make(map[Symbol]bool, len(syms))
	for i, sym := range syms {
		follow[sym] = allowed[i]
	}

	next := bitset.New(uint(side.a.NumStates()))
	for s, ok := side.live.NextSet(0); ok; s, ok = side.live.NextSet(s + 1) {
		for sym, dsts := range side.a.Transitions(int(s)) {
			if follow[sym] {
				next.InPlaceUnion(dsts)
			}
		}
	}
	return next, nil
}

// Verdict derives the three-valued verdict from the live state-set pair: an
// empty formula side means no accepting run of the formula survives (False);
// otherwise an empty negation side means True; otherwise Undecided. Both
// sides empty is an invariant violation and is surfaced as
// ErrTraceInconsistent rather than as a fourth verdict.
func (m *Monitor) Verdict() (Verdict, error) {
	posEmpty := m.pos.live.None()
	negEmpty := m.neg.live.None()
	switch {
	case posEmpty && negEmpty:
		return VerdictUndecided, fmt.Errorf("%w (after %d steps)", ErrTraceInconsistent, m.steps)
	case posEmpty:
		return VerdictFalse, nil
	case negEmpty:
		return VerdictTrue, nil
	default:
		return VerdictUndecided, nil
	}
}

// CurrentStatePair returns the sorted state names of the formula side and
// the negation side, for read-only introspection.
func (m *Monitor) CurrentStatePair() ([]string, []string) {
	return m.pos.a.StateNames(m.pos.live), m.neg.a.StateNames(m.neg.live)
}
