// Command owlmon runs the runtime monitor over a declarative model: a
// serialized compiler output (edge lists per propositional abstraction), a
// translation map of clause axioms, rigid names, and an observation trace.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	owlmon "github.com/mzq42/OWLMonTool"
	"github.com/mzq42/OWLMonTool/sat"
)

type edgeSpec struct {
	Source        string   `yaml:"source"`
	Target        string   `yaml:"target"`
	Label         []string `yaml:"label"`
	SourceInitial bool     `yaml:"sourceInitial"`
	SourceFinal   bool     `yaml:"sourceFinal"`
	TargetInitial bool     `yaml:"targetInitial"`
	TargetFinal   bool     `yaml:"targetFinal"`
}

type modelFile struct {
	Formula     string                `yaml:"formula"`
	Automata    map[string][]edgeSpec `yaml:"automata"`
	Translation map[string]string     `yaml:"translation"`
	Rigid       []string              `yaml:"rigid"`
	Context     []string              `yaml:"context"`
	Trace       [][]string            `yaml:"trace"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "owlmon:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "owlmon",
		Short:         "Automaton-based runtime verification of temporal properties",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		modelPath string
		tracePath string
		verbose   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Step the monitor over a trace and report the verdict",
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return run(cmd.Context(), cmd, modelPath, tracePath, logger)
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "model document (required)")
	cmd.Flags().StringVar(&tracePath, "trace", "", "trace document overriding the model's trace")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, modelPath, tracePath string, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	model, err := loadModel(modelPath)
	if err != nil {
		return err
	}
	trace := model.Trace
	if tracePath != "" {
		if trace, err = loadTrace(tracePath); err != nil {
			return err
		}
	}

	formula, err := owlmon.NewTemporalFormula(model.Formula, translationMap(model.Translation), model.Rigid)
	if err != nil {
		return err
	}

	builder := owlmon.NewBuilder(compilerFrom(model.Automata), sat.NewOracle(), owlmon.WithLogger(logger))
	monitor, err := owlmon.NewMonitor(ctx, builder, formula, owlmon.WithGlobalContext(parseAxioms(model.Context)...))
	if err != nil {
		return err
	}

	final := owlmon.VerdictUndecided
	for i, obs := range trace {
		if err := monitor.Step(ctx, parseAxioms(obs)); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		v, err := monitor.Verdict()
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "step %d: %s\n", i+1, v)
		final = v
	}

	fmt.Fprintf(cmd.OutOrStdout(), "result: %s\n", final)
	if final == owlmon.VerdictFalse {
		return errors.New("property violated")
	}
	return nil
}

func loadModel(path string) (*modelFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var model modelFile
	if err := yaml.Unmarshal(raw, &model); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	return &model, nil
}

func loadTrace(path string) ([][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var trace [][]string
	if err := yaml.Unmarshal(raw, &trace); err != nil {
		return nil, fmt.Errorf("parse trace %s: %w", path, err)
	}
	return trace, nil
}

func translationMap(entries map[string]string) owlmon.TranslationMap {
	tm := make(owlmon.TranslationMap, len(entries)+1)
	for name, clause := range entries {
		tm[name] = sat.ParseClause(clause)
	}
	if _, ok := tm[owlmon.AnyKey]; !ok {
		tm[owlmon.AnyKey] = sat.Verum{}
	}
	return tm
}

func compilerFrom(automata map[string][]edgeSpec) owlmon.EdgeListCompiler {
	compiler := make(owlmon.EdgeListCompiler, len(automata))
	for abstraction, specs := range automata {
		edges := make([]owlmon.Edge, len(specs))
		for i, s := range specs {
			label := make([]owlmon.Literal, len(s.Label))
			for j, l := range s.Label {
				label[j] = owlmon.ParseLiteral(l)
			}
			edges[i] = owlmon.Edge{
				Source:        s.Source,
				Target:        s.Target,
				Label:         label,
				SourceInitial: s.SourceInitial,
				SourceFinal:   s.SourceFinal,
				TargetInitial: s.TargetInitial,
				TargetFinal:   s.TargetFinal,
			}
		}
		compiler[abstraction] = edges
	}
	return compiler
}

func parseAxioms(clauses []string) []owlmon.Axiom {
	axioms := make([]owlmon.Axiom, len(clauses))
	for i, c := range clauses {
		axioms[i] = sat.ParseClause(c)
	}
	return axioms
}
