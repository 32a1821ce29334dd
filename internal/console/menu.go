// Package console implements the interactive menu: pick a strategy, enter an
// evaluator with an example vector, choose a direction, watch the run.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/copyleftdev/blackopt/internal/optimization"
	"github.com/copyleftdev/blackopt/internal/optimization/vector"
	"github.com/copyleftdev/blackopt/internal/runs"
)

// DefaultLine is used when the evaluator prompt is left empty
const DefaultLine = "modelo10.exe baixo 500 500 500 500 500"

const banner = "=================================================="

// Runner executes a run. *runs.Service implements it.
type Runner interface {
	Run(ctx context.Context, req runs.Request) (*runs.Outcome, error)
}

// Menu is the interactive loop. It is not safe for concurrent use.
type Menu struct {
	in     *bufio.Scanner
	out    io.Writer
	runner Runner
}

// New creates a menu reading answers from in and writing prompts to out
func New(in io.Reader, out io.Writer, runner Runner) *Menu {
	return &Menu{
		in:     bufio.NewScanner(in),
		out:    out,
		runner: runner,
	}
}

// Loop shows the menu until the user exits, input ends or ctx is cancelled
func (m *Menu) Loop(ctx context.Context) error {
	for ctx.Err() == nil {
		m.printMenu()

		choice, ok := m.prompt("\nChoose → ")
		if !ok {
			return nil
		}
		if choice == "0" {
			m.printf("Bye!\n")
			return nil
		}

		strategy, err := menuStrategy(choice)
		if err != nil {
			m.printf("Invalid option!\n")
			continue
		}

		if err := m.session(ctx, strategy); err != nil {
			return err
		}

		if _, ok := m.prompt("\nPress ENTER to continue..."); !ok {
			return nil
		}
	}
	return nil
}

// session asks for the remaining inputs and runs one optimization
func (m *Menu) session(ctx context.Context, strategy runs.Strategy) error {
	line, ok := m.prompt("\nEvaluator + example (e.g. model.exe low 1 2 3): ")
	if !ok {
		line = ""
	}
	if line == "" {
		line = DefaultLine
	}

	fields := strings.Fields(line)
	command := fields[0]
	example := strings.Join(fields[1:], " ")

	initial, kinds := vector.Infer(example)
	m.printf("\nDetected: %d params → %s\n", len(initial), formatKinds(kinds))

	answer, _ := m.prompt("1=Max 2=Min [1]: ")
	direction, err := optimization.ParseDirection(answer)
	if err != nil {
		m.printf("Unknown direction %q, maximizing.\n", answer)
		direction = optimization.Maximize
	}

	m.printf("\n%s running (%s)...\n", strategy.Method(), direction)

	progress := newProgressPrinter(m.out, direction)
	out, err := m.runner.Run(ctx, runs.Request{
		Strategy:   strategy,
		Command:    command,
		Example:    example,
		Direction:  direction,
		OnProgress: progress.observe,
	})
	if err != nil {
		m.printf("Error: %v\n", err)
		return nil
	}

	rec := out.Record
	m.printf("\nFinished %s (%s) in %.1fs, %d evaluations\n", rec.Method, rec.Termination, rec.Elapsed.Seconds(), rec.Evaluations)
	m.printf("Best score: %.6f\n", rec.BestScore)
	m.printf("Final config: %s\n", rec.Final)
	return nil
}

func (m *Menu) printMenu() {
	m.printf("\n%s\n", banner)
	for _, s := range runs.Strategies {
		m.printf("  %d) %s\n", int(s), s.Method())
	}
	m.printf("  0) Exit\n")
	m.printf("%s\n", banner)
}

// prompt writes label and reads one trimmed line. It reports false once the
// input is exhausted.
func (m *Menu) prompt(label string) (string, bool) {
	m.printf("%s", label)
	if !m.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(m.in.Text()), true
}

func (m *Menu) printf(format string, args ...interface{}) {
	fmt.Fprintf(m.out, format, args...)
}

// menuStrategy accepts the menu numbers only
func menuStrategy(choice string) (runs.Strategy, error) {
	switch choice {
	case "1", "2", "3":
		return runs.ParseStrategy(choice)
	default:
		return 0, fmt.Errorf("invalid option %q", choice)
	}
}

func formatKinds(kinds []vector.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// progressPrinter prints a line whenever the global best improves
type progressPrinter struct {
	out       io.Writer
	direction optimization.Direction
	best      float64
	seen      bool
}

func newProgressPrinter(out io.Writer, direction optimization.Direction) *progressPrinter {
	return &progressPrinter{out: out, direction: direction}
}

func (p *progressPrinter) observe(pr optimization.Progress) {
	if p.seen && !p.direction.Better(pr.BestScore, p.best) {
		return
	}
	p.seen = true
	p.best = pr.BestScore
	fmt.Fprintf(p.out, "  %s %d/%d → %.6f\n", pr.Phase, pr.Iteration, pr.Total, pr.BestScore)
}
