package oracle

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/planner"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/tdp"
)

// Prompt asks a person to run each test and type its outcome.
type Prompt struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan string
}

// NewPrompt returns a Prompt reading answers from in and writing
// questions to out.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: in, out: out}
}

// start reads input lines in the background so Execute can honor
// cancellation. The goroutine ends when in is exhausted.
func (p *Prompt) start() {
	p.lines = make(chan string)
	go func() {
		defer close(p.lines)
		sc := bufio.NewScanner(p.in)
		for sc.Scan() {
			p.lines <- sc.Text()
		}
	}()
}

// Execute implements tdp.Oracle.
func (p *Prompt) Execute(ctx context.Context, test planner.AvailableTest) (tdp.TestResult, error) {
	p.once.Do(p.start)

	fmt.Fprintf(p.out, "\nRun test %s\n", test.Name)
	for {
		fmt.Fprint(p.out, "Did this test PASS or FAIL? (p/f): ")
		select {
		case <-ctx.Done():
			return tdp.TestResult{}, ctx.Err()
		case line, ok := <-p.lines:
			if !ok {
				return tdp.TestResult{}, io.ErrUnexpectedEOF
			}
			passed, err := parseOutcome(line)
			if err != nil {
				fmt.Fprintf(p.out, "Please answer p or f.\n")
				continue
			}
			return tdp.TestResult{Name: test.Name, Passed: passed}, nil
		}
	}
}
