package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"text/template"
	"time"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/planner"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/tdp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultCommand runs a single JUnit method through Maven Surefire.
const DefaultCommand = `mvn -q test -Dtest={{.Class}}#{{.Method}}`

// CommandData is the data a command template is rendered with.
type CommandData struct {
	Test   string
	Class  string
	Method string
}

// Command runs a shell command per test. Exit status 0 means the test
// passed, any other exit status means it failed.
type Command struct {
	tmpl    *template.Template
	limiter *rate.Limiter
	log     *zap.Logger

	// Dir is the working directory of the command.
	Dir string
	// Shell runs the rendered command line. Defaults to sh -c.
	Shell []string
}

// NewCommand parses tmpl and returns a Command that starts at most rps
// commands per second with the given burst. rps <= 0 disables throttling.
func NewCommand(tmpl string, rps float64, burst int, log *zap.Logger) (*Command, error) {
	t, err := template.New("command").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command template: %w", err)
	}
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Command{
		tmpl:    t,
		limiter: rate.NewLimiter(limit, burst),
		log:     log,
		Shell:   []string{"sh", "-c"},
	}, nil
}

// Render returns the command line for a test.
func (c *Command) Render(test string) (string, error) {
	class, method := splitID(test)
	var b strings.Builder
	if err := c.tmpl.Execute(&b, CommandData{Test: test, Class: class, Method: method}); err != nil {
		return "", fmt.Errorf("failed to render command: %w", err)
	}
	return b.String(), nil
}

// Execute implements tdp.Oracle.
func (c *Command) Execute(ctx context.Context, test planner.AvailableTest) (tdp.TestResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return tdp.TestResult{}, err
	}
	line, err := c.Render(test.Name)
	if err != nil {
		return tdp.TestResult{}, err
	}

	shell := c.Shell
	if len(shell) == 0 {
		shell = []string{"sh", "-c"}
	}
	cmd := exec.CommandContext(ctx, shell[0], append(shell[1:len(shell):len(shell)], line)...)
	cmd.Dir = c.Dir
	cmd.Env = os.Environ()
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err = cmd.Run()
	res := tdp.TestResult{Name: test.Name, Duration: time.Since(start)}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Passed = true
	case ctx.Err() != nil:
		return tdp.TestResult{}, ctx.Err()
	case errors.As(err, &exitErr):
		res.Passed = false
	default:
		return tdp.TestResult{}, fmt.Errorf("failed to run %q: %w", line, err)
	}

	c.log.Debug("test command finished",
		zap.String("test", test.Name),
		zap.String("command", line),
		zap.Bool("passed", res.Passed),
		zap.Duration("duration", res.Duration),
		zap.String("output", tail(output.String(), 2048)))
	return res, nil
}

// tail keeps the last n bytes of s, where test runners print the verdict.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
