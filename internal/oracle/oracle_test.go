package oracle

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/coverage"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/planner"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/tdp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var (
	_ tdp.Oracle = (*Replay)(nil)
	_ tdp.Oracle = (*Script)(nil)
	_ tdp.Oracle = (*Prompt)(nil)
	_ tdp.Oracle = (*Command)(nil)
)

func test(name string) planner.AvailableTest {
	return planner.AvailableTest{Name: name, EstimatedTrace: coverage.NewElementSet("A")}
}

func TestReplay(t *testing.T) {
	r := NewReplay(coverage.Spectrum{
		Elements: []string{"A", "B"},
		Tests:    []coverage.TestCase{{Name: "ok"}, {Name: "bad", Failed: true}},
		Matrix:   [][]bool{{true, false}, {true, true}},
	})

	res, err := r.Execute(context.Background(), test("bad"))
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, []string{"A", "B"}, res.ActualTrace.Sorted())

	res, err = r.Execute(context.Background(), test("ok"))
	require.NoError(t, err)
	assert.True(t, res.Passed)

	_, err = r.Execute(context.Background(), test("other"))
	assert.ErrorIs(t, err, ErrUnknownTest)
}

const script = `
default: pass
outcomes:
  T#a: fail
  T#b: PASSED
traces:
  T#a: [A, C]
`

func TestScript(t *testing.T) {
	s, err := ParseScript(strings.NewReader(script))
	require.NoError(t, err)

	tests := []struct {
		name   string
		passed bool
		trace  []string
	}{
		{"T#a", false, []string{"A", "C"}},
		{"T#b", true, nil},
		{"T#other", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Execute(context.Background(), test(tt.name))
			require.NoError(t, err)
			assert.Equal(t, tt.name, res.Name)
			assert.Equal(t, tt.passed, res.Passed)
			if tt.trace == nil {
				assert.Empty(t, res.ActualTrace)
			} else {
				assert.Equal(t, tt.trace, res.ActualTrace.Sorted())
			}
		})
	}
}

func TestScript_NoDefault(t *testing.T) {
	s, err := ParseScript(strings.NewReader("outcomes:\n  T#a: f\n"))
	require.NoError(t, err)

	_, err = s.Execute(context.Background(), test("T#b"))
	assert.ErrorIs(t, err, ErrUnknownTest)
}

func TestParseScript_Invalid(t *testing.T) {
	tests := []string{
		"default: maybe\n",
		"outcomes:\n  T#a: skipped\n",
		"outcomes: [\n",
	}
	for _, in := range tests {
		_, err := ParseScript(strings.NewReader(in))
		assert.Error(t, err, in)
	}
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oracle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o644))

	s, err := LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, "fail", s.Outcomes["T#a"])

	_, err = LoadScript(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPrompt(t *testing.T) {
	defer goleak.VerifyNone(t)

	var out bytes.Buffer
	p := NewPrompt(strings.NewReader("maybe\nf\npass\n"), &out)

	res, err := p.Execute(context.Background(), test("T#a"))
	require.NoError(t, err)
	assert.False(t, res.Passed)

	res, err = p.Execute(context.Background(), test("T#b"))
	require.NoError(t, err)
	assert.True(t, res.Passed)

	_, err = p.Execute(context.Background(), test("T#c"))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	assert.Contains(t, out.String(), "Run test T#a")
	assert.Contains(t, out.String(), "Please answer p or f.")
}

func TestPrompt_Cancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, w := io.Pipe()
	p := NewPrompt(r, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Execute(ctx, test("T#a"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Closing the input lets the reader goroutine finish.
	require.NoError(t, w.Close())
}

func TestCommand_Render(t *testing.T) {
	c, err := NewCommand(DefaultCommand, 0, 0, nil)
	require.NoError(t, err)

	line, err := c.Render("org.example.CalcTest#testAdd")
	require.NoError(t, err)
	assert.Equal(t, "mvn -q test -Dtest=org.example.CalcTest#testAdd", line)

	_, err = NewCommand("{{.Broken", 0, 0, nil)
	assert.Error(t, err)

	c, err = NewCommand("{{.Missing}}", 0, 0, nil)
	require.NoError(t, err)
	_, err = c.Render("T#a")
	assert.Error(t, err)
}

func TestCommand_Execute(t *testing.T) {
	c, err := NewCommand(`test "{{.Method}}" = "good"`, 0, 0, nil)
	require.NoError(t, err)

	res, err := c.Execute(context.Background(), test("T#good"))
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, "T#good", res.Name)

	res, err = c.Execute(context.Background(), test("T#bad"))
	require.NoError(t, err)
	assert.False(t, res.Passed)
}

func TestCommand_MissingShell(t *testing.T) {
	c, err := NewCommand("true", 0, 0, nil)
	require.NoError(t, err)
	c.Shell = []string{filepath.Join(t.TempDir(), "no-such-shell")}

	_, err = c.Execute(context.Background(), test("T#a"))
	assert.Error(t, err)
}

func TestCommand_Throttled(t *testing.T) {
	c, err := NewCommand("true", 1, 1, nil)
	require.NoError(t, err)

	_, err = c.Execute(context.Background(), test("T#a"))
	require.NoError(t, err)

	// The second call would wait about a second for a token.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Execute(ctx, test("T#b"))
	assert.Error(t, err)
}
