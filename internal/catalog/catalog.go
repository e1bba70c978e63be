// Package catalog supplies the identifiers of tests that can be planned,
// either from a list file or by scanning JUnit sources.
package catalog

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/coverage"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/planner"
)

// DefaultFile is where discovered test identifiers are written.
const DefaultFile = "tdp-data/available-tests.txt"

// Provider lists test identifiers in pkg.Class#method form.
type Provider interface {
	Tests(ctx context.Context) ([]string, error)
}

// FileProvider reads one identifier per line. Blank lines and lines
// starting with # are ignored.
type FileProvider struct {
	Path string
}

// Tests implements Provider.
func (p FileProvider) Tests(ctx context.Context) ([]string, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() { _ = f.Close() }()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ids, nil
}

// Resolve attaches the coverage recorded in spectrum to each identifier.
// Identifiers without a recorded, non-empty trace cannot be planned and are
// dropped. The input order is kept and duplicates are removed.
func Resolve(ids []string, spectrum coverage.Spectrum) []planner.AvailableTest {
	seen := make(map[string]struct{}, len(ids))
	var out []planner.AvailableTest
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		i := spectrum.IndexOf(id)
		if i < 0 {
			continue
		}
		if trace := spectrum.Trace(i); len(trace) > 0 {
			out = append(out, planner.AvailableTest{Name: id, EstimatedTrace: trace})
		}
	}
	return out
}

// Write stores ids sorted and deduplicated, one per line, creating the
// parent directory when needed.
func Write(path string, ids []string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	var b strings.Builder
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		b.WriteString(id)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	return nil
}
