// Package gzoltar reads the text spectrum GZoltar writes under
// .gzoltar/sfl/txt and the JSON spectrum used by the HTTP API.
package gzoltar

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/coverage"
)

// DefaultDir is where GZoltar writes its text report relative to a project.
const DefaultDir = ".gzoltar/sfl/txt"

// File names inside a GZoltar text report directory.
const (
	SpectraFile = "spectra.csv"
	TestsFile   = "tests.csv"
	MatrixFile  = "matrix.txt"
)

// ErrMalformed is returned when report files are missing or inconsistent.
var ErrMalformed = errors.New("malformed gzoltar report")

// Read loads the spectrum stored in a GZoltar text report directory.
func Read(dir string) (coverage.Spectrum, error) {
	var s coverage.Spectrum

	elements, err := readFile(filepath.Join(dir, SpectraFile), ParseElements)
	if err != nil {
		return s, err
	}
	tests, err := readFile(filepath.Join(dir, TestsFile), ParseTests)
	if err != nil {
		return s, err
	}
	matrix, err := readFile(filepath.Join(dir, MatrixFile), func(r io.Reader) ([][]bool, error) {
		return ParseMatrix(r, len(tests), len(elements))
	})
	if err != nil {
		return s, err
	}

	s = coverage.Spectrum{Elements: elements, Tests: tests, Matrix: matrix}
	if err := s.Validate(); err != nil {
		return coverage.Spectrum{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return s, nil
}

// Load reads a spectrum from path, which is either a GZoltar report
// directory or a JSON spectrum file.
func Load(path string) (coverage.Spectrum, error) {
	info, err := os.Stat(path)
	if err != nil {
		return coverage.Spectrum{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if info.IsDir() {
		return Read(path)
	}
	return readFile(path, ReadJSON)
}

func readFile[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	defer func() { _ = f.Close() }()

	v, err := parse(f)
	if err != nil {
		return zero, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return v, nil
}

// ParseElements reads one element identifier per line. Blank lines and a
// leading "name" header are skipped. Identifiers often
// contain commas, so lines are not split.
func ParseElements(r io.Reader) ([]string, error) {
	var elements []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if len(elements) == 0 && isHeader(line) {
			continue
		}
		elements = append(elements, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("%w: no elements", ErrMalformed)
	}
	return elements, nil
}

// ParseTests reads name,outcome[,runtime,stacktrace] records. The outcome is
// PASS or FAIL; anything else is an error.
func ParseTests(r io.Reader) ([]coverage.TestCase, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var tests []coverage.TestCase
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		if len(tests) == 0 && isHeader(rec[0]) {
			continue
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("%w: line %d: missing outcome", ErrMalformed, line)
		}

		tc := coverage.TestCase{Name: strings.TrimSpace(rec[0])}
		switch strings.ToUpper(strings.TrimSpace(rec[1])) {
		case "PASS":
		case "FAIL":
			tc.Failed = true
		default:
			return nil, fmt.Errorf("%w: line %d: unknown outcome %q", ErrMalformed, line, rec[1])
		}
		tests = append(tests, tc)
	}
	return tests, nil
}

// ParseMatrix reads one row of space-separated 0/1 cells per test. A row may
// end with the + or - outcome marker GZoltar appends, which is ignored.
func ParseMatrix(r io.Reader, numTests, numElements int) ([][]bool, error) {
	matrix := make([][]bool, 0, numTests)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if last := fields[len(fields)-1]; last == "+" || last == "-" {
			fields = fields[:len(fields)-1]
		}
		if len(fields) != numElements {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrMalformed, len(matrix)+1, len(fields), numElements)
		}

		row := make([]bool, numElements)
		for j, f := range fields {
			switch f {
			case "1":
				row[j] = true
			case "0":
			default:
				return nil, fmt.Errorf("%w: row %d: invalid cell %q", ErrMalformed, len(matrix)+1, f)
			}
		}
		matrix = append(matrix, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(matrix) != numTests {
		return nil, fmt.Errorf("%w: %d matrix rows for %d tests", ErrMalformed, len(matrix), numTests)
	}
	return matrix, nil
}

// isHeader matches the "name" column header. Element and test identifiers
// may themselves contain "name", so only an exact match counts.
func isHeader(field string) bool {
	return strings.EqualFold(strings.TrimSpace(field), "name")
}
