package gzoltar

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/coverage"
)

// jsonSpectrum is the on-disk JSON layout. Matrix cells are 0/1 so files
// stay compact and match the text report.
type jsonSpectrum struct {
	Elements []string            `json:"elements"`
	Tests    []coverage.TestCase `json:"tests"`
	Matrix   [][]int             `json:"matrix"`
}

// ReadJSON decodes and validates a JSON spectrum.
func ReadJSON(r io.Reader) (coverage.Spectrum, error) {
	var raw jsonSpectrum
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return coverage.Spectrum{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return FromJSON(raw.Elements, raw.Tests, raw.Matrix)
}

// FromJSON builds a validated spectrum from 0/1 matrix cells.
func FromJSON(elements []string, tests []coverage.TestCase, cells [][]int) (coverage.Spectrum, error) {
	s := coverage.Spectrum{Elements: elements, Tests: tests, Matrix: make([][]bool, len(cells))}
	for i, row := range cells {
		s.Matrix[i] = make([]bool, len(row))
		for j, c := range row {
			if c != 0 && c != 1 {
				return coverage.Spectrum{}, fmt.Errorf("%w: matrix[%d][%d] = %d", ErrMalformed, i, j, c)
			}
			s.Matrix[i][j] = c == 1
		}
	}
	if err := s.Validate(); err != nil {
		return coverage.Spectrum{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return s, nil
}

// WriteJSON encodes s in the layout ReadJSON accepts.
func WriteJSON(w io.Writer, s coverage.Spectrum) error {
	raw := jsonSpectrum{Elements: s.Elements, Tests: s.Tests, Matrix: make([][]int, len(s.Matrix))}
	for i, row := range s.Matrix {
		raw.Matrix[i] = make([]int, len(row))
		for j, covered := range row {
			if covered {
				raw.Matrix[i][j] = 1
			}
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(raw)
}
