// Package oracle provides tdp.Oracle implementations: replaying recorded
// outcomes, scripted answers, interactive prompts and shell commands.
package oracle

import (
	"errors"
	"strings"
)

// ErrUnknownTest is returned when an oracle has no answer for a test.
var ErrUnknownTest = errors.New("unknown test")

// splitID splits pkg.Class#method into its class and method parts.
func splitID(id string) (class, method string) {
	if i := strings.LastIndex(id, "#"); i >= 0 {
		return id[:i], id[i+1:]
	}
	return id, ""
}
