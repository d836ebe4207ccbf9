// Package fingerprint maps error events to stable grouping keys.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/craterhq/crater/pkg/models"
)

// DefaultDepth is how many top stack frames contribute to the fingerprint.
const DefaultDepth = 5

// unknownLocation stands in for the stack when an event carries no frames.
const unknownLocation = "unknown"

const delimiter = "\x1f"

// Engine computes deterministic fingerprints. Pure; safe for concurrent use.
type Engine struct {
	depth int
}

// NewEngine creates an Engine hashing up to depth stack frames.
// Non-positive depth falls back to DefaultDepth.
func NewEngine(depth int) *Engine {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Engine{depth: depth}
}

// Compute derives the grouping key for an event. A non-empty override is
// used verbatim, which lets callers install manual grouping rules.
// Otherwise the key is a SHA-256 over the normalized error type and the
// first frames' file+function. Line numbers are excluded: they shift
// across refactors while the logical location stays put.
func (e *Engine) Compute(ev models.ErrorEvent, override string) (string, error) {
	if key := strings.TrimSpace(override); key != "" {
		return key, nil
	}

	errType := normalize(ev.ErrorType)
	if errType == "" {
		return "", fmt.Errorf("error type is required: %w", models.ErrValidation)
	}

	parts := []string{errType}
	frames := ev.Frames
	if len(frames) > e.depth {
		frames = frames[:e.depth]
	}
	for _, f := range frames {
		parts = append(parts, normalize(f.File)+":"+normalize(f.Function))
	}
	if len(frames) == 0 {
		parts = append(parts, unknownLocation)
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, delimiter)))
	return fmt.Sprintf("%x", hash), nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
