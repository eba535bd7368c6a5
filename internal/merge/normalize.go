package merge

import (
	"fmt"
	"regexp"
	"strings"
)

// The engine may annotate output with inline region markers and emit math
// in LaTeX-style delimiters. Both rewrites here are mechanical; no attempt
// is made to correct the recognized text itself.
var (
	reRefMarker       = regexp.MustCompile(`(?s)<\|ref\|>(.*?)<\|/ref\|>`)
	reDetMarker       = regexp.MustCompile(`(?s)<\|det\|>.*?<\|/det\|>`)
	reGroundingMarker = regexp.MustCompile(`<\|grounding\|>`)
	reDisplayMath     = regexp.MustCompile(`(?s)\\\[(.*?)\\\]`)
	reInlineMath      = regexp.MustCompile(`(?s)\\\((.*?)\\\)`)
	reUnbalancedRef   = regexp.MustCompile(`<\|/?(?:ref|det)\|>`)
)

// NormalizeFragment strips region markers and canonicalizes math delimiters
// into the standard $ / $$ pairs. The input is returned unchanged alongside
// the error when the fragment cannot be normalized safely.
func NormalizeFragment(fragment string) (string, error) {
	if fragment == "" {
		return fragment, nil
	}

	out := reRefMarker.ReplaceAllString(fragment, "$1")
	out = reDetMarker.ReplaceAllString(out, "")
	out = reGroundingMarker.ReplaceAllString(out, "")

	// A marker with no closing pair would leave tokens behind; refuse
	// rather than emit half-stripped output.
	if reUnbalancedRef.MatchString(out) {
		return fragment, fmt.Errorf("unbalanced region markers in fragment")
	}

	out = reDisplayMath.ReplaceAllStringFunc(out, func(m string) string {
		inner := reDisplayMath.FindStringSubmatch(m)[1]
		return "$$" + strings.TrimSpace(inner) + "$$"
	})
	out = reInlineMath.ReplaceAllStringFunc(out, func(m string) string {
		inner := reInlineMath.FindStringSubmatch(m)[1]
		return "$" + strings.TrimSpace(inner) + "$"
	})

	return out, nil
}
