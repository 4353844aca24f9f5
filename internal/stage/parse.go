package stage

import (
	"regexp"
	"strings"
)

// Parsed is the result of tolerant parsing. When Structured is false only
// Raw is meaningful and callers should show the text as is.
type Parsed[T any] struct {
	Structured bool   `json:"structured"`
	Value      T      `json:"value,omitempty"`
	Raw        string `json:"raw"`
}

// Validation is the validator's verdict.
type Validation struct {
	Decision string `json:"decision"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
}

// Relation is one suggested column pairing.
type Relation struct {
	X    string `json:"x"`
	Y    string `json:"y"`
	Type string `json:"type"`
}

// inlineReason matches a "Reason:" marker following the decision on the
// same line.
var inlineReason = regexp.MustCompile(`(?i)[*_]*\breason[*_ ]*:`)

// ParseValidation looks for "Decision:" and "Reason:" markers at the start of
// a line, case-insensitively. A reason may also follow the decision on the
// same line. A decision is required for a structured result.
func ParseValidation(text string) Parsed[Validation] {
	out := Parsed[Validation]{Raw: text}
	var v Validation
	var found bool
	for _, line := range strings.Split(text, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "*_#")
		line = strings.TrimSpace(line)
		if val, ok := afterMarker(line, "decision"); ok && !found {
			if loc := inlineReason.FindStringIndex(val); loc != nil {
				v.Reason = strings.Trim(val[loc[1]:], "*_ ")
				val = val[:loc[0]]
			}
			v.Decision = strings.Trim(val, "*_ .,;-")
			v.Accepted = strings.Contains(strings.ToUpper(v.Decision), "YES")
			found = true
			continue
		}
		if val, ok := afterMarker(line, "reason"); ok && v.Reason == "" {
			v.Reason = strings.Trim(val, "*_ ")
		}
	}
	if !found || v.Decision == "" {
		return out
	}
	out.Structured = true
	out.Value = v
	return out
}

// afterMarker returns the text after "<marker>:" when line starts with it.
func afterMarker(line, marker string) (string, bool) {
	if len(line) <= len(marker) || !strings.EqualFold(line[:len(marker)], marker) {
		return "", false
	}
	rest := strings.TrimLeft(line[len(marker):], "*_ ")
	if !strings.HasPrefix(rest, ":") {
		return "", false
	}
	return strings.TrimSpace(rest[1:]), true
}

// ParseRelations reads lines shaped like "- X: a | Y: b | Type: c". Lines
// that do not fit are ignored; with no usable line the result is
// unstructured.
func ParseRelations(text string) Parsed[[]Relation] {
	out := Parsed[[]Relation]{Raw: text}
	for _, line := range strings.Split(text, "\n") {
		line = stripBullet(line)
		if !strings.Contains(line, "|") {
			continue
		}
		var r Relation
		for _, seg := range strings.Split(line, "|") {
			key, val, ok := strings.Cut(seg, ":")
			if !ok {
				continue
			}
			val = strings.Trim(strings.TrimSpace(val), "[]`*\"'")
			switch strings.ToLower(strings.Trim(strings.TrimSpace(key), "*_")) {
			case "x":
				r.X = val
			case "y":
				r.Y = val
			case "type":
				r.Type = val
			}
		}
		if r.X != "" && r.Y != "" {
			out.Value = append(out.Value, r)
		}
	}
	out.Structured = len(out.Value) > 0
	return out
}

// ParseBullets splits text into items, dropping list markers ("-", "*",
// "•", "1.", "2)") and blank lines.
func ParseBullets(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if item := stripBullet(line); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// bulletMarker matches one leading list marker and the whitespace after it.
var bulletMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])(?:\s+|$)`)

func stripBullet(line string) string {
	return strings.TrimSpace(bulletMarker.ReplaceAllString(line, ""))
}

var pythonBlock = regexp.MustCompile("(?s)```(?:python|py)[ \t]*\r?\n(.*?)\r?\n```")

// ExtractPython returns the first fenced python block, or "" when none.
func ExtractPython(text string) string {
	m := pythonBlock.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}
