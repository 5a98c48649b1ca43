package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// extractJSON strips markdown fences and any prose around the outermost
// JSON object of a model response.
func extractJSON(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		lines := strings.Split(raw, "\n")
		if len(lines) >= 2 {
			end := len(lines)
			if strings.TrimSpace(lines[end-1]) == "```" {
				end--
			}
			raw = strings.Join(lines[1:end], "\n")
		}
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return "", errors.New("no JSON object in response")
	}
	return raw[start : end+1], nil
}

// decodeResponse parses a model response into v.
func decodeResponse(raw string, v any) error {
	obj, err := extractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("json parse: %w", err)
	}
	return nil
}

// text accepts any JSON value and keeps it as a string. Arrays become one
// line per element; objects are kept as indented JSON.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*t = text(stringify(v))
	return nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		var out bytes.Buffer
		if json.Indent(&out, b, "", "  ") != nil {
			return string(b)
		}
		return out.String()
	}
}

// findings accepts an array or a single string and always yields a
// non-nil list with one trimmed finding per element.
type findings []string

func (f *findings) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case []any:
		out := []string{}
		for _, item := range x {
			if s := stripMarker(stringify(item)); s != "" {
				out = append(out, s)
			}
		}
		*f = out
	default:
		*f = NormalizeFindings(stringify(x))
	}
	return nil
}

var listMarker = regexp.MustCompile(`^(?:[-*•+]|\d+[.)]|\(\d+\))\s+`)

func stripMarker(s string) string {
	return strings.TrimSpace(listMarker.ReplaceAllString(strings.TrimSpace(s), ""))
}

// NormalizeFindings splits free text into one finding per line, dropping
// blank lines and list markers. The result is never nil.
func NormalizeFindings(s string) []string {
	out := []string{}
	for _, line := range strings.Split(s, "\n") {
		if line = stripMarker(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// score accepts a number or a string such as "7", "7.5/10" or "85/100".
// ok is false when the model omitted the score or it could not be read.
type score struct {
	value float64
	ok    bool
}

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

func (s *score) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*s = score{value: x, ok: true}
	case string:
		*s = parseScore(x)
	default:
		*s = score{}
	}
	return nil
}

func parseScore(str string) score {
	m := numberPattern.FindString(str)
	if m == "" {
		return score{}
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return score{}
	}
	if strings.Contains(str, "/100") {
		v /= 10
	}
	return score{value: v, ok: true}
}

// clampScore bounds a rubric score to [0, 10].
func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(10, v))
}

// lookup walks a dotted path through nested JSON objects and stringifies
// the value found. Missing paths yield "".
func lookup(m map[string]any, path string) string {
	var cur any = m
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = obj[key]
	}
	return stringify(cur)
}
