package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// JSONAssertOptions controls JSON-lines comparison.
type JSONAssertOptions struct {
	IgnoredFields []string `default:""`
	Coloring      bool     `default:"false"`
}

// JSONOption is a functional option for JSONLinesAsserter.
type JSONOption func(*JSONAssertOptions)

// JSONLinesAsserter compares newline-delimited JSON object streams record by record.
type JSONLinesAsserter struct {
	t       TestingT
	options JSONAssertOptions
}

// NewJSONLinesAsserter creates a JSONLinesAsserter with default options.
func NewJSONLinesAsserter(t TestingT) *JSONLinesAsserter {
	opts := JSONAssertOptions{}
	defaults.SetDefaults(&opts)
	return &JSONLinesAsserter{t: t, options: opts}
}

// WithOptions applies functional options.
func (ja *JSONLinesAsserter) WithOptions(opts ...JSONOption) *JSONLinesAsserter {
	for _, opt := range opts {
		opt(&ja.options)
	}
	return ja
}

// WithIgnoredFields removes the named top-level keys from both sides.
func WithIgnoredFields(fields ...string) JSONOption {
	return func(o *JSONAssertOptions) { o.IgnoredFields = append(o.IgnoredFields, fields...) }
}

// Assert compares each actual line with the expected line at the same index.
func (ja *JSONLinesAsserter) Assert(actual, expected string) bool {
	actualLines := splitLines(actual)
	expectedLines := splitLines(expected)
	if len(actualLines) != len(expectedLines) {
		ja.t.Errorf("JSON lines count mismatch: expected %d, got %d\nactual:\n%s", len(expectedLines), len(actualLines), actual)
		return false
	}

	ok := true
	for i := range expectedLines {
		if diff := ja.diff(actualLines[i], expectedLines[i]); diff != "" {
			ja.t.Errorf("JSON line %d mismatch:\n%s", i, diff)
			ok = false
		}
	}
	return ok
}

func (ja *JSONLinesAsserter) diff(actualJSON, expectedJSON string) string {
	actual, err := ja.decode(actualJSON)
	if err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}
	expected, err := ja.decode(expectedJSON)
	if err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}

	d := gojsondiff.New().CompareObjects(expected, actual)
	if !d.Modified() {
		return ""
	}

	f := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       ja.options.Coloring,
	})
	out, err := f.Format(d)
	if err != nil {
		return fmt.Sprintf("failed to format diff: %v", err)
	}
	return out
}

func (ja *JSONLinesAsserter) decode(line string) (map[string]interface{}, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return nil, err
	}
	for _, field := range ja.options.IgnoredFields {
		delete(obj, field)
	}
	return obj, nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
