package testutils

import (
	"strings"
	"testing"
)

func TestJSONAsserter_DefaultOptions(t *testing.T) {
	ja := NewJSONLinesAsserter(t)

	if len(ja.options.IgnoredFields) != 0 {
		t.Errorf("Expected no ignored fields by default, got %v", ja.options.IgnoredFields)
	}
	if ja.options.Coloring {
		t.Error("Expected Coloring to be false by default")
	}
}

func TestJSONAsserter_KeyOrderAndBlankLines(t *testing.T) {
	mockT := &mockTestingT{}

	ok := NewJSONLinesAsserter(mockT).Assert(
		`{"type":"batch","size":2}`+"\n"+`{"type":"observation","seq":1,"name":null}`+"\n",
		`
{"size":2,"type":"batch"}

{"name":null,"seq":1,"type":"observation"}
`)

	if !ok || mockT.errorCalled {
		t.Errorf("Expected records to match, got: %s", mockT.errorMessage)
	}
}

func TestJSONAsserter_ValueMismatch(t *testing.T) {
	mockT := &mockTestingT{}

	ok := NewJSONLinesAsserter(mockT).Assert(
		`{"type":"observation","rssi":-55}`,
		`{"type":"observation","rssi":-40}`,
	)

	if ok || !mockT.errorCalled {
		t.Fatal("Expected mismatch to be reported")
	}
	if !strings.Contains(mockT.errorMessage, "JSON line 0 mismatch") {
		t.Errorf("Expected line index in message, got: %s", mockT.errorMessage)
	}
	if !strings.Contains(mockT.errorMessage, "rssi") {
		t.Errorf("Expected diff to name the field, got: %s", mockT.errorMessage)
	}
}

func TestJSONAsserter_LineCountMismatch(t *testing.T) {
	mockT := &mockTestingT{}

	ok := NewJSONLinesAsserter(mockT).Assert(`{"a":1}`, "{\"a\":1}\n{\"a\":2}")

	if ok || !strings.Contains(mockT.errorMessage, "count mismatch") {
		t.Errorf("Expected line count mismatch, got: %s", mockT.errorMessage)
	}
}

func TestJSONAsserter_IgnoredFields(t *testing.T) {
	mockT := &mockTestingT{}

	ok := NewJSONLinesAsserter(mockT).
		WithOptions(WithIgnoredFields("received_at")).
		Assert(
			`{"seq":1,"received_at":"2024-05-01T12:00:00.123Z"}`,
			`{"seq":1,"received_at":"anything"}`,
		)

	if !ok || mockT.errorCalled {
		t.Errorf("Expected ignored field to be skipped, got: %s", mockT.errorMessage)
	}
}

func TestJSONAsserter_InvalidJSON(t *testing.T) {
	mockT := &mockTestingT{}

	ok := NewJSONLinesAsserter(mockT).Assert(`{"a":`, `{"a":1}`)

	if ok || !strings.Contains(mockT.errorMessage, "invalid actual JSON") {
		t.Errorf("Expected invalid JSON to be reported, got: %s", mockT.errorMessage)
	}
}
