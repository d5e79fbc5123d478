package flow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestExtractor(gen Generator) *FieldExtractor {
	e := NewFieldExtractor(gen)
	e.baseDelay = time.Millisecond
	return e
}

func TestExtractCleanJSON(t *testing.T) {
	gen := &mockGenerator{responses: []scriptedResponse{
		{text: `{"patient_name": "Maria Lopez", "location": "Downtown Clinic"}`},
	}}
	e := newTestExtractor(gen)

	got := e.Extract(context.Background(), "Maria Lopez at the downtown clinic", []string{"patient_name", "location"})
	if got["patient_name"] != "Maria Lopez" {
		t.Errorf("patient_name = %q, want %q", got["patient_name"], "Maria Lopez")
	}
	if got["location"] != "Downtown Clinic" {
		t.Errorf("location = %q, want %q", got["location"], "Downtown Clinic")
	}
}

func TestExtractRepairsSingleQuotes(t *testing.T) {
	gen := &mockGenerator{responses: []scriptedResponse{
		{text: `{'procedure_type': 'dental cleaning'}`},
	}}
	e := newTestExtractor(gen)

	got := e.Extract(context.Background(), "a dental cleaning please", []string{"procedure_type"})
	if got["procedure_type"] != "dental cleaning" {
		t.Errorf("procedure_type = %q, want %q", got["procedure_type"], "dental cleaning")
	}
	if gen.callCount() != 1 {
		t.Errorf("repair should not consume an extra attempt, got %d calls", gen.callCount())
	}
}

func TestExtractStripsCodeFences(t *testing.T) {
	gen := &mockGenerator{responses: []scriptedResponse{
		{text: "```json\n{\"location\": \"North Branch\"}\n```"},
	}}
	e := newTestExtractor(gen)

	got := e.Extract(context.Background(), "north branch", []string{"location"})
	if got["location"] != "North Branch" {
		t.Errorf("location = %q, want %q", got["location"], "North Branch")
	}
}

func TestExtractRetriesParseFailures(t *testing.T) {
	gen := &mockGenerator{responses: []scriptedResponse{
		{text: "sorry, I cannot do that"},
		{err: errors.New("timeout")},
		{text: `{"patient_gender": "female"}`},
	}}
	e := newTestExtractor(gen)

	got := e.Extract(context.Background(), "she is female", []string{"patient_gender"})
	if got["patient_gender"] != "female" {
		t.Errorf("patient_gender = %q, want %q", got["patient_gender"], "female")
	}
	if gen.callCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", gen.callCount())
	}
}

func TestExtractExhaustionReturnsEmpty(t *testing.T) {
	gen := &mockGenerator{responses: []scriptedResponse{{text: "not json at all"}}}
	e := newTestExtractor(gen)

	got := e.Extract(context.Background(), "anything", []string{"patient_name"})
	if len(got) != 0 {
		t.Errorf("expected empty result after exhausted retries, got %v", got)
	}
	if gen.callCount() != DefaultMaxAttempts {
		t.Errorf("expected %d attempts, got %d", DefaultMaxAttempts, gen.callCount())
	}
}

func TestExtractNoFieldsSkipsModelCall(t *testing.T) {
	gen := &mockGenerator{}
	e := newTestExtractor(gen)

	got := e.Extract(context.Background(), "anything", nil)
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
	if gen.callCount() != 0 {
		t.Errorf("expected no model call, got %d", gen.callCount())
	}
}

func TestSanitizeExtracted(t *testing.T) {
	parsed := map[string]interface{}{
		"patient_name":   "John Doe",
		"patient_gender": "Not provided",
		"procedure_type": "checkup",
		"location":       "",
		"date":           "01/01/2020",
		"time":           "sometime",
		"unrequested":    "value",
		"nested":         map[string]interface{}{"x": 1},
	}
	fields := []string{"patient_name", "patient_gender", "procedure_type", "location", "date", "time", "nested"}

	got := sanitizeExtracted(parsed, fields)

	if _, ok := got["patient_name"]; ok {
		t.Error("placeholder patient name should be dropped")
	}
	if _, ok := got["patient_gender"]; ok {
		t.Error("'Not provided' sentinel should be dropped")
	}
	if _, ok := got["location"]; ok {
		t.Error("empty value should be dropped")
	}
	if _, ok := got["date"]; ok {
		t.Error("past date should be dropped")
	}
	if _, ok := got["time"]; ok {
		t.Error("unparseable time should be dropped")
	}
	if _, ok := got["unrequested"]; ok {
		t.Error("unrequested field should be dropped")
	}
	if _, ok := got["nested"]; ok {
		t.Error("non-scalar value should be dropped")
	}
	if got["procedure_type"] != "checkup" {
		t.Errorf("procedure_type = %q, want %q", got["procedure_type"], "checkup")
	}
}

func TestSanitizeExtractedKeepsRealNames(t *testing.T) {
	parsed := map[string]interface{}{"patient_name": "Dorothy Chen"}
	got := sanitizeExtracted(parsed, []string{"patient_name"})
	if got["patient_name"] != "Dorothy Chen" {
		t.Errorf("patient_name = %q, want %q", got["patient_name"], "Dorothy Chen")
	}
}

func TestSanitizeExtractedStringifiesScalars(t *testing.T) {
	parsed := map[string]interface{}{"patient_age": float64(34)}
	got := sanitizeExtracted(parsed, []string{"patient_age"})
	if got["patient_age"] != "34" {
		t.Errorf("patient_age = %q, want %q", got["patient_age"], "34")
	}
}
