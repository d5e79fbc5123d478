package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const extractorSystemPrompt = "Extract the requested information from the user's message. Respond with a single JSON object mapping field names to extracted values. Omit fields that are not mentioned."

// FieldExtractor turns unstructured user text into a partial field mapping
// via an external model call. Model output is untrusted: the JSON repair and
// retry policy for every extraction call site lives here.
type FieldExtractor struct {
	client    Generator
	attempts  int
	baseDelay time.Duration
}

// NewFieldExtractor creates an extractor with the default retry policy.
func NewFieldExtractor(client Generator) *FieldExtractor {
	return &FieldExtractor{
		client:    client,
		attempts:  DefaultMaxAttempts,
		baseDelay: DefaultRetryBaseDelay,
	}
}

// Extract pulls the requested fields out of text. A parse failure counts as a
// call failure and consumes a retry attempt; after the budget is exhausted an
// empty mapping is returned, which the dispatcher treats as "nothing
// extracted" rather than a hard error.
func (e *FieldExtractor) Extract(ctx context.Context, text string, fields []string) map[string]string {
	if len(fields) == 0 {
		return map[string]string{}
	}

	var lines strings.Builder
	lines.WriteString(fmt.Sprintf("Message: %s\n\nRequested fields:\n", text))
	for _, field := range fields {
		lines.WriteString("- " + field + "\n")
	}

	var parsed map[string]interface{}
	err := withRetries(ctx, e.attempts, e.baseDelay, func() error {
		raw, genErr := e.client.GeneratePrompt(ctx, extractorSystemPrompt, lines.String())
		if genErr != nil {
			return genErr
		}
		var parseErr error
		parsed, parseErr = parseJSONObject(raw)
		return parseErr
	})
	if err != nil {
		slog.Warn("FieldExtractor Extract degraded to empty result", "error", err, "fields", fields)
		return map[string]string{}
	}

	result := sanitizeExtracted(parsed, fields)
	slog.Debug("FieldExtractor Extract succeeded", "requested", len(fields), "extracted", len(result))
	return result
}

// parseJSONObject decodes a JSON object from model output. Code fences are
// stripped, and on decode failure one repair is attempted: replacing single
// quotes with double quotes. The repair will mis-parse values that
// legitimately contain a single quote; it exists for models that emit
// Python-style dicts.
func parseJSONObject(raw string) (map[string]interface{}, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err == nil {
		return parsed, nil
	}

	repaired := strings.ReplaceAll(cleaned, "'", `"`)
	if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse extraction output as JSON: %w", err)
	}
	return parsed, nil
}

// sanitizeExtracted converts raw parsed values into a clean string mapping
// limited to the requested fields. Placeholder values are dropped so the
// dispatcher re-prompts for them:
//   - empty strings and "not provided"/"null"/"none"/"n/a" sentinels
//   - patient_name containing the substring "doe" (case-insensitive),
//     a preserved placeholder-rejection rule
//   - date and time values that fail validation
func sanitizeExtracted(parsed map[string]interface{}, fields []string) map[string]string {
	requested := make(map[string]bool, len(fields))
	for _, f := range fields {
		requested[f] = true
	}

	result := make(map[string]string)
	for key, rawValue := range parsed {
		if !requested[key] {
			continue
		}
		value, ok := stringifyValue(rawValue)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" || isPlaceholderValue(value) {
			continue
		}
		if key == "patient_name" && strings.Contains(strings.ToLower(value), "doe") {
			slog.Debug("FieldExtractor dropping placeholder patient_name", "value", value)
			continue
		}
		if key == "date" && !ValidDate(value) {
			slog.Debug("FieldExtractor dropping invalid date", "value", value)
			continue
		}
		if key == "time" && !ValidTime(value) {
			slog.Debug("FieldExtractor dropping invalid time", "value", value)
			continue
		}
		result[key] = value
	}
	return result
}

func stringifyValue(v interface{}) (string, bool) {
	switch value := v.(type) {
	case string:
		return value, true
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%v", value), ".0"), true
	case bool:
		return fmt.Sprintf("%t", value), true
	default:
		// Nested objects, arrays, and nulls are not usable field values.
		return "", false
	}
}

func isPlaceholderValue(value string) bool {
	switch strings.ToLower(value) {
	case "not provided", "null", "none", "n/a", "unknown":
		return true
	}
	return false
}
