package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/garyjia/invoice-reimbursement/internal/domain/entity"
)

var (
	// ErrAnalysis wraps every failure to obtain a verdict from the model
	ErrAnalysis = errors.New("invoice analysis failed")

	// ErrNotConfigured means no model credential was supplied at startup
	ErrNotConfigured = errors.New("language model API key is not configured")
)

// modelVerdict mirrors the JSON object the model is asked to return
type modelVerdict struct {
	Identifier *string     `json:"Invoice identifier"`
	Status     string      `json:"Reimbursement Status"`
	Amount     json.Number `json:"Reimbursable Amount"`
	Reason     string      `json:"Reason"`
}

// ParseVerdict decodes a model reply into a verdict. Replies wrapped in prose
// or markdown fences are accepted as long as they contain one JSON object.
// The amount and status are taken as reported; no policy checks happen here.
func ParseVerdict(content, filename string) (*entity.InvoiceVerdict, error) {
	var raw modelVerdict
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		jsonStr := ExtractJSON(content)
		if jsonStr == "" {
			return nil, fmt.Errorf("%w: model returned malformed JSON for invoice %s: %v", ErrAnalysis, filename, err)
		}
		raw = modelVerdict{}
		if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
			return nil, fmt.Errorf("%w: model returned malformed JSON for invoice %s: %v", ErrAnalysis, filename, err)
		}
	}

	amount, err := parseAmount(raw.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid reimbursable amount for invoice %s: %v", ErrAnalysis, filename, err)
	}

	verdict := &entity.InvoiceVerdict{
		Identifier:         filename,
		Status:             entity.ReimbursementStatus(strings.TrimSpace(raw.Status)),
		ReimbursableAmount: amount,
		Reason:             strings.TrimSpace(raw.Reason),
	}
	if raw.Identifier != nil && strings.TrimSpace(*raw.Identifier) != "" {
		verdict.Identifier = *raw.Identifier
	}
	if verdict.Reason == "" {
		verdict.Reason = entity.ReasonMissingFromModel
	}

	return verdict, nil
}

// parseAmount accepts integers and rounds fractional amounts
func parseAmount(n json.Number) (int, error) {
	if n == "" {
		return 0, nil
	}
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	return int(math.Round(f)), nil
}

// ExtractJSON returns the first balanced JSON object in content, or "" if none
func ExtractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}
	end := findJSONEnd(content, start)
	if end <= start {
		return ""
	}
	return content[start:end]
}

// findJSONEnd finds the end of the object opened at start, skipping braces inside strings
func findJSONEnd(content string, start int) int {
	braceCount := 0
	inString := false
	escapeNext := false

	for i := start; i < len(content); i++ {
		char := content[i]

		if escapeNext {
			escapeNext = false
			continue
		}
		if char == '\\' {
			escapeNext = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch char {
		case '{':
			braceCount++
		case '}':
			braceCount--
			if braceCount == 0 {
				return i + 1
			}
		}
	}

	return -1
}
