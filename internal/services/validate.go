package services

import (
	"fmt"

	"github.com/palstack/assesshub/internal/models"
)

// ValidateResponse checks that a decoded response payload has the shape
// required by its question type. JSON numbers decode as float64; integer
// raw values are also accepted so callers building payloads in Go pass.
func ValidateResponse(qt models.QuestionType, data map[string]any) error {
	if data == nil {
		return NewValidationError("response data required")
	}
	switch qt {
	case models.QuestionMultipleChoice:
		if !isNumber(data["selected"]) {
			return NewValidationError("mcq response requires numeric 'selected'")
		}
	case models.QuestionMultipleAnswer:
		if _, ok := data["selected"].([]any); !ok {
			if _, ok := data["selected"].([]int); !ok {
				return NewValidationError("multiple_answer response requires 'selected' list")
			}
		}
	case models.QuestionLikert:
		v, ok := asNumber(data["value"])
		if !ok || v < 1 || v > 7 {
			return NewValidationError("likert response requires 'value' in 1..7")
		}
	case models.QuestionConjoint:
		if !isNumber(data["chosen_alternative"]) {
			return NewValidationError("conjoint_choice response requires numeric 'chosen_alternative'")
		}
	case models.QuestionText:
		if _, ok := data["text"].(string); !ok {
			return NewValidationError("text response requires string 'text'")
		}
	default:
		return NewValidationError(fmt.Sprintf("unknown question type %q", qt))
	}
	return nil
}

func isNumber(v any) bool {
	_, ok := asNumber(v)
	return ok
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
