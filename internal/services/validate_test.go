package services

import (
	"testing"

	"github.com/palstack/assesshub/internal/models"
)

func TestValidateResponse(t *testing.T) {
	cases := []struct {
		name    string
		qt      models.QuestionType
		data    map[string]any
		wantErr bool
	}{
		{"mcq ok", models.QuestionMultipleChoice, map[string]any{"selected": 2}, false},
		{"mcq float", models.QuestionMultipleChoice, map[string]any{"selected": float64(1)}, false},
		{"mcq string", models.QuestionMultipleChoice, map[string]any{"selected": "2"}, true},
		{"mcq missing", models.QuestionMultipleChoice, map[string]any{}, true},
		{"multi ok", models.QuestionMultipleAnswer, map[string]any{"selected": []any{0, 2}}, false},
		{"multi ints", models.QuestionMultipleAnswer, map[string]any{"selected": []int{1}}, false},
		{"multi scalar", models.QuestionMultipleAnswer, map[string]any{"selected": 1}, true},
		{"likert ok", models.QuestionLikert, map[string]any{"value": 4}, false},
		{"likert low", models.QuestionLikert, map[string]any{"value": 0}, true},
		{"likert high", models.QuestionLikert, map[string]any{"value": 8}, true},
		{"conjoint ok", models.QuestionConjoint, map[string]any{"chosen_alternative": 1}, false},
		{"conjoint missing", models.QuestionConjoint, map[string]any{"chosen": 1}, true},
		{"text ok", models.QuestionText, map[string]any{"text": "fine"}, false},
		{"text wrong type", models.QuestionText, map[string]any{"text": 3}, true},
		{"unknown type", models.QuestionType("ranking"), map[string]any{"x": 1}, true},
	}
	for _, tc := range cases {
		err := ValidateResponse(tc.qt, tc.data)
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: got err=%v, wantErr=%v", tc.name, err, tc.wantErr)
		}
		if err != nil {
			se, ok := AsServiceError(err)
			if !ok || se.Code != ErrorValidation {
				t.Fatalf("%s: expected validation code, got %v", tc.name, err)
			}
		}
	}

	if err := ValidateResponse(models.QuestionLikert, nil); err == nil {
		t.Fatalf("expected error for nil data")
	}
}
