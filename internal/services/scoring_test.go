package services

import (
	"testing"

	"github.com/palstack/assesshub/internal/models"
)

func TestDefaultScores(t *testing.T) {
	questions := make([]models.Question, 4)
	answers := map[string]map[string]any{
		"a_q000": {"value": 3},
		"a_q001": {"value": 5},
		"a_q002": {"value": 1},
	}
	scores := DefaultScores(answers, questions)
	if scores["total_questions"] != 4 || scores["answered_questions"] != 3 {
		t.Fatalf("unexpected counts: %+v", scores)
	}
	if scores["completion_rate"] != 75.0 {
		t.Fatalf("unexpected completion rate: %v", scores["completion_rate"])
	}
	if scores["responses"] == nil {
		t.Fatalf("responses missing from scores")
	}
}

func TestPercentileRank(t *testing.T) {
	scores := []float64{10, 20, 30, 40}
	cases := []struct {
		score float64
		want  int
	}{
		{5, 0},
		{10, 0},
		{25, 50},
		{30, 50},
		{45, 100},
	}
	for _, tc := range cases {
		if got := PercentileRank(tc.score, scores); got != tc.want {
			t.Fatalf("PercentileRank(%v) = %d, want %d", tc.score, got, tc.want)
		}
	}
	if got := PercentileRank(10, nil); got != 0 {
		t.Fatalf("empty sample should yield 0, got %d", got)
	}
}

func TestReverseScore(t *testing.T) {
	if got := ReverseScore(2, 5); got != 4 {
		t.Fatalf("ReverseScore(2,5) = %d, want 4", got)
	}
	if got := ReverseScore(7, 7); got != 1 {
		t.Fatalf("ReverseScore(7,7) = %d, want 1", got)
	}
	// Out of range clamps.
	if got := ReverseScore(0, 5); got != 5 {
		t.Fatalf("ReverseScore(0,5) = %d, want 5", got)
	}
	if got := ReverseScore(9, 5); got != 1 {
		t.Fatalf("ReverseScore(9,5) = %d, want 1", got)
	}
}

func TestFeedbackForScore(t *testing.T) {
	rules := []FeedbackRule{
		{Min: 0, Max: 49, Feedback: "low"},
		{Min: 50, Max: 100, Feedback: "high"},
	}
	if got := FeedbackForScore(30, rules); got != "low" {
		t.Fatalf("got %q", got)
	}
	if got := FeedbackForScore(50, rules); got != "high" {
		t.Fatalf("got %q", got)
	}
	if got := FeedbackForScore(200, rules); got != defaultFeedback {
		t.Fatalf("expected default feedback, got %q", got)
	}
}

func TestLikertSumScorer(t *testing.T) {
	questions := []models.Question{
		{Type: models.QuestionLikert, ScaleMax: 7},
		{Type: models.QuestionLikert, ScaleMax: 7, ReverseScored: true},
		{Type: models.QuestionText},
	}
	answers := map[string]map[string]any{
		QuestionID("grit", 0): {"value": 6},
		QuestionID("grit", 1): {"value": 2}, // reversed on 7 points -> 6
		QuestionID("grit", 2): {"text": "ignored"},
	}
	scores := LikertSumScorer(answers, questions)
	if scores["likert_total"] != 12 {
		t.Fatalf("likert_total = %v, want 12", scores["likert_total"])
	}
	if scores["likert_mean"] != 6.0 {
		t.Fatalf("likert_mean = %v, want 6", scores["likert_mean"])
	}
	if scores["answered_questions"] != 3 {
		t.Fatalf("completion stats missing: %+v", scores)
	}
}
