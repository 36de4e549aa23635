package services

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/palstack/assesshub/internal/models"
)

// Scorer turns the collected answers for a run into a scores blob.
// answers is keyed by question ID and holds the latest in-memory payload
// per question. Every real assessment is expected to supply its own scorer;
// DefaultScores is only the fallback.
type Scorer func(answers map[string]map[string]any, questions []models.Question) map[string]any

// DefaultScores reports completion counts when no assessment-specific
// scorer is configured.
func DefaultScores(answers map[string]map[string]any, questions []models.Question) map[string]any {
	total := len(questions)
	answered := len(answers)
	rate := 0.0
	if total > 0 {
		rate = float64(answered) / float64(total) * 100
	}
	return map[string]any{
		"completion_rate":    rate,
		"total_questions":    total,
		"answered_questions": answered,
		"responses":          answers,
	}
}

// PercentileRank returns the percentile of score within scores: the share
// of strictly smaller values, rounded to a whole percent.
func PercentileRank(score float64, scores []float64) int {
	if len(scores) == 0 {
		return 0
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	rank := 0
	for _, s := range sorted {
		if s < score {
			rank++
		}
	}
	return int(math.Round(float64(rank) / float64(len(sorted)) * 100))
}

// LikertSumScorer scores Likert instruments: reverse-scored items are
// flipped on the question's scale, then summed and averaged. Answers for
// non-Likert questions are ignored. Completion stats ride along for parity
// with the default scorer.
func LikertSumScorer(answers map[string]map[string]any, questions []models.Question) map[string]any {
	scores := DefaultScores(answers, questions)
	sum := 0
	counted := 0
	for key, data := range answers {
		index, ok := questionIndex(key)
		if !ok || index >= len(questions) {
			continue
		}
		q := questions[index]
		if q.Type != models.QuestionLikert {
			continue
		}
		raw, ok := asNumber(data["value"])
		if !ok {
			continue
		}
		value := int(raw)
		if q.ReverseScored {
			points := q.ScaleMax
			if points == 0 {
				points = 7
			}
			value = ReverseScore(value, points)
		}
		sum += value
		counted++
	}
	scores["likert_total"] = sum
	if counted > 0 {
		scores["likert_mean"] = float64(sum) / float64(counted)
	}
	return scores
}

// questionIndex recovers the question index from a derived question ID
// (the zero-padded digits after the final "_q").
func questionIndex(questionID string) (int, bool) {
	i := strings.LastIndex(questionID, "_q")
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(questionID[i+2:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// FeedbackRule maps an inclusive score range to a feedback message.
type FeedbackRule struct {
	Min      float64
	Max      float64
	Feedback string
}

const defaultFeedback = "Thank you for completing the assessment."

// FeedbackForScore returns the first matching rule's feedback, or a generic
// thank-you when no rule matches.
func FeedbackForScore(score float64, rules []FeedbackRule) string {
	for _, rule := range rules {
		if score >= rule.Min && score <= rule.Max {
			return rule.Feedback
		}
	}
	return defaultFeedback
}

// ReverseScore maps a raw Likert value to its reverse-scored value given
// the number of points in the scale (e.g., 5 or 7). Out-of-range values
// are clamped.
func ReverseScore(raw, points int) int {
	if points < 2 {
		return raw
	}
	if raw < 1 {
		raw = 1
	}
	if raw > points {
		raw = points
	}
	return (points + 1) - raw
}
