package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/palstack/assesshub/internal/models"
)

// Coaching is structured coaching output for one assessment result.
type Coaching struct {
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
	Message         string   `json:"message,omitempty"`
	Model           string   `json:"model,omitempty"`
}

// CoachingProvider generates coaching from a result. The shipped default
// is NoopCoaching; a real provider slots in behind the same interface when
// the capability ships.
type CoachingProvider interface {
	Enabled() bool
	Generate(ctx context.Context, result *models.Result, assessmentType string) (*Coaching, error)
}

// NoopCoaching is the disabled capability: Enabled is false and Generate
// returns a placeholder.
type NoopCoaching struct{}

func (NoopCoaching) Enabled() bool { return false }

func (NoopCoaching) Generate(ctx context.Context, result *models.Result, assessmentType string) (*Coaching, error) {
	return &Coaching{Message: "AI coaching will be available in a future update"}, nil
}

// CoachingStore persists coaching sessions.
type CoachingStore interface {
	GetResult(ctx context.Context, id string) (*models.Result, error)
	AddCoachingSession(ctx context.Context, cs *models.CoachingSession) error
}

type CoachingService struct {
	store    CoachingStore
	provider CoachingProvider
	now      func() time.Time
	idGen    func() string
}

func NewCoachingService(store CoachingStore, provider CoachingProvider) *CoachingService {
	if provider == nil {
		provider = NoopCoaching{}
	}
	return &CoachingService{
		store:    store,
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
		idGen:    uuid.NewString,
	}
}

// Enabled reports whether the coaching capability is on.
func (s *CoachingService) Enabled() bool { return s.provider.Enabled() }

// GenerateForResult produces coaching for a stored result. When the
// capability is disabled the caller gets a forbidden error rather than a
// placeholder row.
func (s *CoachingService) GenerateForResult(ctx context.Context, resultID, assessmentType string) (*Coaching, error) {
	if !s.provider.Enabled() {
		return nil, NewForbiddenError("AI coaching is not yet available")
	}
	result, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, NewNotFoundError("result not found")
	}
	coaching, err := s.provider.Generate(ctx, result, assessmentType)
	if err != nil {
		return nil, err
	}
	if len(coaching.Insights) > 0 || len(coaching.Recommendations) > 0 {
		session := &models.CoachingSession{
			ID:              s.idGen(),
			ParticipantID:   result.ParticipantID,
			ResultID:        result.ID,
			SessionType:     "assessment_coaching",
			CoachingType:    "general",
			Model:           coaching.Model,
			Insights:        coaching.Insights,
			Recommendations: coaching.Recommendations,
			CreatedAt:       s.now(),
		}
		if err := s.store.AddCoachingSession(ctx, session); err != nil {
			return nil, err
		}
	}
	return coaching, nil
}

// CoachingContext summarizes a result's scores for prompt building.
type CoachingContext struct {
	AssessmentType string
	Facets         map[string]float64
	Percentiles    map[string]float64
}

// PrepareCoachingContext extracts the facet scores relevant to the
// assessment type: the four EI branches, or the Big Five.
func PrepareCoachingContext(result *models.Result, assessmentType string) CoachingContext {
	cc := CoachingContext{
		AssessmentType: assessmentType,
		Facets:         map[string]float64{},
		Percentiles:    map[string]float64{},
	}
	scores := result.Scores
	if scores == nil {
		return cc
	}
	var facetNames []string
	switch assessmentType {
	case "ei":
		facetNames = []string{"perceiving", "using", "understanding", "managing"}
	case "personality":
		facetNames = []string{"openness", "conscientiousness", "extraversion", "agreeableness", "neuroticism"}
	}
	for _, name := range facetNames {
		if v, ok := asNumber(scores[name]); ok {
			cc.Facets[name] = v
		} else {
			cc.Facets[name] = 0
		}
	}
	if raw, ok := scores["percentiles"].(map[string]any); ok {
		for k, v := range raw {
			if f, ok := asNumber(v); ok {
				cc.Percentiles[k] = f
			}
		}
	}
	return cc
}

// BuildCoachingPrompt renders the prompt an enabled provider would send.
func BuildCoachingPrompt(cc CoachingContext) string {
	var b strings.Builder
	b.WriteString("You are a supportive workplace coach providing personalized feedback based on assessment results.\n\n")
	if cc.AssessmentType == "ei" {
		b.WriteString("The participant completed an Emotional Intelligence assessment measuring four branches:\n")
		fmt.Fprintf(&b, "- Perceiving emotions: %g\n", cc.Facets["perceiving"])
		fmt.Fprintf(&b, "- Using emotions: %g\n", cc.Facets["using"])
		fmt.Fprintf(&b, "- Understanding emotions: %g\n", cc.Facets["understanding"])
		fmt.Fprintf(&b, "- Managing emotions: %g\n\n", cc.Facets["managing"])
		if len(cc.Percentiles) > 0 {
			b.WriteString("Percentile scores:\n")
			keys := make([]string, 0, len(cc.Percentiles))
			for k := range cc.Percentiles {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "- %s: %gth percentile\n", k, cc.Percentiles[k])
			}
			b.WriteString("\n")
		}
		b.WriteString("Provide supportive, actionable coaching insights focusing on:\n")
		b.WriteString("1. Strengths in emotional intelligence\n")
		b.WriteString("2. Areas for development\n")
		b.WriteString("3. Specific, actionable recommendations for improvement\n")
		b.WriteString("4. Workplace applications\n\n")
		b.WriteString("Use a supportive, encouraging tone.")
		return b.String()
	}
	b.WriteString("Provide personalized coaching based on the assessment results.")
	return b.String()
}
