package services

import (
	"context"
	"strings"
	"testing"

	"github.com/palstack/assesshub/internal/models"
)

type stubCoachingStore struct {
	results  map[string]*models.Result
	sessions []*models.CoachingSession
}

func (s *stubCoachingStore) GetResult(_ context.Context, id string) (*models.Result, error) {
	if r, ok := s.results[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (s *stubCoachingStore) AddCoachingSession(_ context.Context, cs *models.CoachingSession) error {
	cp := *cs
	s.sessions = append(s.sessions, &cp)
	return nil
}

type fakeProvider struct {
	coaching Coaching
}

func (p fakeProvider) Enabled() bool { return true }

func (p fakeProvider) Generate(_ context.Context, _ *models.Result, _ string) (*Coaching, error) {
	cp := p.coaching
	return &cp, nil
}

func TestCoachingDisabled(t *testing.T) {
	store := &stubCoachingStore{results: map[string]*models.Result{"r-1": {ID: "r-1"}}}
	svc := NewCoachingService(store, nil)

	if svc.Enabled() {
		t.Fatalf("default provider should be disabled")
	}
	_, err := svc.GenerateForResult(context.Background(), "r-1", "ei")
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if len(store.sessions) != 0 {
		t.Fatalf("no session should be stored while disabled")
	}
}

func TestCoachingGeneratesAndPersists(t *testing.T) {
	store := &stubCoachingStore{results: map[string]*models.Result{
		"r-1": {ID: "r-1", ParticipantID: "p-1"},
	}}
	svc := NewCoachingService(store, fakeProvider{coaching: Coaching{
		Insights:        []string{"strong perceiving"},
		Recommendations: []string{"practice reflective listening"},
		Model:           "test-model",
	}})

	out, err := svc.GenerateForResult(context.Background(), "r-1", "ei")
	if err != nil {
		t.Fatalf("GenerateForResult: %v", err)
	}
	if len(out.Insights) != 1 {
		t.Fatalf("unexpected output: %+v", out)
	}
	if len(store.sessions) != 1 {
		t.Fatalf("session not persisted")
	}
	session := store.sessions[0]
	if session.ParticipantID != "p-1" || session.ResultID != "r-1" || session.Model != "test-model" {
		t.Fatalf("bad session: %+v", session)
	}

	if _, err := svc.GenerateForResult(context.Background(), "missing", "ei"); err == nil {
		t.Fatalf("expected not found for unknown result")
	}
}

func TestPrepareCoachingContext(t *testing.T) {
	result := &models.Result{Scores: map[string]any{
		"perceiving":    80.0,
		"using":         65,
		"understanding": 70.5,
		"percentiles":   map[string]any{"perceiving": 90.0, "using": 55},
	}}
	cc := PrepareCoachingContext(result, "ei")
	if cc.Facets["perceiving"] != 80 || cc.Facets["using"] != 65 {
		t.Fatalf("facets not extracted: %+v", cc.Facets)
	}
	// Missing facets default to zero rather than being omitted.
	if v, ok := cc.Facets["managing"]; !ok || v != 0 {
		t.Fatalf("managing facet missing: %+v", cc.Facets)
	}
	if cc.Percentiles["perceiving"] != 90 {
		t.Fatalf("percentiles not extracted: %+v", cc.Percentiles)
	}

	empty := PrepareCoachingContext(&models.Result{}, "ei")
	if len(empty.Percentiles) != 0 {
		t.Fatalf("expected empty context for nil scores")
	}
}

func TestBuildCoachingPrompt(t *testing.T) {
	cc := PrepareCoachingContext(&models.Result{Scores: map[string]any{
		"perceiving":  80.0,
		"percentiles": map[string]any{"perceiving": 90.0},
	}}, "ei")
	prompt := BuildCoachingPrompt(cc)

	for _, want := range []string{
		"supportive workplace coach",
		"Perceiving emotions: 80",
		"perceiving: 90th percentile",
		"Workplace applications",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}

	generic := BuildCoachingPrompt(CoachingContext{AssessmentType: "personality"})
	if !strings.Contains(generic, "personalized coaching") {
		t.Fatalf("unexpected generic prompt: %s", generic)
	}
}
