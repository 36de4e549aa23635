package services

import (
	"context"
	"testing"

	"github.com/palstack/assesshub/internal/models"
)

type stubRunnerStore struct {
	assessments map[string]*models.Assessment
	responses   []*models.Response
	results     []*models.Result
}

func newStubRunnerStore() *stubRunnerStore {
	return &stubRunnerStore{assessments: map[string]*models.Assessment{}}
}

func (s *stubRunnerStore) GetActiveAssessmentByName(_ context.Context, name string) (*models.Assessment, error) {
	if a, ok := s.assessments[name]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRunnerStore) AddResponse(_ context.Context, r *models.Response) error {
	cp := *r
	s.responses = append(s.responses, &cp)
	return nil
}

func (s *stubRunnerStore) AddResult(_ context.Context, r *models.Result) error {
	cp := *r
	s.results = append(s.results, &cp)
	return nil
}

func correctAnswer(n int) *int { return &n }

func seedRunnerStore() *stubRunnerStore {
	store := newStubRunnerStore()
	store.assessments["ei-quiz"] = &models.Assessment{
		ID:     "a-1",
		Name:   "ei-quiz",
		Active: true,
		Config: models.AssessmentConfig{
			ShowFeedback: true,
			Questions: []models.Question{
				{Type: models.QuestionMultipleChoice, Text: "Q1", Options: []string{"a", "b"}, Feedback: "fb1", CorrectAnswer: correctAnswer(1)},
				{Type: models.QuestionLikert, Text: "Q2"},
				{Type: models.QuestionText, Text: "Q3"},
			},
		},
	}
	store.assessments["survey"] = &models.Assessment{
		ID:     "a-2",
		Name:   "survey",
		Active: true,
		Config: models.AssessmentConfig{
			AllowBack: true,
			Questions: []models.Question{
				{Type: models.QuestionLikert, Text: "S1"},
				{Type: models.QuestionLikert, Text: "S2"},
			},
		},
	}
	return store
}

func TestQuestionID(t *testing.T) {
	if got := QuestionID("ei-quiz", 0); got != "ei-quiz_q000" {
		t.Fatalf("got %q", got)
	}
	if got := QuestionID("ei-quiz", 41); got != "ei-quiz_q041" {
		t.Fatalf("got %q", got)
	}
}

func TestStartRunValidation(t *testing.T) {
	store := seedRunnerStore()
	svc := NewRunnerService(store)
	ctx := context.Background()

	if _, err := svc.StartRun(ctx, "ei-quiz", " "); err == nil {
		t.Fatalf("expected validation error for blank participant")
	}
	if _, err := svc.StartRun(ctx, "missing", "p-1"); err == nil {
		t.Fatalf("expected not found")
	}

	store.assessments["hollow"] = &models.Assessment{ID: "a-3", Name: "hollow", Active: true}
	if _, err := svc.StartRun(ctx, "hollow", "p-1"); err == nil {
		t.Fatalf("expected validation error for empty question list")
	}
}

func TestRunCompletion(t *testing.T) {
	store := seedRunnerStore()
	svc := NewRunnerService(store)
	ctx := context.Background()

	run, err := svc.StartRun(ctx, "ei-quiz", "p-1")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if run.QuestionCount() != 3 || run.Index() != 0 {
		t.Fatalf("unexpected initial state")
	}

	got, err := svc.GetRun(run.ID())
	if err != nil || got != run {
		t.Fatalf("GetRun mismatch: %v", err)
	}

	out, err := run.Submit(ctx, models.QuestionMultipleChoice, map[string]any{"selected": 1}, 1200)
	if err != nil {
		t.Fatalf("submit 1: %v", err)
	}
	if out.QuestionID != "ei-quiz_q000" || out.NextIndex != 1 || out.Completed {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Feedback != "fb1" || out.FeedbackDwellMs != 3000 {
		t.Fatalf("feedback not surfaced: %+v", out)
	}
	if out.Correct == nil || !*out.Correct {
		t.Fatalf("expected correct=true, got %+v", out.Correct)
	}

	if _, err := run.Submit(ctx, models.QuestionLikert, map[string]any{"value": 9}, 0); err == nil {
		t.Fatalf("expected validation error for out-of-range likert")
	}
	if run.Index() != 1 {
		t.Fatalf("invalid submit must not advance")
	}

	if _, err = run.Submit(ctx, models.QuestionLikert, map[string]any{"value": 4}, 800); err != nil {
		t.Fatalf("submit 2: %v", err)
	}
	out, err = run.Submit(ctx, models.QuestionText, map[string]any{"text": "done"}, 500)
	if err != nil {
		t.Fatalf("submit 3: %v", err)
	}
	if !out.Completed || out.ResultID == "" {
		t.Fatalf("expected completion: %+v", out)
	}
	if out.Scores["answered_questions"] != 3 || out.Scores["total_questions"] != 3 {
		t.Fatalf("unexpected scores: %+v", out.Scores)
	}

	if len(store.responses) != 3 {
		t.Fatalf("expected 3 persisted responses, got %d", len(store.responses))
	}
	if len(store.results) != 1 {
		t.Fatalf("result persisted %d times, want exactly once", len(store.results))
	}
	if store.results[0].ID != out.ResultID {
		t.Fatalf("result ID mismatch")
	}

	if _, err := run.Submit(ctx, models.QuestionText, map[string]any{"text": "late"}, 0); err == nil || !IsConflict(err) {
		t.Fatalf("expected conflict after completion, got %v", err)
	}
	if len(store.results) != 1 {
		t.Fatalf("completion must happen exactly once")
	}
}

func TestRunBackNavigation(t *testing.T) {
	store := seedRunnerStore()
	svc := NewRunnerService(store)
	ctx := context.Background()

	run, err := svc.StartRun(ctx, "survey", "p-2")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if _, err := run.Submit(ctx, models.QuestionLikert, map[string]any{"value": 3}, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	index, err := run.Back()
	if err != nil || index != 0 {
		t.Fatalf("Back: %d/%v", index, err)
	}
	// Floor at zero.
	if index, err = run.Back(); err != nil || index != 0 {
		t.Fatalf("Back at start: %d/%v", index, err)
	}

	// Resubmission persists a second append-only row.
	if _, err := run.Submit(ctx, models.QuestionLikert, map[string]any{"value": 5}, 0); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	count := 0
	for _, r := range store.responses {
		if r.QuestionID == "survey_q000" {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("expected 2 rows for revisited question, got %d", count)
	}

	// Backward navigation is rejected when the assessment disallows it.
	other, err := svc.StartRun(ctx, "ei-quiz", "p-3")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if _, err := other.Back(); err == nil {
		t.Fatalf("expected validation error when back is disabled")
	}
}

func TestRegisteredScorerWins(t *testing.T) {
	store := seedRunnerStore()
	store.assessments["survey"].Config.Scoring = "fixed"
	svc := NewRunnerService(store)
	svc.RegisterScorer("fixed", func(answers map[string]map[string]any, questions []models.Question) map[string]any {
		return map[string]any{"fixed": true}
	})
	ctx := context.Background()

	run, err := svc.StartRun(ctx, "survey", "p-4")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if _, err := run.Submit(ctx, models.QuestionLikert, map[string]any{"value": 2}, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	out, err := run.Submit(ctx, models.QuestionLikert, map[string]any{"value": 2}, 0)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Scores["fixed"] != true {
		t.Fatalf("registered scorer not used: %+v", out.Scores)
	}
}
