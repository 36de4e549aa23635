package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/palstack/assesshub/internal/models"
)

// RunnerStore abstracts persistence for assessment runs.
type RunnerStore interface {
	GetActiveAssessmentByName(ctx context.Context, name string) (*models.Assessment, error)
	AddResponse(ctx context.Context, r *models.Response) error
	AddResult(ctx context.Context, r *models.Result) error
}

// FeedbackDwell is how long per-question feedback is displayed before the
// caller auto-advances.
const FeedbackDwell = 3 * time.Second

// QuestionID derives the deterministic per-assessment question identifier
// for the question at the given index.
func QuestionID(assessmentName string, index int) string {
	return fmt.Sprintf("%s_q%03d", assessmentName, index)
}

// SubmitOutcome reports what happened after an answer was accepted.
// When Feedback is non-empty the caller shows it for FeedbackDwell before
// advancing; Completed is set exactly once, on the final submission, with
// the computed scores and the persisted result ID.
type SubmitOutcome struct {
	QuestionID      string         `json:"question_id"`
	Index           int            `json:"index"`
	NextIndex       int            `json:"next_index"`
	Feedback        string         `json:"feedback,omitempty"`
	FeedbackDwellMs int64          `json:"feedback_dwell_ms,omitempty"`
	Correct         *bool          `json:"correct,omitempty"`
	Completed       bool           `json:"completed"`
	Scores          map[string]any `json:"scores,omitempty"`
	ResultID        string         `json:"result_id,omitempty"`
}

// Runner steps one participant through one assessment: a linear state
// machine over the ordered question list, index 0..N-1, then completed.
type Runner struct {
	mu sync.Mutex

	id            string
	assessment    *models.Assessment
	participantID string
	store         RunnerStore
	scorer        Scorer

	index     int
	answers   map[string]map[string]any
	completed bool
	startedAt time.Time

	now   func() time.Time
	idGen func() string
}

// RunnerService creates runs and keeps them addressable by ID.
type RunnerService struct {
	store RunnerStore

	mu   sync.RWMutex
	runs map[string]*Runner

	scorers map[string]Scorer
	now     func() time.Time
	idGen   func() string
}

func NewRunnerService(store RunnerStore) *RunnerService {
	return &RunnerService{
		store:   store,
		runs:    map[string]*Runner{},
		scorers: map[string]Scorer{},
		now:     func() time.Time { return time.Now().UTC() },
		idGen:   func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:12] },
	}
}

// RegisterScorer binds a named assessment-specific scoring function.
// Assessments whose config names no registered scorer fall back to
// DefaultScores.
func (s *RunnerService) RegisterScorer(name string, fn Scorer) {
	s.mu.Lock()
	s.scorers[name] = fn
	s.mu.Unlock()
}

// StartRun begins an assessment run for a participant. The assessment is
// looked up by name and must be active.
func (s *RunnerService) StartRun(ctx context.Context, assessmentName, participantID string) (*Runner, error) {
	if strings.TrimSpace(participantID) == "" {
		return nil, NewValidationError("participant_id required")
	}
	assessment, err := s.store.GetActiveAssessmentByName(ctx, assessmentName)
	if err != nil {
		return nil, err
	}
	if assessment == nil {
		return nil, NewNotFoundError("assessment not found")
	}
	if len(assessment.Config.Questions) == 0 {
		return nil, NewValidationError("assessment has no questions")
	}

	s.mu.Lock()
	scorer := s.scorers[assessment.Config.Scoring]
	s.mu.Unlock()

	run := &Runner{
		id:            s.idGen(),
		assessment:    assessment,
		participantID: participantID,
		store:         s.store,
		scorer:        scorer,
		answers:       map[string]map[string]any{},
		startedAt:     s.now(),
		now:           s.now,
		idGen:         s.idGen,
	}
	s.mu.Lock()
	s.runs[run.id] = run
	s.mu.Unlock()
	return run, nil
}

// GetRun returns a previously started run.
func (s *RunnerService) GetRun(id string) (*Runner, error) {
	s.mu.RLock()
	run := s.runs[id]
	s.mu.RUnlock()
	if run == nil {
		return nil, NewNotFoundError("run not found")
	}
	return run, nil
}

func (r *Runner) ID() string { return r.id }

// AssessmentName returns the name of the assessment being run.
func (r *Runner) AssessmentName() string { return r.assessment.Name }

// Index returns the current question index.
func (r *Runner) Index() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index
}

// Completed reports whether the run reached its terminal state.
func (r *Runner) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

// QuestionCount returns the number of questions in the run.
func (r *Runner) QuestionCount() int { return len(r.assessment.Config.Questions) }

// CurrentQuestion returns the question at the current index, or nil when
// the run is completed.
func (r *Runner) CurrentQuestion() *models.Question {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed {
		return nil
	}
	q := r.assessment.Config.Questions[r.index]
	return &q
}

// Submit validates and persists the answer for the current question, then
// advances. After the last question it computes scores, persists the
// Result and signals completion; further submits are rejected.
func (r *Runner) Submit(ctx context.Context, qt models.QuestionType, data map[string]any, responseTimeMs int) (*SubmitOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.completed {
		return nil, NewConflictError("run already completed")
	}
	if err := ValidateResponse(qt, data); err != nil {
		return nil, err
	}

	index := r.index
	question := r.assessment.Config.Questions[index]
	questionID := QuestionID(r.assessment.Name, index)

	response := &models.Response{
		ID:             r.idGen(),
		ParticipantID:  r.participantID,
		AssessmentID:   r.assessment.ID,
		QuestionID:     questionID,
		QuestionType:   qt,
		ResponseData:   data,
		ResponseTimeMs: responseTimeMs,
		CreatedAt:      r.now(),
	}
	if err := r.store.AddResponse(ctx, response); err != nil {
		return nil, err
	}

	// Resubmission after backward navigation overwrites only the in-memory
	// answer; the earlier persisted row remains (responses are append-only).
	r.answers[questionID] = data

	outcome := &SubmitOutcome{QuestionID: questionID, Index: index}
	if r.assessment.Config.ShowFeedback && question.Feedback != "" {
		outcome.Feedback = question.Feedback
		outcome.FeedbackDwellMs = FeedbackDwell.Milliseconds()
		if question.CorrectAnswer != nil {
			correct := false
			if sel, ok := asNumber(data["selected"]); ok {
				correct = int(sel) == *question.CorrectAnswer
			}
			outcome.Correct = &correct
		}
	}

	if index < len(r.assessment.Config.Questions)-1 {
		r.index = index + 1
		outcome.NextIndex = r.index
		return outcome, nil
	}

	scores := r.computeScores()
	result := &models.Result{
		ID:               r.idGen(),
		ParticipantID:    r.participantID,
		AssessmentID:     r.assessment.ID,
		Scores:           scores,
		CompletionTimeMs: r.now().Sub(r.startedAt).Milliseconds(),
		CompletedAt:      r.now(),
	}
	if err := r.store.AddResult(ctx, result); err != nil {
		return nil, err
	}
	r.completed = true
	outcome.Completed = true
	outcome.NextIndex = len(r.assessment.Config.Questions)
	outcome.Scores = scores
	outcome.ResultID = result.ID
	return outcome, nil
}

func (r *Runner) computeScores() map[string]any {
	if r.scorer != nil {
		return r.scorer(r.answers, r.assessment.Config.Questions)
	}
	return DefaultScores(r.answers, r.assessment.Config.Questions)
}

// Back steps to the previous question without clearing the saved answer.
// Only available when the assessment enables backward navigation.
func (r *Runner) Back() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.assessment.Config.AllowBack {
		return r.index, NewValidationError("backward navigation disabled")
	}
	if r.completed {
		return r.index, NewConflictError("run already completed")
	}
	if r.index > 0 {
		r.index--
	}
	return r.index, nil
}
