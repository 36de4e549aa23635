package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/palstack/assesshub/internal/models"
)

// StudyStore abstracts the SONA study tables and the IRB access log.
type StudyStore interface {
	AddStudy(ctx context.Context, st *models.Study) error
	GetStudyByID(ctx context.Context, id string) (*models.Study, error)
	GetStudy(ctx context.Context, sonaStudyID, irbApprovalNumber string) (*models.Study, error)
	AddStudyAssessments(ctx context.Context, rows []*models.StudyAssessment) error
	ListStudyAssessmentIDs(ctx context.Context, studyID string) ([]string, error)
	AddStudyParticipant(ctx context.Context, sp *models.StudyParticipant) error
	ListStudyParticipants(ctx context.Context, studyID string) ([]*models.StudyParticipant, error)
	ListResults(ctx context.Context, participantIDs, assessmentIDs []string) ([]*models.Result, error)
	AddIRBAccess(ctx context.Context, entry *models.IRBAccessEntry) error
}

// StudyService links assessments and participants to SONA studies and
// serves IRB-facing, access-logged reads.
type StudyService struct {
	store StudyStore
	now   func() time.Time
	idGen func() string
}

func NewStudyService(store StudyStore) *StudyService {
	return &StudyService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: uuid.NewString,
	}
}

// RegisterStudy records a SONA study with its IRB approval number.
func (s *StudyService) RegisterStudy(ctx context.Context, sonaStudyID, irbApprovalNumber, title, principalInvestigator string) (*models.Study, error) {
	if strings.TrimSpace(sonaStudyID) == "" || strings.TrimSpace(irbApprovalNumber) == "" {
		return nil, NewValidationError("sona_study_id and irb_approval_number required")
	}
	study := &models.Study{
		ID:                    s.idGen(),
		SONAStudyID:           sonaStudyID,
		IRBApprovalNumber:     irbApprovalNumber,
		Title:                 title,
		PrincipalInvestigator: principalInvestigator,
		Status:                "active",
		CreatedAt:             s.now(),
	}
	if err := s.store.AddStudy(ctx, study); err != nil {
		return nil, err
	}
	return study, nil
}

// AssignAssessments attaches assessments to a study. Assignments are
// optional for participants by default.
func (s *StudyService) AssignAssessments(ctx context.Context, studyID string, assessmentIDs []string) error {
	if len(assessmentIDs) == 0 {
		return NewValidationError("assessment_ids required")
	}
	study, err := s.store.GetStudyByID(ctx, studyID)
	if err != nil {
		return err
	}
	if study == nil {
		return NewNotFoundError("study not found")
	}
	rows := make([]*models.StudyAssessment, 0, len(assessmentIDs))
	for _, aid := range assessmentIDs {
		rows = append(rows, &models.StudyAssessment{StudyID: studyID, AssessmentID: aid})
	}
	return s.store.AddStudyAssessments(ctx, rows)
}

// LinkParticipant records a participant's completion for a study.
// Duplicate links are benign idempotent writes and are swallowed.
func (s *StudyService) LinkParticipant(ctx context.Context, studyID, participantID string) error {
	if strings.TrimSpace(participantID) == "" {
		return NewValidationError("participant_id required")
	}
	err := s.store.AddStudyParticipant(ctx, &models.StudyParticipant{
		StudyID:       studyID,
		ParticipantID: participantID,
		CompletedAt:   s.now(),
	})
	if err != nil && !IsConflict(err) {
		return err
	}
	return nil
}

// GetStudy looks up a study by its SONA ID and IRB approval number.
func (s *StudyService) GetStudy(ctx context.Context, sonaStudyID, irbApprovalNumber string) (*models.Study, error) {
	study, err := s.store.GetStudy(ctx, sonaStudyID, irbApprovalNumber)
	if err != nil {
		return nil, err
	}
	if study == nil {
		return nil, NewNotFoundError("study not found")
	}
	return study, nil
}

// StudyParticipants returns the (anonymized) participant links for a
// study, logging the IRB access.
func (s *StudyService) StudyParticipants(ctx context.Context, studyID, accessedBy string) ([]*models.StudyParticipant, error) {
	rows, err := s.store.ListStudyParticipants(ctx, studyID)
	if err != nil {
		return nil, err
	}
	if err := s.LogIRBAccess(ctx, studyID, "view", accessedBy); err != nil {
		return nil, err
	}
	return rows, nil
}

// StudyResults returns results restricted to the study's participants and
// assigned assessments, logging the IRB access.
func (s *StudyService) StudyResults(ctx context.Context, studyID, accessedBy string) ([]*models.Result, error) {
	participants, err := s.store.ListStudyParticipants(ctx, studyID)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return []*models.Result{}, nil
	}
	assessmentIDs, err := s.store.ListStudyAssessmentIDs(ctx, studyID)
	if err != nil {
		return nil, err
	}
	if len(assessmentIDs) == 0 {
		return []*models.Result{}, nil
	}
	participantIDs := make([]string, 0, len(participants))
	for _, sp := range participants {
		participantIDs = append(participantIDs, sp.ParticipantID)
	}
	results, err := s.store.ListResults(ctx, participantIDs, assessmentIDs)
	if err != nil {
		return nil, err
	}
	if err := s.LogIRBAccess(ctx, studyID, "export", accessedBy); err != nil {
		return nil, err
	}
	return results, nil
}

// LogIRBAccess appends to the IRB audit trail.
func (s *StudyService) LogIRBAccess(ctx context.Context, studyID, accessType, accessedBy string) error {
	return s.store.AddIRBAccess(ctx, &models.IRBAccessEntry{
		StudyID:    studyID,
		AccessType: accessType,
		AccessedBy: accessedBy,
		Time:       s.now(),
	})
}
