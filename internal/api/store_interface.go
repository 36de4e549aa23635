package api

import (
	"context"
	"time"

	"github.com/palstack/assesshub/internal/models"
)

// Store is the persistence surface the API needs. Lookups return
// (nil, nil) on miss; duplicate-key inserts return a conflict
// ServiceError except where documented otherwise.
type Store interface {
	// users & labs
	AddUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	AddLab(ctx context.Context, lab *models.Lab) error
	GetLabByName(ctx context.Context, name string) (*models.Lab, error)

	// participants. AddParticipant absorbs duplicate-key races: when a row
	// already exists for the participant's identity key it returns the
	// existing row instead of failing.
	AddParticipant(ctx context.Context, p *models.Participant) (*models.Participant, error)
	GetParticipant(ctx context.Context, id string) (*models.Participant, error)
	GetParticipantBySession(ctx context.Context, sessionID string) (*models.Participant, error)
	GetParticipantByUser(ctx context.Context, userID string) (*models.Participant, error)
	FindUnlinkedParticipantBySession(ctx context.Context, sessionID string) (*models.Participant, error)
	LinkParticipantToUser(ctx context.Context, participantID, userID string) error
	UpdateParticipantConsent(ctx context.Context, id string, dataSharing, aiCoaching bool) error
	UpdateParticipantDemographics(ctx context.Context, id string, demographics map[string]any) error
	UpdateParticipantResearchID(ctx context.Context, id, researchID string) error
	SetSessionContext(ctx context.Context, sessionID string) error

	// assessments & grants
	UpsertAssessment(ctx context.Context, a *models.Assessment) error
	GetActiveAssessmentByName(ctx context.Context, name string) (*models.Assessment, error)
	ListActiveAssessments(ctx context.Context) ([]*models.Assessment, error)
	ListActiveAssessmentsByIDs(ctx context.Context, ids []string) ([]*models.Assessment, error)
	AddUserGrant(ctx context.Context, g *models.UserGrant) error
	AddLabGrant(ctx context.Context, g *models.LabGrant) error
	GetUserGrant(ctx context.Context, userID, assessmentID string, now time.Time) (*models.UserGrant, error)
	GetLabGrant(ctx context.Context, labID, assessmentID string) (*models.LabGrant, error)
	ListUserGrantIDs(ctx context.Context, userID string, now time.Time) ([]string, error)
	ListLabGrantIDs(ctx context.Context, labID string) ([]string, error)

	// responses & results
	AddResponse(ctx context.Context, r *models.Response) error
	ListResponsesByParticipant(ctx context.Context, participantID, assessmentID string) ([]*models.Response, error)
	DeleteResponsesBefore(ctx context.Context, cutoff time.Time) (int, error)
	AddResult(ctx context.Context, r *models.Result) error
	GetResult(ctx context.Context, id string) (*models.Result, error)
	ListResults(ctx context.Context, participantIDs, assessmentIDs []string) ([]*models.Result, error)

	// studies & IRB
	AddStudy(ctx context.Context, st *models.Study) error
	GetStudyByID(ctx context.Context, id string) (*models.Study, error)
	GetStudy(ctx context.Context, sonaStudyID, irbApprovalNumber string) (*models.Study, error)
	AddStudyAssessments(ctx context.Context, rows []*models.StudyAssessment) error
	ListStudyAssessmentIDs(ctx context.Context, studyID string) ([]string, error)
	AddStudyParticipant(ctx context.Context, sp *models.StudyParticipant) error
	ListStudyParticipants(ctx context.Context, studyID string) ([]*models.StudyParticipant, error)
	AddIRBAccess(ctx context.Context, entry *models.IRBAccessEntry) error

	// coaching
	AddCoachingSession(ctx context.Context, cs *models.CoachingSession) error
}

var _ Store = (*MemoryStore)(nil)
