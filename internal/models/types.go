package models

import "time"

// Role of a registered user. Participants take assessments; researchers
// manage studies within their lab; admins see everything.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleResearcher  Role = "researcher"
	RoleAdmin       Role = "admin"
)

// User is a registered account. Participants may also be anonymous, in
// which case no User row exists and only a session-keyed Participant does.
type User struct {
	ID           string
	Email        string
	FullName     string
	PassHash     []byte
	LabID        string // empty when the user belongs to no lab
	Role         Role
	TOTPSecret   string
	TOTPVerified bool
	CreatedAt    time.Time
}

// Lab is an organizational grouping of users sharing assessment grants.
type Lab struct {
	ID   string
	Name string
}

// Participant is a research subject, anonymous (session-keyed) or linked
// to a user account. PII should be minimized; names are never stored, only
// the derived research ID when the participant opts in.
type Participant struct {
	ID                 string
	SessionID          string
	UserID             string
	ResearchID         string // derived CANDIDATE id, optional
	ConsentDataSharing bool
	ConsentAICoaching  bool
	Demographics       map[string]any
	CreatedAt          time.Time
}

// QuestionType enumerates the supported response payload shapes.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "mcq"
	QuestionMultipleAnswer QuestionType = "multiple_answer"
	QuestionLikert         QuestionType = "likert"
	QuestionConjoint       QuestionType = "conjoint_choice"
	QuestionText           QuestionType = "text"
)

// Question is one entry in an assessment's ordered question list.
type Question struct {
	Type          QuestionType `json:"type" yaml:"type"`
	Text          string       `json:"text" yaml:"text"`
	Description   string       `json:"description,omitempty" yaml:"description,omitempty"`
	Options       []string     `json:"options,omitempty" yaml:"options,omitempty"`
	ScaleMin      int          `json:"scale_min,omitempty" yaml:"scale_min,omitempty"`
	ScaleMax      int          `json:"scale_max,omitempty" yaml:"scale_max,omitempty"`
	ReverseScored bool         `json:"reverse_scored,omitempty" yaml:"reverse_scored,omitempty"`
	Feedback      string       `json:"feedback,omitempty" yaml:"feedback,omitempty"`
	CorrectAnswer *int         `json:"correct_answer,omitempty" yaml:"correct_answer,omitempty"`
	Attributes    []string     `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// AssessmentConfig is the instrument definition blob. Immutable during a run.
type AssessmentConfig struct {
	Questions    []Question `json:"questions" yaml:"questions"`
	AllowBack    bool       `json:"allow_back,omitempty" yaml:"allow_back,omitempty"`
	ShowFeedback bool       `json:"show_feedback,omitempty" yaml:"show_feedback,omitempty"`
	Scoring      string     `json:"scoring,omitempty" yaml:"scoring,omitempty"`
}

// Assessment is a named, versioned instrument, looked up by name.
type Assessment struct {
	ID        string
	Name      string // unique key
	Title     string
	Active    bool
	Version   int
	Config    AssessmentConfig
	CreatedAt time.Time
}

// Response is one answered question. Append-only.
type Response struct {
	ID             string
	ParticipantID  string
	AssessmentID   string
	QuestionID     string
	QuestionType   QuestionType
	ResponseData   map[string]any
	ResponseTimeMs int
	CreatedAt      time.Time
}

// Result is one completed assessment attempt.
type Result struct {
	ID               string
	ParticipantID    string
	AssessmentID     string
	Scores           map[string]any
	Feedback         string
	CompletionTimeMs int64
	CompletedAt      time.Time
}

// UserGrant is an individual permission override for one user+assessment.
// A nil ExpiresAt never expires.
type UserGrant struct {
	UserID       string
	AssessmentID string
	ExpiresAt    *time.Time
	GrantedAt    time.Time
}

// LabGrant gives every member of a lab access to an assessment.
type LabGrant struct {
	LabID        string
	AssessmentID string
	AccessLevel  string
	Active       bool
}

// Study is a SONA study registered for IRB-visible assessment linkage.
type Study struct {
	ID                    string
	SONAStudyID           string
	IRBApprovalNumber     string
	Title                 string
	PrincipalInvestigator string
	Status                string
	CreatedAt             time.Time
}

// StudyAssessment assigns an assessment to a study.
type StudyAssessment struct {
	StudyID      string
	AssessmentID string
	Required     bool
}

// StudyParticipant records that a participant completed work for a study.
type StudyParticipant struct {
	StudyID       string
	ParticipantID string
	CompletedAt   time.Time
}

// IRBAccessEntry is one row of the IRB access audit trail.
type IRBAccessEntry struct {
	StudyID    string
	AccessType string
	AccessedBy string
	Time       time.Time
}

// CoachingSession stores generated coaching output for a result.
type CoachingSession struct {
	ID              string
	ParticipantID   string
	ResultID        string
	SessionType     string
	CoachingType    string
	Model           string
	Insights        []string
	Recommendations []string
	CreatedAt       time.Time
}
