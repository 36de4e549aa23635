package api

import (
	"context"
	"sync"
	"time"

	"github.com/palstack/assesshub/internal/models"
	"github.com/palstack/assesshub/internal/services"
)

// MemoryStore keeps everything in process memory behind one RWMutex. It
// backs tests and local development; production uses the SQLite store.
type MemoryStore struct {
	mu sync.RWMutex

	users        map[string]*models.User
	usersByEmail map[string]string
	labs         map[string]*models.Lab
	labsByName   map[string]string

	participants      map[string]*models.Participant
	participantBySess map[string]string
	participantByUser map[string]string

	assessments       map[string]*models.Assessment
	assessmentsByName map[string]string
	userGrants        []*models.UserGrant
	labGrants         []*models.LabGrant

	responses []*models.Response
	results   map[string]*models.Result

	studies           map[string]*models.Study
	studyAssessments  []*models.StudyAssessment
	studyParticipants []*models.StudyParticipant
	irbAccessLog      []*models.IRBAccessEntry

	coachingSessions []*models.CoachingSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:             map[string]*models.User{},
		usersByEmail:      map[string]string{},
		labs:              map[string]*models.Lab{},
		labsByName:        map[string]string{},
		participants:      map[string]*models.Participant{},
		participantBySess: map[string]string{},
		participantByUser: map[string]string{},
		assessments:       map[string]*models.Assessment{},
		assessmentsByName: map[string]string{},
		results:           map[string]*models.Result{},
		studies:           map[string]*models.Study{},
	}
}

// users & labs

func (m *MemoryStore) AddUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[u.ID]; exists {
		return services.NewConflictError("user exists")
	}
	if _, exists := m.usersByEmail[u.Email]; u.Email != "" && exists {
		return services.NewConflictError("email exists")
	}
	cp := *u
	m.users[u.ID] = &cp
	if u.Email != "" {
		m.usersByEmail[u.Email] = u.ID
	}
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usersByEmail[email]
	if !ok {
		return nil, nil
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *MemoryStore) UpdateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.users[u.ID]
	if !ok {
		return services.NewNotFoundError("user not found")
	}
	if old.Email != u.Email {
		delete(m.usersByEmail, old.Email)
		if u.Email != "" {
			m.usersByEmail[u.Email] = u.ID
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) AddLab(_ context.Context, lab *models.Lab) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.labsByName[lab.Name]; exists {
		return services.NewConflictError("lab exists")
	}
	cp := *lab
	m.labs[lab.ID] = &cp
	m.labsByName[lab.Name] = lab.ID
	return nil
}

func (m *MemoryStore) GetLabByName(_ context.Context, name string) (*models.Lab, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.labsByName[name]
	if !ok {
		return nil, nil
	}
	cp := *m.labs[id]
	return &cp, nil
}

// participants

func (m *MemoryStore) AddParticipant(_ context.Context, p *models.Participant) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Find-or-create at the storage layer: a concurrent insert for the same
	// identity key yields the winner's row, never an error.
	if p.UserID != "" {
		if id, ok := m.participantByUser[p.UserID]; ok {
			cp := *m.participants[id]
			return &cp, nil
		}
	} else if id, ok := m.participantBySess[p.SessionID]; ok {
		cp := *m.participants[id]
		return &cp, nil
	}
	cp := *p
	m.participants[p.ID] = &cp
	if p.UserID != "" {
		m.participantByUser[p.UserID] = p.ID
	} else if p.SessionID != "" {
		m.participantBySess[p.SessionID] = p.ID
	}
	out := cp
	return &out, nil
}

func (m *MemoryStore) GetParticipant(_ context.Context, id string) (*models.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.participants[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) GetParticipantBySession(_ context.Context, sessionID string) (*models.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.participantBySess[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *m.participants[id]
	return &cp, nil
}

func (m *MemoryStore) GetParticipantByUser(_ context.Context, userID string) (*models.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.participantByUser[userID]
	if !ok {
		return nil, nil
	}
	cp := *m.participants[id]
	return &cp, nil
}

func (m *MemoryStore) FindUnlinkedParticipantBySession(_ context.Context, sessionID string) (*models.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.participantBySess[sessionID]
	if !ok {
		return nil, nil
	}
	p := m.participants[id]
	if p.UserID != "" {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) LinkParticipantToUser(_ context.Context, participantID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[participantID]
	if !ok {
		return services.NewNotFoundError("participant not found")
	}
	if id, exists := m.participantByUser[userID]; exists && id != participantID {
		return services.NewConflictError("user already has a participant")
	}
	p.UserID = userID
	m.participantByUser[userID] = participantID
	delete(m.participantBySess, p.SessionID)
	return nil
}

func (m *MemoryStore) UpdateParticipantConsent(_ context.Context, id string, dataSharing, aiCoaching bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[id]
	if !ok {
		return services.NewNotFoundError("participant not found")
	}
	p.ConsentDataSharing = dataSharing
	p.ConsentAICoaching = aiCoaching
	return nil
}

func (m *MemoryStore) UpdateParticipantDemographics(_ context.Context, id string, demographics map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[id]
	if !ok {
		return services.NewNotFoundError("participant not found")
	}
	p.Demographics = demographics
	return nil
}

func (m *MemoryStore) UpdateParticipantResearchID(_ context.Context, id, researchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[id]
	if !ok {
		return services.NewNotFoundError("participant not found")
	}
	p.ResearchID = researchID
	return nil
}

// SetSessionContext is a no-op here; the SQLite store has nothing to tag
// either, the hook exists for stores with row-level session filtering.
func (m *MemoryStore) SetSessionContext(_ context.Context, _ string) error { return nil }

// assessments & grants

func (m *MemoryStore) UpsertAssessment(_ context.Context, a *models.Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.assessmentsByName[a.Name]; ok {
		a.ID = id
	}
	cp := *a
	m.assessments[a.ID] = &cp
	m.assessmentsByName[a.Name] = a.ID
	return nil
}

func (m *MemoryStore) GetActiveAssessmentByName(_ context.Context, name string) (*models.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.assessmentsByName[name]
	if !ok {
		return nil, nil
	}
	a := m.assessments[id]
	if !a.Active {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) ListActiveAssessments(_ context.Context) ([]*models.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Assessment
	for _, a := range m.assessments {
		if a.Active {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListActiveAssessmentsByIDs(_ context.Context, ids []string) ([]*models.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Assessment
	for _, id := range ids {
		if a, ok := m.assessments[id]; ok && a.Active {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) AddUserGrant(_ context.Context, g *models.UserGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.userGrants = append(m.userGrants, &cp)
	return nil
}

func (m *MemoryStore) AddLabGrant(_ context.Context, g *models.LabGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.labGrants = append(m.labGrants, &cp)
	return nil
}

func (m *MemoryStore) GetUserGrant(_ context.Context, userID, assessmentID string, now time.Time) (*models.UserGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.userGrants {
		if g.UserID == userID && g.AssessmentID == assessmentID {
			if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
				continue
			}
			cp := *g
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) GetLabGrant(_ context.Context, labID, assessmentID string) (*models.LabGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.labGrants {
		if g.LabID == labID && g.AssessmentID == assessmentID {
			cp := *g
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ListUserGrantIDs(_ context.Context, userID string, now time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, g := range m.userGrants {
		if g.UserID == userID {
			if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
				continue
			}
			out = append(out, g.AssessmentID)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListLabGrantIDs(_ context.Context, labID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, g := range m.labGrants {
		if g.LabID == labID && g.Active {
			out = append(out, g.AssessmentID)
		}
	}
	return out, nil
}

// responses & results

func (m *MemoryStore) AddResponse(_ context.Context, r *models.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.responses = append(m.responses, &cp)
	return nil
}

func (m *MemoryStore) ListResponsesByParticipant(_ context.Context, participantID, assessmentID string) ([]*models.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Response
	for _, r := range m.responses {
		if r.ParticipantID == participantID && (assessmentID == "" || r.AssessmentID == assessmentID) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteResponsesBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.responses[:0]
	removed := 0
	for _, r := range m.responses {
		if r.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.responses = kept
	return removed, nil
}

func (m *MemoryStore) AddResult(_ context.Context, r *models.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.results[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetResult(_ context.Context, id string) (*models.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ListResults(_ context.Context, participantIDs, assessmentIDs []string) ([]*models.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pset := toSet(participantIDs)
	aset := toSet(assessmentIDs)
	var out []*models.Result
	for _, r := range m.results {
		if pset[r.ParticipantID] && aset[r.AssessmentID] {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// studies & IRB

func (m *MemoryStore) AddStudy(_ context.Context, st *models.Study) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.studies {
		if s.SONAStudyID == st.SONAStudyID && s.IRBApprovalNumber == st.IRBApprovalNumber {
			return services.NewConflictError("study exists")
		}
	}
	cp := *st
	m.studies[st.ID] = &cp
	return nil
}

func (m *MemoryStore) GetStudyByID(_ context.Context, id string) (*models.Study, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.studies[id]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (m *MemoryStore) GetStudy(_ context.Context, sonaStudyID, irbApprovalNumber string) (*models.Study, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, st := range m.studies {
		if st.SONAStudyID == sonaStudyID && st.IRBApprovalNumber == irbApprovalNumber {
			cp := *st
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) AddStudyAssessments(_ context.Context, rows []*models.StudyAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		dup := false
		for _, existing := range m.studyAssessments {
			if existing.StudyID == row.StudyID && existing.AssessmentID == row.AssessmentID {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		cp := *row
		m.studyAssessments = append(m.studyAssessments, &cp)
	}
	return nil
}

func (m *MemoryStore) ListStudyAssessmentIDs(_ context.Context, studyID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, row := range m.studyAssessments {
		if row.StudyID == studyID {
			out = append(out, row.AssessmentID)
		}
	}
	return out, nil
}

func (m *MemoryStore) AddStudyParticipant(_ context.Context, sp *models.StudyParticipant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.studyParticipants {
		if existing.StudyID == sp.StudyID && existing.ParticipantID == sp.ParticipantID {
			return services.NewConflictError("participant already linked")
		}
	}
	cp := *sp
	m.studyParticipants = append(m.studyParticipants, &cp)
	return nil
}

func (m *MemoryStore) ListStudyParticipants(_ context.Context, studyID string) ([]*models.StudyParticipant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.StudyParticipant
	for _, sp := range m.studyParticipants {
		if sp.StudyID == studyID {
			cp := *sp
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) AddIRBAccess(_ context.Context, entry *models.IRBAccessEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.irbAccessLog = append(m.irbAccessLog, &cp)
	return nil
}

// coaching

func (m *MemoryStore) AddCoachingSession(_ context.Context, cs *models.CoachingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cs
	m.coachingSessions = append(m.coachingSessions, &cp)
	return nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
