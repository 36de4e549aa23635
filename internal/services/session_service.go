package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/palstack/assesshub/internal/models"
)

// SessionStore abstracts the persistence operations needed to bootstrap a
// session into a participant row.
type SessionStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	AddUser(ctx context.Context, u *models.User) error
	GetLabByName(ctx context.Context, name string) (*models.Lab, error)
	GetParticipantByUser(ctx context.Context, userID string) (*models.Participant, error)
	GetParticipantBySession(ctx context.Context, sessionID string) (*models.Participant, error)
	AddParticipant(ctx context.Context, p *models.Participant) (*models.Participant, error)
	UpdateParticipantConsent(ctx context.Context, id string, dataSharing, aiCoaching bool) error
	UpdateParticipantDemographics(ctx context.Context, id string, demographics map[string]any) error
	UpdateParticipantResearchID(ctx context.Context, id, researchID string) error
	SetSessionContext(ctx context.Context, sessionID string) error
}

// Identity is the authenticated caller, resolved from the auth token.
// A nil *Identity means anonymous mode.
type Identity struct {
	UserID   string
	Email    string
	FullName string
}

// SessionService resolves sessions to participants with find-or-create
// semantics. Concurrent initialize calls for the same identity key are
// collapsed through singleflight; the store additionally absorbs
// duplicate-key races by returning the existing row.
type SessionService struct {
	store      SessionStore
	defaultLab string
	group      singleflight.Group
	now        func() time.Time
	idGen      func() string
}

func NewSessionService(store SessionStore, defaultLab string) *SessionService {
	return &SessionService{
		store:      store,
		defaultLab: defaultLab,
		now:        func() time.Time { return time.Now().UTC() },
		idGen:      func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:12] },
	}
}

// Initialize resolves (or creates) the participant for the given session
// and optional authenticated identity, returning the participant ID.
func (s *SessionService) Initialize(ctx context.Context, sessionID string, ident *Identity) (string, error) {
	if strings.TrimSpace(sessionID) == "" && ident == nil {
		return "", NewValidationError("session_id required")
	}
	key := "sess:" + sessionID
	if ident != nil {
		key = "user:" + ident.UserID
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.resolve(ctx, sessionID, ident)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *SessionService) resolve(ctx context.Context, sessionID string, ident *Identity) (string, error) {
	if ident != nil {
		return s.resolveAuthenticated(ctx, sessionID, ident)
	}
	return s.resolveAnonymous(ctx, sessionID)
}

func (s *SessionService) resolveAuthenticated(ctx context.Context, sessionID string, ident *Identity) (string, error) {
	user, err := s.store.GetUser(ctx, ident.UserID)
	if err != nil {
		return "", err
	}
	if user == nil {
		user = &models.User{
			ID:        ident.UserID,
			Email:     ident.Email,
			FullName:  ident.FullName,
			Role:      models.RoleParticipant,
			CreatedAt: s.now(),
		}
		if s.defaultLab != "" {
			if lab, err := s.store.GetLabByName(ctx, s.defaultLab); err == nil && lab != nil {
				user.LabID = lab.ID
			}
		}
		if err := s.store.AddUser(ctx, user); err != nil && !IsConflict(err) {
			return "", err
		}
	}

	participant, err := s.store.GetParticipantByUser(ctx, user.ID)
	if err != nil {
		return "", err
	}
	if participant == nil {
		participant, err = s.store.AddParticipant(ctx, &models.Participant{
			ID:        s.idGen(),
			SessionID: sessionID,
			UserID:    user.ID,
			CreatedAt: s.now(),
		})
		if err != nil {
			return "", err
		}
	}
	return participant.ID, nil
}

func (s *SessionService) resolveAnonymous(ctx context.Context, sessionID string) (string, error) {
	// Best-effort session tag for downstream row filtering; absence of the
	// backing RPC is not fatal.
	_ = s.store.SetSessionContext(ctx, sessionID)

	participant, err := s.store.GetParticipantBySession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if participant == nil {
		participant, err = s.store.AddParticipant(ctx, &models.Participant{
			ID:        s.idGen(),
			SessionID: sessionID,
			CreatedAt: s.now(),
		})
		if err != nil {
			return "", err
		}
	}
	return participant.ID, nil
}

// SessionState is the bootstrap lifecycle of a Session.
type SessionState int

const (
	SessionUninitialized SessionState = iota
	SessionResolving
	SessionReady
)

// Session is a per-browser-context handle over the bootstrap flow. READY is
// terminal: repeated Initialize calls return the cached participant ID
// without touching the store again.
type Session struct {
	mu            sync.Mutex
	svc           *SessionService
	sessionID     string
	participantID string
	state         SessionState
}

func (s *SessionService) NewSession(sessionID string) *Session {
	return &Session{svc: s, sessionID: sessionID}
}

func (se *Session) Initialize(ctx context.Context, ident *Identity) (string, error) {
	se.mu.Lock()
	defer se.mu.Unlock()
	if se.state == SessionReady {
		return se.participantID, nil
	}
	se.state = SessionResolving
	pid, err := se.svc.Initialize(ctx, se.sessionID, ident)
	if err != nil {
		se.state = SessionUninitialized
		return "", err
	}
	se.participantID = pid
	se.state = SessionReady
	return pid, nil
}

func (se *Session) State() SessionState {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.state
}

func (se *Session) ParticipantID() string {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.participantID
}

// UpdateConsent records the participant's consent flags, initializing the
// session first when needed.
func (se *Session) UpdateConsent(ctx context.Context, ident *Identity, dataSharing, aiCoaching bool) error {
	pid, err := se.Initialize(ctx, ident)
	if err != nil {
		return err
	}
	return se.svc.store.UpdateParticipantConsent(ctx, pid, dataSharing, aiCoaching)
}

// UpdateDemographics stores the demographics blob for the participant.
func (se *Session) UpdateDemographics(ctx context.Context, ident *Identity, demographics map[string]any) error {
	pid, err := se.Initialize(ctx, ident)
	if err != nil {
		return err
	}
	return se.svc.store.UpdateParticipantDemographics(ctx, pid, demographics)
}

// SetResearchID attaches a client-derived research tag to the participant.
func (se *Session) SetResearchID(ctx context.Context, ident *Identity, researchID string) error {
	if strings.TrimSpace(researchID) == "" {
		return NewValidationError("research_id required")
	}
	pid, err := se.Initialize(ctx, ident)
	if err != nil {
		return err
	}
	return se.svc.store.UpdateParticipantResearchID(ctx, pid, researchID)
}
