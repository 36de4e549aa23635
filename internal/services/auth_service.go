package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/palstack/assesshub/internal/models"
)

// AuthStore abstracts the user and lab tables used by authentication.
type AuthStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	AddUser(ctx context.Context, u *models.User) error
	UpdateUser(ctx context.Context, u *models.User) error
	GetLabByName(ctx context.Context, name string) (*models.Lab, error)
	FindUnlinkedParticipantBySession(ctx context.Context, sessionID string) (*models.Participant, error)
	LinkParticipantToUser(ctx context.Context, participantID, userID string) error
}

// TokenSigner issues an auth token for a resolved user.
type TokenSigner func(uid string, role models.Role, labID, email string, ttl time.Duration) (string, error)

type AuthService struct {
	store      AuthStore
	signToken  TokenSigner
	twoFactor  *TwoFactorService
	defaultLab string
	tokenTTL   time.Duration
	now        func() time.Time
	idGen      func() string
}

// AuthResult is the outcome of a register or login call. When Requires2FA
// is set no token is issued yet; the caller must complete the TOTP
// challenge identified by ChallengeID.
type AuthResult struct {
	Token       string
	UserID      string
	Requires2FA bool
	ChallengeID string
}

func NewAuthService(store AuthStore, signer TokenSigner, twoFactor *TwoFactorService, defaultLab string, tokenTTL time.Duration) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 30 * 24 * time.Hour
	}
	return &AuthService{
		store:      store,
		signToken:  signer,
		twoFactor:  twoFactor,
		defaultLab: defaultLab,
		tokenTTL:   tokenTTL,
		now:        func() time.Time { return time.Now().UTC() },
		idGen:      uuid.NewString,
	}
}

// Register creates an account and issues a token. New users default to the
// participant role; when no lab is given the configured default lab is
// used if it exists.
func (s *AuthService) Register(ctx context.Context, email, password, fullName, labID string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewValidationError("email/password required")
	}
	existing, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewConflictError("email exists")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		ID:        s.idGen(),
		Email:     email,
		FullName:  fullName,
		PassHash:  hash,
		LabID:     labID,
		Role:      models.RoleParticipant,
		CreatedAt: s.now(),
	}
	if user.LabID == "" {
		user.LabID = s.lookupDefaultLab(ctx)
	}
	if err := s.store.AddUser(ctx, user); err != nil {
		return nil, err
	}
	token, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, UserID: user.ID}, nil
}

// Login verifies credentials. Accounts with a verified TOTP factor get a
// challenge instead of a token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewValidationError("email/password required")
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}

	if user.TOTPVerified && s.twoFactor != nil {
		challengeID, err := s.twoFactor.Challenge(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		return &AuthResult{UserID: user.ID, Requires2FA: true, ChallengeID: challengeID}, nil
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, UserID: user.ID}, nil
}

// CompleteTwoFactorLogin exchanges a verified TOTP challenge for a token.
func (s *AuthService) CompleteTwoFactorLogin(ctx context.Context, challengeID, code string) (*AuthResult, error) {
	if s.twoFactor == nil {
		return nil, NewValidationError("two-factor not configured")
	}
	userID, err := s.twoFactor.VerifyLogin(ctx, challengeID, code)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	token, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, UserID: user.ID}, nil
}

// ResetPassword issues a short-lived token for the account, used to
// authorize a subsequent UpdatePassword call. Delivery of the token to the
// user (email) is outside this service.
func (s *AuthService) ResetPassword(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", NewValidationError("email required")
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", NewNotFoundError("account not found")
	}
	return s.signToken(user.ID, user.Role, user.LabID, user.Email, 15*time.Minute)
}

// UpdatePassword sets a new password for the user.
func (s *AuthService) UpdatePassword(ctx context.Context, userID, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return NewValidationError("password required")
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return NewNotFoundError("account not found")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PassHash = hash
	return s.store.UpdateUser(ctx, user)
}

// LinkAnonymousSession attaches the unlinked participant for sessionID to
// the authenticated user, so pre-login responses stay with the account.
func (s *AuthService) LinkAnonymousSession(ctx context.Context, userID, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return NewValidationError("session_id required")
	}
	participant, err := s.store.FindUnlinkedParticipantBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	if participant == nil {
		return NewNotFoundError("no unlinked participant for session")
	}
	return s.store.LinkParticipantToUser(ctx, participant.ID, userID)
}

func (s *AuthService) TokenTTL() time.Duration { return s.tokenTTL }

func (s *AuthService) issueToken(user *models.User) (string, error) {
	if s.signToken == nil {
		return "", NewValidationError("token signer not configured")
	}
	return s.signToken(user.ID, user.Role, user.LabID, user.Email, s.tokenTTL)
}

func (s *AuthService) lookupDefaultLab(ctx context.Context) string {
	if s.defaultLab == "" {
		return ""
	}
	lab, err := s.store.GetLabByName(ctx, s.defaultLab)
	if err != nil || lab == nil {
		return ""
	}
	return lab.ID
}
