package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/palstack/assesshub/internal/models"
)

type stubAuthStore struct {
	users        map[string]*models.User
	labs         map[string]*models.Lab
	participants map[string]*models.Participant // by session, unlinked only
	linked       map[string]string              // participantID -> userID
}

func newStubAuthStore() *stubAuthStore {
	return &stubAuthStore{
		users:        map[string]*models.User{},
		labs:         map[string]*models.Lab{},
		participants: map[string]*models.Participant{},
		linked:       map[string]string{},
	}
}

func (s *stubAuthStore) GetUser(_ context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *stubAuthStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubAuthStore) AddUser(_ context.Context, u *models.User) error {
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *stubAuthStore) UpdateUser(_ context.Context, u *models.User) error {
	if _, ok := s.users[u.ID]; !ok {
		return NewNotFoundError("user not found")
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *stubAuthStore) GetLabByName(_ context.Context, name string) (*models.Lab, error) {
	if lab, ok := s.labs[name]; ok {
		cp := *lab
		return &cp, nil
	}
	return nil, nil
}

func (s *stubAuthStore) FindUnlinkedParticipantBySession(_ context.Context, sessionID string) (*models.Participant, error) {
	if p, ok := s.participants[sessionID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (s *stubAuthStore) LinkParticipantToUser(_ context.Context, participantID, userID string) error {
	s.linked[participantID] = userID
	return nil
}

func testSigner(uid string, role models.Role, labID, email string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("token:%s:%s:%s", uid, role, ttl), nil
}

func TestRegisterAndLogin(t *testing.T) {
	store := newStubAuthStore()
	store.labs["PAL"] = &models.Lab{ID: "lab-1", Name: "PAL"}
	svc := NewAuthService(store, testSigner, nil, "PAL", 0)
	ctx := context.Background()

	res, err := svc.Register(ctx, "a@example.com", "hunter2", "A", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Token == "" || res.UserID == "" {
		t.Fatalf("missing token or user ID: %+v", res)
	}
	user := store.users[res.UserID]
	if user.LabID != "lab-1" {
		t.Fatalf("default lab not applied: %q", user.LabID)
	}
	if user.Role != models.RoleParticipant {
		t.Fatalf("unexpected role: %q", user.Role)
	}

	if _, err := svc.Register(ctx, "a@example.com", "other", "B", ""); err == nil || !IsConflict(err) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}
	if _, err := svc.Register(ctx, "", "x", "", ""); err == nil {
		t.Fatalf("expected validation error")
	}

	login, err := svc.Login(ctx, "a@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.Token == "" || login.Requires2FA {
		t.Fatalf("unexpected login result: %+v", login)
	}

	if _, err := svc.Login(ctx, "a@example.com", "wrong"); err == nil {
		t.Fatalf("expected unauthorized for bad password")
	}
	if _, err := svc.Login(ctx, "ghost@example.com", "x"); err == nil {
		t.Fatalf("expected unauthorized for unknown email")
	}
}

func TestPasswordLifecycle(t *testing.T) {
	store := newStubAuthStore()
	svc := NewAuthService(store, testSigner, nil, "", 0)
	ctx := context.Background()

	res, err := svc.Register(ctx, "p@example.com", "first", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	token, err := svc.ResetPassword(ctx, "p@example.com")
	if err != nil || token == "" {
		t.Fatalf("ResetPassword: %q/%v", token, err)
	}
	if _, err := svc.ResetPassword(ctx, "nobody@example.com"); err == nil {
		t.Fatalf("expected not found")
	}

	if err := svc.UpdatePassword(ctx, res.UserID, "second"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	if _, err := svc.Login(ctx, "p@example.com", "first"); err == nil {
		t.Fatalf("old password still accepted")
	}
	if _, err := svc.Login(ctx, "p@example.com", "second"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestLinkAnonymousSession(t *testing.T) {
	store := newStubAuthStore()
	store.participants["sess-1"] = &models.Participant{ID: "part-1", SessionID: "sess-1"}
	svc := NewAuthService(store, testSigner, nil, "", 0)
	ctx := context.Background()

	if err := svc.LinkAnonymousSession(ctx, "u-1", "sess-1"); err != nil {
		t.Fatalf("LinkAnonymousSession: %v", err)
	}
	if store.linked["part-1"] != "u-1" {
		t.Fatalf("participant not linked")
	}
	if err := svc.LinkAnonymousSession(ctx, "u-1", "sess-missing"); err == nil {
		t.Fatalf("expected not found")
	}
	if err := svc.LinkAnonymousSession(ctx, "u-1", " "); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoginWithTwoFactor(t *testing.T) {
	store := newStubAuthStore()
	twoFactor := NewTwoFactorService(store, "assesshub")
	svc := NewAuthService(store, testSigner, twoFactor, "", 0)
	ctx := context.Background()

	res, err := svc.Register(ctx, "tf@example.com", "pw", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	secret, otpauthURL, err := twoFactor.Enroll(ctx, res.UserID)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if secret == "" || otpauthURL == "" {
		t.Fatalf("missing enrollment material")
	}

	// Unverified factor does not gate login yet.
	if login, err := svc.Login(ctx, "tf@example.com", "pw"); err != nil || login.Requires2FA {
		t.Fatalf("unverified factor should not gate login: %+v/%v", login, err)
	}

	now := time.Unix(1_700_000_000, 0).UTC()
	twoFactor.now = func() time.Time { return now }
	code := currentTOTP(t, secret, now)
	if err := twoFactor.VerifySetup(ctx, res.UserID, code); err != nil {
		t.Fatalf("VerifySetup: %v", err)
	}
	if enabled, _ := twoFactor.Status(ctx, res.UserID); !enabled {
		t.Fatalf("factor not verified")
	}

	login, err := svc.Login(ctx, "tf@example.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !login.Requires2FA || login.ChallengeID == "" || login.Token != "" {
		t.Fatalf("expected challenge, got %+v", login)
	}

	if _, err := svc.CompleteTwoFactorLogin(ctx, login.ChallengeID, "000000"); err == nil {
		t.Fatalf("expected rejection for wrong code")
	}

	// Challenges are single-use; open a fresh one for the valid code.
	login, err = svc.Login(ctx, "tf@example.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	done, err := svc.CompleteTwoFactorLogin(ctx, login.ChallengeID, currentTOTP(t, secret, now))
	if err != nil {
		t.Fatalf("CompleteTwoFactorLogin: %v", err)
	}
	if done.Token == "" {
		t.Fatalf("no token after 2FA")
	}

	if err := twoFactor.Unenroll(ctx, res.UserID); err != nil {
		t.Fatalf("Unenroll: %v", err)
	}
	if enabled, _ := twoFactor.Status(ctx, res.UserID); enabled {
		t.Fatalf("factor still enabled after unenroll")
	}
}

func TestTwoFactorChallengeExpiry(t *testing.T) {
	store := newStubAuthStore()
	twoFactor := NewTwoFactorService(store, "assesshub")
	ctx := context.Background()

	store.users["u-1"] = &models.User{ID: "u-1", Email: "x@example.com", TOTPSecret: "JBSWY3DPEHPK3PXP", TOTPVerified: true}
	now := time.Unix(1_700_000_000, 0).UTC()
	twoFactor.now = func() time.Time { return now }

	id, err := twoFactor.Challenge(ctx, "u-1")
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	twoFactor.now = func() time.Time { return now.Add(6 * time.Minute) }
	if _, err := twoFactor.VerifyLogin(ctx, id, currentTOTP(t, "JBSWY3DPEHPK3PXP", now.Add(6*time.Minute))); err == nil {
		t.Fatalf("expected expired challenge")
	}
}

// currentTOTP derives the expected code the same way an authenticator app
// would, using the package's own primitives at a fixed time.
func currentTOTP(t *testing.T, encodedSecret string, now time.Time) string {
	t.Helper()
	secret, err := decodeTOTPSecret(encodedSecret)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	counter := uint64(now.Unix()) / uint64(totpPeriod.Seconds())
	return totpCode(secret, counter)
}
