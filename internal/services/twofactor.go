package services

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/palstack/assesshub/internal/models"
)

// TwoFactorStore abstracts the user rows carrying TOTP enrollment state.
type TwoFactorStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
}

const (
	totpPeriod = 30 * time.Second
	totpDigits = 6
	totpSkew   = 1 // accepted steps either side of now
)

type totpChallenge struct {
	userID    string
	expiresAt time.Time
}

// TwoFactorService implements TOTP (RFC 6238) enrollment and login
// challenges. Challenges are held in memory with a short TTL.
type TwoFactorService struct {
	store  TwoFactorStore
	issuer string

	mu         sync.Mutex
	challenges map[string]totpChallenge

	now func() time.Time
}

func NewTwoFactorService(store TwoFactorStore, issuer string) *TwoFactorService {
	if issuer == "" {
		issuer = "assesshub"
	}
	return &TwoFactorService{
		store:      store,
		issuer:     issuer,
		challenges: map[string]totpChallenge{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Enroll generates a fresh secret for the user and returns it with the
// otpauth provisioning URL. The factor stays unverified until VerifySetup
// accepts a code.
func (s *TwoFactorService) Enroll(ctx context.Context, userID string) (secret, otpauthURL string, err error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if user == nil {
		return "", "", NewNotFoundError("account not found")
	}
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	secret = base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
	user.TOTPSecret = secret
	user.TOTPVerified = false
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return "", "", err
	}
	otpauthURL = fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s&digits=%d&period=%d",
		url.PathEscape(s.issuer), url.PathEscape(user.Email), secret, url.QueryEscape(s.issuer),
		totpDigits, int(totpPeriod.Seconds()))
	return secret, otpauthURL, nil
}

// VerifySetup confirms enrollment with a current code, marking the factor
// verified.
func (s *TwoFactorService) VerifySetup(ctx context.Context, userID, code string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil || user.TOTPSecret == "" {
		return NewNotFoundError("no enrolled factor")
	}
	if !validateTOTP(user.TOTPSecret, code, s.now()) {
		return NewUnauthorizedError("invalid code")
	}
	user.TOTPVerified = true
	return s.store.UpdateUser(ctx, user)
}

// Challenge opens a login challenge for a user with a verified factor.
func (s *TwoFactorService) Challenge(ctx context.Context, userID string) (string, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil || !user.TOTPVerified {
		return "", NewNotFoundError("no verified factor")
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.challenges[id] = totpChallenge{userID: userID, expiresAt: s.now().Add(5 * time.Minute)}
	s.mu.Unlock()
	return id, nil
}

// VerifyLogin resolves a challenge with a code, returning the user ID on
// success. Challenges are single-use.
func (s *TwoFactorService) VerifyLogin(ctx context.Context, challengeID, code string) (string, error) {
	s.mu.Lock()
	ch, ok := s.challenges[challengeID]
	if ok {
		delete(s.challenges, challengeID)
	}
	s.mu.Unlock()
	if !ok || s.now().After(ch.expiresAt) {
		return "", NewUnauthorizedError("challenge expired")
	}
	user, err := s.store.GetUser(ctx, ch.userID)
	if err != nil {
		return "", err
	}
	if user == nil || user.TOTPSecret == "" {
		return "", NewUnauthorizedError("no enrolled factor")
	}
	if !validateTOTP(user.TOTPSecret, code, s.now()) {
		return "", NewUnauthorizedError("invalid code")
	}
	return user.ID, nil
}

// Status reports whether the user has a verified factor.
func (s *TwoFactorService) Status(ctx context.Context, userID string) (bool, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user != nil && user.TOTPVerified, nil
}

// Unenroll removes the user's factor.
func (s *TwoFactorService) Unenroll(ctx context.Context, userID string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil || user.TOTPSecret == "" {
		return NewNotFoundError("no enrolled factor")
	}
	user.TOTPSecret = ""
	user.TOTPVerified = false
	return s.store.UpdateUser(ctx, user)
}

// totpCode computes the RFC 6238 code for a secret at a counter value.
func totpCode(secret []byte, counter uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)
	mac := hmac.New(sha1.New, secret)
	mac.Write(buf[:])
	sum := mac.Sum(nil)
	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	mod := uint32(1)
	for i := 0; i < totpDigits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", totpDigits, value%mod)
}

func decodeTOTPSecret(encoded string) ([]byte, error) {
	return base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(encoded))
}

func validateTOTP(encodedSecret, code string, now time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != totpDigits {
		return false
	}
	secret, err := decodeTOTPSecret(encodedSecret)
	if err != nil {
		return false
	}
	counter := uint64(now.Unix()) / uint64(totpPeriod.Seconds())
	for delta := -totpSkew; delta <= totpSkew; delta++ {
		c := counter
		if delta < 0 {
			if uint64(-delta) > c {
				continue
			}
			c -= uint64(-delta)
		} else {
			c += uint64(delta)
		}
		if subtle.ConstantTimeCompare([]byte(totpCode(secret, c)), []byte(code)) == 1 {
			return true
		}
	}
	return false
}
