package services

import (
	"context"
	"testing"
	"time"

	"github.com/palstack/assesshub/internal/models"
)

type stubAccessStore struct {
	users       map[string]*models.User
	assessments map[string]*models.Assessment // by name, active only
	userGrants  map[string][]string           // userID -> assessment IDs
	labGrants   map[string]map[string]string  // labID -> assessmentID -> level
	userLookups int
}

func newStubAccessStore() *stubAccessStore {
	return &stubAccessStore{
		users:       map[string]*models.User{},
		assessments: map[string]*models.Assessment{},
		userGrants:  map[string][]string{},
		labGrants:   map[string]map[string]string{},
	}
}

func (s *stubAccessStore) GetUser(_ context.Context, id string) (*models.User, error) {
	s.userLookups++
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *stubAccessStore) GetActiveAssessmentByName(_ context.Context, name string) (*models.Assessment, error) {
	if a, ok := s.assessments[name]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (s *stubAccessStore) GetUserGrant(_ context.Context, userID, assessmentID string, _ time.Time) (*models.UserGrant, error) {
	for _, id := range s.userGrants[userID] {
		if id == assessmentID {
			return &models.UserGrant{UserID: userID, AssessmentID: assessmentID}, nil
		}
	}
	return nil, nil
}

func (s *stubAccessStore) GetLabGrant(_ context.Context, labID, assessmentID string) (*models.LabGrant, error) {
	if level, ok := s.labGrants[labID][assessmentID]; ok {
		return &models.LabGrant{LabID: labID, AssessmentID: assessmentID, AccessLevel: level, Active: true}, nil
	}
	return nil, nil
}

func (s *stubAccessStore) ListUserGrantIDs(_ context.Context, userID string, _ time.Time) ([]string, error) {
	return s.userGrants[userID], nil
}

func (s *stubAccessStore) ListLabGrantIDs(_ context.Context, labID string) ([]string, error) {
	var out []string
	for id := range s.labGrants[labID] {
		out = append(out, id)
	}
	return out, nil
}

func (s *stubAccessStore) ListActiveAssessments(_ context.Context) ([]*models.Assessment, error) {
	var out []*models.Assessment
	for _, a := range s.assessments {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *stubAccessStore) ListActiveAssessmentsByIDs(_ context.Context, ids []string) ([]*models.Assessment, error) {
	var out []*models.Assessment
	for _, a := range s.assessments {
		for _, id := range ids {
			if a.ID == id {
				cp := *a
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func seedAccessStore() *stubAccessStore {
	store := newStubAccessStore()
	store.assessments["ei-quiz"] = &models.Assessment{ID: "a-1", Name: "ei-quiz", Active: true}
	store.assessments["big-five"] = &models.Assessment{ID: "a-2", Name: "big-five", Active: true}
	store.users["admin"] = &models.User{ID: "admin", Role: models.RoleAdmin}
	store.users["member"] = &models.User{ID: "member", Role: models.RoleParticipant, LabID: "lab-1"}
	store.users["granted"] = &models.User{ID: "granted", Role: models.RoleParticipant}
	store.users["outsider"] = &models.User{ID: "outsider", Role: models.RoleParticipant}
	store.userGrants["granted"] = []string{"a-1"}
	store.labGrants["lab-1"] = map[string]string{"a-1": "full"}
	return store
}

func TestCanAccessReasonOrder(t *testing.T) {
	store := seedAccessStore()
	ctx := context.Background()

	cases := []struct {
		name        string
		userID      string
		assessment  string
		wantAllowed bool
		wantReason  Reason
		wantLevel   string
	}{
		{"anonymous", "", "ei-quiz", true, ReasonAnonymous, ""},
		{"anonymous unknown assessment", "", "nope", true, ReasonAnonymous, ""},
		{"admin", "admin", "nope", true, ReasonAdmin, ""},
		{"unknown assessment", "member", "nope", false, ReasonAssessmentNotFound, ""},
		{"individual grant", "granted", "ei-quiz", true, ReasonIndividualPermission, ""},
		{"lab grant", "member", "ei-quiz", true, ReasonLabAccess, "full"},
		{"no access", "outsider", "ei-quiz", false, ReasonNoAccess, ""},
		{"lab without grant", "member", "big-five", false, ReasonNoAccess, ""},
	}
	for _, tc := range cases {
		r := NewAccessResolver(store, tc.userID)
		d, err := r.CanAccess(ctx, tc.assessment)
		if err != nil {
			t.Fatalf("%s: CanAccess error: %v", tc.name, err)
		}
		if d.Allowed != tc.wantAllowed || d.Reason != tc.wantReason || d.AccessLevel != tc.wantLevel {
			t.Fatalf("%s: got %+v", tc.name, d)
		}
	}
}

func TestCanAccessIndividualGrantBeatsLabGrant(t *testing.T) {
	store := seedAccessStore()
	// A member with both grant kinds reports individual_permission.
	store.userGrants["member"] = []string{"a-1"}
	r := NewAccessResolver(store, "member")
	d, err := r.CanAccess(context.Background(), "ei-quiz")
	if err != nil {
		t.Fatalf("CanAccess error: %v", err)
	}
	if d.Reason != ReasonIndividualPermission {
		t.Fatalf("expected individual_permission, got %s", d.Reason)
	}
}

func TestListAccessible(t *testing.T) {
	store := seedAccessStore()
	ctx := context.Background()

	// Anonymous and admin see everything active.
	for _, uid := range []string{"", "admin"} {
		list, err := NewAccessResolver(store, uid).ListAccessible(ctx)
		if err != nil || len(list) != 2 {
			t.Fatalf("uid %q: got %d/%v, want 2", uid, len(list), err)
		}
	}

	// Lab member with an overlapping individual grant: union, deduplicated.
	store.userGrants["member"] = []string{"a-1", "a-2"}
	list, err := NewAccessResolver(store, "member").ListAccessible(ctx)
	if err != nil {
		t.Fatalf("ListAccessible error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 deduplicated assessments, got %d", len(list))
	}

	// No grants at all: empty, not nil error.
	empty, err := NewAccessResolver(store, "outsider").ListAccessible(ctx)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %d/%v", len(empty), err)
	}
}

func TestResolverUserCache(t *testing.T) {
	store := seedAccessStore()
	ctx := context.Background()
	r := NewAccessResolver(store, "member")

	if _, err := r.CanAccess(ctx, "ei-quiz"); err != nil {
		t.Fatalf("CanAccess error: %v", err)
	}
	lookups := store.userLookups
	if _, err := r.CanAccess(ctx, "big-five"); err != nil {
		t.Fatalf("CanAccess error: %v", err)
	}
	if store.userLookups != lookups {
		t.Fatalf("user re-fetched despite cache")
	}

	// Role change is only visible after invalidation.
	store.users["member"].Role = models.RoleAdmin
	d, _ := r.CanAccess(ctx, "nope")
	if d.Reason == ReasonAdmin {
		t.Fatalf("stale cache expected before invalidation")
	}
	r.InvalidateCache()
	d, _ = r.CanAccess(ctx, "nope")
	if d.Reason != ReasonAdmin {
		t.Fatalf("expected admin after invalidation, got %s", d.Reason)
	}
}

func TestRoleHelpers(t *testing.T) {
	store := seedAccessStore()
	store.users["res"] = &models.User{ID: "res", Role: models.RoleResearcher}
	ctx := context.Background()

	if ok, _ := NewAccessResolver(store, "admin").IsAdmin(ctx); !ok {
		t.Fatalf("admin not recognized")
	}
	if ok, _ := NewAccessResolver(store, "member").IsAdmin(ctx); ok {
		t.Fatalf("participant treated as admin")
	}
	if ok, _ := NewAccessResolver(store, "res").IsResearcher(ctx); !ok {
		t.Fatalf("researcher not recognized")
	}
	if ok, _ := NewAccessResolver(store, "admin").IsResearcher(ctx); !ok {
		t.Fatalf("admin should count as researcher")
	}
	if ok, _ := NewAccessResolver(store, "").IsResearcher(ctx); ok {
		t.Fatalf("anonymous treated as researcher")
	}
}

func TestPermissiveDecision(t *testing.T) {
	d := PermissiveDecision()
	if !d.Allowed || d.Reason != ReasonNoAccessControl {
		t.Fatalf("unexpected permissive decision: %+v", d)
	}
}
