package services

import (
	"context"
	"sync"
	"time"

	"github.com/palstack/assesshub/internal/models"
)

// AccessStore abstracts the permission tables consulted by the resolver.
// Grant lookups are pre-filtered: user grants must be non-expired at the
// given time, lab grants must be active.
type AccessStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetActiveAssessmentByName(ctx context.Context, name string) (*models.Assessment, error)
	GetUserGrant(ctx context.Context, userID, assessmentID string, now time.Time) (*models.UserGrant, error)
	GetLabGrant(ctx context.Context, labID, assessmentID string) (*models.LabGrant, error)
	ListUserGrantIDs(ctx context.Context, userID string, now time.Time) ([]string, error)
	ListLabGrantIDs(ctx context.Context, labID string) ([]string, error)
	ListActiveAssessments(ctx context.Context) ([]*models.Assessment, error)
	ListActiveAssessmentsByIDs(ctx context.Context, ids []string) ([]*models.Assessment, error)
}

// Reason explains an access decision. Evaluation is strict first-match in
// the order the constants are declared; reasons are never merged.
type Reason string

const (
	ReasonAnonymous            Reason = "anonymous"
	ReasonAdmin                Reason = "admin"
	ReasonAssessmentNotFound   Reason = "assessment_not_found"
	ReasonIndividualPermission Reason = "individual_permission"
	ReasonLabAccess            Reason = "lab_access"
	ReasonNoAccess             Reason = "no_access"
	// ReasonNoAccessControl is the permissive fallback used by callers when
	// the access-control infrastructure itself is unavailable.
	ReasonNoAccessControl Reason = "no_access_control"
)

// Decision is the outcome of an access check. AccessLevel is only set for
// lab-granted access.
type Decision struct {
	Allowed     bool   `json:"allowed"`
	Reason      Reason `json:"reason"`
	AccessLevel string `json:"access_level,omitempty"`
}

// PermissiveDecision is returned by callers that cannot reach the resolver;
// legacy-compatible default access.
func PermissiveDecision() Decision {
	return Decision{Allowed: true, Reason: ReasonNoAccessControl}
}

// AccessResolver answers access questions for one caller. The resolved
// user record is cached for the resolver's lifetime; stale reads after a
// permission or identity change are possible until InvalidateCache.
type AccessResolver struct {
	store  AccessStore
	userID string // empty means anonymous

	mu         sync.Mutex
	cachedUser *models.User
	cacheSet   bool

	now func() time.Time
}

func NewAccessResolver(store AccessStore, userID string) *AccessResolver {
	return &AccessResolver{
		store:  store,
		userID: userID,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *AccessResolver) currentUser(ctx context.Context) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cacheSet {
		return r.cachedUser, nil
	}
	if r.userID == "" {
		r.cachedUser = nil
		r.cacheSet = true
		return nil, nil
	}
	u, err := r.store.GetUser(ctx, r.userID)
	if err != nil {
		return nil, err
	}
	r.cachedUser = u
	r.cacheSet = true
	return u, nil
}

// InvalidateCache drops the cached user record. Call after any permission
// or identity change.
func (r *AccessResolver) InvalidateCache() {
	r.mu.Lock()
	r.cachedUser = nil
	r.cacheSet = false
	r.mu.Unlock()
}

// CanAccess resolves whether the caller may take the named assessment.
// First satisfied reason wins: anonymous, admin, assessment_not_found,
// individual_permission, lab_access, no_access. Individual and lab grants
// are independent allow-lists; there are no deny semantics.
func (r *AccessResolver) CanAccess(ctx context.Context, assessmentName string) (Decision, error) {
	user, err := r.currentUser(ctx)
	if err != nil {
		return Decision{}, err
	}

	// Anonymous callers keep full access for backward compatibility.
	if user == nil {
		return Decision{Allowed: true, Reason: ReasonAnonymous}, nil
	}
	if user.Role == models.RoleAdmin {
		return Decision{Allowed: true, Reason: ReasonAdmin}, nil
	}

	assessment, err := r.store.GetActiveAssessmentByName(ctx, assessmentName)
	if err != nil {
		return Decision{}, err
	}
	if assessment == nil {
		return Decision{Allowed: false, Reason: ReasonAssessmentNotFound}, nil
	}

	grant, err := r.store.GetUserGrant(ctx, user.ID, assessment.ID, r.now())
	if err != nil {
		return Decision{}, err
	}
	if grant != nil {
		return Decision{Allowed: true, Reason: ReasonIndividualPermission}, nil
	}

	if user.LabID != "" {
		labGrant, err := r.store.GetLabGrant(ctx, user.LabID, assessment.ID)
		if err != nil {
			return Decision{}, err
		}
		if labGrant != nil {
			return Decision{Allowed: true, Reason: ReasonLabAccess, AccessLevel: labGrant.AccessLevel}, nil
		}
	}

	return Decision{Allowed: false, Reason: ReasonNoAccess}, nil
}

// ListAccessible returns the active assessments the caller may take:
// everything for anonymous and admin callers, otherwise the deduplicated
// union of lab grants and non-expired individual grants.
func (r *AccessResolver) ListAccessible(ctx context.Context) ([]*models.Assessment, error) {
	user, err := r.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Role == models.RoleAdmin {
		return r.store.ListActiveAssessments(ctx)
	}

	seen := map[string]bool{}
	ids := []string{}
	if user.LabID != "" {
		labIDs, err := r.store.ListLabGrantIDs(ctx, user.LabID)
		if err != nil {
			return nil, err
		}
		for _, id := range labIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	userIDs, err := r.store.ListUserGrantIDs(ctx, user.ID, r.now())
	if err != nil {
		return nil, err
	}
	for _, id := range userIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []*models.Assessment{}, nil
	}
	return r.store.ListActiveAssessmentsByIDs(ctx, ids)
}

// IsAdmin reports whether the caller has the admin role.
func (r *AccessResolver) IsAdmin(ctx context.Context) (bool, error) {
	user, err := r.currentUser(ctx)
	if err != nil {
		return false, err
	}
	return user != nil && user.Role == models.RoleAdmin, nil
}

// IsResearcher reports whether the caller is a researcher or admin.
func (r *AccessResolver) IsResearcher(ctx context.Context) (bool, error) {
	user, err := r.currentUser(ctx)
	if err != nil {
		return false, err
	}
	return user != nil && (user.Role == models.RoleAdmin || user.Role == models.RoleResearcher), nil
}
