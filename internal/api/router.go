package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/palstack/assesshub/internal/middleware"
	"github.com/palstack/assesshub/internal/models"
	"github.com/palstack/assesshub/internal/services"
)

// Options wires the router. Store and Signer are required; a nil Logger
// falls back to zap.NewNop and a nil CoachingProvider disables coaching.
type Options struct {
	Store            Store
	Signer           services.TokenSigner
	TokenTTL         time.Duration
	DefaultLab       string
	CoachingProvider services.CoachingProvider
	Logger           *zap.Logger
}

type Router struct {
	store     Store
	sessions  *services.SessionService
	runs      *services.RunnerService
	auth      *services.AuthService
	twoFactor *services.TwoFactorService
	studies   *services.StudyService
	coaching  *services.CoachingService
	logger    *zap.Logger

	mu      sync.Mutex
	handles map[string]*services.Session
}

func NewRouter(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	twoFactor := services.NewTwoFactorService(opts.Store, "assesshub")
	return &Router{
		store:     opts.Store,
		sessions:  services.NewSessionService(opts.Store, opts.DefaultLab),
		runs:      services.NewRunnerService(opts.Store),
		auth:      services.NewAuthService(opts.Store, opts.Signer, twoFactor, opts.DefaultLab, opts.TokenTTL),
		twoFactor: twoFactor,
		studies:   services.NewStudyService(opts.Store),
		coaching:  services.NewCoachingService(opts.Store, opts.CoachingProvider),
		logger:    logger,
		handles:   map[string]*services.Session{},
	}
}

// Runs exposes the run service so callers can register scorers.
func (rt *Router) Runs() *services.RunnerService { return rt.runs }

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/session/init", rt.handleSessionInit)                 // POST
	mux.HandleFunc("/api/session/consent", rt.handleSessionConsent)           // POST
	mux.HandleFunc("/api/session/demographics", rt.handleSessionDemographics) // POST
	mux.HandleFunc("/api/session/research-id", rt.handleSessionResearchID)    // POST

	mux.HandleFunc("/api/auth/register", rt.handleRegister)         // POST
	mux.HandleFunc("/api/auth/login", rt.handleLogin)               // POST
	mux.HandleFunc("/api/auth/logout", rt.handleLogout)             // POST
	mux.HandleFunc("/api/auth/reset", rt.handleReset)               // POST
	mux.HandleFunc("/api/auth/password", rt.handlePassword)         // POST (auth)
	mux.HandleFunc("/api/auth/link-session", rt.handleLinkSession)  // POST (auth)
	mux.HandleFunc("/api/auth/2fa/login", rt.handleTwoFactorLogin)  // POST
	mux.HandleFunc("/api/auth/2fa/enroll", rt.handleTwoFactorEnroll) // POST (auth)
	mux.HandleFunc("/api/auth/2fa/verify", rt.handleTwoFactorVerify) // POST (auth)
	mux.HandleFunc("/api/auth/2fa/status", rt.handleTwoFactorStatus) // GET (auth)
	mux.HandleFunc("/api/auth/2fa/unenroll", rt.handleTwoFactorUnenroll) // POST (auth)

	mux.HandleFunc("/api/assessments", rt.handleAssessments)       // GET
	mux.HandleFunc("/api/assessments/", rt.handleAssessmentScoped) // GET /api/assessments/{name}/access

	mux.HandleFunc("/api/runs", rt.handleRuns)      // POST
	mux.HandleFunc("/api/runs/", rt.handleRunScoped) // GET {id}, POST {id}/answers, {id}/back

	mux.HandleFunc("/api/studies", rt.handleStudies)            // POST
	mux.HandleFunc("/api/studies/lookup", rt.handleStudyLookup) // GET
	mux.HandleFunc("/api/studies/", rt.handleStudyScoped)       // {id}/assessments|participants|results

	mux.HandleFunc("/api/coaching", rt.handleCoaching) // POST
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusForCode(code services.ErrorCode) int {
	switch code {
	case services.ErrorValidation:
		return http.StatusBadRequest
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorConflict:
		return http.StatusConflict
	case services.ErrorNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (rt *Router) writeError(w http.ResponseWriter, err error) {
	report := services.Describe(err)
	if report.Code == services.ErrorUnknown {
		rt.logger.Error("request failed", zap.String("technical", report.Technical))
	}
	writeJSON(w, statusForCode(report.Code), map[string]any{"error": report})
}

func identityFromRequest(r *http.Request) *services.Identity {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		return nil
	}
	return &services.Identity{UserID: claims.UID, Email: claims.Email}
}

func requireClaims(w http.ResponseWriter, r *http.Request) *middleware.Claims {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": services.Describe(services.NewUnauthorizedError("authentication required"))})
		return nil
	}
	return claims
}

// sessionHandle returns the per-session bootstrap handle, creating it on
// first use. READY handles short-circuit repeated initialization.
func (rt *Router) sessionHandle(sessionID string) *services.Session {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	h, ok := rt.handles[sessionID]
	if !ok {
		h = rt.sessions.NewSession(sessionID)
		rt.handles[sessionID] = h
	}
	return h
}

// POST /api/session/init: resolve (or create) the participant for this
// session, anonymous or authenticated.
func (rt *Router) handleSessionInit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, services.NewValidationError("invalid request body"))
		return
	}
	ident := identityFromRequest(r)
	pid, err := rt.sessionHandle(req.SessionID).Initialize(r.Context(), ident)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"participant_id": pid, "authenticated": ident != nil})
}

// POST /api/session/consent
func (rt *Router) handleSessionConsent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		SessionID   string `json:"session_id"`
		DataSharing bool   `json:"data_sharing"`
		AICoaching  bool   `json:"ai_coaching"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, services.NewValidationError("invalid request body"))
		return
	}
	handle := rt.sessionHandle(req.SessionID)
	if err := handle.UpdateConsent(r.Context(), identityFromRequest(r), req.DataSharing, req.AICoaching); err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// POST /api/session/demographics
func (rt *Router) handleSessionDemographics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		SessionID    string         `json:"session_id"`
		Demographics map[string]any `json:"demographics"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, services.NewValidationError("invalid request body"))
		return
	}
	handle := rt.sessionHandle(req.SessionID)
	if err := handle.UpdateDemographics(r.Context(), identityFromRequest(r), req.Demographics); err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// POST /api/session/research-id: derive a research ID from the full name
// (the name itself is never stored) or attach a pre-derived one.
func (rt *Router) handleSessionResearchID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		SessionID  string `json:"session_id"`
		FullName   string `json:"full_name"`
		ResearchID string `json:"research_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, services.NewValidationError("invalid request body"))
		return
	}
	researchID := req.ResearchID
	if researchID == "" {
		id, ok := services.GenerateParticipantID(req.FullName)
		if !ok {
			rt.writeError(w, services.NewValidationError("full_name or research_id required"))
			return
		}
		researchID = id
	}
	handle := rt.sessionHandle(req.SessionID)
	if err := handle.SetResearchID(r.Context(), identityFromRequest(r), researchID); err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"research_id": researchID})
}

// POST /api/auth/register
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
		LabID    string `json:"lab_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, services.NewValidationError("invalid request body"))
		return
	}
	res, err := rt.auth.Register(r.Context(), req.Email, req.Password, req.FullName, req.LabID)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": res.Token, "user_id": res.UserID})
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, services.NewValidationError("invalid request body"))
		return
	}
	res, err := rt.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	if res.Requires2FA {
		writeJSON(w, http.StatusOK, map[string]any{"requires_2fa": true, "challenge_id": res.ChallengeID})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": res.Token, "user_id": res.UserID})
}

// POST /api/auth/logout. Tokens are stateless, so the server has nothing
// to revoke; the endpoint exists so clients have a single place to end a
// session and discard the token.
func (rt *Router) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// POST /api/auth/2fa/login: exchange a TOTP challenge for a token.
func (rt *Router) handleTwoFactorLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ChallengeID string `json:"challenge_id"`
		Code        string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, services.NewValidationError("invalid request body"))
		return
	}
	res, err := rt.auth.CompleteTwoFactorLogin(r.Context(), req.ChallengeID, req.Code)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": res.Token, "user_id": res.UserID})
}

// POST /api/auth/reset
func (rt *Router) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, services.NewValidationError("invalid request body"))
		return
	}
	// The reset token goes out via email in production. Account existence is
	// not revealed to the caller.
	if _, err := rt.auth.ResetPassword(r.Context(), req.Email); err != nil {
		if se, ok := services.AsServiceError(err); !ok || se.Code != services.ErrorNotFound {
			rt.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// POST /api/auth/password
func (rt *Router) handlePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}
	var req struct {
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, services.NewValidationError("invalid request body"))
		return
	}
	if err := rt.auth.UpdatePassword(r.Context(), claims.UID, req.NewPassword); err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// POST /api/auth/link-session: claim the anonymous participant for a
// session after logging in.
func (rt *Router) handleLinkSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, services.NewValidationError("invalid request body"))
		return
	}
	if err := rt.auth.LinkAnonymousSession(r.Context(), claims.UID, req.SessionID); err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// POST /api/auth/2fa/enroll
func (rt *Router) handleTwoFactorEnroll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}
	secret, otpauthURL, err := rt.twoFactor.Enroll(r.Context(), claims.UID)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"secret": secret, "otpauth_url": otpauthURL})
}

// POST /api/auth/2fa/verify: confirm enrollment with a current code.
func (rt *Router) handleTwoFactorVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, services.NewValidationError("invalid request body"))
		return
	}
	if err := rt.twoFactor.VerifySetup(r.Context(), claims.UID, req.Code); err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

// GET /api/auth/2fa/status
func (rt *Router) handleTwoFactorStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}
	verified, err := rt.twoFactor.Status(r.Context(), claims.UID)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": verified})
}

// POST /api/auth/2fa/unenroll
func (rt *Router) handleTwoFactorUnenroll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}
	if err := rt.twoFactor.Unenroll(r.Context(), claims.UID); err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (rt *Router) resolverFor(r *http.Request) *services.AccessResolver {
	uid := ""
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		uid = claims.UID
	}
	return services.NewAccessResolver(rt.store, uid)
}

// GET /api/assessments: the active assessments the caller may take.
func (rt *Router) handleAssessments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	assessments, err := rt.resolverFor(r).ListAccessible(r.Context())
	if err != nil {
		rt.writeError(w, err)
		return
	}
	type outAssessment struct {
		Name      string `json:"name"`
		Title     string `json:"title"`
		Questions int    `json:"questions"`
	}
	out := make([]outAssessment, 0, len(assessments))
	for _, a := range assessments {
		out = append(out, outAssessment{Name: a.Name, Title: a.Title, Questions: len(a.Config.Questions)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"assessments": out})
}

// GET /api/assessments/{name}/access
func (rt *Router) handleAssessmentScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/assessments/")
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[1] != "access" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	decision, err := rt.resolverFor(r).CanAccess(r.Context(), parts[0])
	if err != nil {
		// Access-control infrastructure failure falls back to permissive
		// legacy behavior rather than locking everyone out.
		rt.logger.Warn("access check unavailable", zap.String("assessment", parts[0]), zap.Error(err))
		decision = services.PermissiveDecision()
	}
	writeJSON(w, http.StatusOK, decision)
}

type questionView struct {
	ID          string              `json:"id"`
	Type        models.QuestionType `json:"type"`
	Text        string              `json:"text"`
	Description string              `json:"description,omitempty"`
	Options     []string            `json:"options,omitempty"`
	ScaleMin    int                 `json:"scale_min,omitempty"`
	ScaleMax    int                 `json:"scale_max,omitempty"`
	Attributes  []string            `json:"attributes,omitempty"`
}

func viewQuestion(assessmentName string, index int, q *models.Question) *questionView {
	if q == nil {
		return nil
	}
	return &questionView{
		ID:          services.QuestionID(assessmentName, index),
		Type:        q.Type,
		Text:        q.Text,
		Description: q.Description,
		Options:     q.Options,
		ScaleMin:    q.ScaleMin,
		ScaleMax:    q.ScaleMax,
		Attributes:  q.Attributes,
	}
}

// POST /api/runs: start an assessment run for the caller's participant.
func (rt *Router) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		AssessmentName string `json:"assessment_name"`
		SessionID      string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, services.NewValidationError("invalid request body"))
		return
	}

	decision, err := rt.resolverFor(r).CanAccess(r.Context(), req.AssessmentName)
	if err != nil {
		rt.logger.Warn("access check unavailable", zap.String("assessment", req.AssessmentName), zap.Error(err))
		decision = services.PermissiveDecision()
	}
	if !decision.Allowed {
		if decision.Reason == services.ReasonAssessmentNotFound {
			rt.writeError(w, services.NewNotFoundError("assessment not found"))
			return
		}
		rt.writeError(w, services.NewForbiddenError("no access to assessment: "+string(decision.Reason)))
		return
	}

	pid, err := rt.sessionHandle(req.SessionID).Initialize(r.Context(), identityFromRequest(r))
	if err != nil {
		rt.writeError(w, err)
		return
	}
	run, err := rt.runs.StartRun(r.Context(), req.AssessmentName, pid)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   run.ID(),
		"index":    run.Index(),
		"total":    run.QuestionCount(),
		"question": viewQuestion(req.AssessmentName, run.Index(), run.CurrentQuestion()),
	})
}

// GET /api/runs/{id}, POST /api/runs/{id}/answers, POST /api/runs/{id}/back
func (rt *Router) handleRunScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	parts := strings.Split(rest, "/")
	run, err := rt.runs.GetRun(parts[0])
	if err != nil {
		rt.writeError(w, err)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"run_id":    run.ID(),
			"index":     run.Index(),
			"total":     run.QuestionCount(),
			"completed": run.Completed(),
			"question":  viewQuestion(run.AssessmentName(), run.Index(), run.CurrentQuestion()),
		})

	case len(parts) == 2 && parts[1] == "answers" && r.Method == http.MethodPost:
		var req struct {
			QuestionType   models.QuestionType `json:"question_type"`
			Data           map[string]any      `json:"data"`
			ResponseTimeMs int                 `json:"response_time_ms"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rt.writeError(w, services.NewValidationError("invalid request body"))
			return
		}
		outcome, err := run.Submit(r.Context(), req.QuestionType, req.Data, req.ResponseTimeMs)
		if err != nil {
			rt.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, outcome)

	case len(parts) == 2 && parts[1] == "back" && r.Method == http.MethodPost:
		index, err := run.Back()
		if err != nil {
			rt.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"index":    index,
			"question": viewQuestion(run.AssessmentName(), index, run.CurrentQuestion()),
		})

	default:
		http.NotFound(w, r)
	}
}

func (rt *Router) requireResearcher(w http.ResponseWriter, r *http.Request) (*middleware.Claims, bool) {
	claims := requireClaims(w, r)
	if claims == nil {
		return nil, false
	}
	ok, err := rt.resolverFor(r).IsResearcher(r.Context())
	if err != nil {
		rt.writeError(w, err)
		return nil, false
	}
	if !ok {
		rt.writeError(w, services.NewForbiddenError("researcher role required"))
		return nil, false
	}
	return claims, true
}

// POST /api/studies: register a SONA study.
func (rt *Router) handleStudies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := rt.requireResearcher(w, r); !ok {
		return
	}
	var req struct {
		SONAStudyID           string `json:"sona_study_id"`
		IRBApprovalNumber     string `json:"irb_approval_number"`
		Title                 string `json:"title"`
		PrincipalInvestigator string `json:"principal_investigator"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, services.NewValidationError("invalid request body"))
		return
	}
	study, err := rt.studies.RegisterStudy(r.Context(), req.SONAStudyID, req.IRBApprovalNumber, req.Title, req.PrincipalInvestigator)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"study_id": study.ID})
}

// GET /api/studies/lookup?sona_study_id=...&irb=...
func (rt *Router) handleStudyLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	study, err := rt.studies.GetStudy(r.Context(), r.URL.Query().Get("sona_study_id"), r.URL.Query().Get("irb"))
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"study_id": study.ID,
		"title":    study.Title,
		"status":   study.Status,
	})
}

// /api/studies/{id}/assessments, /api/studies/{id}/participants,
// /api/studies/{id}/results
func (rt *Router) handleStudyScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/studies/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	studyID := parts[0]

	switch {
	case parts[1] == "assessments" && r.Method == http.MethodPost:
		if _, ok := rt.requireResearcher(w, r); !ok {
			return
		}
		var req struct {
			AssessmentIDs []string `json:"assessment_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rt.writeError(w, services.NewValidationError("invalid request body"))
			return
		}
		if err := rt.studies.AssignAssessments(r.Context(), studyID, req.AssessmentIDs); err != nil {
			rt.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case parts[1] == "participants" && r.Method == http.MethodPost:
		// Completion linkage comes from the participant flow itself, no
		// researcher role needed.
		var req struct {
			ParticipantID string `json:"participant_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rt.writeError(w, services.NewValidationError("invalid request body"))
			return
		}
		if err := rt.studies.LinkParticipant(r.Context(), studyID, req.ParticipantID); err != nil {
			rt.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case parts[1] == "participants" && r.Method == http.MethodGet:
		claims, ok := rt.requireResearcher(w, r)
		if !ok {
			return
		}
		rows, err := rt.studies.StudyParticipants(r.Context(), studyID, claims.UID)
		if err != nil {
			rt.writeError(w, err)
			return
		}
		type outLink struct {
			ParticipantID string    `json:"participant_id"`
			CompletedAt   time.Time `json:"completed_at"`
		}
		out := make([]outLink, 0, len(rows))
		for _, sp := range rows {
			out = append(out, outLink{ParticipantID: sp.ParticipantID, CompletedAt: sp.CompletedAt})
		}
		writeJSON(w, http.StatusOK, map[string]any{"participants": out})

	case parts[1] == "results" && r.Method == http.MethodGet:
		claims, ok := rt.requireResearcher(w, r)
		if !ok {
			return
		}
		results, err := rt.studies.StudyResults(r.Context(), studyID, claims.UID)
		if err != nil {
			rt.writeError(w, err)
			return
		}
		type outResult struct {
			ParticipantID string         `json:"participant_id"`
			AssessmentID  string         `json:"assessment_id"`
			Scores        map[string]any `json:"scores"`
			CompletedAt   time.Time      `json:"completed_at"`
		}
		out := make([]outResult, 0, len(results))
		for _, res := range results {
			out = append(out, outResult{ParticipantID: res.ParticipantID, AssessmentID: res.AssessmentID, Scores: res.Scores, CompletedAt: res.CompletedAt})
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": out})

	default:
		http.NotFound(w, r)
	}
}

// POST /api/coaching: generate coaching for a result. Forbidden while the
// capability is disabled.
func (rt *Router) handleCoaching(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ResultID       string `json:"result_id"`
		AssessmentType string `json:"assessment_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, services.NewValidationError("invalid request body"))
		return
	}
	coaching, err := rt.coaching.GenerateForResult(r.Context(), req.ResultID, req.AssessmentType)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coaching)
}
