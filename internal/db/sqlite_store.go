package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/palstack/assesshub/internal/api"
	"github.com/palstack/assesshub/internal/models"
	"github.com/palstack/assesshub/internal/services"
)

// SQLiteStore implements api.Store on a single SQLite file. Uniqueness is
// enforced at the schema level so concurrent find-or-create callers race
// safely: the loser re-reads the winner's row.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStore(db *sql.DB, logger *zap.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Open opens the SQLite file and returns a ready store.
func Open(path string, logger *zap.Logger) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return NewSQLiteStore(conn, logger)
}

var _ api.Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) Close() error { return s.db.Close() }

func isConstraintErr(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func int64ToBool(v int64) bool { return v != 0 }

func toNullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func encodeJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func (s *SQLiteStore) decodeAnyMap(ns sql.NullString, what string) map[string]any {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		s.logger.Warn("decode json column", zap.String("column", what), zap.Error(err))
		return nil
	}
	return out
}

func (s *SQLiteStore) decodeStringSlice(ns sql.NullString, what string) []string {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		s.logger.Warn("decode json column", zap.String("column", what), zap.Error(err))
		return nil
	}
	return out
}

// users & labs

func (s *SQLiteStore) AddUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, full_name, pass_hash, lab_id, role, totp_secret, totp_verified, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, toNullString(u.FullName), u.PassHash, toNullString(u.LabID),
		string(u.Role), toNullString(u.TOTPSecret), boolToInt64(u.TOTPVerified), u.CreatedAt)
	if isConstraintErr(err) {
		return services.NewConflictError("user exists")
	}
	return err
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var fullName, labID, totpSecret sql.NullString
	var role string
	var totpVerified int64
	err := row.Scan(&u.ID, &u.Email, &fullName, &u.PassHash, &labID, &role, &totpSecret, &totpVerified, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.FullName = fullName.String
	u.LabID = labID.String
	u.TOTPSecret = totpSecret.String
	u.TOTPVerified = int64ToBool(totpVerified)
	u.Role = models.Role(role)
	return &u, nil
}

const userColumns = `id, email, full_name, pass_hash, lab_id, role, totp_secret, totp_verified, created_at`

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (s *SQLiteStore) UpdateUser(ctx context.Context, u *models.User) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET email = ?, full_name = ?, pass_hash = ?, lab_id = ?, role = ?, totp_secret = ?, totp_verified = ? WHERE id = ?`,
		u.Email, toNullString(u.FullName), u.PassHash, toNullString(u.LabID),
		string(u.Role), toNullString(u.TOTPSecret), boolToInt64(u.TOTPVerified), u.ID)
	if isConstraintErr(err) {
		return services.NewConflictError("email exists")
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.NewNotFoundError("user not found")
	}
	return nil
}

func (s *SQLiteStore) AddLab(ctx context.Context, lab *models.Lab) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO labs (id, name) VALUES (?, ?)`, lab.ID, lab.Name)
	if isConstraintErr(err) {
		return services.NewConflictError("lab exists")
	}
	return err
}

func (s *SQLiteStore) GetLabByName(ctx context.Context, name string) (*models.Lab, error) {
	var lab models.Lab
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM labs WHERE name = ?`, name).Scan(&lab.ID, &lab.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lab, nil
}

// participants

const participantColumns = `id, session_id, user_id, research_id, consent_data_sharing, consent_ai_coaching, demographics, created_at`

func (s *SQLiteStore) scanParticipant(row *sql.Row) (*models.Participant, error) {
	var p models.Participant
	var sessionID, userID, researchID, demographics sql.NullString
	var dataSharing, aiCoaching int64
	err := row.Scan(&p.ID, &sessionID, &userID, &researchID, &dataSharing, &aiCoaching, &demographics, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.SessionID = sessionID.String
	p.UserID = userID.String
	p.ResearchID = researchID.String
	p.ConsentDataSharing = int64ToBool(dataSharing)
	p.ConsentAICoaching = int64ToBool(aiCoaching)
	p.Demographics = s.decodeAnyMap(demographics, "participants.demographics")
	return &p, nil
}

func (s *SQLiteStore) AddParticipant(ctx context.Context, p *models.Participant) (*models.Participant, error) {
	demographics, err := encodeJSON(p.Demographics)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO participants (id, session_id, user_id, research_id, consent_data_sharing, consent_ai_coaching, demographics, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, toNullString(p.SessionID), toNullString(p.UserID), toNullString(p.ResearchID),
		boolToInt64(p.ConsentDataSharing), boolToInt64(p.ConsentAICoaching), demographics, p.CreatedAt)
	if isConstraintErr(err) {
		// Lost a find-or-create race: hand back the winner's row.
		if p.UserID != "" {
			return s.GetParticipantByUser(ctx, p.UserID)
		}
		return s.GetParticipantBySession(ctx, p.SessionID)
	}
	if err != nil {
		return nil, err
	}
	cp := *p
	return &cp, nil
}

func (s *SQLiteStore) GetParticipant(ctx context.Context, id string) (*models.Participant, error) {
	return s.scanParticipant(s.db.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE id = ?`, id))
}

func (s *SQLiteStore) GetParticipantBySession(ctx context.Context, sessionID string) (*models.Participant, error) {
	return s.scanParticipant(s.db.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_id = ? AND (user_id IS NULL OR user_id = '')`, sessionID))
}

func (s *SQLiteStore) GetParticipantByUser(ctx context.Context, userID string) (*models.Participant, error) {
	return s.scanParticipant(s.db.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE user_id = ?`, userID))
}

func (s *SQLiteStore) FindUnlinkedParticipantBySession(ctx context.Context, sessionID string) (*models.Participant, error) {
	return s.GetParticipantBySession(ctx, sessionID)
}

func (s *SQLiteStore) LinkParticipantToUser(ctx context.Context, participantID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE participants SET user_id = ? WHERE id = ?`, userID, participantID)
	if isConstraintErr(err) {
		return services.NewConflictError("user already has a participant")
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.NewNotFoundError("participant not found")
	}
	return nil
}

func (s *SQLiteStore) updateParticipant(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.NewNotFoundError("participant not found")
	}
	return nil
}

func (s *SQLiteStore) UpdateParticipantConsent(ctx context.Context, id string, dataSharing, aiCoaching bool) error {
	return s.updateParticipant(ctx,
		`UPDATE participants SET consent_data_sharing = ?, consent_ai_coaching = ? WHERE id = ?`,
		boolToInt64(dataSharing), boolToInt64(aiCoaching), id)
}

func (s *SQLiteStore) UpdateParticipantDemographics(ctx context.Context, id string, demographics map[string]any) error {
	blob, err := encodeJSON(demographics)
	if err != nil {
		return err
	}
	return s.updateParticipant(ctx,
		`UPDATE participants SET demographics = ? WHERE id = ?`, blob, id)
}

func (s *SQLiteStore) UpdateParticipantResearchID(ctx context.Context, id, researchID string) error {
	return s.updateParticipant(ctx,
		`UPDATE participants SET research_id = ? WHERE id = ?`, toNullString(researchID), id)
}

// SetSessionContext is a no-op: SQLite has no per-connection row filters.
// The hook exists for stores that tag connections for row-level policies.
func (s *SQLiteStore) SetSessionContext(_ context.Context, _ string) error { return nil }

// assessments & grants

func (s *SQLiteStore) UpsertAssessment(ctx context.Context, a *models.Assessment) error {
	cfg, err := encodeJSON(a.Config)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assessments (id, name, title, active, version, config, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			title = excluded.title,
			active = excluded.active,
			version = excluded.version,
			config = excluded.config`,
		a.ID, a.Name, toNullString(a.Title), boolToInt64(a.Active), a.Version, cfg, a.CreatedAt)
	return err
}

const assessmentColumns = `id, name, title, active, version, config, created_at`

func (s *SQLiteStore) scanAssessmentRow(scan func(dest ...any) error) (*models.Assessment, error) {
	var a models.Assessment
	var title, cfg sql.NullString
	var active int64
	if err := scan(&a.ID, &a.Name, &title, &active, &a.Version, &cfg, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Title = title.String
	a.Active = int64ToBool(active)
	if cfg.Valid {
		if err := json.Unmarshal([]byte(cfg.String), &a.Config); err != nil {
			s.logger.Warn("decode json column", zap.String("column", "assessments.config"), zap.Error(err))
		}
	}
	return &a, nil
}

func (s *SQLiteStore) GetActiveAssessmentByName(ctx context.Context, name string) (*models.Assessment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE name = ? AND active = 1`, name)
	a, err := s.scanAssessmentRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *SQLiteStore) listAssessments(ctx context.Context, query string, args ...any) ([]*models.Assessment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Assessment
	for rows.Next() {
		a, err := s.scanAssessmentRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListActiveAssessments(ctx context.Context) ([]*models.Assessment, error) {
	return s.listAssessments(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE active = 1 ORDER BY name`)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (s *SQLiteStore) ListActiveAssessmentsByIDs(ctx context.Context, ids []string) ([]*models.Assessment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.listAssessments(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE active = 1 AND id IN (`+placeholders(len(ids))+`) ORDER BY name`,
		args...)
}

func (s *SQLiteStore) AddUserGrant(ctx context.Context, g *models.UserGrant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_assessments (user_id, assessment_id, expires_at, granted_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, assessment_id) DO UPDATE SET expires_at = excluded.expires_at`,
		g.UserID, g.AssessmentID, toNullTime(g.ExpiresAt), g.GrantedAt)
	return err
}

func (s *SQLiteStore) AddLabGrant(ctx context.Context, g *models.LabGrant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lab_assessments (lab_id, assessment_id, access_level, active) VALUES (?, ?, ?, ?)
		 ON CONFLICT(lab_id, assessment_id) DO UPDATE SET access_level = excluded.access_level, active = excluded.active`,
		g.LabID, g.AssessmentID, g.AccessLevel, boolToInt64(g.Active))
	return err
}

func (s *SQLiteStore) GetUserGrant(ctx context.Context, userID, assessmentID string, now time.Time) (*models.UserGrant, error) {
	var g models.UserGrant
	var expires sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, assessment_id, expires_at, granted_at FROM user_assessments
		 WHERE user_id = ? AND assessment_id = ? AND (expires_at IS NULL OR expires_at > ?)`,
		userID, assessmentID, now).Scan(&g.UserID, &g.AssessmentID, &expires, &g.GrantedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if expires.Valid {
		t := expires.Time
		g.ExpiresAt = &t
	}
	return &g, nil
}

func (s *SQLiteStore) GetLabGrant(ctx context.Context, labID, assessmentID string) (*models.LabGrant, error) {
	var g models.LabGrant
	var active int64
	err := s.db.QueryRowContext(ctx,
		`SELECT lab_id, assessment_id, access_level, active FROM lab_assessments
		 WHERE lab_id = ? AND assessment_id = ? AND active = 1`,
		labID, assessmentID).Scan(&g.LabID, &g.AssessmentID, &g.AccessLevel, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	g.Active = int64ToBool(active)
	return &g, nil
}

func (s *SQLiteStore) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListUserGrantIDs(ctx context.Context, userID string, now time.Time) ([]string, error) {
	return s.listIDs(ctx,
		`SELECT assessment_id FROM user_assessments WHERE user_id = ? AND (expires_at IS NULL OR expires_at > ?)`,
		userID, now)
}

func (s *SQLiteStore) ListLabGrantIDs(ctx context.Context, labID string) ([]string, error) {
	return s.listIDs(ctx,
		`SELECT assessment_id FROM lab_assessments WHERE lab_id = ? AND active = 1`, labID)
}

// responses & results

func (s *SQLiteStore) AddResponse(ctx context.Context, r *models.Response) error {
	data, err := encodeJSON(r.ResponseData)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO responses (id, participant_id, assessment_id, question_id, question_type, response_data, response_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ParticipantID, r.AssessmentID, r.QuestionID, string(r.QuestionType), data, r.ResponseTimeMs, r.CreatedAt)
	return err
}

func (s *SQLiteStore) ListResponsesByParticipant(ctx context.Context, participantID, assessmentID string) ([]*models.Response, error) {
	query := `SELECT id, participant_id, assessment_id, question_id, question_type, response_data, response_time_ms, created_at
		 FROM responses WHERE participant_id = ?`
	args := []any{participantID}
	if assessmentID != "" {
		query += ` AND assessment_id = ?`
		args = append(args, assessmentID)
	}
	query += ` ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Response
	for rows.Next() {
		var r models.Response
		var qt string
		var data sql.NullString
		if err := rows.Scan(&r.ID, &r.ParticipantID, &r.AssessmentID, &r.QuestionID, &qt, &data, &r.ResponseTimeMs, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.QuestionType = models.QuestionType(qt)
		r.ResponseData = s.decodeAnyMap(data, "responses.response_data")
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteResponsesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) AddResult(ctx context.Context, r *models.Result) error {
	scores, err := encodeJSON(r.Scores)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (id, participant_id, assessment_id, scores, feedback, completion_time_ms, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ParticipantID, r.AssessmentID, scores, toNullString(r.Feedback), r.CompletionTimeMs, r.CompletedAt)
	return err
}

func (s *SQLiteStore) scanResult(scan func(dest ...any) error) (*models.Result, error) {
	var r models.Result
	var scores, feedback sql.NullString
	if err := scan(&r.ID, &r.ParticipantID, &r.AssessmentID, &scores, &feedback, &r.CompletionTimeMs, &r.CompletedAt); err != nil {
		return nil, err
	}
	r.Scores = s.decodeAnyMap(scores, "results.scores")
	r.Feedback = feedback.String
	return &r, nil
}

const resultColumns = `id, participant_id, assessment_id, scores, feedback, completion_time_ms, completed_at`

func (s *SQLiteStore) GetResult(ctx context.Context, id string) (*models.Result, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM results WHERE id = ?`, id)
	r, err := s.scanResult(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteStore) ListResults(ctx context.Context, participantIDs, assessmentIDs []string) ([]*models.Result, error) {
	if len(participantIDs) == 0 || len(assessmentIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(participantIDs)+len(assessmentIDs))
	for _, id := range participantIDs {
		args = append(args, id)
	}
	for _, id := range assessmentIDs {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM results
		 WHERE participant_id IN (`+placeholders(len(participantIDs))+`)
		   AND assessment_id IN (`+placeholders(len(assessmentIDs))+`)
		 ORDER BY completed_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Result
	for rows.Next() {
		r, err := s.scanResult(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// studies & IRB

func (s *SQLiteStore) AddStudy(ctx context.Context, st *models.Study) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sona_studies (id, sona_study_id, irb_approval_number, title, principal_investigator, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.SONAStudyID, st.IRBApprovalNumber, toNullString(st.Title),
		toNullString(st.PrincipalInvestigator), st.Status, st.CreatedAt)
	if isConstraintErr(err) {
		return services.NewConflictError("study exists")
	}
	return err
}

const studyColumns = `id, sona_study_id, irb_approval_number, title, principal_investigator, status, created_at`

func (s *SQLiteStore) scanStudy(row *sql.Row) (*models.Study, error) {
	var st models.Study
	var title, pi sql.NullString
	err := row.Scan(&st.ID, &st.SONAStudyID, &st.IRBApprovalNumber, &title, &pi, &st.Status, &st.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.Title = title.String
	st.PrincipalInvestigator = pi.String
	return &st, nil
}

func (s *SQLiteStore) GetStudyByID(ctx context.Context, id string) (*models.Study, error) {
	return s.scanStudy(s.db.QueryRowContext(ctx,
		`SELECT `+studyColumns+` FROM sona_studies WHERE id = ?`, id))
}

func (s *SQLiteStore) GetStudy(ctx context.Context, sonaStudyID, irbApprovalNumber string) (*models.Study, error) {
	return s.scanStudy(s.db.QueryRowContext(ctx,
		`SELECT `+studyColumns+` FROM sona_studies WHERE sona_study_id = ? AND irb_approval_number = ?`,
		sonaStudyID, irbApprovalNumber))
}

func (s *SQLiteStore) AddStudyAssessments(ctx context.Context, rows []*models.StudyAssessment) error {
	for _, row := range rows {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO study_assessments (study_id, assessment_id, required) VALUES (?, ?, ?)
			 ON CONFLICT(study_id, assessment_id) DO NOTHING`,
			row.StudyID, row.AssessmentID, boolToInt64(row.Required))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) ListStudyAssessmentIDs(ctx context.Context, studyID string) ([]string, error) {
	return s.listIDs(ctx,
		`SELECT assessment_id FROM study_assessments WHERE study_id = ?`, studyID)
}

func (s *SQLiteStore) AddStudyParticipant(ctx context.Context, sp *models.StudyParticipant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO study_participants (study_id, participant_id, completed_at) VALUES (?, ?, ?)`,
		sp.StudyID, sp.ParticipantID, sp.CompletedAt)
	if isConstraintErr(err) {
		return services.NewConflictError("participant already linked")
	}
	return err
}

func (s *SQLiteStore) ListStudyParticipants(ctx context.Context, studyID string) ([]*models.StudyParticipant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT study_id, participant_id, completed_at FROM study_participants WHERE study_id = ? ORDER BY completed_at`,
		studyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.StudyParticipant
	for rows.Next() {
		var sp models.StudyParticipant
		if err := rows.Scan(&sp.StudyID, &sp.ParticipantID, &sp.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, &sp)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddIRBAccess(ctx context.Context, entry *models.IRBAccessEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO irb_access_log (study_id, access_type, accessed_by, accessed_at) VALUES (?, ?, ?, ?)`,
		entry.StudyID, entry.AccessType, toNullString(entry.AccessedBy), entry.Time)
	return err
}

// coaching

func (s *SQLiteStore) AddCoachingSession(ctx context.Context, cs *models.CoachingSession) error {
	insights, err := encodeJSON(cs.Insights)
	if err != nil {
		return err
	}
	recommendations, err := encodeJSON(cs.Recommendations)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO coaching_sessions (id, participant_id, result_id, session_type, coaching_type, model, insights, recommendations, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cs.ID, cs.ParticipantID, cs.ResultID, toNullString(cs.SessionType), toNullString(cs.CoachingType),
		toNullString(cs.Model), insights, recommendations, cs.CreatedAt)
	return err
}
