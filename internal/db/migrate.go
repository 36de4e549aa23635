package db

import (
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS labs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT,
		pass_hash BLOB,
		lab_id TEXT,
		role TEXT NOT NULL DEFAULT 'participant',
		totp_secret TEXT,
		totp_verified INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS participants (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		user_id TEXT,
		research_id TEXT,
		consent_data_sharing INTEGER NOT NULL DEFAULT 0,
		consent_ai_coaching INTEGER NOT NULL DEFAULT 0,
		demographics TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	// One participant per user account, one anonymous participant per
	// session. A linked participant keeps its session_id for audit but
	// leaves the anonymous namespace.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_participants_user
		ON participants(user_id) WHERE user_id IS NOT NULL AND user_id != ''`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_participants_session
		ON participants(session_id) WHERE user_id IS NULL OR user_id = ''`,
	`CREATE TABLE IF NOT EXISTS assessments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		title TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		version INTEGER NOT NULL DEFAULT 1,
		config TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_assessments (
		user_id TEXT NOT NULL,
		assessment_id TEXT NOT NULL,
		expires_at TIMESTAMP,
		granted_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, assessment_id)
	)`,
	`CREATE TABLE IF NOT EXISTS lab_assessments (
		lab_id TEXT NOT NULL,
		assessment_id TEXT NOT NULL,
		access_level TEXT NOT NULL DEFAULT 'standard',
		active INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (lab_id, assessment_id)
	)`,
	`CREATE TABLE IF NOT EXISTS responses (
		id TEXT PRIMARY KEY,
		participant_id TEXT NOT NULL,
		assessment_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		question_type TEXT NOT NULL,
		response_data TEXT NOT NULL,
		response_time_ms INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_responses_participant
		ON responses(participant_id, assessment_id)`,
	`CREATE INDEX IF NOT EXISTS idx_responses_created ON responses(created_at)`,
	`CREATE TABLE IF NOT EXISTS results (
		id TEXT PRIMARY KEY,
		participant_id TEXT NOT NULL,
		assessment_id TEXT NOT NULL,
		scores TEXT,
		feedback TEXT,
		completion_time_ms INTEGER NOT NULL DEFAULT 0,
		completed_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_results_participant
		ON results(participant_id, assessment_id)`,
	`CREATE TABLE IF NOT EXISTS sona_studies (
		id TEXT PRIMARY KEY,
		sona_study_id TEXT NOT NULL,
		irb_approval_number TEXT NOT NULL,
		title TEXT,
		principal_investigator TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMP NOT NULL,
		UNIQUE (sona_study_id, irb_approval_number)
	)`,
	`CREATE TABLE IF NOT EXISTS study_assessments (
		study_id TEXT NOT NULL,
		assessment_id TEXT NOT NULL,
		required INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (study_id, assessment_id)
	)`,
	`CREATE TABLE IF NOT EXISTS study_participants (
		study_id TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		completed_at TIMESTAMP NOT NULL,
		PRIMARY KEY (study_id, participant_id)
	)`,
	`CREATE TABLE IF NOT EXISTS irb_access_log (
		study_id TEXT NOT NULL,
		access_type TEXT NOT NULL,
		accessed_by TEXT,
		accessed_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS coaching_sessions (
		id TEXT PRIMARY KEY,
		participant_id TEXT NOT NULL,
		result_id TEXT NOT NULL,
		session_type TEXT,
		coaching_type TEXT,
		model TEXT,
		insights TEXT,
		recommendations TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
}

// Migrate creates the schema. Statements are idempotent.
func Migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
