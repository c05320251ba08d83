package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goalgetter/goalgetter/internal/domain"
	"github.com/goalgetter/goalgetter/internal/shared"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	entropyMu sync.Mutex
	entropy   *rand.Rand
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT NOT NULL,
		phase TEXT NOT NULL,
		llm_provider TEXT,
		api_token TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_token ON users(api_token) WHERE api_token IS NOT NULL;

	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_id TEXT,
		meeting_id TEXT,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		model TEXT,
		tokens_used INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_messages_user_time ON chat_messages(user_id, timestamp);

	CREATE TABLE IF NOT EXISTS meetings (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		scheduled_at INTEGER NOT NULL,
		duration_minutes INTEGER NOT NULL,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_meetings_user_time ON meetings(user_id, scheduled_at);

	CREATE TABLE IF NOT EXISTS session_contexts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		ended_at INTEGER,
		context_points_json TEXT NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		goals_created INTEGER NOT NULL DEFAULT 0,
		goals_updated INTEGER NOT NULL DEFAULT 0,
		goals_completed INTEGER NOT NULL DEFAULT 0,
		is_summary INTEGER NOT NULL DEFAULT 0,
		summarized_ids_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_contexts_user ON session_contexts(user_id, is_summary, created_at);

	CREATE TABLE IF NOT EXISTS goals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		phase TEXT NOT NULL,
		template_type TEXT,
		deadline TEXT,
		milestones_json TEXT,
		tags_json TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_goals_user_updated ON goals(user_id, updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// execRetry runs a write statement, retrying a few times when SQLite reports
// a lock conflict despite the busy timeout.
func (s *SQLiteStore) execRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		result, err = s.db.ExecContext(ctx, query, args...)
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return result, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	return result, err
}

func (s *SQLiteStore) newID() string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// AppendMessage persists a message and fills in its ID and timestamp.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("invalid message role: %q", msg.Role)
	}
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	query := `
	INSERT INTO chat_messages (id, user_id, session_id, meeting_id, role, content, timestamp, model, tokens_used)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.execRetry(ctx, query,
		msg.ID, msg.UserID, nullString(msg.SessionID), nullString(msg.MeetingID),
		string(msg.Role), msg.Content, msg.Timestamp.UnixNano(),
		nullString(msg.Model), msg.TokensUsed,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// RecentMessages returns the most recent messages in chronological order.
func (s *SQLiteStore) RecentMessages(ctx context.Context, userID string, limit int, meetingID string) ([]*domain.Message, error) {
	query := `
		SELECT id, user_id, session_id, meeting_id, role, content, timestamp, model, tokens_used
		FROM chat_messages WHERE user_id = ?`
	args := []any{userID}
	if meetingID != "" {
		query += ` AND meeting_id = ?`
		args = append(args, meetingID)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	messages, err := s.queryMessages(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	reverseMessages(messages)
	return messages, nil
}

// MessageHistory returns one page of messages plus the total count.
func (s *SQLiteStore) MessageHistory(ctx context.Context, userID string, page, pageSize int, meetingID string) ([]*domain.Message, int, error) {
	countQuery := `SELECT COUNT(*) FROM chat_messages WHERE user_id = ?`
	countArgs := []any{userID}
	if meetingID != "" {
		countQuery += ` AND meeting_id = ?`
		countArgs = append(countArgs, meetingID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	query := `
		SELECT id, user_id, session_id, meeting_id, role, content, timestamp, model, tokens_used
		FROM chat_messages WHERE user_id = ?`
	args := []any{userID}
	if meetingID != "" {
		query += ` AND meeting_id = ?`
		args = append(args, meetingID)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	messages, err := s.queryMessages(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	reverseMessages(messages)
	return messages, total, nil
}

// CountMessages returns the number of persisted messages for a user.
func (s *SQLiteStore) CountMessages(ctx context.Context, userID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages WHERE user_id = ?`, userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return total, nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer closeRows(rows)

	var messages []*domain.Message
	for rows.Next() {
		var msg domain.Message
		var sessionID, meetingID, model sql.NullString
		var tokensUsed sql.NullInt64
		var role string
		var ts int64

		if err := rows.Scan(&msg.ID, &msg.UserID, &sessionID, &meetingID, &role, &msg.Content, &ts, &model, &tokensUsed); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.SessionID = sessionID.String
		msg.MeetingID = meetingID.String
		msg.Role = domain.Role(role)
		msg.Timestamp = time.Unix(0, ts)
		msg.Model = model.String
		msg.TokensUsed = int(tokensUsed.Int64)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func reverseMessages(messages []*domain.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

// InsertMeeting persists a meeting record. Meeting scheduling itself lives
// outside the chat core; this exists for the surrounding service and tests.
func (s *SQLiteStore) InsertMeeting(ctx context.Context, m *domain.Meeting) error {
	if m.ID == "" {
		m.ID = s.newID()
	}
	query := `INSERT INTO meetings (id, user_id, scheduled_at, duration_minutes, status) VALUES (?, ?, ?, ?, ?)`
	_, err := s.execRetry(ctx, query, m.ID, m.UserID, m.ScheduledAt.UnixNano(), m.DurationMinutes, string(m.Status))
	if err != nil {
		return fmt.Errorf("insert meeting: %w", err)
	}
	return nil
}

// MeetingsInRange returns scheduled or active meetings within [from, to].
func (s *SQLiteStore) MeetingsInRange(ctx context.Context, userID string, from, to time.Time) ([]*domain.Meeting, error) {
	query := `
		SELECT id, user_id, scheduled_at, duration_minutes, status
		FROM meetings
		WHERE user_id = ? AND status IN ('scheduled', 'active') AND scheduled_at >= ? AND scheduled_at <= ?
		ORDER BY scheduled_at ASC`

	rows, err := s.db.QueryContext(ctx, query, userID, from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query meetings in range: %w", err)
	}
	defer closeRows(rows)

	var meetings []*domain.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meetings: %w", err)
	}
	return meetings, nil
}

// NextScheduledMeeting returns the earliest scheduled meeting after the given time.
func (s *SQLiteStore) NextScheduledMeeting(ctx context.Context, userID string, after time.Time) (*domain.Meeting, error) {
	query := `
		SELECT id, user_id, scheduled_at, duration_minutes, status
		FROM meetings
		WHERE user_id = ? AND status = 'scheduled' AND scheduled_at > ?
		ORDER BY scheduled_at ASC LIMIT 1`

	rows, err := s.db.QueryContext(ctx, query, userID, after.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query next meeting: %w", err)
	}
	defer closeRows(rows)

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanMeeting(rows)
}

func scanMeeting(rows *sql.Rows) (*domain.Meeting, error) {
	var m domain.Meeting
	var scheduledAt int64
	var status string
	if err := rows.Scan(&m.ID, &m.UserID, &scheduledAt, &m.DurationMinutes, &status); err != nil {
		return nil, fmt.Errorf("scan meeting row: %w", err)
	}
	m.ScheduledAt = time.Unix(0, scheduledAt)
	m.Status = domain.MeetingStatus(status)
	return &m, nil
}

// InsertSessionContext persists a session context and fills in its ID.
func (s *SQLiteStore) InsertSessionContext(ctx context.Context, sc *domain.SessionContext) error {
	if sc.ID == "" {
		sc.ID = s.newID()
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now()
	}

	pointsJSON, err := json.Marshal(sc.ContextPoints)
	if err != nil {
		return fmt.Errorf("marshal context points: %w", err)
	}

	var summarizedJSON any
	if len(sc.SummarizedSessionIDs) > 0 {
		data, err := json.Marshal(sc.SummarizedSessionIDs)
		if err != nil {
			return fmt.Errorf("marshal summarized session ids: %w", err)
		}
		summarizedJSON = string(data)
	}

	var endedAt any
	if sc.EndedAt != nil {
		endedAt = sc.EndedAt.UnixNano()
	}

	query := `
	INSERT INTO session_contexts (
		id, user_id, session_id, created_at, ended_at, context_points_json,
		message_count, goals_created, goals_updated, goals_completed,
		is_summary, summarized_ids_json
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.execRetry(ctx, query,
		sc.ID, sc.UserID, sc.SessionID, sc.CreatedAt.UnixNano(), endedAt, string(pointsJSON),
		sc.MessageCount, sc.GoalsCreated, sc.GoalsUpdated, sc.GoalsCompleted,
		boolToInt(sc.IsSummary), summarizedJSON,
	)
	if err != nil {
		return fmt.Errorf("insert session context: %w", err)
	}
	return nil
}

// UnsummarizedContexts returns all non-summary contexts, oldest first.
func (s *SQLiteStore) UnsummarizedContexts(ctx context.Context, userID string) ([]*domain.SessionContext, error) {
	return s.queryContexts(ctx, `
		SELECT id, user_id, session_id, created_at, ended_at, context_points_json,
		       message_count, goals_created, goals_updated, goals_completed, is_summary, summarized_ids_json
		FROM session_contexts WHERE user_id = ? AND is_summary = 0
		ORDER BY created_at ASC, id ASC`, userID)
}

// SummaryContexts returns all summary contexts, oldest first.
func (s *SQLiteStore) SummaryContexts(ctx context.Context, userID string) ([]*domain.SessionContext, error) {
	return s.queryContexts(ctx, `
		SELECT id, user_id, session_id, created_at, ended_at, context_points_json,
		       message_count, goals_created, goals_updated, goals_completed, is_summary, summarized_ids_json
		FROM session_contexts WHERE user_id = ? AND is_summary = 1
		ORDER BY created_at ASC, id ASC`, userID)
}

// RecentUnsummarizedContexts returns the most recent non-summary contexts, newest first.
func (s *SQLiteStore) RecentUnsummarizedContexts(ctx context.Context, userID string, limit int) ([]*domain.SessionContext, error) {
	return s.queryContexts(ctx, `
		SELECT id, user_id, session_id, created_at, ended_at, context_points_json,
		       message_count, goals_created, goals_updated, goals_completed, is_summary, summarized_ids_json
		FROM session_contexts WHERE user_id = ? AND is_summary = 0
		ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
}

// DeleteSessionContexts removes the contexts with the given record IDs.
func (s *SQLiteStore) DeleteSessionContexts(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := s.execRetry(ctx, `DELETE FROM session_contexts WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete session contexts: %w", err)
	}
	return result.RowsAffected()
}

// ContextHistory returns one page of contexts, newest first, plus the total count.
func (s *SQLiteStore) ContextHistory(ctx context.Context, userID string, page, pageSize int) ([]*domain.SessionContext, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_contexts WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count session contexts: %w", err)
	}

	contexts, err := s.queryContexts(ctx, `
		SELECT id, user_id, session_id, created_at, ended_at, context_points_json,
		       message_count, goals_created, goals_updated, goals_completed, is_summary, summarized_ids_json
		FROM session_contexts WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	return contexts, total, nil
}

// CountContexts returns the number of context records for a user.
func (s *SQLiteStore) CountContexts(ctx context.Context, userID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_contexts WHERE user_id = ?`, userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count session contexts: %w", err)
	}
	return total, nil
}

func (s *SQLiteStore) queryContexts(ctx context.Context, query string, args ...any) ([]*domain.SessionContext, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query session contexts: %w", err)
	}
	defer closeRows(rows)

	var contexts []*domain.SessionContext
	for rows.Next() {
		var sc domain.SessionContext
		var createdAt int64
		var endedAt sql.NullInt64
		var pointsJSON string
		var isSummary int
		var summarizedJSON sql.NullString

		if err := rows.Scan(
			&sc.ID, &sc.UserID, &sc.SessionID, &createdAt, &endedAt, &pointsJSON,
			&sc.MessageCount, &sc.GoalsCreated, &sc.GoalsUpdated, &sc.GoalsCompleted,
			&isSummary, &summarizedJSON,
		); err != nil {
			return nil, fmt.Errorf("scan session context row: %w", err)
		}

		sc.CreatedAt = time.Unix(0, createdAt)
		if endedAt.Valid {
			t := time.Unix(0, endedAt.Int64)
			sc.EndedAt = &t
		}
		if err := json.Unmarshal([]byte(pointsJSON), &sc.ContextPoints); err != nil {
			return nil, fmt.Errorf("unmarshal context points: %w", err)
		}
		sc.IsSummary = isSummary != 0
		if summarizedJSON.Valid {
			if err := json.Unmarshal([]byte(summarizedJSON.String), &sc.SummarizedSessionIDs); err != nil {
				return nil, fmt.Errorf("unmarshal summarized session ids: %w", err)
			}
		}
		contexts = append(contexts, &sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session contexts: %w", err)
	}
	return contexts, nil
}

// InsertGoal persists a goal and fills in its ID and timestamps.
func (s *SQLiteStore) InsertGoal(ctx context.Context, goal *domain.Goal) error {
	if !goal.Phase.Valid() {
		return fmt.Errorf("invalid goal phase: %q", goal.Phase)
	}
	if goal.ID == "" {
		goal.ID = s.newID()
	}
	now := time.Now()
	if goal.CreatedAt.IsZero() {
		goal.CreatedAt = now
	}
	goal.UpdatedAt = now

	milestonesJSON, tagsJSON, err := marshalGoalExtras(goal)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO goals (id, user_id, title, content, phase, template_type, deadline, milestones_json, tags_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.execRetry(ctx, query,
		goal.ID, goal.UserID, goal.Title, goal.Content, string(goal.Phase),
		nullString(goal.TemplateType), nullString(goal.Deadline),
		milestonesJSON, tagsJSON, goal.CreatedAt.UnixNano(), goal.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	return nil
}

// GetGoal retrieves a goal owned by the user, or nil if not found.
func (s *SQLiteStore) GetGoal(ctx context.Context, userID, goalID string) (*domain.Goal, error) {
	query := `
		SELECT id, user_id, title, content, phase, template_type, deadline, milestones_json, tags_json, created_at, updated_at
		FROM goals WHERE id = ? AND user_id = ?`

	rows, err := s.db.QueryContext(ctx, query, goalID, userID)
	if err != nil {
		return nil, fmt.Errorf("query goal: %w", err)
	}
	defer closeRows(rows)

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanGoal(rows)
}

// UpdateGoal overwrites a goal's mutable fields.
func (s *SQLiteStore) UpdateGoal(ctx context.Context, goal *domain.Goal) error {
	if !goal.Phase.Valid() {
		return fmt.Errorf("invalid goal phase: %q", goal.Phase)
	}
	goal.UpdatedAt = time.Now()

	milestonesJSON, tagsJSON, err := marshalGoalExtras(goal)
	if err != nil {
		return err
	}

	query := `
	UPDATE goals SET title = ?, content = ?, phase = ?, template_type = ?, deadline = ?,
		milestones_json = ?, tags_json = ?, updated_at = ?
	WHERE id = ? AND user_id = ?`

	result, err := s.execRetry(ctx, query,
		goal.Title, goal.Content, string(goal.Phase),
		nullString(goal.TemplateType), nullString(goal.Deadline),
		milestonesJSON, tagsJSON, goal.UpdatedAt.UnixNano(),
		goal.ID, goal.UserID,
	)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("goal not found: %s", goal.ID)
	}
	return nil
}

// ActiveGoals returns the user's non-archived goals, most recently updated first.
func (s *SQLiteStore) ActiveGoals(ctx context.Context, userID string, limit int) ([]*domain.Goal, error) {
	query := `
		SELECT id, user_id, title, content, phase, template_type, deadline, milestones_json, tags_json, created_at, updated_at
		FROM goals WHERE user_id = ? AND phase != 'archived'
		ORDER BY updated_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query active goals: %w", err)
	}
	defer closeRows(rows)

	var goals []*domain.Goal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, goal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goals: %w", err)
	}
	return goals, nil
}

func marshalGoalExtras(goal *domain.Goal) (milestonesJSON, tagsJSON any, err error) {
	if len(goal.Milestones) > 0 {
		data, err := json.Marshal(goal.Milestones)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal milestones: %w", err)
		}
		milestonesJSON = string(data)
	}
	if len(goal.Tags) > 0 {
		data, err := json.Marshal(goal.Tags)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal tags: %w", err)
		}
		tagsJSON = string(data)
	}
	return milestonesJSON, tagsJSON, nil
}

func scanGoal(rows *sql.Rows) (*domain.Goal, error) {
	var goal domain.Goal
	var phase string
	var templateType, deadline, milestonesJSON, tagsJSON sql.NullString
	var createdAt, updatedAt int64

	if err := rows.Scan(
		&goal.ID, &goal.UserID, &goal.Title, &goal.Content, &phase,
		&templateType, &deadline, &milestonesJSON, &tagsJSON, &createdAt, &updatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan goal row: %w", err)
	}

	goal.Phase = domain.GoalPhase(phase)
	goal.TemplateType = templateType.String
	goal.Deadline = deadline.String
	if milestonesJSON.Valid {
		if err := json.Unmarshal([]byte(milestonesJSON.String), &goal.Milestones); err != nil {
			return nil, fmt.Errorf("unmarshal milestones: %w", err)
		}
	}
	if tagsJSON.Valid {
		if err := json.Unmarshal([]byte(tagsJSON.String), &goal.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	goal.CreatedAt = time.Unix(0, createdAt)
	goal.UpdatedAt = time.Unix(0, updatedAt)
	return &goal, nil
}

// GetUser retrieves a user by ID, or nil if not found.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.queryUser(ctx, `
		SELECT user_id, email, name, phase, llm_provider, api_token, created_at, updated_at
		FROM users WHERE user_id = ?`, userID)
}

// GetUserByToken retrieves a user by API token, or nil if not found.
func (s *SQLiteStore) GetUserByToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, nil
	}
	return s.queryUser(ctx, `
		SELECT user_id, email, name, phase, llm_provider, api_token, created_at, updated_at
		FROM users WHERE api_token = ?`, token)
}

func (s *SQLiteStore) queryUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, query, arg)

	var user domain.User
	var phase string
	var provider, token sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&user.ID, &user.Email, &user.Name, &phase, &provider, &token, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.Phase = domain.Phase(phase)
	user.LLMProvider = provider.String
	user.APIToken = token.String
	user.CreatedAt = time.Unix(0, createdAt)
	user.UpdatedAt = time.Unix(0, updatedAt)
	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	if !user.Phase.Valid() {
		return fmt.Errorf("invalid user phase: %q", user.Phase)
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `
	INSERT INTO users (user_id, email, name, phase, llm_provider, api_token, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		email = excluded.email,
		name = excluded.name,
		phase = excluded.phase,
		llm_provider = excluded.llm_provider,
		api_token = excluded.api_token,
		updated_at = excluded.updated_at`

	_, err := s.execRetry(ctx, query,
		user.ID, user.Email, user.Name, string(user.Phase),
		nullString(user.LLMProvider), nullString(user.APIToken),
		user.CreatedAt.UnixNano(), user.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateUserProvider sets the user's preferred LLM backend.
func (s *SQLiteStore) UpdateUserProvider(ctx context.Context, userID, provider string) error {
	result, err := s.execRetry(ctx,
		`UPDATE users SET llm_provider = ?, updated_at = ? WHERE user_id = ?`,
		nullString(provider), time.Now().UnixNano(), userID,
	)
	if err != nil {
		return fmt.Errorf("update user provider: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", userID)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func closeRows(rows *sql.Rows) {
	_ = rows.Close()
}
