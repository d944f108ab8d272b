package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/verdantlabs/recall/internal/storage"
	"github.com/verdantlabs/recall/pkg/types"
)

// maxParentChainDepth caps the notebook parent walk during cycle
// detection to prevent infinite loops on corrupted data.
const maxParentChainDepth = 50

// MemoryStore implements storage.MemoryStore using SQLite.
type MemoryStore struct {
	db  *sql.DB
	now storage.Clock
}

// NewMemoryStore opens a SQLite database, configures WAL mode, and
// creates the schema.
func NewMemoryStore(dsn string) (*MemoryStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode allows concurrent readers to proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Connections live for the lifetime of the store.

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Wait instead of getting an immediate SQLITE_BUSY error when the
	// connection is held by another goroutine.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &MemoryStore{db: db, now: time.Now}, nil
}

// SetClock replaces the store's time source. Tests use this to pin
// timestamps; production code should not call it.
func (s *MemoryStore) SetClock(clock storage.Clock) {
	s.now = clock
}

// DB exposes the underlying handle so sibling stores (vector index,
// task store) can share one database file.
func (s *MemoryStore) DB() *sql.DB {
	return s.db
}

// Write creates or updates a memory record.
func (s *MemoryStore) Write(ctx context.Context, record *types.Record) (string, error) {
	if record == nil {
		return "", storage.ErrValidation
	}

	if err := s.validate(ctx, record); err != nil {
		return "", err
	}

	now := s.now()
	if record.ID == "" {
		record.ID = newRecordID(record.Kind)
		record.CreatedAt = now
		record.Active = true // new records start active
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	tagsJSON, err := marshalJSON(record.Tags)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tags: %w", err)
	}

	payloadJSON, err := marshalPayload(record)
	if err != nil {
		return "", err
	}

	metadataJSON, err := marshalJSON(record.Metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO memories (
			id, kind, content, source, importance,
			tags, payload, metadata, active,
			created_at, updated_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			content = excluded.content,
			source = excluded.source,
			importance = excluded.importance,
			tags = excluded.tags,
			payload = excluded.payload,
			metadata = excluded.metadata,
			active = excluded.active,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at
	`

	_, err = s.db.ExecContext(ctx, query,
		record.ID, string(record.Kind), record.Content, record.Source, record.Importance,
		nullableString(tagsJSON), nullableString(payloadJSON), nullableString(metadataJSON),
		boolToInt(record.Active),
		record.CreatedAt, record.UpdatedAt, nullableTime(record.ExpiresAt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to write record: %w", err)
	}

	return record.ID, nil
}

// validate checks record invariants before a write is accepted.
func (s *MemoryStore) validate(ctx context.Context, record *types.Record) error {
	if !types.IsValidRecordKind(record.Kind) {
		return fmt.Errorf("%w: unknown record kind %q", storage.ErrValidation, record.Kind)
	}

	if record.Content == "" {
		return fmt.Errorf("%w: record content is required", storage.ErrValidation)
	}

	if record.Importance == 0 {
		record.Importance = types.ImportanceDefault
	}
	if record.Importance < types.ImportanceMin || record.Importance > types.ImportanceMax {
		return fmt.Errorf("%w: importance %d out of range [%d, %d]",
			storage.ErrValidation, record.Importance, types.ImportanceMin, types.ImportanceMax)
	}

	switch record.Kind {
	case types.KindProject:
		if record.Project != nil && record.Project.Status != "" && !types.IsValidProjectStatus(record.Project.Status) {
			return fmt.Errorf("%w: unknown project status %q", storage.ErrValidation, record.Project.Status)
		}
	case types.KindNotebook:
		if record.Notebook != nil && record.Notebook.Status != "" && !types.IsValidNotebookStatus(record.Notebook.Status) {
			return fmt.Errorf("%w: unknown notebook status %q", storage.ErrValidation, record.Notebook.Status)
		}
		if record.Notebook != nil && record.Notebook.ParentID != "" {
			if err := s.checkParentChain(ctx, record.ID, record.Notebook.ParentID); err != nil {
				return err
			}
		}
	}

	return nil
}

// checkParentChain verifies that the notebook parent exists and that
// linking to it does not create a cycle. The walk is capped at
// maxParentChainDepth versions.
func (s *MemoryStore) checkParentChain(ctx context.Context, selfID, parentID string) error {
	current := parentID
	for depth := 0; depth < maxParentChainDepth; depth++ {
		if current == "" {
			return nil
		}
		if selfID != "" && current == selfID {
			return fmt.Errorf("%w: notebook parent chain forms a cycle at %s", storage.ErrValidation, current)
		}

		var payloadJSON sql.NullString
		var kind string
		err := s.db.QueryRowContext(ctx,
			"SELECT kind, payload FROM memories WHERE id = ?", current,
		).Scan(&kind, &payloadJSON)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: notebook parent %s not found", storage.ErrValidation, current)
		}
		if err != nil {
			return fmt.Errorf("failed to check parent chain: %w", err)
		}
		if kind != string(types.KindNotebook) {
			return fmt.Errorf("%w: notebook parent %s is not a notebook entry", storage.ErrValidation, current)
		}

		var fields types.NotebookFields
		if payloadJSON.Valid && payloadJSON.String != "" {
			if err := json.Unmarshal([]byte(payloadJSON.String), &fields); err != nil {
				return fmt.Errorf("failed to decode parent payload: %w", err)
			}
		}
		current = fields.ParentID
	}
	return fmt.Errorf("%w: notebook parent chain exceeds %d entries", storage.ErrValidation, maxParentChainDepth)
}

// Get retrieves a record by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*types.Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecordQuery+" WHERE id = ?", id)
	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return record, nil
}

// Query retrieves records matching the filter. Kind, active, expiry and
// importance constraints are pushed into SQL; tag constraints are
// evaluated in-process because tags live in a JSON column.
func (s *MemoryStore) Query(ctx context.Context, filter storage.Filter) ([]*types.Record, error) {
	filter.Normalize()

	query := selectRecordQuery + " WHERE 1=1"
	args := []interface{}{}

	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(filter.Kind))
	}
	if filter.ActiveOnly {
		query += " AND active = 1"
	}
	if !filter.IncludeExpired {
		query += " AND (expires_at IS NULL OR expires_at > ?)"
		args = append(args, s.now())
	}
	if filter.MinImportance > 0 {
		query += " AND importance >= ?"
		args = append(args, filter.MinImportance)
	}

	query += " ORDER BY importance DESC, updated_at DESC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var results []*types.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if !matchesTags(record.Tags, filter.Tags, filter.TagsAny) {
			continue
		}
		results = append(results, record)
		if len(results) >= filter.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return results, nil
}

// Deactivate soft-deletes a record. Repeated calls are no-ops;
// updated_at only moves on an actual transition.
func (s *MemoryStore) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE memories SET active = 0, updated_at = ? WHERE id = ? AND active = 1",
		s.now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deactivation: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Nothing transitioned: distinguish already-inactive from missing.
	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM memories WHERE id = ?", id).Scan(&exists)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check record existence: %w", err)
	}
	return nil
}

// AppendTurn appends one conversation turn and returns its sequence ID.
func (s *MemoryStore) AppendTurn(ctx context.Context, turn *types.ConversationTurn) (int64, error) {
	if turn == nil || turn.SessionID == "" || turn.Role == "" || turn.Content == "" {
		return 0, fmt.Errorf("%w: session, role and content are required", storage.ErrValidation)
	}

	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}

	metadataJSON, err := marshalJSON(turn.Metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal turn metadata: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (session_id, user_id, role, content, token_count, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		turn.SessionID, turn.UserID, turn.Role, turn.Content, turn.TokenCount,
		nullableString(metadataJSON), turn.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append turn: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read turn id: %w", err)
	}
	turn.ID = id
	return id, nil
}

// RecentTurns returns the newest turns matching the filter, newest first.
func (s *MemoryStore) RecentTurns(ctx context.Context, filter storage.TurnFilter) ([]*types.ConversationTurn, error) {
	filter.Normalize()

	query := `
		SELECT id, session_id, user_id, role, content, token_count, metadata, created_at
		FROM conversations WHERE 1=1`
	args := []interface{}{}

	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}

	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []*types.ConversationTurn
	for rows.Next() {
		var turn types.ConversationTurn
		var metadataJSON sql.NullString
		if err := rows.Scan(&turn.ID, &turn.SessionID, &turn.UserID, &turn.Role,
			&turn.Content, &turn.TokenCount, &metadataJSON, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &turn.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode turn metadata: %w", err)
			}
		}
		turns = append(turns, &turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}

	return turns, nil
}

// Close releases the database handle.
func (s *MemoryStore) Close() error {
	return s.db.Close()
}

const selectRecordQuery = `
	SELECT id, kind, content, source, importance, tags, payload, metadata,
	       active, created_at, updated_at, expires_at
	FROM memories`

// rowScanner abstracts *sql.Row and *sql.Rows for scanRecord.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*types.Record, error) {
	var record types.Record
	var kind string
	var source, tagsJSON, payloadJSON, metadataJSON sql.NullString
	var active int
	var expiresAt sql.NullTime

	err := row.Scan(&record.ID, &kind, &record.Content, &source, &record.Importance,
		&tagsJSON, &payloadJSON, &metadataJSON, &active,
		&record.CreatedAt, &record.UpdatedAt, &expiresAt)
	if err != nil {
		return nil, err
	}

	record.Kind = types.RecordKind(kind)
	record.Source = source.String
	record.Active = active != 0
	if expiresAt.Valid {
		t := expiresAt.Time
		record.ExpiresAt = &t
	}

	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &record.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags: %w", err)
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &record.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	if payloadJSON.Valid && payloadJSON.String != "" {
		if err := unmarshalPayload(&record, payloadJSON.String); err != nil {
			return nil, err
		}
	}

	return &record, nil
}

// marshalPayload serialises the kind-specific payload struct, if any.
func marshalPayload(record *types.Record) ([]byte, error) {
	var payload interface{}
	switch record.Kind {
	case types.KindProject:
		if record.Project != nil {
			payload = record.Project
		}
	case types.KindFoundation:
		if record.Foundation != nil {
			payload = record.Foundation
		}
	case types.KindNotebook:
		if record.Notebook != nil {
			payload = record.Notebook
		}
	}
	if payload == nil {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}

func unmarshalPayload(record *types.Record, payloadJSON string) error {
	switch record.Kind {
	case types.KindProject:
		record.Project = &types.ProjectFields{}
		if err := json.Unmarshal([]byte(payloadJSON), record.Project); err != nil {
			return fmt.Errorf("failed to decode project payload: %w", err)
		}
	case types.KindFoundation:
		record.Foundation = &types.FoundationFields{}
		if err := json.Unmarshal([]byte(payloadJSON), record.Foundation); err != nil {
			return fmt.Errorf("failed to decode foundation payload: %w", err)
		}
	case types.KindNotebook:
		record.Notebook = &types.NotebookFields{}
		if err := json.Unmarshal([]byte(payloadJSON), record.Notebook); err != nil {
			return fmt.Errorf("failed to decode notebook payload: %w", err)
		}
	}
	return nil
}

// matchesTags evaluates the all-of and any-of tag constraints.
func matchesTags(tags, all, any []string) bool {
	if len(all) > 0 {
		for _, want := range all {
			found := false
			for _, tag := range tags {
				if tag == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	if len(any) > 0 {
		for _, want := range any {
			for _, tag := range tags {
				if tag == want {
					return true
				}
			}
		}
		return false
	}
	return true
}

// newRecordID generates a record ID in the form mem:<kind>:<hex>.
func newRecordID(kind types.RecordKind) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to
		// a timestamp suffix if it somehow does.
		return fmt.Sprintf("mem:%s:%d", kind, time.Now().UnixNano())
	}
	return fmt.Sprintf("mem:%s:%s", kind, hex.EncodeToString(buf))
}

func marshalJSON(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case []string:
		if len(val) == 0 {
			return nil, nil
		}
	case map[string]interface{}:
		if len(val) == 0 {
			return nil, nil
		}
	case nil:
		return nil, nil
	}
	return json.Marshal(v)
}

func nullableString(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Compile-time interface check.
var _ storage.MemoryStore = (*MemoryStore)(nil)
