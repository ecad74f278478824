package sqldb

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
	"github.com/tjfontaine/phoenix-bypass/internal/storage"
	"github.com/tjfontaine/phoenix-bypass/internal/storage/dialect"
)

// Store is a SQL implementation of storage.Provider that supports multiple
// database dialects. Chain steps are stored as one JSON column so that a
// chain update is a single-row write.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
}

// Ensure Store implements storage.Provider
var _ storage.Provider = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres
	DSN    string // Data source name / connection string
}

// New creates a new SQL store with the specified configuration.
func New(cfg Config) (*Store, error) {
	d, err := dialect.Lookup(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.Driver, d.DSN(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d.MaxOpenConns > 0 {
		db.SetMaxOpenConns(d.MaxOpenConns)
	}

	store := &Store{db: db, dialect: d}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLite creates a new SQLite store.
func NewSQLite(dbPath string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: dbPath})
}

// NewPostgres creates a new PostgreSQL store.
func NewPostgres(dsn string) (*Store, error) {
	return New(Config{Driver: "postgres", DSN: dsn})
}

// DB returns the underlying sqlx.DB for advanced operations
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the dialect being used
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

func (s *Store) initSchema() error {
	ts := s.dialect.Timestamp
	statements := []string{
		`CREATE TABLE IF NOT EXISTS chains (
id TEXT PRIMARY KEY,
name TEXT NOT NULL UNIQUE,
description TEXT NOT NULL DEFAULT '',
operation_id TEXT,
steps TEXT NOT NULL,
created_at ` + ts + ` NOT NULL,
updated_at ` + ts + ` NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS stagers (
id TEXT PRIMARY KEY,
name TEXT NOT NULL,
format TEXT NOT NULL,
compiled ` + s.dialect.Boolean + ` NOT NULL,
template TEXT NOT NULL,
options TEXT NOT NULL,
operation_id TEXT,
created_at ` + ts + ` NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS operations (
id TEXT PRIMARY KEY,
name TEXT NOT NULL,
created_at ` + ts + ` NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS settings (
name TEXT PRIMARY KEY,
value TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS log_entries (
seq ` + s.dialect.Serial + `,
id TEXT NOT NULL UNIQUE,
status TEXT NOT NULL,
endpoint TEXT NOT NULL,
description TEXT NOT NULL,
actor TEXT NOT NULL,
created_at ` + ts + ` NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_chains_operation ON chains(operation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_stagers_operation ON stagers(operation_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

type chainRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	OperationID sql.NullString `db:"operation_id"`
	Steps       string         `db:"steps"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r *chainRow) toDomain() (*domain.Chain, error) {
	c := &domain.Chain{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Operation:   fromNull(r.OperationID),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if err := decodeJSON(r.Steps, &c.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps of chain %s: %w", r.ID, err)
	}
	return c, nil
}

const chainColumns = `id, name, description, operation_id, steps, created_at, updated_at`

func (s *Store) CreateChain(ctx context.Context, c *domain.Chain) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	steps, err := encodeSteps(c.Steps)
	if err != nil {
		return err
	}

	query := s.dialect.Rebind(`INSERT INTO chains (` + chainColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query,
		c.ID, c.Name, c.Description, toNull(c.Operation), steps, c.CreatedAt, c.UpdatedAt)
	if s.dialect.IsUniqueViolation(err) {
		return duplicateName(c.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to create chain: %w", err)
	}
	return nil
}

func (s *Store) GetChain(ctx context.Context, id string) (*domain.Chain, error) {
	return s.getChain(ctx, "id", id)
}

func (s *Store) GetChainByName(ctx context.Context, name string) (*domain.Chain, error) {
	return s.getChain(ctx, "name", name)
}

func (s *Store) getChain(ctx context.Context, column, value string) (*domain.Chain, error) {
	query := s.dialect.Rebind(`SELECT ` + chainColumns + ` FROM chains WHERE ` + column + ` = ?`)

	var row chainRow
	err := s.db.GetContext(ctx, &row, query, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "chain", ID: value}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chain: %w", err)
	}
	return row.toDomain()
}

func (s *Store) ListChains(ctx context.Context, opts storage.ChainListOptions) ([]*domain.Chain, error) {
	query := `SELECT ` + chainColumns + ` FROM chains`
	var args []any
	if opts.Operation != "" {
		query += ` WHERE operation_id IS NULL OR operation_id = ?`
		args = append(args, opts.Operation)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	var rows []chainRow
	if err := s.db.SelectContext(ctx, &rows, s.dialect.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list chains: %w", err)
	}

	chains := make([]*domain.Chain, 0, len(rows))
	for i := range rows {
		c, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		chains = append(chains, c)
	}
	return chains, nil
}

func (s *Store) UpdateChain(ctx context.Context, c *domain.Chain) error {
	return s.writeChain(ctx, s.db, c)
}

// UpdateChainFunc runs the read, fn and the write in one transaction. The
// row is locked for the duration (a single pooled connection on SQLite,
// SELECT ... FOR UPDATE on Postgres), so concurrent updates of one chain
// apply one after another instead of overwriting each other.
func (s *Store) UpdateChainFunc(ctx context.Context, id string, fn func(*domain.Chain) error) (*domain.Chain, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin chain update: %w", err)
	}
	defer tx.Rollback()

	query := s.dialect.Rebind(`SELECT ` + chainColumns + ` FROM chains WHERE id = ?` + s.dialect.RowLock)
	var row chainRow
	err = tx.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "chain", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chain: %w", err)
	}
	c, err := row.toDomain()
	if err != nil {
		return nil, err
	}

	if err := fn(c); err != nil {
		return nil, err
	}
	c.ID = id
	if err := s.writeChain(ctx, tx, c); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chain update: %w", err)
	}
	return c, nil
}

func (s *Store) writeChain(ctx context.Context, db sqlx.ExecerContext, c *domain.Chain) error {
	steps, err := encodeSteps(c.Steps)
	if err != nil {
		return err
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}

	query := s.dialect.Rebind(`UPDATE chains
	          SET name = ?, description = ?, operation_id = ?, steps = ?, updated_at = ?
	          WHERE id = ?`)
	result, err := db.ExecContext(ctx, query,
		c.Name, c.Description, toNull(c.Operation), steps, c.UpdatedAt, c.ID)
	if s.dialect.IsUniqueViolation(err) {
		return duplicateName(c.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to update chain: %w", err)
	}
	return expectRow(result, "chain", c.ID)
}

func (s *Store) DeleteChain(ctx context.Context, id string) error {
	query := s.dialect.Rebind(`DELETE FROM chains WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete chain: %w", err)
	}
	return expectRow(result, "chain", id)
}

type stagerRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Format      string         `db:"format"`
	Compiled    bool           `db:"compiled"`
	Template    string         `db:"template"`
	Options     string         `db:"options"`
	OperationID sql.NullString `db:"operation_id"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r *stagerRow) toDomain() (*domain.Stager, error) {
	st := &domain.Stager{
		ID:        r.ID,
		Name:      r.Name,
		Format:    r.Format,
		Compiled:  r.Compiled,
		Template:  r.Template,
		Operation: fromNull(r.OperationID),
		CreatedAt: r.CreatedAt,
	}
	if err := decodeJSON(r.Options, &st.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options of stager %s: %w", r.ID, err)
	}
	return st, nil
}

const stagerColumns = `id, name, format, compiled, template, options, operation_id, created_at`

func (s *Store) CreateStager(ctx context.Context, st *domain.Stager) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	options, err := json.Marshal(st.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	query := s.dialect.Rebind(`INSERT INTO stagers (` + stagerColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query,
		st.ID, st.Name, st.Format, st.Compiled, st.Template, string(options), toNull(st.Operation), st.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create stager: %w", err)
	}
	return nil
}

func (s *Store) GetStager(ctx context.Context, id string) (*domain.Stager, error) {
	query := s.dialect.Rebind(`SELECT ` + stagerColumns + ` FROM stagers WHERE id = ?`)

	var row stagerRow
	err := s.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "stager", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stager: %w", err)
	}
	return row.toDomain()
}

func (s *Store) ListStagers(ctx context.Context) ([]*domain.Stager, error) {
	var rows []stagerRow
	query := `SELECT ` + stagerColumns + ` FROM stagers ORDER BY created_at ASC, id ASC`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list stagers: %w", err)
	}

	stagers := make([]*domain.Stager, 0, len(rows))
	for i := range rows {
		st, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		stagers = append(stagers, st)
	}
	return stagers, nil
}

func (s *Store) DeleteStager(ctx context.Context, id string) error {
	query := s.dialect.Rebind(`DELETE FROM stagers WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete stager: %w", err)
	}
	return expectRow(result, "stager", id)
}

const currentOperationKey = "current_operation"

func (s *Store) CreateOperation(ctx context.Context, op *domain.Operation) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	query := s.dialect.Rebind(`INSERT INTO operations (id, name, created_at) VALUES (?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, op.ID, op.Name, op.CreatedAt); err != nil {
		return fmt.Errorf("failed to create operation: %w", err)
	}
	return nil
}

func (s *Store) GetOperation(ctx context.Context, id string) (*domain.Operation, error) {
	var op domain.Operation
	query := s.dialect.Rebind(`SELECT id, name, created_at FROM operations WHERE id = ?`)
	err := s.db.GetContext(ctx, &op, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "operation", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}

	current, err := s.currentOperationID(ctx)
	if err != nil {
		return nil, err
	}
	op.Current = op.ID == current
	return &op, nil
}

func (s *Store) ListOperations(ctx context.Context) ([]*domain.Operation, error) {
	var ops []*domain.Operation
	query := `SELECT id, name, created_at FROM operations ORDER BY created_at ASC, id ASC`
	if err := s.db.SelectContext(ctx, &ops, query); err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}

	current, err := s.currentOperationID(ctx)
	if err != nil {
		return nil, err
	}
	for _, op := range ops {
		op.Current = op.ID == current
	}
	return ops, nil
}

func (s *Store) CurrentOperation(ctx context.Context) (*domain.Operation, error) {
	id, err := s.currentOperationID(ctx)
	if err != nil || id == "" {
		return nil, err
	}

	var op domain.Operation
	query := s.dialect.Rebind(`SELECT id, name, created_at FROM operations WHERE id = ?`)
	err = s.db.GetContext(ctx, &op, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current operation: %w", err)
	}
	op.Current = true
	return &op, nil
}

func (s *Store) SetCurrentOperation(ctx context.Context, id string) error {
	var exists int
	query := s.dialect.Rebind(`SELECT COUNT(*) FROM operations WHERE id = ?`)
	if err := s.db.GetContext(ctx, &exists, query, id); err != nil {
		return fmt.Errorf("failed to look up operation: %w", err)
	}
	if exists == 0 {
		return &domain.NotFoundError{Kind: "operation", ID: id}
	}

	upsert := s.dialect.Rebind(`INSERT INTO settings (name, value) VALUES (?, ?) ` +
		s.dialect.Upsert("name", "value"))
	if _, err := s.db.ExecContext(ctx, upsert, currentOperationKey, id); err != nil {
		return fmt.Errorf("failed to set current operation: %w", err)
	}
	return nil
}

func (s *Store) currentOperationID(ctx context.Context) (string, error) {
	var id string
	query := s.dialect.Rebind(`SELECT value FROM settings WHERE name = ?`)
	err := s.db.GetContext(ctx, &id, query, currentOperationKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read current operation: %w", err)
	}
	return id, nil
}

func (s *Store) AppendLogEntry(ctx context.Context, e *domain.LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	query := s.dialect.Rebind(`INSERT INTO log_entries (id, status, endpoint, description, actor, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		e.ID, string(e.Status), e.Endpoint, e.Description, e.Actor, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}

func (s *Store) ListLogEntries(ctx context.Context, limit int) ([]*domain.LogEntry, error) {
	query := `SELECT id, status, endpoint, description, actor, created_at FROM log_entries ORDER BY seq DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var entries []*domain.LogEntry
	if err := s.db.SelectContext(ctx, &entries, s.dialect.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	return entries, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// duplicateName reports a chain name taken by a concurrent writer.
func duplicateName(name string) error {
	return &domain.OptionError{Field: "name", Reason: fmt.Sprintf("chain %q already exists", name)}
}

func encodeSteps(steps []domain.Step) (string, error) {
	if steps == nil {
		steps = []domain.Step{}
	}
	b, err := json.Marshal(steps)
	if err != nil {
		return "", fmt.Errorf("failed to marshal steps: %w", err)
	}
	return string(b), nil
}

// decodeJSON keeps numbers as json.Number so integer options survive the
// round trip without turning into float64.
func decodeJSON(raw string, v any) error {
	if raw == "" || raw == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	return dec.Decode(v)
}

func expectRow(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return &domain.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func toNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
