package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dshills/tablesearch-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidName is returned for empty dataset or table names
	ErrInvalidName = errors.New("invalid name")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// inTx runs fn inside a transaction, committing on success
func (s *SQLiteStorage) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Dataset operations

// saveDatasetWithQuerier replaces any dataset of the same name with ds
func (s *SQLiteStorage) saveDatasetWithQuerier(ctx context.Context, q querier, ds *types.Dataset) (*DatasetInfo, error) {
	if ds == nil || strings.TrimSpace(ds.Name) == "" {
		return nil, fmt.Errorf("%w: dataset name cannot be empty", ErrInvalidName)
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dataset: %w", err)
	}

	columns := ds.Columns
	if columns == nil {
		columns = types.InferColumns(ds.Rows)
	}

	now := time.Now()
	createdAt := now

	var existingID int64
	err := q.QueryRowContext(ctx, `SELECT id, created_at FROM datasets WHERE name = ?`, ds.Name).Scan(&existingID, &createdAt)
	switch {
	case err == sql.ErrNoRows:
		createdAt = now
	case err != nil:
		return nil, fmt.Errorf("failed to look up dataset: %w", err)
	default:
		// Cascades to columns and rows
		if _, err := q.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, existingID); err != nil {
			return nil, fmt.Errorf("failed to replace dataset: %w", err)
		}
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO datasets (name, row_count, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, ds.Name, len(ds.Rows), createdAt, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	for i, col := range columns {
		_, err := q.ExecContext(ctx, `
			INSERT INTO dataset_columns (dataset_id, position, column_key, column_type)
			VALUES (?, ?, ?, ?)
		`, id, i, col.Key, string(col.Type))
		if err != nil {
			return nil, fmt.Errorf("failed to store column %s: %w", col.Key, err)
		}
	}

	for i, row := range ds.Rows {
		data, err := encodeRow(row)
		if err != nil {
			return nil, fmt.Errorf("failed to encode row %d: %w", i, err)
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO dataset_rows (dataset_id, row_index, data) VALUES (?, ?, ?)`,
			id, i, data); err != nil {
			return nil, fmt.Errorf("failed to store row %d: %w", i, err)
		}
	}

	return &DatasetInfo{
		ID:        id,
		Name:      ds.Name,
		Columns:   columns,
		RowCount:  len(ds.Rows),
		CreatedAt: createdAt,
		UpdatedAt: now,
	}, nil
}

// SaveDataset stores ds atomically, replacing a dataset of the same name
func (s *SQLiteStorage) SaveDataset(ctx context.Context, ds *types.Dataset) (*DatasetInfo, error) {
	var info *DatasetInfo
	err := s.inTx(ctx, func(q querier) error {
		var err error
		info, err = s.saveDatasetWithQuerier(ctx, q, ds)
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (s *SQLiteStorage) getDatasetWithQuerier(ctx context.Context, q querier, name string) (*DatasetInfo, error) {
	var info DatasetInfo
	err := q.QueryRowContext(ctx, `
		SELECT id, name, row_count, created_at, updated_at
		FROM datasets
		WHERE name = ?
	`, name).Scan(&info.ID, &info.Name, &info.RowCount, &info.CreatedAt, &info.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	columns, err := s.listColumnsWithQuerier(ctx, q, info.ID)
	if err != nil {
		return nil, err
	}
	info.Columns = columns
	return &info, nil
}

// GetDataset returns the metadata of a stored dataset
func (s *SQLiteStorage) GetDataset(ctx context.Context, name string) (*DatasetInfo, error) {
	return s.getDatasetWithQuerier(ctx, s.querier(), name)
}

func (s *SQLiteStorage) listColumnsWithQuerier(ctx context.Context, q querier, datasetID int64) ([]types.Column, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT column_key, column_type
		FROM dataset_columns
		WHERE dataset_id = ?
		ORDER BY position
	`, datasetID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []types.Column
	for rows.Next() {
		var col types.Column
		var typ string
		if err := rows.Scan(&col.Key, &typ); err != nil {
			return nil, err
		}
		col.Type = types.ColumnType(typ)
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (s *SQLiteStorage) loadDatasetWithQuerier(ctx context.Context, q querier, name string) (*types.Dataset, error) {
	info, err := s.getDatasetWithQuerier(ctx, q, name)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT data
		FROM dataset_rows
		WHERE dataset_id = ?
		ORDER BY row_index
	`, info.ID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ds := &types.Dataset{
		Name:    info.Name,
		Columns: info.Columns,
		Rows:    make([]types.Row, 0, info.RowCount),
	}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		row, err := decodeRow(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode row %d: %w", len(ds.Rows), err)
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, rows.Err()
}

// LoadDataset returns a stored dataset with its rows in stored order
func (s *SQLiteStorage) LoadDataset(ctx context.Context, name string) (*types.Dataset, error) {
	return s.loadDatasetWithQuerier(ctx, s.querier(), name)
}

func (s *SQLiteStorage) listDatasetsWithQuerier(ctx context.Context, q querier) ([]*DatasetInfo, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, row_count, created_at, updated_at
		FROM datasets
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}

	var infos []*DatasetInfo
	for rows.Next() {
		var info DatasetInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.RowCount, &info.CreatedAt, &info.UpdatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		infos = append(infos, &info)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	// Close before issuing column queries on the single connection
	_ = rows.Close()

	for _, info := range infos {
		columns, err := s.listColumnsWithQuerier(ctx, q, info.ID)
		if err != nil {
			return nil, err
		}
		info.Columns = columns
	}
	return infos, nil
}

// ListDatasets returns every stored dataset ordered by name
func (s *SQLiteStorage) ListDatasets(ctx context.Context) ([]*DatasetInfo, error) {
	return s.listDatasetsWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) deleteDatasetWithQuerier(ctx context.Context, q querier, name string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM index_builds WHERE dataset = ?`, name); err != nil {
		return fmt.Errorf("failed to delete build history: %w", err)
	}
	return nil
}

// DeleteDataset removes a dataset, its rows and its build history
func (s *SQLiteStorage) DeleteDataset(ctx context.Context, name string) error {
	return s.inTx(ctx, func(q querier) error {
		return s.deleteDatasetWithQuerier(ctx, q, name)
	})
}

// Table operations

func (s *SQLiteStorage) loadTableWithQuerier(ctx context.Context, q querier, table string) (*types.Dataset, error) {
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("%w: table name cannot be empty", ErrInvalidName)
	}
	quoted := quoteIdentifier(table)

	info, err := q.QueryContext(ctx, "PRAGMA table_info("+quoted+")")
	if err != nil {
		return nil, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}

	var columns []types.Column
	for info.Next() {
		var (
			cid        int
			name, decl string
			notNull    int
			dflt       sql.NullString
			pk         int
		)
		if err := info.Scan(&cid, &name, &decl, &notNull, &dflt, &pk); err != nil {
			_ = info.Close()
			return nil, err
		}
		columns = append(columns, types.Column{Key: name, Type: columnTypeFor(decl)})
	}
	if err := info.Err(); err != nil {
		_ = info.Close()
		return nil, err
	}
	_ = info.Close()

	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s: %w", table, ErrNotFound)
	}

	rows, err := q.QueryContext(ctx, "SELECT * FROM "+quoted)
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	ds := &types.Dataset{Name: table, Columns: columns}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(types.Row, len(columns))
		for i, col := range columns {
			row[col.Key] = normalizeSQLValue(values[i])
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, rows.Err()
}

// LoadTable reads an arbitrary table of the database as a dataset
func (s *SQLiteStorage) LoadTable(ctx context.Context, table string) (*types.Dataset, error) {
	return s.loadTableWithQuerier(ctx, s.querier(), table)
}

// Build history operations

func (s *SQLiteStorage) recordBuildWithQuerier(ctx context.Context, q querier, build *BuildRecord) error {
	if build.BuiltAt.IsZero() {
		build.BuiltAt = time.Now()
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO index_builds (dataset, handle_id, row_count, column_count, token_count, duration_ms, built_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, build.Dataset, build.HandleID, build.Rows, build.Columns, build.Tokens,
		build.Duration.Milliseconds(), build.BuiltAt)
	if err != nil {
		return fmt.Errorf("failed to record build: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	build.ID = id
	return nil
}

// RecordBuild appends a completed build to the history
func (s *SQLiteStorage) RecordBuild(ctx context.Context, build *BuildRecord) error {
	return s.recordBuildWithQuerier(ctx, s.querier(), build)
}

func (s *SQLiteStorage) listBuildsWithQuerier(ctx context.Context, q querier, dataset string, limit int) ([]*BuildRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, dataset, handle_id, row_count, column_count, token_count, duration_ms, built_at
		FROM index_builds
		WHERE dataset = ?
		ORDER BY built_at DESC, id DESC
		LIMIT ?
	`, dataset, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var builds []*BuildRecord
	for rows.Next() {
		var b BuildRecord
		var durationMs int64
		if err := rows.Scan(&b.ID, &b.Dataset, &b.HandleID, &b.Rows, &b.Columns, &b.Tokens,
			&durationMs, &b.BuiltAt); err != nil {
			return nil, err
		}
		b.Duration = time.Duration(durationMs) * time.Millisecond
		builds = append(builds, &b)
	}
	return builds, rows.Err()
}

// ListBuilds returns the most recent builds of a dataset, newest first
func (s *SQLiteStorage) ListBuilds(ctx context.Context, dataset string, limit int) ([]*BuildRecord, error) {
	return s.listBuildsWithQuerier(ctx, s.querier(), dataset, limit)
}

// Transaction implementations

func (t *sqliteTx) SaveDataset(ctx context.Context, ds *types.Dataset) (*DatasetInfo, error) {
	return t.storage.saveDatasetWithQuerier(ctx, t.querier(), ds)
}

func (t *sqliteTx) GetDataset(ctx context.Context, name string) (*DatasetInfo, error) {
	return t.storage.getDatasetWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) LoadDataset(ctx context.Context, name string) (*types.Dataset, error) {
	return t.storage.loadDatasetWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) ListDatasets(ctx context.Context) ([]*DatasetInfo, error) {
	return t.storage.listDatasetsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) DeleteDataset(ctx context.Context, name string) error {
	return t.storage.deleteDatasetWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) LoadTable(ctx context.Context, table string) (*types.Dataset, error) {
	return t.storage.loadTableWithQuerier(ctx, t.querier(), table)
}

func (t *sqliteTx) RecordBuild(ctx context.Context, build *BuildRecord) error {
	return t.storage.recordBuildWithQuerier(ctx, t.querier(), build)
}

func (t *sqliteTx) ListBuilds(ctx context.Context, dataset string, limit int) ([]*BuildRecord, error) {
	return t.storage.listBuildsWithQuerier(ctx, t.querier(), dataset, limit)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}

// Helpers

func encodeRow(row types.Row) ([]byte, error) {
	return msgpack.Marshal(map[string]any(row))
}

func decodeRow(data []byte) (types.Row, error) {
	var m map[string]any
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return types.Row(m), nil
}

// quoteIdentifier quotes a SQL identifier, escaping embedded quotes
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// columnTypeFor maps a declared SQLite column type to a column type using
// SQLite's affinity rules, with date-like declarations kept apart
func columnTypeFor(decl string) types.ColumnType {
	d := strings.ToUpper(decl)
	switch {
	case strings.Contains(d, "DATE"), strings.Contains(d, "TIME"):
		return types.ColumnDate
	case strings.Contains(d, "INT"), strings.Contains(d, "REAL"),
		strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"),
		strings.Contains(d, "NUM"), strings.Contains(d, "DEC"):
		return types.ColumnNumber
	}
	return types.ColumnString
}

// normalizeSQLValue turns driver values into row values
func normalizeSQLValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
