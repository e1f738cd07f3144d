package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite".

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
)

// MirrorRecord is the durable hint-cache projection of one entry (spec
// §4.O). It is never treated as authoritative. Offline bootstrap does not
// read it: index.Bootstrap always scans the cache directory tree.
type MirrorRecord struct {
	Key                  briefcase.Key
	IModelId             briefcase.IModelId
	BriefcaseId          briefcase.BriefcaseId
	SyncMode             briefcase.SyncMode
	Pathname             string
	ParentChangeSetId    briefcase.ChangeSetId
	TargetChangeSetId    briefcase.ChangeSetId
	DownloadStatus       briefcase.DownloadStatus
}

// SQLiteMirror persists MirrorRecords in a modernc.org/sqlite database,
// grounded on internal/sync.SQLiteStore's open/pragma/migrate shape.
type SQLiteMirror struct {
	db     *sql.DB
	logger *slog.Logger

	upsertStmt *sql.Stmt
	deleteStmt *sql.Stmt
	loadStmt   *sql.Stmt
}

// OpenSQLiteMirror opens (creating if absent) the mirror database at
// dbPath, applies migrations, and prepares statements. Use ":memory:" in
// tests.
func OpenSQLiteMirror(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteMirror, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("opening index mirror database", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("index: open sqlite: %w", err)
	}

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	m := &SQLiteMirror{db: db, logger: logger}
	if err := m.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: prepare statements: %w", err)
	}

	return m, nil
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("index: set pragma %q: %w", p, err)
		}
	}
	return nil
}

func (m *SQLiteMirror) prepareStatements(ctx context.Context) error {
	var err error

	m.upsertStmt, err = m.db.PrepareContext(ctx, `
		INSERT INTO entries
			(cache_key, i_model_id, briefcase_id, sync_mode, pathname,
			 parent_change_set_id, target_change_set_id, download_status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			i_model_id = excluded.i_model_id,
			briefcase_id = excluded.briefcase_id,
			sync_mode = excluded.sync_mode,
			pathname = excluded.pathname,
			parent_change_set_id = excluded.parent_change_set_id,
			target_change_set_id = excluded.target_change_set_id,
			download_status = excluded.download_status,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}

	m.deleteStmt, err = m.db.PrepareContext(ctx, `DELETE FROM entries WHERE cache_key = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}

	m.loadStmt, err = m.db.PrepareContext(ctx, `
		SELECT cache_key, i_model_id, briefcase_id, sync_mode, pathname,
		       parent_change_set_id, target_change_set_id, download_status
		FROM entries`)
	if err != nil {
		return fmt.Errorf("prepare load: %w", err)
	}

	return nil
}

// Save upserts e's hint record (spec §4.O: consulted as a fast-path hint,
// never authoritative).
func (m *SQLiteMirror) Save(ctx context.Context, e *briefcase.Entry) error {
	_, err := m.upsertStmt.ExecContext(ctx,
		string(e.Key()), string(e.IModelId), int64(e.BriefcaseId), int(e.SyncMode), e.Pathname,
		string(e.ParentChangeSetId), string(e.TargetChangeSetId), int(e.DownloadStatus),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("index: save mirror record: %w", err)
	}
	return nil
}

// Delete removes key's hint record, if present.
func (m *SQLiteMirror) Delete(ctx context.Context, key briefcase.Key) error {
	if _, err := m.deleteStmt.ExecContext(ctx, string(key)); err != nil {
		return fmt.Errorf("index: delete mirror record: %w", err)
	}
	return nil
}

// LoadAll returns every hint record currently stored. A scan/parse
// failure degrades to (nil, err) rather than a partial result, so callers
// treat any error here as "mirror unusable, fall back to full scan" per
// spec §4.O.
func (m *SQLiteMirror) LoadAll(ctx context.Context) ([]MirrorRecord, error) {
	rows, err := m.loadStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("index: load mirror records: %w", err)
	}
	defer rows.Close()

	var out []MirrorRecord
	for rows.Next() {
		var (
			key, iModelId, pathname, parentId, targetId string
			briefcaseId                                 int64
			syncMode, downloadStatus                    int
		)
		if err := rows.Scan(&key, &iModelId, &briefcaseId, &syncMode, &pathname, &parentId, &targetId, &downloadStatus); err != nil {
			return nil, fmt.Errorf("index: scan mirror record: %w", err)
		}
		out = append(out, MirrorRecord{
			Key:               briefcase.Key(key),
			IModelId:          briefcase.IModelId(iModelId),
			BriefcaseId:       briefcase.BriefcaseId(briefcaseId),
			SyncMode:          briefcase.SyncMode(syncMode),
			Pathname:          pathname,
			ParentChangeSetId: briefcase.ChangeSetId(parentId),
			TargetChangeSetId: briefcase.ChangeSetId(targetId),
			DownloadStatus:    briefcase.DownloadStatus(downloadStatus),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: iterate mirror records: %w", err)
	}
	return out, nil
}

// Close closes the underlying database handle.
func (m *SQLiteMirror) Close() error {
	return m.db.Close()
}
