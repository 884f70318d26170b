package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// Schema for the analytics trail. Version is tracked in the
// schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS anomaly_logs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp   DATETIME NOT NULL,
    value       REAL NOT NULL DEFAULT 0.0,
    score       REAL NOT NULL DEFAULT 0.0,
    is_anomaly  INTEGER NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_anomaly_logs_created_at ON anomaly_logs(created_at DESC);

CREATE TABLE IF NOT EXISTS cluster_logs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    store       INTEGER NOT NULL DEFAULT 0,
    dept        INTEGER NOT NULL DEFAULT 0,
    cluster     INTEGER NOT NULL DEFAULT 0,
    features    TEXT NOT NULL DEFAULT '{}',
    created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cluster_logs_created_at ON cluster_logs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_cluster_logs_store ON cluster_logs(store);

CREATE TABLE IF NOT EXISTS risk_logs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    store       INTEGER NOT NULL DEFAULT 0,
    dept        INTEGER NOT NULL DEFAULT 0,
    risk_score  INTEGER NOT NULL DEFAULT 0,
    risk_level  TEXT NOT NULL DEFAULT 'LOW',
    anomaly     INTEGER NOT NULL DEFAULT 1,
    cluster     INTEGER NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_risk_logs_created_at ON risk_logs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_risk_logs_store ON risk_logs(store);
CREATE INDEX IF NOT EXISTS idx_risk_logs_level ON risk_logs(risk_level);
`,
	},
	// Migration 2: raised alerts.
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS alerts (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    store       INTEGER NOT NULL DEFAULT 0,
    dept        INTEGER NOT NULL DEFAULT 0,
    message     TEXT NOT NULL,
    risk_score  INTEGER NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_store ON alerts(store);
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path
// and runs all pending schema migrations. Pass ":memory:" for an
// in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// Enable WAL mode for better concurrency and performance.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	// Enable foreign-key constraints.
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	// Ensure schema_versions exists before reading from it.
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.Get(&count, `SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Ingest transaction ───────────────────────────────────────────────────────

func (s *sqliteStore) SaveIngest(ctx context.Context, entry *IngestEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertAnomalyLog(ctx, tx, &entry.Anomaly); err != nil {
		return fmt.Errorf("insert anomaly log: %w", err)
	}
	if err := insertClusterLog(ctx, tx, &entry.Cluster); err != nil {
		return fmt.Errorf("insert cluster log: %w", err)
	}
	if err := insertRiskLog(ctx, tx, &entry.Risk); err != nil {
		return fmt.Errorf("insert risk log: %w", err)
	}
	if entry.Alert != nil {
		if err := insertAlert(ctx, tx, entry.Alert); err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}
	}
	return tx.Commit()
}

// ─── Anomaly logs ─────────────────────────────────────────────────────────────

type anomalyLogRow struct {
	ID        int64   `db:"id"`
	Timestamp string  `db:"timestamp"`
	Value     float64 `db:"value"`
	Score     float64 `db:"score"`
	IsAnomaly int     `db:"is_anomaly"`
	CreatedAt string  `db:"created_at"`
}

func (r anomalyLogRow) record() *AnomalyLog {
	rec := &AnomalyLog{
		ID:        r.ID,
		Value:     r.Value,
		Score:     r.Score,
		IsAnomaly: r.IsAnomaly,
	}
	rec.Timestamp, _ = parseTime(r.Timestamp)
	rec.CreatedAt, _ = parseTime(r.CreatedAt)
	return rec
}

func insertAnomalyLog(ctx context.Context, q sqlx.ExtContext, rec *AnomalyLog) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := q.ExecContext(ctx, `
        INSERT INTO anomaly_logs(timestamp, value, score, is_anomaly, created_at)
        VALUES(?,?,?,?,?)
    `, rec.Timestamp.UTC(), rec.Value, rec.Score, rec.IsAnomaly, rec.CreatedAt.UTC())
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	rec.ID = id
	return nil
}

func (s *sqliteStore) AppendAnomalyLog(ctx context.Context, rec *AnomalyLog) error {
	return insertAnomalyLog(ctx, s.db, rec)
}

func (s *sqliteStore) ListAnomalyLogs(ctx context.Context, q LogQuery) ([]*AnomalyLog, error) {
	query := `SELECT id,timestamp,value,score,is_anomaly,created_at FROM anomaly_logs WHERE 1=1`
	args := []any{}
	if !q.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, q.Since.UTC())
	}
	query += ` ORDER BY created_at DESC` + limitClause(q.Limit, q.Offset)

	var rows []anomalyLogRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	result := make([]*AnomalyLog, len(rows))
	for i, r := range rows {
		result[i] = r.record()
	}
	return result, nil
}

// ─── Cluster logs ─────────────────────────────────────────────────────────────

type clusterLogRow struct {
	ID        int64  `db:"id"`
	Store     int    `db:"store"`
	Dept      int    `db:"dept"`
	Cluster   int    `db:"cluster"`
	Features  string `db:"features"`
	CreatedAt string `db:"created_at"`
}

func (r clusterLogRow) record() *ClusterLog {
	rec := &ClusterLog{
		ID:       r.ID,
		Store:    r.Store,
		Dept:     r.Dept,
		Cluster:  r.Cluster,
		Features: r.Features,
	}
	rec.CreatedAt, _ = parseTime(r.CreatedAt)
	return rec
}

func insertClusterLog(ctx context.Context, q sqlx.ExtContext, rec *ClusterLog) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Features == "" {
		rec.Features = "{}"
	}
	res, err := q.ExecContext(ctx, `
        INSERT INTO cluster_logs(store, dept, cluster, features, created_at)
        VALUES(?,?,?,?,?)
    `, rec.Store, rec.Dept, rec.Cluster, rec.Features, rec.CreatedAt.UTC())
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	rec.ID = id
	return nil
}

func (s *sqliteStore) AppendClusterLog(ctx context.Context, rec *ClusterLog) error {
	return insertClusterLog(ctx, s.db, rec)
}

func (s *sqliteStore) ListClusterLogs(ctx context.Context, q LogQuery) ([]*ClusterLog, error) {
	query := `SELECT id,store,dept,cluster,features,created_at FROM cluster_logs WHERE 1=1`
	args := []any{}
	if q.Store > 0 {
		query += ` AND store = ?`
		args = append(args, q.Store)
	}
	if q.Dept > 0 {
		query += ` AND dept = ?`
		args = append(args, q.Dept)
	}
	if !q.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, q.Since.UTC())
	}
	query += ` ORDER BY created_at DESC` + limitClause(q.Limit, q.Offset)

	var rows []clusterLogRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	result := make([]*ClusterLog, len(rows))
	for i, r := range rows {
		result[i] = r.record()
	}
	return result, nil
}

// ─── Risk logs ────────────────────────────────────────────────────────────────

type riskLogRow struct {
	ID        int64  `db:"id"`
	Store     int    `db:"store"`
	Dept      int    `db:"dept"`
	RiskScore int    `db:"risk_score"`
	RiskLevel string `db:"risk_level"`
	Anomaly   int    `db:"anomaly"`
	Cluster   int    `db:"cluster"`
	CreatedAt string `db:"created_at"`
}

func (r riskLogRow) record() *RiskLog {
	rec := &RiskLog{
		ID:        r.ID,
		Store:     r.Store,
		Dept:      r.Dept,
		RiskScore: r.RiskScore,
		RiskLevel: r.RiskLevel,
		Anomaly:   r.Anomaly,
		Cluster:   r.Cluster,
	}
	rec.CreatedAt, _ = parseTime(r.CreatedAt)
	return rec
}

func insertRiskLog(ctx context.Context, q sqlx.ExtContext, rec *RiskLog) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := q.ExecContext(ctx, `
        INSERT INTO risk_logs(store, dept, risk_score, risk_level, anomaly, cluster, created_at)
        VALUES(?,?,?,?,?,?,?)
    `, rec.Store, rec.Dept, rec.RiskScore, rec.RiskLevel, rec.Anomaly, rec.Cluster, rec.CreatedAt.UTC())
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	rec.ID = id
	return nil
}

func (s *sqliteStore) AppendRiskLog(ctx context.Context, rec *RiskLog) error {
	return insertRiskLog(ctx, s.db, rec)
}

func (s *sqliteStore) ListRiskLogs(ctx context.Context, q LogQuery) ([]*RiskLog, error) {
	query := `SELECT id,store,dept,risk_score,risk_level,anomaly,cluster,created_at FROM risk_logs WHERE 1=1`
	args := []any{}
	if q.Store > 0 {
		query += ` AND store = ?`
		args = append(args, q.Store)
	}
	if q.Dept > 0 {
		query += ` AND dept = ?`
		args = append(args, q.Dept)
	}
	if q.Level != "" {
		query += ` AND risk_level = ?`
		args = append(args, q.Level)
	}
	if !q.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, q.Since.UTC())
	}
	query += ` ORDER BY created_at DESC` + limitClause(q.Limit, q.Offset)

	var rows []riskLogRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	result := make([]*RiskLog, len(rows))
	for i, r := range rows {
		result[i] = r.record()
	}
	return result, nil
}

// ─── Alerts ───────────────────────────────────────────────────────────────────

type alertRow struct {
	ID        int64  `db:"id"`
	Store     int    `db:"store"`
	Dept      int    `db:"dept"`
	Message   string `db:"message"`
	RiskScore int    `db:"risk_score"`
	CreatedAt string `db:"created_at"`
}

func (r alertRow) record() *Alert {
	rec := &Alert{
		ID:        r.ID,
		Store:     r.Store,
		Dept:      r.Dept,
		Message:   r.Message,
		RiskScore: r.RiskScore,
	}
	rec.CreatedAt, _ = parseTime(r.CreatedAt)
	return rec
}

func insertAlert(ctx context.Context, q sqlx.ExtContext, rec *Alert) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := q.ExecContext(ctx, `
        INSERT INTO alerts(store, dept, message, risk_score, created_at)
        VALUES(?,?,?,?,?)
    `, rec.Store, rec.Dept, rec.Message, rec.RiskScore, rec.CreatedAt.UTC())
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	rec.ID = id
	return nil
}

func (s *sqliteStore) AppendAlert(ctx context.Context, rec *Alert) error {
	return insertAlert(ctx, s.db, rec)
}

func (s *sqliteStore) ListAlerts(ctx context.Context, limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT id,store,dept,message,risk_score,created_at FROM alerts ORDER BY created_at DESC LIMIT %d`, limit)

	var rows []alertRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	result := make([]*Alert, len(rows))
	for i, r := range rows {
		result[i] = r.record()
	}
	return result, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// limitClause renders LIMIT/OFFSET when a positive limit is set.
func limitClause(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(` LIMIT %d OFFSET %d`, limit, offset)
}

// parseTime handles multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
