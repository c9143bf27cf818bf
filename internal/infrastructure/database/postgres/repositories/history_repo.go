package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/pkg/errors"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

// queryExecutor abstracts sql.DB and sql.Tx.
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// AnalysisRecord is one completed prior-art analysis, persisted so a session
// can revisit earlier results.  The full report is stored as JSONB; risk
// fields are denormalized into columns for cheap listing.
type AnalysisRecord struct {
	ID              uuid.UUID             `json:"id"`
	SessionID       string                `json:"session_id"`
	Idea            string                `json:"idea"`
	Report          patent.AnalysisReport `json:"report"`
	ReportObjectKey string                `json:"report_object_key,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}

// HistoryRepo reads and writes analysis_history rows.
type HistoryRepo struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

func NewHistoryRepo(conn *postgres.Connection, log logging.Logger) *HistoryRepo {
	return &HistoryRepo{
		conn:     conn,
		log:      log.Named("history_repo"),
		executor: conn.DB(),
	}
}

// Save inserts one record, assigning an ID when the caller left it empty.
func (r *HistoryRepo) Save(ctx context.Context, rec *AnalysisRecord) error {
	if rec.SessionID == "" {
		return errors.NewValidationError("session_id must not be empty")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	reportJSON, err := json.Marshal(rec.Report)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "marshal analysis report failed")
	}

	query := `
		INSERT INTO analysis_history (
			id, session_id, idea, risk_level, risk_score, similar_count, report, report_object_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err = r.executor.QueryRowContext(ctx, query,
		rec.ID, rec.SessionID, rec.Idea,
		string(rec.Report.RiskLevel), rec.Report.RiskScore, rec.Report.SimilarCount,
		reportJSON, rec.ReportObjectKey,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "insert analysis record failed")
	}
	return nil
}

// GetByID fetches one record regardless of session.
func (r *HistoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*AnalysisRecord, error) {
	query := `
		SELECT id, session_id, idea, report, report_object_key, created_at
		FROM analysis_history WHERE id = $1
	`
	return scanRecord(r.executor.QueryRowContext(ctx, query, id))
}

// ListBySession returns one page of a session's history, newest first, and
// the total count so the caller can paginate.
func (r *HistoryRepo) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*AnalysisRecord, int64, error) {
	if sessionID == "" {
		return nil, 0, errors.NewValidationError("session_id must not be empty")
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM analysis_history WHERE session_id = $1`
	if err := r.executor.QueryRowContext(ctx, countQuery, sessionID).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "count analysis history failed")
	}

	query := `
		SELECT id, session_id, idea, report, report_object_key, created_at
		FROM analysis_history
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.executor.QueryContext(ctx, query, sessionID, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "list analysis history failed")
	}
	defer rows.Close()

	var records []*AnalysisRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "iterate analysis history failed")
	}
	return records, total, nil
}

// SetReportObjectKey attaches the exported report's object storage key after
// the upload completes.
func (r *HistoryRepo) SetReportObjectKey(ctx context.Context, id uuid.UUID, objectKey string) error {
	query := `UPDATE analysis_history SET report_object_key = $2 WHERE id = $1`
	res, err := r.executor.ExecContext(ctx, query, id, objectKey)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "update report object key failed")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("analysis record " + id.String())
	}
	return nil
}

// DeleteOlderThan purges records past the retention window.
func (r *HistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.executor.ExecContext(ctx, `DELETE FROM analysis_history WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "purge analysis history failed")
	}
	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		r.log.Info("purged analysis history",
			logging.Int64("deleted", deleted),
			logging.String("cutoff", cutoff.Format(time.RFC3339)),
		)
	}
	return deleted, nil
}

func scanRecord(row scanner) (*AnalysisRecord, error) {
	var rec AnalysisRecord
	var reportJSON []byte
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.Idea, &reportJSON, &rec.ReportObjectKey, &rec.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("analysis record")
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan analysis record failed")
	}
	if err := json.Unmarshal(reportJSON, &rec.Report); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "unmarshal analysis report failed")
	}
	return &rec, nil
}
