// Package audit keeps a durable trail of supplier submission attempts in
// Postgres. Bookkeeping only: a write failure is logged and swallowed so the
// intake flow never fails because the trail did.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/fusionworks/supplier-intake-agent/agent/contract"
)

// Entry is one submission attempt, success or failure.
type Entry struct {
	bun.BaseModel `bun:"table:submission_audit"`

	ID             int64     `bun:"id,pk,autoincrement"`
	SessionID      string    `bun:"session_id,notnull"`
	Supplier       string    `bun:"supplier"`
	Created        bool      `bun:"created,notnull"`
	SupplierID     string    `bun:"supplier_id"`
	SupplierNumber string    `bun:"supplier_number"`
	Detail         string    `bun:"detail"`
	RecordedAt     time.Time `bun:"recorded_at,notnull"`
}

// Open connects to Postgres via bun's pgdriver.
func Open(dsn string) (*bun.DB, error) {
	if dsn == "" {
		return nil, errors.New("audit dsn is empty")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// Recorder implements contract.AuditRecorder on a bun connection.
type Recorder struct {
	db     *bun.DB
	now    func() time.Time
	logger zerolog.Logger
}

func NewRecorder(db *bun.DB) (*Recorder, error) {
	if db == nil {
		return nil, errors.New("audit db is required")
	}
	return &Recorder{
		db:     db,
		now:    time.Now,
		logger: log.With().Str("component", "audit").Logger(),
	}, nil
}

// EnsureSchema creates the audit table when it does not exist yet.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	_, err := r.db.NewCreateTable().Model((*Entry)(nil)).IfNotExists().Exec(ctx)
	return err
}

func (r *Recorder) RecordSubmission(ctx context.Context, sessionID string, record contract.Record, result contract.SubmissionResult) {
	entry := &Entry{
		SessionID:      sessionID,
		Supplier:       record["Supplier"],
		Created:        result.Created,
		SupplierID:     result.SupplierID,
		SupplierNumber: result.SupplierNumber,
		Detail:         result.Detail,
		RecordedAt:     r.now().UTC(),
	}
	if _, err := r.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		r.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to record submission")
	}
}
