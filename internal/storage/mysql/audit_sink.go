package mysql

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/credentive/go-credential-service/audit"
)

var _ audit.Sink = (*AuditSink)(nil)

// AuditSink appends events to the audit_logs table. Rows are insert-only.
type AuditSink struct {
	db *sql.DB
}

func NewAuditSink(db *sql.DB) *AuditSink {
	return &AuditSink{db: db}
}

func (s *AuditSink) Write(ctx context.Context, event audit.Event) error {
	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return errors.Wrap(err, "[AuditSink.Write] marshal metadata")
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (user_id, tenant_id, action, ip, user_agent, metadata, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.UserID, event.TenantID, string(event.Action), event.IP, event.UserAgent, metadata, event.At)
	return errors.Wrap(err, "[AuditSink.Write] insert")
}
