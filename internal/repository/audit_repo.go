package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/company-wiki-api/internal/models"
)

// auditTables maps entity types to their log table. Table names never come
// from user input.
var auditTables = map[models.EntityType]string{
	models.EntityArticle:  "article_log",
	models.EntityCategory: "category_log",
	models.EntityTag:      "tag_log",
}

type auditRepo struct {
	db DBTX
}

// NewAuditRepo creates a new audit log repository
func NewAuditRepo(db DBTX) AuditRepository {
	return &auditRepo{db: db}
}

func auditTable(entity models.EntityType) (string, error) {
	table, ok := auditTables[entity]
	if !ok {
		return "", fmt.Errorf("no audit log for entity %q", entity)
	}
	return table, nil
}

// Append inserts one log row. changed_at is assigned by the server.
func (r *auditRepo) Append(ctx context.Context, entry *models.AuditEntry) error {
	table, err := auditTable(entry.Entity)
	if err != nil {
		return err
	}

	query := `INSERT INTO ` + table + ` (target_id, action, changed_by, old_data, new_data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, changed_at`

	// lib/pq sends []byte as bytea, so JSON goes over the wire as text
	var oldData, newData sql.NullString
	if len(entry.OldData) > 0 {
		oldData = sql.NullString{String: string(entry.OldData), Valid: true}
	}
	if len(entry.NewData) > 0 {
		newData = sql.NullString{String: string(entry.NewData), Valid: true}
	}

	err = r.db.QueryRowContext(ctx, query,
		entry.TargetID, entry.Action, entry.ChangedBy, oldData, newData,
	).Scan(&entry.ID, &entry.ChangedAt)
	if err != nil {
		return fmt.Errorf("append %s: %w", table, err)
	}
	return nil
}

// ListByTarget returns the log rows of one entity in append order
func (r *auditRepo) ListByTarget(ctx context.Context, entity models.EntityType, targetID int64) ([]*models.AuditEntry, error) {
	table, err := auditTable(entity)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, target_id, action, changed_by, changed_at, old_data, new_data
		FROM `+table+` WHERE target_id = $1 ORDER BY id`, targetID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		e := &models.AuditEntry{Entity: entity}
		var oldData, newData []byte
		if err := rows.Scan(&e.ID, &e.TargetID, &e.Action, &e.ChangedBy, &e.ChangedAt, &oldData, &newData); err != nil {
			return nil, err
		}
		e.OldData = oldData
		e.NewData = newData
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
