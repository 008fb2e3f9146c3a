package store

import (
	"context"

	"pricesync-service/internal/models"
)

// LogAudit appends one price-change entry to the audit log.
func (s *Store) LogAudit(ctx context.Context, entry *models.AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (store_id, product_id, action, old_value, new_value, details)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.StoreID, entry.ProductID, entry.Action,
		entry.OldValue, entry.NewValue, entry.Details)
	return err
}

// GetAuditEntries lists the change history for a store, newest first.
func (s *Store) GetAuditEntries(ctx context.Context, storeID string, limit int) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM audit_log WHERE store_id = $1 ORDER BY created_at DESC LIMIT $2",
		storeID, limit)
	return entries, err
}
