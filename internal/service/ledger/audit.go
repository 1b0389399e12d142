package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/creatorhub/internal/domain"
)

// Audit writes an audit event through tx. Metadata is JSON-encoded.
func Audit(ctx context.Context, tx Tx, actorID, entityType, entityID, action string, metadata map[string]interface{}, at time.Time) error {
	var raw json.RawMessage
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		raw = b
	}
	return tx.InsertAuditEvent(ctx, &domain.AuditEvent{
		ID:         uuid.New().String(),
		ActorID:    actorID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Metadata:   raw,
		CreatedAt:  at,
	})
}
