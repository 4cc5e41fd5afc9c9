// Package audit registra las acciones administrativas (quién hizo qué en
// qué tenant) como entradas de log con component=audit, separables del
// resto del log por ese campo.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/authcore/internal/observability/logger"
)

type Event string

const (
	ConfigUpdated   Event = "config.updated"
	UserSignedUp    Event = "user.signed_up"
	UserCreated     Event = "user.created"
	UserDeleted     Event = "user.deleted"
	SessionsRevoked Event = "sessions.revoked"
)

// Log emite ev. actorID vacío = el propio usuario (self-service).
func Log(ctx context.Context, ev Event, tenantID, actorID string, fields ...zap.Field) {
	base := []zap.Field{logger.Component("audit"), zap.String("event", string(ev)), logger.TenantID(tenantID)}
	if actorID != "" {
		base = append(base, zap.String("actor_id", actorID))
	}
	logger.From(ctx).Info("audit: "+string(ev), append(base, fields...)...)
}
