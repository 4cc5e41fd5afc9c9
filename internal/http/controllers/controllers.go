// Package controllers implementa los handlers HTTP sobre auth.Engine.
// Cada handler decodifica el request, delega en el Engine y traduce el
// resultado; ninguna regla de negocio vive acá.
package controllers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/dropDatabas3/authcore/internal/auth"
	httperrors "github.com/dropDatabas3/authcore/internal/http/errors"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
)

// Pinger reporta si el storage responde (store.Manager).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Controllers agrupa todos los controllers de la API.
type Controllers struct {
	Auth   *AuthController
	Config *ConfigController
	Users  *UsersController
	OTP    *OTPController
	OAuth  *OAuthController
	Health *HealthController
}

// New arma los controllers sobre el mismo Engine.
func New(e *auth.Engine, stores Pinger) *Controllers {
	return &Controllers{
		Auth:   &AuthController{engine: e},
		Config: &ConfigController{engine: e},
		Users:  &UsersController{engine: e},
		OTP:    &OTPController{engine: e},
		OAuth:  &OAuthController{engine: e},
		Health: &HealthController{stores: stores},
	}
}

func opLogger(r *http.Request, op string) *zap.Logger {
	return logger.From(r.Context()).With(logger.Layer("controller"), logger.Op(op))
}

// writeError escribe el error y loguea solo lo inesperado: los rechazos de
// negocio (401/400/403...) no son errores del server.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	app := httperrors.FromError(err)
	if app.HTTPStatus >= http.StatusInternalServerError {
		log.Error("request failed", logger.Err(err))
	} else {
		log.Debug("request rejected", logger.String("code", app.Code))
	}
	httperrors.WriteError(w, app)
}
