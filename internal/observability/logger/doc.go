// Package logger expone un logger zap único para el proceso con scoping por
// contexto.
//
// Inicialización (una vez, en cmd/):
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "authd"})
//	defer logger.Sync()
//
// En services y adapters:
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("SignIn"))
//	log.Info("session issued", logger.TenantID(tid), logger.UserID(uid))
//
// Nunca loguear passwords, códigos OTP ni tokens de sesión completos: para
// tokens usar logger.TokenFP.
package logger
