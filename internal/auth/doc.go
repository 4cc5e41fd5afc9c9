// Package auth es el núcleo de autenticación multi-tenant:
//
//   - SessionManager: sesiones opacas "<tenantId>.<random>" con expiración
//     perezosa al leer.
//   - OTPManager: códigos numéricos de un solo uso por (tenant, identifier,
//     purpose) con contador de intentos atómico.
//   - Registry: providers por id (email_password, google, github).
//   - Engine: la fachada que usan el server HTTP y el CLI.
//
// Toda la persistencia pasa por store.Adapter, resuelto por tenant.
package auth
