// Package domain contiene las entidades del auth core: User, Session,
// OtpSession y AuthConfig. Todas están particionadas por tenant.
//
// Los adapters de store son los únicos que persisten estas entidades; cada
// backend traduce filas/registros con funciones de mapeo explícitas que
// validan el registro (ver Validate en cada tipo).
package domain
