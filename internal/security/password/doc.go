// Package password agrupa todo lo relativo a passwords: el motor de
// políticas (Validate, GenerateExamples), el hashing argon2id con
// compatibilidad bcrypt y la blacklist de passwords comunes.
//
// Validate y GenerateExamples son puros: sin I/O salvo el warning que se
// loguea cuando un forbiddenPattern no compila.
package password
