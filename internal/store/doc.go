// Package store define el contrato de persistencia del auth core (Adapter),
// el registry de drivers y el Manager que resuelve el store de cada tenant.
//
// Reglas del contrato, comunes a todos los drivers:
//   - toda operación está particionada por tenant;
//   - "no encontrado" devuelve (nil, nil), nunca error;
//   - VerifyPassword devuelve nil tanto para usuario inexistente como para
//     password incorrecto, con el mismo costo de CPU;
//   - CreateUser falla con ErrEmailInUse ante (tenant, email) duplicado
//     usando la restricción de unicidad del backend, no un read-then-write;
//   - UpsertOTP reemplaza atómicamente el OTP previo de la misma clave (con
//     id nuevo) e IncrementOTPAttempts es un incremento atómico;
//   - ReserveOTPAttempt chequea vencimiento y límite e incrementa en un solo
//     paso, así que nunca se evalúan más de maxAttempts intentos;
//   - ConsumeOTP es un borrado condicionado al id: un código se acepta una
//     sola vez aunque lleguen verificaciones concurrentes;
//   - borrar un usuario borra sus sesiones.
//
// La suite de contrato vive en store/storetest y corre contra cada driver.
package store
