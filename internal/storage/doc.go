// Package storage provides the two persistence tiers behind the timer
// registry:
//
//   - The durable tier (sqlite or file driver) holds browser- and
//     tab-persistent timers plus the user settings object. It survives
//     daemon restarts.
//   - The ephemeral tier is a JSON file in the runtime directory holding
//     session-persistent timers only. It is discarded on clean shutdown and
//     its absence at load time is normal.
package storage
