// Package device holds the validated catalogue of configured blinds.
//
// A Registry publishes immutable Snapshots. Readers take a Snapshot and query
// it without locking; writers (Add, Update, Remove, SetEnabled) build a
// candidate device list, validate it, and swap it in only when it passes.
// A rejected mutation leaves the previous Snapshot in place.
//
// Validation rules:
//   - the registry must contain at least one device
//   - device IDs must be pairwise distinct
//   - every device must have a non-blank bus topic
//
// Device kind is an open string tag and is never validated.
package device
