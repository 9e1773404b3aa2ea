// Package status builds read-only views of the registry for the API:
// blinds grouped by room, per-room counts, and overall system health.
//
// Nothing here publishes to the bus. Connectivity is read from the
// publisher's liveness flag, and last-command data comes from the history
// layer when one is configured.
package status
