// Package api implements the HTTP REST API and WebSocket server for the
// Tabi blinds backend.
//
// This package provides:
//   - Command endpoints that dispatch OPEN/CLOSE/STOP to one blind, a room or every blind
//   - Read endpoints for the blind registry, rooms, configuration and dispatch history
//   - Configuration endpoints that add, replace, remove and toggle blinds at runtime,
//     with an audit trail of accepted changes
//   - A WebSocket hub that relays blind.command and blind.config_changed events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit, metrics)
//
// # Architecture
//
// The API server sits between user interfaces and the dispatch service. A
// command request resolves its targets against a registry snapshot, each
// target is published to the MQTT bus, and the aggregated result is
// returned to the caller and broadcast to WebSocket subscribers.
//
// # Error Responses
//
// Failures use the wire format existing clients expect:
//
//	{"error": "Blind not found", "blind_id": "blind_009", "error_code": "BLIND_NOT_FOUND"}
//
// # Graceful Degradation
//
// The server operates without a bus connection. Reads and WebSocket
// connections work; only commands report MQTT_ERROR.
package api
