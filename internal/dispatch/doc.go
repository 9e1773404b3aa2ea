// Package dispatch turns a target and an action string into bus publishes.
//
// Three targets are supported: one device by ID, every enabled device in a
// room, and every enabled device. Every call parses the action first, so a
// bad verb fails before the registry or the bus are touched.
//
// Single-device dispatch is strict: an unknown ID, a disabled device or a
// failed publish is returned as an error. Room and broadcast dispatch are
// best-effort: once the target resolves to at least one device, every
// device is attempted in registry order and each attempt becomes one
// Outcome in the BatchResult. A failing device never stops the rest, and a
// started batch always runs to completion.
//
// Publishes inside a batch are sequential. The Publisher is expected to
// serialise access to its connection.
package dispatch
