// Package command defines the closed set of blind control verbs.
//
// Parsing is case-insensitive; the wire form is the upper-case verb and is
// published to the bus as-is, without any envelope.
package command

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Command is a blind control verb.
type Command int

// The supported commands. The zero value is not a valid command.
const (
	Open Command = iota + 1
	Close
	Stop
)

// InvalidActionError reports an action string that is not a known command.
// Raw is the caller's input, unmodified.
type InvalidActionError struct {
	Raw string
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("command: invalid action %q (use OPEN, CLOSE or STOP)", e.Raw)
}

// Parse converts an action string to a Command, ignoring case.
// Any other input, including surrounding whitespace, returns *InvalidActionError.
func Parse(s string) (Command, error) {
	switch strings.ToUpper(s) {
	case "OPEN":
		return Open, nil
	case "CLOSE":
		return Close, nil
	case "STOP":
		return Stop, nil
	default:
		return 0, &InvalidActionError{Raw: s}
	}
}

// Wire returns the canonical payload published to the bus.
func (c Command) Wire() string {
	switch c {
	case Open:
		return "OPEN"
	case Close:
		return "CLOSE"
	case Stop:
		return "STOP"
	default:
		return ""
	}
}

// String implements fmt.Stringer.
func (c Command) String() string {
	if w := c.Wire(); w != "" {
		return w
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// Payload returns the wire form as bytes.
func (c Command) Payload() []byte {
	return []byte(c.Wire())
}

// Valid reports whether c is one of the defined commands.
func (c Command) Valid() bool {
	return c.Wire() != ""
}

// MarshalJSON encodes the command as its wire string.
func (c Command) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("command: cannot encode %v", c)
	}
	return json.Marshal(c.Wire())
}

// UnmarshalJSON accepts any case variant of a known verb.
func (c *Command) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
