package device

// Validate checks the registry invariants over an ordered device list.
//
// Checks run in a fixed order (emptiness, then identity, then topics) and the
// first device that violates a rule is reported.
func Validate(devices []Device) error {
	if len(devices) == 0 {
		return invalid(ErrEmptyRegistry, "")
	}

	seen := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		if _, dup := seen[d.ID]; dup {
			return invalid(ErrDuplicateID, d.ID)
		}
		seen[d.ID] = struct{}{}
	}

	for _, d := range devices {
		if !d.hasTopic() {
			return invalid(ErrEmptyTopic, d.ID)
		}
	}

	return nil
}
