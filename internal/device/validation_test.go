package device

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		devices []Device
		wantErr error
		wantID  string
	}{
		{
			name:    "valid",
			devices: []Device{{ID: "a", BusTopic: "t/a"}, {ID: "b", BusTopic: "t/b"}},
		},
		{
			name:    "disabled devices still count",
			devices: []Device{{ID: "a", BusTopic: "t/a", Enabled: false}},
		},
		{
			name:    "empty",
			devices: []Device{},
			wantErr: ErrEmptyRegistry,
		},
		{
			name:    "duplicate id",
			devices: []Device{{ID: "a", BusTopic: "t"}, {ID: "b", BusTopic: "t"}, {ID: "a", BusTopic: "t"}},
			wantErr: ErrDuplicateID,
			wantID:  "a",
		},
		{
			name:    "empty topic",
			devices: []Device{{ID: "a", BusTopic: "t"}, {ID: "b", BusTopic: ""}},
			wantErr: ErrEmptyTopic,
			wantID:  "b",
		},
		{
			name:    "whitespace topic",
			devices: []Device{{ID: "a", BusTopic: " \t"}},
			wantErr: ErrEmptyTopic,
			wantID:  "a",
		},
		{
			name:    "duplicate reported before empty topic",
			devices: []Device{{ID: "a", BusTopic: ""}, {ID: "a", BusTopic: "t"}},
			wantErr: ErrDuplicateID,
			wantID:  "a",
		},
		{
			name:    "kind is not validated",
			devices: []Device{{ID: "a", BusTopic: "t", Kind: "something-new"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.devices)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) || !errors.Is(err, ErrConfigValidation) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error type = %T, want *ValidationError", err)
			}
			if verr.DeviceID != tt.wantID {
				t.Errorf("ValidationError.DeviceID = %q, want %q", verr.DeviceID, tt.wantID)
			}
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := invalid(ErrDuplicateID, "b1")
	want := `device: configuration invalid: device: duplicate id: "b1"`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	err = invalid(ErrEmptyRegistry, "")
	want = "device: configuration invalid: device: registry is empty"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
