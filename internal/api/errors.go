package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/tabi-core/internal/command"
	"github.com/nerrad567/tabi-core/internal/device"
	"github.com/nerrad567/tabi-core/internal/dispatch"
)

// Error codes carried in the error_code field.
const (
	ErrCodeInvalidAction  = "INVALID_ACTION"
	ErrCodeBlindNotFound  = "BLIND_NOT_FOUND"
	ErrCodeBlindDisabled  = "BLIND_DISABLED"
	ErrCodeRoomNotFound   = "ROOM_NOT_FOUND"
	ErrCodeMQTT           = "MQTT_ERROR"
	ErrCodeConfig         = "CONFIG_ERROR"
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeMethodNotAllow = "METHOD_NOT_ALLOWED"
	ErrCodeUnavailable    = "SERVICE_UNAVAILABLE"
)

// Error messages paired with the codes above.
const (
	msgInvalidAction = "Invalid action. Use: OPEN, CLOSE, or STOP"
	msgBlindNotFound = "Blind not found"
	msgBlindDisabled = "Blind is disabled"
	msgRoomNotFound  = "Room not found or has no enabled blinds"
	msgMQTT          = "MQTT communication failed"
	msgConfig        = "Configuration error"
	msgValidation    = "Validation error"
	msgInternal      = "Internal server error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes {"error": message, "error_code": code} plus the given
// key/value pairs.
func writeError(w http.ResponseWriter, status int, code, message string, kv ...string) {
	body := make(map[string]string, 2+len(kv)/2)
	body["error"] = message
	body["error_code"] = code
	for i := 0; i+1 < len(kv); i += 2 {
		body[kv[i]] = kv[i+1]
	}
	writeJSON(w, status, body)
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeValidationError writes a 400 VALIDATION_ERROR response.
func writeValidationError(w http.ResponseWriter, details string) {
	writeError(w, http.StatusBadRequest, ErrCodeValidation, msgValidation, "details", details)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, msgInternal)
}

// writeDomainError maps a dispatch or registry error onto its HTTP response.
//
// The order matters: a registry ValidationError for an unknown ID matches
// both ErrDeviceNotFound and ErrConfigValidation and must answer 404.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalidAction *command.InvalidActionError
		busErr        *dispatch.BusError
	)

	switch {
	case errors.As(err, &invalidAction):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidAction, msgInvalidAction, "received", invalidAction.Raw)
	case errors.Is(err, dispatch.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, ErrCodeBlindNotFound, msgBlindNotFound, "blind_id", deviceIDOf(err))
	case errors.Is(err, dispatch.ErrDeviceDisabled):
		writeError(w, http.StatusBadRequest, ErrCodeBlindDisabled, msgBlindDisabled, "blind_id", deviceIDOf(err))
	case errors.Is(err, dispatch.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, ErrCodeRoomNotFound, msgRoomNotFound, "room", roomOf(err))
	case errors.Is(err, dispatch.ErrNoEnabledDevices):
		s.logger.Error("dispatch found no enabled blinds", "request_id", requestIDFrom(r), "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeConfig, msgConfig, "details", err.Error())
	case errors.As(err, &busErr):
		s.logger.Error("bus publish failed",
			"request_id", requestIDFrom(r),
			"blind_id", busErr.DeviceID,
			"topic", busErr.Topic,
			"error", busErr.Err,
		)
		writeError(w, http.StatusInternalServerError, ErrCodeMQTT, msgMQTT, "details", busErr.Err.Error())
	case errors.Is(err, device.ErrConfigValidation):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error("unhandled request error", "request_id", requestIDFrom(r), "error", err)
		writeInternalError(w)
	}
}

func deviceIDOf(err error) string {
	var te *dispatch.TargetError
	if errors.As(err, &te) {
		return te.DeviceID
	}
	var ve *device.ValidationError
	if errors.As(err, &ve) {
		return ve.DeviceID
	}
	return ""
}

func roomOf(err error) string {
	var te *dispatch.TargetError
	if errors.As(err, &te) {
		return te.Room
	}
	return ""
}
