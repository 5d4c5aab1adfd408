package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	t "github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
)

// maxBodyBytes caps request bodies; every command payload is a handful of fields.
const maxBodyBytes = 64 << 10

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, data envelope) error {
	body, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(append(body, '\n'))
	return err
}

// readJSON decodes exactly one JSON object into dst and rejects unknown keys.
// The returned error text is safe to hand back to the client.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return describeDecodeError(err)
	}
	if dec.More() {
		return errors.New("body must hold a single JSON object")
	}
	return nil
}

func describeDecodeError(err error) error {
	var (
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
		tooLargeErr *http.MaxBytesError
	)

	switch {
	case errors.Is(err, io.EOF):
		return errors.New("body is empty")
	case errors.Is(err, io.ErrUnexpectedEOF):
		return errors.New("body is truncated JSON")
	case errors.As(err, &syntaxErr):
		return fmt.Errorf("malformed JSON at offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return fmt.Errorf("field %q has the wrong type, want %s", typeErr.Field, typeErr.Type)
	case errors.As(err, &typeErr):
		return fmt.Errorf("wrong JSON type at offset %d", typeErr.Offset)
	case errors.As(err, &tooLargeErr):
		return fmt.Errorf("body exceeds %d bytes", tooLargeErr.Limit)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return fmt.Errorf("unknown key %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
	default:
		return err
	}
}

// GetCode maps a service error to an HTTP status.
func GetCode(err error) int {
	switch {
	case IsOneOf(err, t.ErrUnknownCommand, t.ErrMalformedMessage):
		return http.StatusBadRequest
	case IsOneOf(err, t.ErrNotFound):
		return http.StatusNotFound
	case IsOneOf(err, t.ErrArbiterStopped, t.ErrSurfaceQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func IsOneOf(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
