package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/openingdrill/internal/session"
	"github.com/conorfennell/openingdrill/internal/storage"
)

// errInvalidInput marks request problems the client can fix.
var errInvalidInput = errors.New("invalid input")

type errorBody struct {
	Error  string       `json:"error"`
	Fields []fieldError `json:"fields,omitempty"`
}

type fieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. An empty body is
// accepted when optional is set.
func (s *Server) decode(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			return fmt.Errorf("%w: malformed JSON body: %v", errInvalidInput, err)
		}
	}
	return s.validate.Struct(dst)
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Error encoding JSON response", "error", err)
	}
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, errorBody{Error: msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs), errors.Is(err, errInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, session.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionDone),
		errors.Is(err, session.ErrAttemptFinished),
		errors.Is(err, session.ErrAttemptInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes err as a JSON error. Unexpected errors are logged and
// hidden from the client.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "user_id", userID(r.Context()), "error", err)
		respondError(w, code, "internal server error")
		return
	}

	body := errorBody{Error: err.Error()}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		body.Error = "validation failed"
		for _, fe := range verrs {
			body.Fields = append(body.Fields, fieldError{Field: fe.Field(), Tag: fe.Tag()})
		}
	}
	respondJSON(w, code, body)
}
