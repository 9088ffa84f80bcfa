// Package respond writes JSON responses and decodes validated JSON requests.
// Every error body has the shape {"error":{"code":"...","message":"..."}}.
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/RayBen445/ChatBot/domain/failure"
	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes caps request bodies read by Decode.
const MaxBodyBytes = 1 << 20

// ErrorBody is the error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the payload of ErrorBody.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Error writes an error envelope.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// Failure maps a classified error to its status and writes it.
// Unclassified errors become 500 internal_error without leaking details.
func Failure(w http.ResponseWriter, err error) {
	kind := failure.KindOf(err)
	detail := ErrorDetail{
		Code:    string(kind),
		Message: failure.MessageOf(err),
	}
	var fe *failure.Error
	if errors.As(err, &fe) {
		detail.Retryable = fe.Retryable()
	}
	if kind == failure.KindInternal {
		detail.Code = "internal_error"
	}
	JSON(w, StatusFor(kind), ErrorBody{Error: detail})
}

// StatusFor returns the HTTP status for a failure kind.
func StatusFor(kind failure.Kind) int {
	switch kind {
	case failure.KindNotFound:
		return http.StatusNotFound
	case failure.KindUnauthorized:
		return http.StatusForbidden
	case failure.KindInvalidArgument:
		return http.StatusBadRequest
	case failure.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case failure.KindUpstreamGeneration:
		return http.StatusBadGateway
	case failure.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Validator checks decoded request structs against their `validate` tags.
// It is safe for concurrent use.
var Validator = validator.New(validator.WithRequiredStructEnabled())

// Decode reads a JSON body into v and validates it.
// Any problem is returned as an InvalidArgument failure.
func Decode(r *http.Request, v any) error {
	const op = "http.decode"
	if r.Body == nil {
		return failure.InvalidArgument(op, "request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return failure.InvalidArgument(op, "request body is required")
		}
		return failure.InvalidArgument(op, "invalid JSON body")
	}
	if err := Validator.Struct(v); err != nil {
		return failure.InvalidArgument(op, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
