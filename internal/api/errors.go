package api

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrUnauthenticated means no usable bearer credential is available.
	// Callers are expected to send the user to the login flow.
	ErrUnauthenticated = errors.New("api: not authenticated")

	// ErrMalformedResponse means the body did not have the expected shape.
	ErrMalformedResponse = errors.New("api: malformed response")
)

const genericFailure = "Impossible de joindre le service du calendrier"

// FetchError is a transport failure or a non-success HTTP status.
type FetchError struct {
	Status  int // 0 for transport errors
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return "api: " + e.Message + ": " + e.Err.Error()
	}
	return "api: " + e.Message
}

func (e *FetchError) Unwrap() error { return e.Err }

// Message returns the text to show in a toast for err.
func Message(err error) string {
	var fe *FetchError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return "Votre session a expiré, veuillez vous reconnecter"
	case errors.Is(err, ErrMalformedResponse):
		return "Le service du calendrier a renvoyé une réponse inattendue"
	case errors.As(err, &fe):
		return fe.Message
	default:
		return genericFailure
	}
}

// errorMessage extracts {message} or {error} from a JSON error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return genericFailure
	}
	if m := strings.TrimSpace(payload.Message); m != "" {
		return m
	}
	if m := strings.TrimSpace(payload.Error); m != "" {
		return m
	}
	return genericFailure
}
