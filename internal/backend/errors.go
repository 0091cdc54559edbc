package backend

import "errors"

var (
	// ErrAuthExpired means the credential is missing, expired or was refused
	// with 401. The caller has to send the user through login again.
	ErrAuthExpired = errors.New("authentication expired")
	// ErrUnavailable covers transport failures and 5xx responses.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrRejected is any other non-2xx response.
	ErrRejected = errors.New("backend rejected request")
)
