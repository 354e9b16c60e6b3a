package httpx

import (
	"errors"
	"net/http"
)

// Shared HTTP error classes. Handlers wrap their domain sentinels into one of
// these with Wrap; RespondError picks the status from the class while the
// domain message stays in the problem detail.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrDuplicate     = errors.New("duplicate request")
	ErrValidation    = errors.New("validation failed")
	ErrUnprocessable = errors.New("unprocessable input")
	ErrConflict      = errors.New("state conflict")
	ErrInconsistent  = errors.New("inconsistent state")
)

// Wrap ties err to one of the shared error classes. The returned error
// matches both the class and err under errors.Is, but its message is err's
// alone, so the rendered detail reads as the domain error.
func Wrap(class, err error) error {
	return classified{class: class, err: err}
}

type classified struct {
	class error
	err   error
}

func (c classified) Error() string { return c.err.Error() }

func (c classified) Unwrap() []error { return []error{c.class, c.err} }

// RespondError renders a classified error as its problem document. Errors
// carrying no class fall through to a 500 with no internal detail.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInconsistent):
		Problem(w, http.StatusConflict, "Inconsistent State", err.Error())
	case errors.Is(err, ErrUnprocessable):
		Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
