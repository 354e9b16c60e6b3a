package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapMatchesClassAndCause(t *testing.T) {
	cause := errors.New("purchase order not found")
	wrapped := Wrap(ErrNotFound, cause)

	require.True(t, errors.Is(wrapped, ErrNotFound))
	require.True(t, errors.Is(wrapped, cause))
	require.False(t, errors.Is(wrapped, ErrConflict))
	// The class never leaks into the rendered message.
	require.Equal(t, "purchase order not found", wrapped.Error())
}

func TestRespondErrorStatusByClass(t *testing.T) {
	cases := []struct {
		name   string
		class  error
		status int
		title  string
	}{
		{"not found", ErrNotFound, http.StatusNotFound, "Not Found"},
		{"duplicate", ErrDuplicate, http.StatusConflict, "Duplicate"},
		{"conflict", ErrConflict, http.StatusConflict, "Conflict"},
		{"inconsistent", ErrInconsistent, http.StatusConflict, "Inconsistent State"},
		{"unprocessable", ErrUnprocessable, http.StatusUnprocessableEntity, "Unprocessable"},
		{"validation", ErrValidation, http.StatusBadRequest, "Validation Failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, Wrap(tc.class, errors.New("domain detail")))

			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			var pd ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
			require.Equal(t, tc.title, pd.Title)
			require.Equal(t, tc.status, pd.Status)
			require.Equal(t, "domain detail", pd.Detail)
		})
	}
}

func TestRespondErrorUnclassifiedIsOpaque(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pgx: connection refused"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var pd ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
	require.Equal(t, "Internal Error", pd.Title)
	require.Empty(t, pd.Detail)
}
