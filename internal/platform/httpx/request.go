package httpx

import (
	"net/http"
	"strconv"
)

// ActorID extracts the acting user from the X-Actor-ID header. Zero when
// absent; authz is enforced upstream of this service.
func ActorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}

// QueryInt reads an integer query parameter with a fallback.
func QueryInt(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
