package auth

import (
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-accounts/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
)

// RequireBearer rejects requests without a valid bearer token and stores the
// verified subject in the request context.
func (s *Service) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		subject, err := s.Authenticate(r.Context(), raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithSubject(r.Context(), subject)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, raw, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}
