package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/ignite/creatorhub/internal/pkg/httputil"
)

// Headers set by the upstream auth gateway after it has authenticated the
// caller. This service never issues or checks credentials itself.
const (
	HeaderBrandID = "X-Brand-ID"
	HeaderUserID  = "X-User-ID"
)

type identityKey struct{}

// Identity is the authenticated brand and acting user of a request.
type Identity struct {
	BrandID string
	UserID  string
}

// RequireBrand rejects requests without a brand id and stores the caller's
// Identity on the context. A missing user id falls back to the brand id so
// audit rows always have an actor.
func RequireBrand(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		brandID := strings.TrimSpace(r.Header.Get(HeaderBrandID))
		if brandID == "" {
			httputil.JSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
				Error: "missing " + HeaderBrandID + " header",
				Code:  "brand_required",
			})
			return
		}
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			userID = brandID
		}
		ctx := context.WithValue(r.Context(), identityKey{}, Identity{BrandID: brandID, UserID: userID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFrom returns the identity stored by RequireBrand.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func identity(r *http.Request) Identity {
	id, _ := IdentityFrom(r.Context())
	return id
}
