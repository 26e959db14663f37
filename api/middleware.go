package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/crudexec/construction-sub006/ledger"
	"github.com/crudexec/construction-sub006/logging"
)

// Headers carrying the pre-authenticated caller.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type actorKey struct{}

// accessLog puts a request-scoped logger into the context and writes one
// line per request once the handler returns.
func accessLog(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			l := base.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			r = r.WithContext(logging.WithContext(r.Context(), l))

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				ev := l.Info()
				if status >= http.StatusInternalServerError {
					ev = l.Error()
				}
				ev.Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// requireActor rejects requests without tenant and user headers and
// stores the resulting ledger.Actor in the context.
func requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := r.Header.Get(HeaderTenantID)
		user := r.Header.Get(HeaderUserID)
		if tenant == "" || user == "" {
			writeError(w, http.StatusUnauthorized, "missing "+HeaderTenantID+" or "+HeaderUserID+" header", nil)
			return
		}
		role := ledger.Role(r.Header.Get(HeaderUserRole))
		if role == "" {
			role = ledger.RoleMember
		}
		actor := ledger.Actor{TenantID: ledger.TenantID(tenant), UserID: ledger.UserID(user), Role: role}

		l := logging.FromContext(r.Context()).With().
			Str("tenant_id", tenant).
			Str("actor_id", user).
			Logger()
		ctx := context.WithValue(r.Context(), actorKey{}, actor)
		next.ServeHTTP(w, r.WithContext(logging.WithContext(ctx, l)))
	})
}

// actorFrom returns the actor stored by requireActor.
func actorFrom(r *http.Request) ledger.Actor {
	a, _ := r.Context().Value(actorKey{}).(ledger.Actor)
	return a
}
