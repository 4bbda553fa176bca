package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/MrEthical07/authcore/permission"
)

// Server holds the handlers. Build one with New and mount Routes.
type Server struct {
	engine *authcore.Engine
	logger *zap.Logger
}

func New(engine *authcore.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{engine: engine, logger: logger.Named("http")}
}

// Routes returns the full API.
//
//	POST   /auth/register                register, sends a verification code
//	POST   /auth/register/resend         resend the verification code
//	POST   /auth/verify                  confirm the code, returns tokens
//	POST   /auth/login                   returns tokens
//	POST   /auth/refresh                 rotates the refresh token
//	POST   /auth/logout                  revokes one session
//	POST   /auth/password/forgot         sends a reset code
//	POST   /auth/password/reset          consumes the reset code
//	GET    /me                           own account
//	DELETE /me                           delete own account
//	POST   /me/password                  change password
//	GET    /me/sessions                  list sessions
//	POST   /me/logout-all                revoke every session
//	POST   /admin/accounts/{id}/block    Admin or Manager
//	POST   /admin/accounts/{id}/unblock  Admin or Manager
//	DELETE /admin/accounts/{id}          Admin or Manager
//	PUT    /admin/accounts/{id}/role     Manager only
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.ClientInfo)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.register)
		r.Post("/register/resend", s.resendVerification)
		r.Post("/verify", s.verify)
		r.Post("/login", s.login)
		r.Post("/refresh", s.refresh)
		r.Post("/logout", s.logout)
		r.Post("/password/forgot", s.forgotPassword)
		r.Post("/password/reset", s.resetPassword)
	})

	r.Route("/me", func(r chi.Router) {
		r.Use(middleware.RequireAuthenticated(s.engine))
		r.Get("/", s.me)
		r.Delete("/", s.deleteMe)
		r.Post("/password", s.changePassword)
		r.Get("/sessions", s.sessions)
		r.Post("/logout-all", s.logoutAll)
	})

	r.Route("/admin/accounts/{id}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(s.engine, permission.RoleAdmin))
			r.Post("/block", s.block)
			r.Post("/unblock", s.unblock)
			r.Delete("/", s.deleteAccount)
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireOneOf(s.engine, permission.RoleManager))
			r.Put("/role", s.changeRole)
		})
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}
