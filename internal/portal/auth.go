package portal

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/medlyapi"
	"github.com/medly/medly-portal/internal/session"
)

const (
	CookieName = "medly_session"

	msgInvalidLogin    = "E-mail ou senha inválidos."
	msgUnexpectedLogin = "Erro inesperado ao tentar fazer login."
)

type contextKey struct{}

// HomePath is where a role lands after login or when it strays into a page
// meant for another role.
func HomePath(role clinic.Role) string {
	switch role {
	case clinic.RoleAdmin:
		return "/admin"
	case clinic.RoleDoctor:
		return "/doctor"
	case clinic.RolePatient:
		return "/patient"
	}
	return "/"
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionView struct {
	Role    clinic.Role         `json:"role"`
	Name    string              `json:"name"`
	Profile *clinic.UserProfile `json:"profile,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON", nil)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required", nil)
		return
	}

	log := s.requestLogger(r)
	auth, err := s.cfg.API.Login(r.Context(), medlyapi.LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		log.Warn().Err(err).Msg("login")
		switch {
		case errors.Is(err, medlyapi.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "invalid_credentials", msgInvalidLogin, nil)
		case medlyapi.Message(err) != "":
			writeError(w, http.StatusBadRequest, "login_failed", medlyapi.Message(err), nil)
		default:
			writeError(w, http.StatusBadGateway, "login_failed", msgUnexpectedLogin, nil)
		}
		return
	}

	profile, err := s.cfg.API.WithToken(auth.Token).Me(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("load profile")
		writeError(w, http.StatusBadGateway, "login_failed", msgUnexpectedLogin, nil)
		return
	}

	sess := session.New(auth.Token, auth.Role, profile, s.now())
	if err := s.cfg.Sessions.Save(r.Context(), sess); err != nil {
		log.Error().Err(err).Msg("save session")
		writeError(w, http.StatusInternalServerError, "internal_error", "", nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	log.Info().Str("session_id", sess.ID).Str("role", string(sess.Role)).Msg("signed in")
	writeJSON(w, http.StatusOK, Envelope{
		Data:     sessionView{Role: sess.Role, Name: sess.Name(), Profile: sess.Profile},
		Redirect: HomePath(sess.Role),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	if err := s.cfg.Sessions.Delete(r.Context(), sess.ID); err != nil {
		log := s.requestLogger(r)
		log.Error().Err(err).Msg("delete session")
		writeError(w, http.StatusInternalServerError, "internal_error", "", nil)
		return
	}
	s.workspaces.drop(sess.ID)

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, Envelope{Redirect: "/"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)
	respond(w, http.StatusOK, sessionView{Role: sess.Role, Name: sess.Name(), Profile: sess.Profile}, ws)
}

// authenticate loads the session named by the cookie into the request
// context. Missing or expired sessions are sent back to the login page.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(CookieName)
		if err != nil || c.Value == "" {
			writeJSON(w, http.StatusUnauthorized, Envelope{Error: &ErrorBody{Code: "unauthenticated"}, Redirect: "/"})
			return
		}

		sess, err := s.cfg.Sessions.Get(r.Context(), c.Value)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				s.workspaces.drop(c.Value)
				writeJSON(w, http.StatusUnauthorized, Envelope{Error: &ErrorBody{Code: "unauthenticated"}, Redirect: "/"})
				return
			}
			log := s.requestLogger(r)
			log.Error().Err(err).Msg("load session")
			writeError(w, http.StatusInternalServerError, "internal_error", "", nil)
			return
		}

		ctx := session.NewContext(r.Context(), sess)
		ctx = context.WithValue(ctx, contextKey{}, s.workspaces.get(sess.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole lets only the given roles through and redirects everyone else
// to their own home.
func RequireRole(roles ...clinic.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := session.FromContext(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, Envelope{Error: &ErrorBody{Code: "unauthenticated"}, Redirect: "/"})
				return
			}
			for _, role := range roles {
				if sess.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSON(w, http.StatusForbidden, Envelope{Error: &ErrorBody{Code: "forbidden"}, Redirect: HomePath(sess.Role)})
		})
	}
}

// current returns the session and workspace loaded by authenticate.
func (s *Server) current(r *http.Request) (*session.Session, *workspace) {
	sess, _ := session.FromContext(r.Context())
	ws, _ := r.Context().Value(contextKey{}).(*workspace)
	return sess, ws
}
