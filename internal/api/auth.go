package api

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/scheduling"
)

type contextKey string

const claimsKey contextKey = "claims"

// RequireToken rejects requests without a valid bearer token and stores the
// claims in the request context.
func RequireToken(auth *scheduling.Auth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			claims, err := auth.Verify(parts[1])
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}

// RequireRole must run after RequireToken.
func RequireRole(roles ...clinic.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := claimsFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "")
				return
			}
			if !slices.Contains(roles, claims.Role) {
				writeError(w, http.StatusForbidden, "forbidden", "role not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func claimsFrom(ctx context.Context) (*scheduling.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*scheduling.Claims)
	return c, ok
}

func loginHandler(auth *scheduling.Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
			return
		}

		token, role, err := auth.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, LoginResponse{Token: token, Role: role})
	}
}

func meHandler(auth *scheduling.Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		profile, err := auth.Me(r.Context(), userID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserProfile(*profile))
	}
}

func registerHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		in := scheduling.RegisterInput{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
			CPF:      req.CPF,
		}
		if req.BirthDate != "" {
			birth, err := time.ParseInLocation(clinic.DateLayout, req.BirthDate, time.UTC)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_birth_date", "birthDate must be YYYY-MM-DD")
				return
			}
			in.BirthDate = birth
		}

		patient, err := svc.RegisterPatient(r.Context(), in)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toPatient(*patient))
	}
}
