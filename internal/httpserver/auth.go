// internal/httpserver/auth.go
//
// Session tokens and admin access.
//
//   - POST /game/new signs an HS256 JWT whose "gid" claim names the game and
//     whose "cid" claim names the client that created it.
//   - Clients are identified by a long-lived anonymous cookie; it limits the
//     daily deal to one play per client per date.
//     The token travels as a bearer header, the session cookie, or (for
//     browser websockets, which cannot set headers) a ?token= query param.
//   - requireSession rejects any /game/{id} request whose token names a
//     different game, then loads the session into the request context.
//   - requireAdmin checks HTTP basic auth against a bcrypt hash from config.

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/robalobadob/concentration/internal/store"
)

const (
	cookieName       = "concentration_token"
	clientCookieName = "concentration_client"
	clientCookieTTL  = 365 * 24 * time.Hour
)

// sessionClaims binds a token to one game and the client that created it.
type sessionClaims struct {
	GameID   string `json:"gid"`
	ClientID string `json:"cid"`
	jwt.RegisteredClaims
}

// signSession creates a token for gameID valid for the session TTL.
func (s *Server) signSession(gameID, clientID string) (string, time.Time, error) {
	now := s.sched.Now()
	exp := now.Add(s.cfg.SessionTTL())
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		GameID:   gameID,
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   gameID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	ss, err := t.SignedString([]byte(s.cfg.JWTSecret))
	return ss, exp, err
}

// parseSession validates tok and returns its claims.
func (s *Server) parseSession(tok string) (sessionClaims, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.sched.Now),
	)
	if err != nil {
		return sessionClaims{}, err
	}
	if claims.GameID == "" {
		return sessionClaims{}, errors.New("token without game")
	}
	return claims, nil
}

// ensureClientID returns the caller's anonymous client ID, issuing a fresh
// cookie when there is none.
func (s *Server) ensureClientID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(clientCookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	secure := strings.HasPrefix(s.cfg.ClientOrigin, "https://")
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     clientCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		Expires:  s.sched.Now().Add(clientCookieTTL),
	})
	return id
}

// setSessionCookie writes the token cookie.
func (s *Server) setSessionCookie(w http.ResponseWriter, token string, exp time.Time) {
	secure := strings.HasPrefix(s.cfg.ClientOrigin, "https://")
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode // required for third-party contexts when Secure
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		Expires:  exp,
	})
}

// bearerOrCookie extracts a token from the Authorization header, the
// session cookie, or the token query parameter, in that order.
func bearerOrCookie(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

type ctxSessionKey struct{}

func sessionFrom(ctx context.Context) *store.Session {
	sess, _ := ctx.Value(ctxSessionKey{}).(*store.Session)
	return sess
}

// requireSession enforces a token for the {id} in the path and injects the
// live session into the request context.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerOrCookie(r)
		if tok == "" {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		claims, err := s.parseSession(tok)
		if err != nil {
			http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
			return
		}
		if claims.GameID != chi.URLParam(r, "id") {
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}
		sess, err := s.store.Get(r.Context(), claims.GameID)
		if err != nil {
			http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
			return
		}
		if claims.ClientID != sess.ClientID {
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}
		sess.Touch(s.sched.Now())
		ctx := context.WithValue(r.Context(), ctxSessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin guards maintenance routes with basic auth. Without a
// configured hash the routes are disabled.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminPasswordHash == "" {
			http.Error(w, `{"error":"admin_disabled"}`, http.StatusForbidden)
			return
		}
		user, pw, ok := r.BasicAuth()
		if !ok || user != "admin" || !checkPassword(s.cfg.AdminPasswordHash, pw) {
			w.Header().Set("WWW-Authenticate", `Basic realm="concentration"`)
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkPassword is a bcrypt verifier.
func checkPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
