package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"contractit/logger"
	"contractit/models"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type contextKey string

const UserContextKey contextKey = "user"

const TokenCookie = "token"

type Claims struct {
	UserID   uint           `json:"user_id"`
	Username string         `json:"username"`
	Roles    models.RoleSet `json:"roles"`
	jwt.RegisteredClaims
}

// Authenticator issues and checks session tokens.
type Authenticator struct {
	db         *gorm.DB
	secret     []byte
	expiration time.Duration
}

func NewAuthenticator(db *gorm.DB, secret string, expiration time.Duration) *Authenticator {
	return &Authenticator{db: db, secret: []byte(secret), expiration: expiration}
}

func (a *Authenticator) Expiration() time.Duration {
	return a.expiration
}

func (a *Authenticator) GenerateToken(user *models.User) (string, error) {
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Roles:    user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}

// SetSessionCookie stores token in the HttpOnly session cookie.
func (a *Authenticator) SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.expiration.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

func (a *Authenticator) resolve(r *http.Request, tokenString string) (*http.Request, bool) {
	claims, err := a.ValidateToken(tokenString)
	if err != nil {
		return r, false
	}

	// Roles are read from the database, not trusted from the token.
	var user models.User
	if err := a.db.WithContext(r.Context()).First(&user, claims.UserID).Error; err != nil {
		return r, false
	}

	ctx := context.WithValue(r.Context(), UserContextKey, &user)
	l := logger.FromContext(ctx, nil).With(zap.Uint("user_id", user.ID))
	ctx = logger.WithContext(ctx, l)
	return r.WithContext(ctx), true
}

// AuthMiddleware protects HTML pages. It reads the session cookie, falling
// back to a bearer token, and redirects to the login page when neither is
// valid.
func (a *Authenticator) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Try to get token from cookie first
		var tokenString string
		cookie, err := r.Cookie(TokenCookie)
		if err == nil {
			tokenString = cookie.Value
		}
		if tokenString == "" {
			tokenString = BearerToken(r)
		}

		if tokenString == "" {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		authed, ok := a.resolve(r, tokenString)
		if !ok {
			ClearSessionCookie(w)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, authed)
	})
}

// APIAuth protects JSON endpoints with a bearer token.
func (a *Authenticator) APIAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := BearerToken(r)
		if tokenString == "" {
			writeJSONError(w, http.StatusUnauthorized, "Authentication credentials were not provided")
			return
		}
		authed, ok := a.resolve(r, tokenString)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, authed)
	})
}

// RequireRole lets the request through when the user holds any of roles.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r.Context())
			if user == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if user.HasAnyRole(roles...) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}
}

// RequireAPIRole is RequireRole with JSON error bodies.
func RequireAPIRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r.Context())
			if user == nil {
				writeJSONError(w, http.StatusUnauthorized, "Authentication credentials were not provided")
				return
			}
			if user.HasAnyRole(roles...) {
				next.ServeHTTP(w, r)
				return
			}
			writeJSONError(w, http.StatusForbidden, "You do not have permission to perform this action")
		})
	}
}

func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
