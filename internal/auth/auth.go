package auth

import (
	"net/http"
	"strings"
	"time"

	apperrors "github.com/bidlane/auction-server/pkg/errors"
	"github.com/charmbracelet/log"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleBuyer    = "buyer"
	RoleSupplier = "supplier"

	tokenTTL = 7 * 24 * time.Hour
)

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", apperrors.New(apperrors.ErrValidation, "empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to hash password")
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return apperrors.New(apperrors.ErrInvalidCredentials, "invalid credentials")
	}
	return nil
}

// IssueToken signs an HS256 session token for a buyer or supplier account.
func IssueToken(secret []byte, subject, email, role string) (string, error) {
	token := jwt.New()
	now := time.Now()

	token.Set(jwt.SubjectKey, subject)
	token.Set(jwt.IssuedAtKey, now)
	token.Set(jwt.ExpirationKey, now.Add(tokenTTL))
	token.Set("email", email)
	token.Set("role", role)

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), secret))
	if err != nil {
		return "", apperrors.Wrap(err, "failed to sign token")
	}
	return string(signed), nil
}

// Identity is what a validated token asserts about the caller.
type Identity struct {
	Subject string
	Email   string
	Role    string
}

// ParseToken verifies a signed token and extracts the caller identity.
func ParseToken(secret []byte, raw string) (Identity, error) {
	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256(), secret),
		jwt.WithValidate(true))
	if err != nil {
		log.Debug("Token validation failed", "error", err)
		return Identity{}, apperrors.New(apperrors.ErrInvalidToken, "invalid token")
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return Identity{}, apperrors.New(apperrors.ErrInvalidToken, "token has no subject")
	}

	var identity Identity
	identity.Subject = subject
	if err := token.Get("email", &identity.Email); err != nil {
		return Identity{}, apperrors.New(apperrors.ErrInvalidToken, "token has no email claim")
	}
	if err := token.Get("role", &identity.Role); err != nil {
		return Identity{}, apperrors.New(apperrors.ErrInvalidToken, "token has no role claim")
	}
	if identity.Role != RoleBuyer && identity.Role != RoleSupplier {
		return Identity{}, apperrors.New(apperrors.ErrInvalidToken, "unknown role")
	}
	return identity, nil
}

// TokenFromRequest pulls the raw token from the Authorization header, or from
// the token query parameter for websocket upgrades where headers are awkward
// to set from browsers.
func TokenFromRequest(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			return "", apperrors.New(apperrors.ErrInvalidToken, "malformed authorization header")
		}
		return raw, nil
	}
	if raw := r.URL.Query().Get("token"); raw != "" {
		return raw, nil
	}
	return "", apperrors.New(apperrors.ErrInvalidToken, "missing token")
}
