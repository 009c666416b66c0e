package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

var errWrongKind = errors.New("unexpected token kind")

// Config holds the signing secret and token lifetimes.
type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.RegisteredClaims
	Role domain.Role `json:"role,omitempty"`
	Kind string      `json:"kind"`
}

// UserID returns the numeric subject.
func (c Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// Manager signs and parses HS256 access and refresh tokens.
type Manager struct {
	key  []byte
	conf Config
	now  func() time.Time
}

var _ app.TokenIssuer = (*Manager)(nil)

func NewManager(conf Config) (*Manager, error) {
	if conf.Secret == "" {
		return nil, errors.New("jwt secret not configured")
	}
	if conf.AccessTTL <= 0 {
		conf.AccessTTL = 15 * time.Minute
	}
	if conf.RefreshTTL <= 0 {
		conf.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Manager{key: []byte(conf.Secret), conf: conf, now: time.Now}, nil
}

func (m *Manager) Issue(u domain.User) (app.TokenPair, error) {
	now := m.now()
	exp := now.Add(m.conf.AccessTTL)

	access, err := m.sign(m.claims(u, kindAccess, now, exp))
	if err != nil {
		return app.TokenPair{}, errors.Wrap(err, "signing access token")
	}
	refresh, err := m.sign(m.claims(u, kindRefresh, now, now.Add(m.conf.RefreshTTL)))
	if err != nil {
		return app.TokenPair{}, errors.Wrap(err, "signing refresh token")
	}
	return app.TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp}, nil
}

// Parse validates an access token.
func (m *Manager) Parse(token string) (Claims, error) {
	return m.parse(token, kindAccess)
}

func (m *Manager) ParseRefresh(token string) (int64, error) {
	claims, err := m.parse(token, kindRefresh)
	if err != nil {
		return 0, err
	}
	return claims.UserID()
}

func (m *Manager) claims(u domain.User, kind string, iat, exp time.Time) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.conf.Issuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: u.Role,
		Kind: kind,
	}
}

func (m *Manager) sign(c *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.key)
}

func (m *Manager) parse(token, kind string) (Claims, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return m.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}
	if !tok.Valid {
		return Claims{}, domain.ErrInvalidToken
	}
	if claims.Kind != kind {
		return Claims{}, errWrongKind
	}
	if _, err := claims.UserID(); err != nil {
		return Claims{}, fmt.Errorf("parse subject: %w", err)
	}
	return claims, nil
}
