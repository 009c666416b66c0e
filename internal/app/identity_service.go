package app

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/pkg/errors"

	"quiz-platform/internal/domain"
)

// IdentityConfig tunes account security.
type IdentityConfig struct {
	BcryptCost      int
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Username  string `json:"username" validate:"required,username"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	FirstName string `json:"first_name" validate:"max=50"`
	LastName  string `json:"last_name" validate:"max=50"`
}

// LoginInput accepts an email or a username as login.
type LoginInput struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type ProfileInput struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=50"`
	LastName  *string `json:"last_name" validate:"omitempty,max=50"`
	Bio       *string `json:"bio" validate:"omitempty,max=500"`
}

type PasswordChangeInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

type PasswordResetInput struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

// AccessInput is an admin change to a user's role or active flag.
type AccessInput struct {
	Role     *domain.Role `json:"role" validate:"omitempty,oneof=student instructor admin"`
	IsActive *bool        `json:"is_active"`
}

// IdentityService handles accounts, credentials and roles.
type IdentityService struct {
	users  UserRepository
	tokens TokenIssuer
	mail   Notifier
	cfg    IdentityConfig
	now    func() time.Time
	log    Logger
}

func NewIdentityService(users UserRepository, tokens TokenIssuer, mail Notifier, cfg IdentityConfig, log Logger) *IdentityService {
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = 24 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	return &IdentityService{users: users, tokens: tokens, mail: mail, cfg: cfg, now: time.Now, log: orNop(log)}
}

// Register creates a student account and sends the verification email.
func (s *IdentityService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.TrimSpace(in.Username)

	var fields domain.Fields
	taken, err := s.users.EmailTaken(ctx, email)
	if err != nil {
		return domain.User{}, errors.Wrap(err, "check email")
	}
	if taken {
		fields.Add("email", "email is already registered")
	}
	taken, err = s.users.UsernameTaken(ctx, username)
	if err != nil {
		return domain.User{}, errors.Wrap(err, "check username")
	}
	if taken {
		fields.Add("username", "username is already taken")
	}
	if err := fields.Err(); err != nil {
		return domain.User{}, err
	}

	now := s.now()
	u := domain.User{
		Email:     email,
		Username:  username,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Role:      domain.RoleStudent,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.SetPassword(in.Password, s.cfg.BcryptCost); err != nil {
		return domain.User{}, errors.Wrap(err, "hash password")
	}
	if err := s.users.CreateUser(ctx, &u); err != nil {
		return domain.User{}, errors.Wrap(err, "create user")
	}

	secret, err := s.issueToken(ctx, u.ID, domain.TokenEmailVerification, s.cfg.VerificationTTL)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.mail.VerificationEmail(ctx, u, secret); err != nil {
		s.log.Error("send verification email", "user", u.ID, "err", err)
	}
	return u, nil
}

// Login checks credentials and issues a token pair.
func (s *IdentityService) Login(ctx context.Context, in LoginInput) (domain.User, TokenPair, error) {
	u, err := s.users.UserByLogin(ctx, strings.TrimSpace(in.Login))
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, TokenPair{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, TokenPair{}, errors.Wrap(err, "find user")
	}
	if u.CheckPassword(in.Password) != nil {
		return domain.User{}, TokenPair{}, domain.ErrInvalidCredentials
	}
	if !u.IsActive {
		return domain.User{}, TokenPair{}, domain.ErrAccountInactive
	}

	pair, err := s.tokens.Issue(u)
	if err != nil {
		return domain.User{}, TokenPair{}, errors.Wrap(err, "issue tokens")
	}
	u.LastLoginAt = ptrTime(s.now())
	if err := s.users.UpdateUser(ctx, &u); err != nil {
		s.log.Warn("stamp last login", "user", u.ID, "err", err)
	}
	return u, pair, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (s *IdentityService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	userID, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, domain.ErrInvalidToken
	}
	u, err := s.users.UserByID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return TokenPair{}, domain.ErrInvalidToken
	}
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "find user")
	}
	if !u.IsActive {
		return TokenPair{}, domain.ErrAccountInactive
	}
	pair, err := s.tokens.Issue(u)
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "issue tokens")
	}
	return pair, nil
}

// VerifyEmail consumes a verification token.
func (s *IdentityService) VerifyEmail(ctx context.Context, token string) (domain.User, error) {
	tok, err := s.consumeToken(ctx, domain.TokenEmailVerification, token)
	if err != nil {
		return domain.User{}, err
	}
	u, err := s.users.UserByID(ctx, tok.UserID)
	if err != nil {
		return domain.User{}, errors.Wrap(err, "find user")
	}
	u.IsEmailVerified = true
	u.UpdatedAt = s.now()
	if err := s.users.UpdateUser(ctx, &u); err != nil {
		return domain.User{}, errors.Wrap(err, "update user")
	}
	return u, nil
}

// RequestPasswordReset sends a reset link when the email exists. It never reports whether it does.
func (s *IdentityService) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.users.UserByLogin(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "find user")
	}
	if !u.IsActive {
		return nil
	}
	secret, err := s.issueToken(ctx, u.ID, domain.TokenPasswordReset, s.cfg.ResetTTL)
	if err != nil {
		return err
	}
	if err := s.mail.PasswordResetEmail(ctx, u, secret); err != nil {
		s.log.Error("send password reset email", "user", u.ID, "err", err)
	}
	return nil
}

// ResetPassword consumes a reset token and sets the new password.
func (s *IdentityService) ResetPassword(ctx context.Context, in PasswordResetInput) error {
	tok, err := s.consumeToken(ctx, domain.TokenPasswordReset, in.Token)
	if err != nil {
		return err
	}
	u, err := s.users.UserByID(ctx, tok.UserID)
	if err != nil {
		return errors.Wrap(err, "find user")
	}
	if err := u.SetPassword(in.NewPassword, s.cfg.BcryptCost); err != nil {
		return errors.Wrap(err, "hash password")
	}
	u.UpdatedAt = s.now()
	return errors.Wrap(s.users.UpdateUser(ctx, &u), "update user")
}

// ChangePassword requires the current password.
func (s *IdentityService) ChangePassword(ctx context.Context, actor Actor, in PasswordChangeInput) error {
	u, err := s.users.UserByID(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if u.CheckPassword(in.CurrentPassword) != nil {
		return domain.FieldValidationError("current_password", "current password is incorrect")
	}
	if err := u.SetPassword(in.NewPassword, s.cfg.BcryptCost); err != nil {
		return errors.Wrap(err, "hash password")
	}
	u.UpdatedAt = s.now()
	return errors.Wrap(s.users.UpdateUser(ctx, &u), "update user")
}

func (s *IdentityService) Me(ctx context.Context, actor Actor) (domain.User, error) {
	return s.users.UserByID(ctx, actor.UserID)
}

func (s *IdentityService) UpdateProfile(ctx context.Context, actor Actor, in ProfileInput) (domain.User, error) {
	u, err := s.users.UserByID(ctx, actor.UserID)
	if err != nil {
		return domain.User{}, err
	}
	if in.FirstName != nil {
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		u.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Bio != nil {
		u.Bio = strings.TrimSpace(*in.Bio)
	}
	u.UpdatedAt = s.now()
	if err := s.users.UpdateUser(ctx, &u); err != nil {
		return domain.User{}, errors.Wrap(err, "update user")
	}
	return u, nil
}

// ListUsers is admin only.
func (s *IdentityService) ListUsers(ctx context.Context, actor Actor, p domain.Page) ([]domain.User, domain.Meta, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, domain.Meta{}, err
	}
	users, total, err := s.users.ListUsers(ctx, p.Normalize())
	if err != nil {
		return nil, domain.Meta{}, errors.Wrap(err, "list users")
	}
	return users, domain.BuildMeta(p, total), nil
}

// UpdateAccess changes a user's role or active flag. Admins cannot demote or deactivate themselves.
func (s *IdentityService) UpdateAccess(ctx context.Context, actor Actor, userID int64, in AccessInput) (domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.User{}, err
	}
	u, err := s.users.UserByID(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return domain.User{}, domain.FieldValidationError("role", "role must be one of student, instructor, admin")
		}
		if userID == actor.UserID && *in.Role != domain.RoleAdmin {
			return domain.User{}, domain.FieldValidationError("role", "admins cannot demote themselves")
		}
		u.Role = *in.Role
	}
	if in.IsActive != nil {
		if userID == actor.UserID && !*in.IsActive {
			return domain.User{}, domain.FieldValidationError("is_active", "admins cannot deactivate themselves")
		}
		u.IsActive = *in.IsActive
	}
	u.UpdatedAt = s.now()
	if err := s.users.UpdateUser(ctx, &u); err != nil {
		return domain.User{}, errors.Wrap(err, "update user")
	}
	return u, nil
}

// EnsureAdmin creates an admin account, or promotes and re-passwords an existing one with the same email.
func (s *IdentityService) EnsureAdmin(ctx context.Context, email, username, password string) (domain.User, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	now := s.now()

	u, err := s.users.UserByLogin(ctx, email)
	switch {
	case err == nil:
		u.Role = domain.RoleAdmin
		u.IsActive = true
		u.UpdatedAt = now
		if password != "" {
			if err := u.SetPassword(password, s.cfg.BcryptCost); err != nil {
				return domain.User{}, false, errors.Wrap(err, "hash password")
			}
		}
		return u, false, errors.Wrap(s.users.UpdateUser(ctx, &u), "promote user")
	case !errors.Is(err, domain.ErrUserNotFound):
		return domain.User{}, false, errors.Wrap(err, "find user")
	}

	u = domain.User{
		Email:           email,
		Username:        username,
		Role:            domain.RoleAdmin,
		IsActive:        true,
		IsEmailVerified: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := u.SetPassword(password, s.cfg.BcryptCost); err != nil {
		return domain.User{}, false, errors.Wrap(err, "hash password")
	}
	if err := s.users.CreateUser(ctx, &u); err != nil {
		return domain.User{}, false, errors.Wrap(err, "create admin")
	}
	return u, true, nil
}

func (s *IdentityService) issueToken(ctx context.Context, userID int64, purpose domain.TokenPurpose, ttl time.Duration) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "generate token")
	}
	secret := hex.EncodeToString(buf)
	now := s.now()
	tok := domain.UserToken{
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: hashToken(secret),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.users.SaveToken(ctx, &tok); err != nil {
		return "", errors.Wrap(err, "save token")
	}
	return secret, nil
}

func (s *IdentityService) consumeToken(ctx context.Context, purpose domain.TokenPurpose, secret string) (domain.UserToken, error) {
	tok, err := s.users.TokenByHash(ctx, purpose, hashToken(strings.TrimSpace(secret)))
	if errors.Is(err, domain.ErrInvalidToken) {
		return domain.UserToken{}, domain.FieldValidationError("token", domain.ErrInvalidToken.Error())
	}
	if err != nil {
		return domain.UserToken{}, errors.Wrap(err, "find token")
	}
	now := s.now()
	if !tok.Usable(now) {
		return domain.UserToken{}, domain.FieldValidationError("token", domain.ErrInvalidToken.Error())
	}
	if err := s.users.MarkTokenUsed(ctx, tok.ID, now); err != nil {
		return domain.UserToken{}, errors.Wrap(err, "consume token")
	}
	return tok, nil
}

func hashToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
