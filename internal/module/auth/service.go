package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/simp-lee/jwt"

	"github.com/simp-lee/practiceadmin/internal/domain"
)

// Service signs staff in and out and verifies their session tokens. As an
// AccountListener it drops the cached role of a changed account and ends the
// sessions of a deleted one.
type Service interface {
	domain.AccountListener
	Login(ctx context.Context, email, password string) (*TokenResponse, error)
	Verify(ctx context.Context, token string) (*domain.Principal, error)
	// Logout revokes token so it no longer verifies.
	Logout(token string) error
}

type authService struct {
	jwtSvc      jwt.Service
	repo        domain.StaffRepository
	principals  *PrincipalCache
	tokenExpiry time.Duration
}

// NewService creates an auth Service. principals may be nil to read the
// account on every verification.
func NewService(jwtSvc jwt.Service, repo domain.StaffRepository, principals *PrincipalCache, tokenExpiry time.Duration) Service {
	return &authService{
		jwtSvc:      jwtSvc,
		repo:        repo,
		principals:  principals,
		tokenExpiry: tokenExpiry,
	}
}

// Login checks the credentials and returns a signed session token.
func (s *authService) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		// Unknown accounts and wrong passwords are indistinguishable to the caller.
		if domain.IsNotFound(err) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrUnauthorized
	}

	p := principalOf(account)
	token, err := s.jwtSvc.GenerateToken(p.Subject(), []string{string(p.Role)}, s.tokenExpiry)
	if err != nil {
		return nil, domain.NewAppError(domain.CodeInternal, "failed to generate token", err)
	}

	parsed, err := s.jwtSvc.ParseToken(token)
	if err != nil {
		return nil, domain.NewAppError(domain.CodeInternal, "failed to parse generated token", err)
	}
	s.principals.put(p)

	return &TokenResponse{Token: token, ExpiresAt: parsed.ExpiresAt.Unix()}, nil
}

// Verify validates a session token and returns the principal it names. The
// role comes from the account, not the token, so role changes apply to
// sessions already signed in.
func (s *authService) Verify(ctx context.Context, token string) (*domain.Principal, error) {
	parsed, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpiredToken) {
			return nil, domain.NewAppError(domain.CodeUnauthorized, "session expired", err)
		}
		return nil, domain.NewAppError(domain.CodeUnauthorized, "invalid session token", err)
	}

	id, err := strconv.ParseUint(parsed.UserID, 10, 64)
	if err != nil || id == 0 {
		return nil, domain.NewAppError(domain.CodeUnauthorized, "invalid session token", fmt.Errorf("subject %q", parsed.UserID))
	}

	if p, ok := s.principals.get(uint(id)); ok {
		return p, nil
	}

	account, err := s.repo.GetByID(ctx, uint(id))
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewAppError(domain.CodeUnauthorized, "account no longer exists", err)
		}
		return nil, err
	}
	if !account.Role.Valid() {
		return nil, domain.NewAppError(domain.CodeUnauthorized, "invalid session token", fmt.Errorf("role %q", account.Role))
	}

	p := principalOf(account)
	s.principals.put(p)
	return p, nil
}

// Logout revokes token. Tokens that no longer parse are already useless and
// are not an error.
func (s *authService) Logout(token string) error {
	if token == "" {
		return nil
	}
	if err := s.jwtSvc.RevokeToken(token); err != nil && !errors.Is(err, jwt.ErrInvalidToken) {
		return fmt.Errorf("revoke session token: %w", err)
	}
	return nil
}

// AccountUpdated drops the cached principal so the next request rereads it.
func (s *authService) AccountUpdated(_ context.Context, id uint) {
	s.principals.Forget(id)
}

// AccountDeleted ends every session of the account.
func (s *authService) AccountDeleted(ctx context.Context, id uint) {
	s.principals.Forget(id)
	subject := strconv.FormatUint(uint64(id), 10)
	if err := s.jwtSvc.RevokeAllUserTokens(subject); err != nil {
		slog.WarnContext(ctx, "revoke sessions of deleted account",
			slog.Uint64("staff_id", uint64(id)), slog.Any("error", err))
	}
}

func principalOf(account *domain.Staff) *domain.Principal {
	return &domain.Principal{
		StaffID: account.ID,
		Email:   account.Email,
		Name:    account.Name,
		Role:    account.Role,
	}
}
