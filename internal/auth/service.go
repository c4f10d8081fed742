package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abduss/clientdrop/internal/config"
	"github.com/abduss/clientdrop/internal/metrics"
	"github.com/abduss/clientdrop/internal/token"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const maxPasswordLength = 72 // bcrypt limit

// accountStore abstracts the persistence layer.
type accountStore interface {
	CreateAccount(ctx context.Context, code, name, passwordHash string) (Account, error)
	FindAccountByCode(ctx context.Context, code string) (Account, error)
}

// sessionIssuer signs and verifies session tokens.
type sessionIssuer interface {
	IssueSession(subject token.SessionSubject) (string, time.Time, error)
	VerifySession(tokenString string) (token.SessionClaims, error)
}

// Service encapsulates authentication use cases.
type Service struct {
	store  accountStore
	issuer sessionIssuer
	cfg    config.AuthConfig
	log    *zap.Logger
}

// NewService creates a Service with dependencies.
func NewService(store accountStore, issuer sessionIssuer, cfg config.AuthConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, issuer: issuer, cfg: cfg, log: log}
}

// LoginInput carries login credentials.
type LoginInput struct {
	Code     string
	Password string
}

// LoginResult contains the account and its session token.
type LoginResult struct {
	Account   Account
	Token     string
	ExpiresAt time.Time
}

// Login authenticates credentials and issues a session token.
func (s *Service) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	code := strings.TrimSpace(input.Code)
	if code == "" || input.Password == "" || len(input.Password) > maxPasswordLength {
		return LoginResult{}, ErrInvalidCredentials
	}

	account, err := s.store.FindAccountByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("find account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(input.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	signed, expiresAt, err := s.issuer.IssueSession(token.SessionSubject{
		AccountID: account.ID,
		Code:      account.Code,
		Name:      account.Name,
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue session: %w", err)
	}

	return LoginResult{Account: account.SafeAccount(), Token: signed, ExpiresAt: expiresAt}, nil
}

// ValidateSession verifies a session token and returns its claims.
func (s *Service) ValidateSession(tokenString string) (token.SessionClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return token.SessionClaims{}, ErrUnauthorized
	}

	claims, err := s.issuer.VerifySession(tokenString)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, token.ErrExpiredCredential) {
			reason = "expired"
		}
		metrics.TokenRejected("session", reason)
		return token.SessionClaims{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return claims, nil
}

// SeedAccounts provisions the given accounts, skipping codes that already
// exist. It returns the number of accounts created.
func (s *Service) SeedAccounts(ctx context.Context, accounts []SeedAccount) (int, error) {
	created := 0
	for _, seed := range accounts {
		if _, err := s.store.FindAccountByCode(ctx, seed.Code); err == nil {
			continue
		} else if !errors.Is(err, ErrAccountNotFound) {
			return created, fmt.Errorf("lookup %s: %w", seed.Code, err)
		}

		hash, err := hashPassword(seed.Password, s.cfg.BcryptCost)
		if err != nil {
			return created, fmt.Errorf("hash password for %s: %w", seed.Code, err)
		}

		if _, err := s.store.CreateAccount(ctx, seed.Code, seed.Name, hash); err != nil {
			if errors.Is(err, ErrAccountExists) {
				continue
			}
			return created, fmt.Errorf("create %s: %w", seed.Code, err)
		}
		created++
		s.log.Info("seeded account", zap.String("code", seed.Code))
	}
	return created, nil
}

func hashPassword(password string, cost int) (string, error) {
	if len(password) > maxPasswordLength {
		return "", fmt.Errorf("password exceeds maximum length of %d characters", maxPasswordLength)
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
