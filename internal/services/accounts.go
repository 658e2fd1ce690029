package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"newsdesk/internal/apperr"
	"newsdesk/internal/auth"
	"newsdesk/internal/clock"
	"newsdesk/internal/model"
	"newsdesk/internal/store"

	"go.uber.org/zap"
)

// EmailNormalization controls how emails are compared for uniqueness and login.
type EmailNormalization string

const (
	// NormalizeLower trims and lower-cases.
	NormalizeLower EmailNormalization = "lower"
	// NormalizeExact only trims.
	NormalizeExact EmailNormalization = "exact"
)

func (n EmailNormalization) apply(email string) string {
	email = strings.TrimSpace(email)
	if n == NormalizeExact {
		return email
	}
	return strings.ToLower(email)
}

const msgBadCredentials = "invalid email or password"

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

type AccountService struct {
	store  store.AccountStore
	hasher *auth.Hasher
	tokens *auth.Tokens
	norm   EmailNormalization
	clock  clock.Clock
	logger *zap.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewAccountService(st store.AccountStore, hasher *auth.Hasher, tokens *auth.Tokens, norm EmailNormalization, clk clock.Clock, logger *zap.Logger) *AccountService {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if norm == "" {
		norm = NormalizeLower
	}
	return &AccountService{
		store:  st,
		hasher: hasher,
		tokens: tokens,
		norm:   norm,
		clock:  clk,
		logger: logger.Named("accounts"),
	}
}

func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*model.Account, error) {
	email := s.norm.apply(in.Email)
	if email == "" || in.Password == "" {
		return nil, apperr.Validation("email and password are required")
	}
	if at := strings.IndexByte(email, '@'); at <= 0 || at == len(email)-1 {
		return nil, apperr.Validation("email is not valid")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperr.Validation("password must be at most 72 bytes")
		}
		return nil, apperr.Internal(err)
	}

	acc := &model.Account{
		ID:           model.NewAccountID(),
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.store.CreateAccount(ctx, acc); err != nil {
		return nil, translate(err)
	}

	s.logger.Info("Account registered", zap.String("account_id", acc.ID.String()))
	return acc, nil
}

// Login returns a bearer token. Unknown emails and wrong passwords fail the
// same way, and both pay for a bcrypt comparison.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, error) {
	email = s.norm.apply(email)
	if email == "" || password == "" {
		return "", apperr.Validation("email and password are required")
	}

	acc, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			_ = s.hasher.Compare(s.dummy(), password)
			return "", apperr.Unauthenticated(msgBadCredentials)
		}
		return "", apperr.Internal(err)
	}

	if err := s.hasher.Compare(acc.PasswordHash, password); err != nil {
		return "", apperr.Unauthenticated(msgBadCredentials)
	}

	token, err := s.tokens.Issue(acc.ID)
	if err != nil {
		return "", apperr.Internal(err)
	}
	return token, nil
}

func (s *AccountService) Current(ctx context.Context, id model.AccountID) (*model.Account, error) {
	acc, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return acc, nil
}

// Authenticate resolves a bearer token to the caller's id.
func (s *AccountService) Authenticate(token string) (model.AccountID, error) {
	if token == "" {
		return model.AccountID{}, apperr.Unauthenticated("authentication required")
	}
	id, err := s.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return model.AccountID{}, apperr.Unauthenticated("token expired")
		}
		return model.AccountID{}, apperr.Unauthenticated("invalid token")
	}
	return id, nil
}

func (s *AccountService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("newsdesk-timing-equaliser")
		if err != nil {
			s.logger.Warn("Could not build dummy hash", zap.Error(err))
		}
		s.dummyHash = h
	})
	return s.dummyHash
}
