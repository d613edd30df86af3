// Package account keeps the device's login session in step with the backend.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/famlingo/internal/model"
)

// Backend is the subset of the backend client the session needs.
type Backend interface {
	Login(ctx context.Context, email, password string) (*model.Session, error)
	Register(ctx context.Context, email, password string) (*model.Session, error)
	CurrentAccount(ctx context.Context) (*model.Account, error)
}

// SessionStore persists the login.
type SessionStore interface {
	Session() (*model.Session, error)
	SetSession(model.Session) error
	ClearSession() error
}

// FamilyResetter forgets the local family on logout.
type FamilyResetter interface {
	Reset() error
}

type Service struct {
	backend Backend
	store   SessionStore
	family  FamilyResetter
	logger  *slog.Logger
}

func NewService(backend Backend, store SessionStore, family FamilyResetter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend: backend,
		store:   store,
		family:  family,
		logger:  logger.With("component", "account"),
	}
}

func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, error) {
	sess, err := s.backend.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetSession(*sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.logger.Info("logged in", "email", sess.Email)
	return sess, nil
}

func (s *Service) Register(ctx context.Context, email, password string) (*model.Session, error) {
	sess, err := s.backend.Register(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetSession(*sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.logger.Info("registered", "email", sess.Email)
	return sess, nil
}

// Logout clears the session together with the local family and current user.
func (s *Service) Logout() error {
	if err := s.store.ClearSession(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if err := s.family.Reset(); err != nil {
		return fmt.Errorf("clear family: %w", err)
	}
	s.logger.Info("logged out")
	return nil
}

// Invalidate logs the device out after the backend rejected its token. It
// is a no-op when no session is stored, so repeated rejections from
// concurrent calls only log out once.
func (s *Service) Invalidate() {
	if err := s.invalidate(); err != nil {
		s.logger.Error("log out rejected session", "error", err)
	}
}

func (s *Service) invalidate() error {
	sess, err := s.store.Session()
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	if sess == nil {
		return nil
	}
	s.logger.Warn("session rejected, logging out", "email", sess.Email)
	return s.Logout()
}

// Session returns the persisted login, or nil.
func (s *Service) Session() (*model.Session, error) {
	return s.store.Session()
}

// CurrentAccount verifies the token with the backend. A rejected token logs
// the device out and yields nil. Other failures also yield nil so a device
// that cannot reach the backend keeps working offline.
func (s *Service) CurrentAccount(ctx context.Context) (*model.Account, error) {
	acc, err := s.backend.CurrentAccount(ctx)
	if errors.Is(err, model.ErrUnauthorized) {
		if err := s.invalidate(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err != nil {
		s.logger.Warn("verify session failed", "error", err)
		return nil, nil
	}
	return acc, nil
}
