// Package auth implements the authentication capability consumed by the
// sync engine: silent login from a stored refresh token, delegation of the
// interactive consent step, and token lifecycle. The browser-based
// authorization flow itself is an external collaborator injected as a
// callback.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/styrit/listsync/internal/credential"
	"github.com/styrit/listsync/internal/drive"
)

// interactiveTimeout bounds how long an interactive consent flow may take.
const interactiveTimeout = 2 * time.Minute

// TokenStore persists refresh tokens across runs.
type TokenStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// KeyringStore is the default TokenStore backed by the system keyring.
type KeyringStore struct{}

func (KeyringStore) Get(key string) (string, error) { return credential.Get(key) }
func (KeyringStore) Set(key, value string) error    { return credential.Set(key, value) }
func (KeyringStore) Delete(key string) error        { return credential.Delete(key) }

// InteractiveFlow runs the user-facing authorization and returns a fresh
// refresh token. Returning an empty token without error means the user
// cancelled.
type InteractiveFlow func(ctx context.Context) (refreshToken string, err error)

// Config identifies the OAuth endpoint of one provider.
type Config struct {
	ProviderID    string
	ClientID      string
	TokenEndpoint string
	Scopes        string
}

// Service implements drive.Auth for one provider.
type Service struct {
	cfg         Config
	httpClient  *http.Client
	store       TokenStore
	interactive InteractiveFlow
	logger      *zap.Logger

	mu          sync.Mutex
	accessToken string
	expiry      time.Time
	onLoggedIn  []func()
}

// New creates an auth service. interactive may be nil, in which case a
// non-silent login without a working refresh token reports not logged in.
func New(cfg Config, store TokenStore, interactive InteractiveFlow, logger *zap.Logger) *Service {
	if store == nil {
		store = KeyringStore{}
	}
	return &Service{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		store:       store,
		interactive: interactive,
		logger:      logger,
	}
}

// refreshTokenKey is the keyring key for this provider's refresh token.
func (s *Service) refreshTokenKey() string {
	return s.cfg.ProviderID + "-refresh-token"
}

// Token returns the current access token, or "" when logged out.
func (s *Service) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Now().After(s.expiry) {
		return ""
	}
	return s.accessToken
}

// LoggedIn reports whether a usable access token is present.
func (s *Service) LoggedIn() bool { return s.Token() != "" }

// OnLoggedIn registers a callback fired after every successful login.
func (s *Service) OnLoggedIn(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLoggedIn = append(s.onLoggedIn, f)
}

// Login ensures a valid access token. Silent login only uses the stored
// refresh token and reports false when that does not produce a session.
// Interactive login additionally runs the injected consent flow; user
// cancellation reports false without error.
func (s *Service) Login(ctx context.Context, silent bool) (bool, error) {
	if s.LoggedIn() {
		return true, nil
	}

	refresh, err := s.store.Get(s.refreshTokenKey())
	if err != nil && !errors.Is(err, credential.ErrNotFound) {
		return false, fmt.Errorf("loading refresh token: %w", err)
	}

	if refresh != "" {
		if err := s.redeem(ctx, refresh); err == nil {
			s.fireLoggedIn()
			return true, nil
		} else if !silent {
			s.logger.Warn("token refresh failed, falling back to interactive login", zap.Error(err))
		} else {
			s.logger.Debug("silent token refresh failed", zap.Error(err))
		}
	}

	if silent {
		return false, nil
	}

	if s.interactive == nil {
		return false, nil
	}

	ictx, cancel := context.WithTimeout(ctx, interactiveTimeout)
	defer cancel()

	newRefresh, err := s.interactive(ictx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return false, drive.NewError(drive.KindAuthTimeout, "login", s.cfg.ProviderID, err)
		}
		return false, fmt.Errorf("interactive login: %w", err)
	}
	if newRefresh == "" {
		// user cancelled
		return false, nil
	}

	if err := s.redeem(ctx, newRefresh); err != nil {
		return false, err
	}
	s.fireLoggedIn()
	return true, nil
}

// Logout drops the session; a full logout also discards the stored
// refresh token.
func (s *Service) Logout(full bool) error {
	s.mu.Lock()
	s.accessToken = ""
	s.expiry = time.Time{}
	s.mu.Unlock()

	if full {
		if err := s.store.Delete(s.refreshTokenKey()); err != nil {
			return fmt.Errorf("discarding refresh token: %w", err)
		}
	}
	return nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// redeem exchanges a refresh token for an access token and persists a
// rotated refresh token when the endpoint returns one.
func (s *Service) redeem(ctx context.Context, refreshToken string) error {
	form := url.Values{}
	form.Set("client_id", s.cfg.ClientID)
	form.Set("refresh_token", refreshToken)
	form.Set("grant_type", "refresh_token")
	form.Set("scope", s.cfg.Scopes)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return drive.NewError(drive.KindOffline, "login", s.cfg.ProviderID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return drive.NewError(drive.KindAuthRequired, "login", s.cfg.ProviderID,
			fmt.Errorf("token endpoint returned %d", resp.StatusCode))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return drive.NewError(drive.KindAuthRequired, "login", s.cfg.ProviderID,
			errors.New("token endpoint returned no access token"))
	}

	s.mu.Lock()
	s.accessToken = tr.AccessToken
	// renew one minute early to avoid racing the expiry
	s.expiry = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - time.Minute)
	s.mu.Unlock()

	if tr.RefreshToken != "" && tr.RefreshToken != refreshToken {
		if err := s.store.Set(s.refreshTokenKey(), tr.RefreshToken); err != nil {
			s.logger.Warn("persisting rotated refresh token failed", zap.Error(err))
		}
	}
	return nil
}

func (s *Service) fireLoggedIn() {
	s.mu.Lock()
	callbacks := make([]func(), len(s.onLoggedIn))
	copy(callbacks, s.onLoggedIn)
	s.mu.Unlock()

	for _, f := range callbacks {
		f()
	}
}
