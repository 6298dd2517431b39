package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/styrit/listsync/internal/auth"
	"github.com/styrit/listsync/internal/model"
)

// loopbackFlow returns an interactive consent flow that listens on a
// loopback port, prints the authorization URL for the user to open and
// exchanges the returned code for a refresh token.
func loopbackFlow(cfg *model.ProviderConfig, logger *zap.Logger) auth.InteractiveFlow {
	return func(ctx context.Context) (string, error) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return "", fmt.Errorf("starting login listener: %w", err)
		}
		redirect := "http://" + ln.Addr().String() + "/callback"
		state := uuid.NewString()

		authURL := cfg.AuthEndpoint + "?" + url.Values{
			"client_id":     {cfg.ClientID},
			"response_type": {"code"},
			"redirect_uri":  {redirect},
			"scope":         {cfg.Scopes},
			"state":         {state},
			"access_type":   {"offline"},
		}.Encode()

		codeCh := make(chan string, 1)
		srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("state") != state {
				http.Error(w, "state mismatch", http.StatusBadRequest)
				return
			}
			if e := q.Get("error"); e != "" {
				logger.Warn("authorization denied", zap.String("error", e))
				fmt.Fprintln(w, "Login failed. You can close this window.")
				codeCh <- ""
				return
			}
			fmt.Fprintln(w, "Login complete. You can close this window.")
			codeCh <- q.Get("code")
		})}
		go srv.Serve(ln)
		defer srv.Close()

		fmt.Printf("Open this URL in your browser to log in:\n\n  %s\n\n", authURL)

		var code string
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case code = <-codeCh:
		}
		if code == "" {
			// User cancelled; not an error.
			return "", nil
		}
		return redeemCode(ctx, cfg, code, redirect)
	}
}

func redeemCode(ctx context.Context, cfg *model.ProviderConfig, code, redirect string) (string, error) {
	form := url.Values{
		"client_id":    {cfg.ClientID},
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirect},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("redeeming authorization code: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %s: %s", resp.Status, body)
	}

	var tok struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tok.RefreshToken == "" {
		return "", errors.New("token response carried no refresh token")
	}
	return tok.RefreshToken, nil
}
