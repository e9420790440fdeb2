package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/amoralabs/amora-client/internal/obs"
	"github.com/amoralabs/amora-client/internal/storage"
)

const (
	refreshPath = "/api/v1/auth/refresh"
	refreshWait = 5 * time.Second
)

// SetSession persists the bearer and refresh tokens after login.
func (c *Client) SetSession(ctx context.Context, authToken, refreshToken string) error {
	if err := c.store.SetItem(ctx, storage.KeyAuthToken, authToken); err != nil {
		return errors.Wrap(err, "persist auth token")
	}
	if err := c.store.SetItem(ctx, storage.KeyRefreshToken, refreshToken); err != nil {
		return errors.Wrap(err, "persist refresh token")
	}
	return nil
}

// ClearSession purges stored credentials and cached identity.
func (c *Client) ClearSession(ctx context.Context) {
	for _, key := range []string{storage.KeyAuthToken, storage.KeyRefreshToken, storage.KeyUserID} {
		if err := c.store.RemoveItem(ctx, key); err != nil {
			logs.Warnf("clear session: remove %s: %v", key, err)
		}
	}
}

// HasCredentials reports whether a bearer token is stored.
func (c *Client) HasCredentials(ctx context.Context) bool {
	token, ok, err := c.store.GetItem(ctx, storage.KeyAuthToken)
	return err == nil && ok && token != ""
}

func (c *Client) bearerToken(ctx context.Context) string {
	token, ok, err := c.store.GetItem(ctx, storage.KeyAuthToken)
	if err != nil || !ok {
		return ""
	}
	return token
}

// refreshSession coordinates a single in-flight token refresh. Concurrent
// 401 handlers wait on the same refresh, capped at refreshWait; only one
// refresh network call is ever in flight.
func (c *Client) refreshSession(ctx context.Context) error {
	ch := c.refreshFlight.DoChan("refresh", func() (any, error) {
		// The refresh must outlive any single caller's deadline.
		return nil, c.doRefresh(context.WithoutCancel(ctx))
	})

	select {
	case result := <-ch:
		return result.Err
	case <-time.After(refreshWait):
		return &Error{Message: "token refresh timed out"}
	case <-ctx.Done():
		return ErrCancelled
	}
}

func (c *Client) doRefresh(ctx context.Context) error {
	refreshToken, ok, err := c.store.GetItem(ctx, storage.KeyRefreshToken)
	if err != nil || !ok || refreshToken == "" {
		return c.expireSession(ctx)
	}

	payload, _ := json.Marshal(map[string]string{"refresh_token": refreshToken})
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.base+refreshPath, bytes.NewReader(payload))
	if err != nil {
		return c.expireSession(ctx)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logs.Warnf("token refresh: %v", err)
		return c.expireSession(ctx)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logs.Warnf("token refresh rejected: status %d", resp.StatusCode)
		return c.expireSession(ctx)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return c.expireSession(ctx)
	}
	var tokens struct {
		Token        string `json:"token"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(body, &tokens); err != nil {
		return c.expireSession(ctx)
	}
	authToken := tokens.Token
	if authToken == "" {
		authToken = tokens.AccessToken
	}
	if authToken == "" {
		return c.expireSession(ctx)
	}

	nextRefresh := tokens.RefreshToken
	if nextRefresh == "" {
		nextRefresh = refreshToken
	}
	if err := c.SetSession(ctx, authToken, nextRefresh); err != nil {
		return c.expireSession(ctx)
	}
	obs.TokenRefreshes.WithLabelValues("ok").Inc()
	return nil
}

func (c *Client) expireSession(ctx context.Context) error {
	obs.TokenRefreshes.WithLabelValues("failed").Inc()
	c.ClearSession(ctx)
	if c.onSessionExpired != nil {
		c.onSessionExpired()
	}
	return ErrSessionExpired
}
