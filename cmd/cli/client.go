package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// credentials is what the CLI persists between invocations.
type credentials struct {
	UserID       string `json:"userId"`
	UserType     string `json:"userType"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// apiError is the server's error body.
type apiError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Code    string `json:"code"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (%s, HTTP %d)", e.Message, e.Code, e.Status)
}

// client talks to the REST API and refreshes an expired access token once
// per request.
type client struct {
	baseURL   string
	http      *http.Client
	credsPath string
	creds     *credentials
}

func newClient(baseURL, credsPath string) *client {
	c := &client{
		baseURL:   baseURL,
		http:      &http.Client{Timeout: 30 * time.Second},
		credsPath: credsPath,
	}
	c.creds, _ = loadCredentials(credsPath)
	return c
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	err := c.send(ctx, method, path, body, out)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Code == "session_expired" && c.creds != nil && c.creds.RefreshToken != "" {
		if rerr := c.refresh(ctx); rerr != nil {
			return fmt.Errorf("session expired and refresh failed: %w", rerr)
		}
		return c.send(ctx, method, path, body, out)
	}
	return err
}

func (c *client) send(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds != nil && c.creds.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.creds.AccessToken)
		req.Header.Set("X-Refresh-Token", c.creds.RefreshToken)
	}
	req.Header.Set("X-Device-Type", "cli")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &apiError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type sessionBody struct {
	User *struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"user"`
	Session struct {
		UserID       string `json:"userId"`
		UserType     string `json:"userType"`
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	} `json:"session"`
}

func (c *client) adopt(s *sessionBody) error {
	c.creds = &credentials{
		UserID:       s.Session.UserID,
		UserType:     s.Session.UserType,
		AccessToken:  s.Session.AccessToken,
		RefreshToken: s.Session.RefreshToken,
	}
	return saveCredentials(c.credsPath, c.creds)
}

func (c *client) refresh(ctx context.Context) error {
	var out sessionBody
	if err := c.send(ctx, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": c.creds.RefreshToken}, &out); err != nil {
		return err
	}
	return c.adopt(&out)
}

func (c *client) forget() error {
	c.creds = nil
	if err := os.Remove(c.credsPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func loadCredentials(path string) (*credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var creds credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

func saveCredentials(path string, creds *credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
