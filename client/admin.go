package client

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/tee-ta-bridge/httpserver"
)

// AdminStatus is the lock state reported by the admin API.
type AdminStatus struct {
	Unlocked        bool `json:"unlocked"`
	SharesSubmitted int  `json:"shares_submitted"`
	Admins          int  `json:"admins"`
}

// AdminClient submits preshared key shares as one admin.
type AdminClient struct {
	baseURL    string
	adminID    string
	privateKey *ecdsa.PrivateKey
	httpClient *http.Client
}

// NewAdminClient creates a client for the admin API at baseURL
// (e.g. "http://localhost:8081/admin").
func NewAdminClient(baseURL, adminID string, privateKey *ecdsa.PrivateKey, timeout ...time.Duration) *AdminClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &AdminClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		adminID:    adminID,
		privateKey: privateKey,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

func (c *AdminClient) Status(ctx context.Context) (*AdminStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status request failed with code %d", resp.StatusCode)
	}

	var status AdminStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &status, nil
}

// SubmitShare submits this admin's share and reports whether the key is now unlocked.
func (c *AdminClient) SubmitShare(ctx context.Context, shareIndex int, share []byte) (bool, error) {
	body, err := json.Marshal(map[string]interface{}{
		"share_index": shareIndex,
		"share":       base64.StdEncoding.EncodeToString(share),
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/share", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := httpserver.SignAdminRequest(req, body, c.adminID, c.privateKey); err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("share submission failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("share submission failed with code %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result struct {
		Unlocked bool `json:"unlocked"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Unlocked, nil
}
