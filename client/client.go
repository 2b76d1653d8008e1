package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/tee-ta-bridge/interfaces"
	"github.com/ruteri/tee-ta-bridge/ta"
)

// StatusError is returned by the typed calls when the engine answers with a
// status other than StatusOK.
type StatusError struct {
	Status  ta.Status
	Message string
	// FailureCount is set for StatusInvalidPassword.
	FailureCount uint32
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("TA returned %s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("TA returned %s", e.Status)
}

// Client sends requests to one TA service.
type Client struct {
	baseURL    string
	service    string
	httpClient *http.Client
}

// NewClient creates a client for service behind baseURL (e.g. "http://localhost:8080").
// The optional timeout defaults to 30 seconds.
func NewClient(baseURL, service string, timeout ...time.Duration) *Client {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		service: service,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// Execute sends one opaque request and returns the engine's response bytes.
func (c *Client) Execute(ctx context.Context, request []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/api/v1/ta/%s", c.baseURL, c.service)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(request))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("TA request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusRequestEntityTooLarge:
		return nil, interfaces.ErrRequestTooLarge
	case http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: %s", interfaces.ErrChannelFault, strings.TrimSpace(string(body)))
	default:
		return nil, fmt.Errorf("TA request failed with code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// ListServices returns the service names registered on the server.
func (c *Client) ListServices(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/services", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("services request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("services request failed with code %d", resp.StatusCode)
	}

	var result struct {
		Services []string `json:"services"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Services, nil
}

func (c *Client) call(ctx context.Context, cmd ta.Command, body, out any) error {
	request, err := ta.EncodeRequest(cmd, body)
	if err != nil {
		return err
	}
	raw, err := c.Execute(ctx, request)
	if err != nil {
		return err
	}
	rsp, err := ta.DecodeResponse(raw, out)
	if err != nil {
		return err
	}
	if rsp.Status != ta.StatusOK {
		return &StatusError{Status: rsp.Status, Message: rsp.Message}
	}
	return nil
}

// Enroll sets password for uid. To change an existing password pass the
// current handle and password; otherwise pass nil for both.
func (c *Client) Enroll(ctx context.Context, uid uint32, password []byte, current *ta.PasswordHandle, currentPassword []byte) (*ta.PasswordHandle, error) {
	var rsp ta.EnrollResponse
	err := c.call(ctx, ta.CmdEnroll, ta.EnrollRequest{
		UserID:          uid,
		CurrentHandle:   current,
		CurrentPassword: currentPassword,
		Password:        password,
	}, &rsp)
	if err != nil {
		return nil, withFailureCount(err, rsp.FailureCount)
	}
	if rsp.Handle == nil {
		return nil, errors.New("enroll response carries no handle")
	}
	return rsp.Handle, nil
}

// Verify checks password against handle and returns the signed auth token.
func (c *Client) Verify(ctx context.Context, uid uint32, challenge uint64, handle *ta.PasswordHandle, password []byte) (*ta.AuthToken, error) {
	if handle == nil {
		return nil, errors.New("handle is required")
	}
	var rsp ta.VerifyResponse
	err := c.call(ctx, ta.CmdVerify, ta.VerifyRequest{
		UserID:    uid,
		Challenge: challenge,
		Handle:    *handle,
		Password:  password,
	}, &rsp)
	if err != nil {
		return nil, withFailureCount(err, rsp.FailureCount)
	}
	if rsp.Token == nil {
		return nil, errors.New("verify response carries no token")
	}
	return rsp.Token, nil
}

func (c *Client) DeleteUser(ctx context.Context, uid uint32) error {
	return c.call(ctx, ta.CmdDeleteUser, ta.DeleteUserRequest{UserID: uid}, nil)
}

// DeleteAllUsers removes every failure record and returns how many were deleted.
func (c *Client) DeleteAllUsers(ctx context.Context) (uint32, error) {
	var rsp ta.DeleteAllUsersResponse
	if err := c.call(ctx, ta.CmdDeleteAllUsers, nil, &rsp); err != nil {
		return 0, err
	}
	return rsp.Deleted, nil
}

func (c *Client) GetSharedSecretParameters(ctx context.Context) (*ta.SharedSecretParameters, error) {
	var rsp ta.GetSharedSecretParametersResponse
	if err := c.call(ctx, ta.CmdGetSharedSecretParameters, nil, &rsp); err != nil {
		return nil, err
	}
	return &rsp.Params, nil
}

// ComputeSharedSecret runs key agreement over params, which must include this
// engine's own parameters, and returns the sharing check.
func (c *Client) ComputeSharedSecret(ctx context.Context, params []ta.SharedSecretParameters) ([]byte, error) {
	var rsp ta.ComputeSharedSecretResponse
	if err := c.call(ctx, ta.CmdComputeSharedSecret, ta.ComputeSharedSecretRequest{Params: params}, &rsp); err != nil {
		return nil, err
	}
	return rsp.SharingCheck, nil
}

func withFailureCount(err error, count uint32) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		statusErr.FailureCount = count
	}
	return err
}
