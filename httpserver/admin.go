package httpserver

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/tee-ta-bridge/hal"
)

const (
	// AdminIDHeader names the operator submitting an admin request.
	AdminIDHeader = "X-Admin-ID"

	// AdminSignatureHeader carries a base64 ASN.1 ECDSA signature over
	// sha256(path || body).
	AdminSignatureHeader = "X-Admin-Signature"
)

// AdminHandler collects Shamir shares of the preshared key from operators.
//
// Every operator is identified by an ECDSA P-256 public key and may submit
// at most one share. Once enough shares are in, the key is reconstructed in
// memory and WaitForUnlock returns.
type AdminHandler struct {
	mu           sync.Mutex
	log          *slog.Logger
	adminPubKeys map[string][]byte // admin ID -> public key PEM
	submitted    map[string]int    // admin ID -> share index
	key          *hal.ShamirPresharedKey
	completeChan chan struct{}
	completeOnce sync.Once
}

// NewAdminHandler creates an admin handler unlocking key.
func NewAdminHandler(log *slog.Logger, adminPubKeys map[string][]byte, key *hal.ShamirPresharedKey) *AdminHandler {
	h := &AdminHandler{
		log:          log,
		adminPubKeys: adminPubKeys,
		submitted:    make(map[string]int),
		key:          key,
		completeChan: make(chan struct{}),
	}
	if key.IsUnlocked() {
		h.markComplete()
	}
	return h
}

// WaitForUnlock blocks until the preshared key is reconstructed or ctx is done.
func (h *AdminHandler) WaitForUnlock(ctx context.Context) error {
	select {
	case <-h.completeChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlocked reports whether the preshared key has been reconstructed.
func (h *AdminHandler) Unlocked() bool {
	select {
	case <-h.completeChan:
		return true
	default:
		return false
	}
}

// AdminRouter returns the admin routes, meant to be served on their own listener.
//
//   - GET /status - Lock state and number of shares submitted
//   - POST /share - Submit a share (authenticated)
func (h *AdminHandler) AdminRouter() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.handleStatus)
	r.Post("/share", h.handleSubmitShare)
	return r
}

func (h *AdminHandler) markComplete() {
	h.completeOnce.Do(func() { close(h.completeChan) })
}

func (h *AdminHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	submitted := len(h.submitted)
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"unlocked":         h.key.IsUnlocked(),
		"shares_submitted": submitted,
		"admins":           len(h.adminPubKeys),
	}); err != nil {
		h.log.Error("Failed to encode status", "err", err)
	}
}

// handleSubmitShare accepts one share per admin.
//
// Endpoint: POST /share
// Body: {"share_index": <int>, "share": "<base64>"}
func (h *AdminHandler) handleSubmitShare(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.verifyAdmin(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var submission struct {
		ShareIndex int    `json:"share_index"`
		Share      string `json:"share"`
	}
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	share, err := base64.StdEncoding.DecodeString(submission.Share)
	if err != nil {
		http.Error(w, "Invalid share encoding", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	if h.key.IsUnlocked() {
		h.mu.Unlock()
		http.Error(w, "Preshared key already unlocked", http.StatusConflict)
		return
	}
	if _, done := h.submitted[adminID]; done {
		h.mu.Unlock()
		http.Error(w, "Admin already submitted a share", http.StatusConflict)
		return
	}
	if err := h.key.SubmitShare(submission.ShareIndex, share); err != nil {
		h.mu.Unlock()
		h.log.Error("Share submission failed", "err", err, "adminID", adminID)
		status := http.StatusBadRequest
		if errors.Is(err, hal.ErrShareIndexTaken) || errors.Is(err, hal.ErrDuplicateShare) {
			status = http.StatusConflict
		}
		http.Error(w, "Share submission failed: "+err.Error(), status)
		return
	}
	h.submitted[adminID] = submission.ShareIndex
	unlocked := h.key.IsUnlocked()
	h.mu.Unlock()

	message := "Share accepted, waiting for more shares"
	if unlocked {
		h.markComplete()
		message = "Preshared key unlocked"
		h.log.Info("Preshared key reconstructed", "adminID", adminID)
	} else {
		h.log.Info("Share accepted", "adminID", adminID, "shareIndex", submission.ShareIndex)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"message":  message,
		"unlocked": unlocked,
	}); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// verifyAdmin checks that the request is signed by a known admin. The body is
// restored for later handlers.
func (h *AdminHandler) verifyAdmin(r *http.Request) (string, bool) {
	adminID := r.Header.Get(AdminIDHeader)
	signatureStr := r.Header.Get(AdminSignatureHeader)
	if adminID == "" || signatureStr == "" {
		return "", false
	}

	pubKeyPEM, exists := h.adminPubKeys[adminID]
	if !exists {
		h.log.Warn("Authentication failed: unknown admin ID", "adminID", adminID)
		return adminID, false
	}

	signature, err := base64.StdEncoding.DecodeString(signatureStr)
	if err != nil {
		h.log.Warn("Authentication failed: invalid signature encoding", "adminID", adminID, "err", err)
		return adminID, false
	}

	pubKey, err := parsePublicKey(pubKeyPEM)
	if err != nil {
		h.log.Error("Failed to parse admin public key", "adminID", adminID, "err", err)
		return adminID, false
	}

	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(r.Body)
		if err != nil {
			h.log.Error("Failed to read request body", "err", err)
			return adminID, false
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	hash := sha256.Sum256(append([]byte(r.URL.Path), body...))
	if !ecdsa.VerifyASN1(pubKey, hash[:], signature) {
		h.log.Warn("Authentication failed: invalid signature", "adminID", adminID)
		return adminID, false
	}
	return adminID, true
}

func parsePublicKey(pubKeyPEM []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pubKeyPEM)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	ecdsaPubKey, ok := pubKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("not an ECDSA public key")
	}
	return ecdsaPubKey, nil
}

// LoadAdminKeys loads admin public keys from JSON of the form
// {"admins": [{"id": "...", "pubkey": "<PEM>"}]}.
func LoadAdminKeys(r io.Reader) (map[string][]byte, error) {
	var data struct {
		Admins []struct {
			ID     string `json:"id"`
			PubKey string `json:"pubkey"`
		} `json:"admins"`
	}
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode admin keys JSON: %w", err)
	}

	result := make(map[string][]byte, len(data.Admins))
	for _, admin := range data.Admins {
		if admin.ID == "" {
			return nil, errors.New("admin entry without id")
		}
		if _, err := parsePublicKey([]byte(admin.PubKey)); err != nil {
			return nil, fmt.Errorf("invalid public key for admin %s: %w", admin.ID, err)
		}
		result[admin.ID] = []byte(admin.PubKey)
	}
	return result, nil
}

// SignAdminRequest sets the admin authentication headers on req for the given
// path and body.
func SignAdminRequest(req *http.Request, body []byte, adminID string, privateKey *ecdsa.PrivateKey) error {
	hash := sha256.Sum256(append([]byte(req.URL.Path), body...))
	signature, err := ecdsa.SignASN1(rand.Reader, privateKey, hash[:])
	if err != nil {
		return fmt.Errorf("failed to sign admin request: %w", err)
	}
	req.Header.Set(AdminIDHeader, adminID)
	req.Header.Set(AdminSignatureHeader, base64.StdEncoding.EncodeToString(signature))
	return nil
}

// ParsePrivateKey parses a PEM encoded ECDSA private key.
func ParsePrivateKey(privateKeyPEM []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, errors.New("failed to decode PEM block containing private key")
	}
	privateKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ECDSA private key: %w", err)
	}
	return privateKey, nil
}
