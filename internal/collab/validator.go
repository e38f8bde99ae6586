// Package collab holds thin JSON-over-HTTP clients for the system's
// external collaborators: content safety and the ledger. Both are optional;
// the app wires them only when their endpoints are configured.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pvolkov/daychain-bot/internal/core"
)

// HTTPValidator asks the content-safety collaborator for a verdict before a
// block commits. A non-pass verdict becomes *core.ValidationError; transport
// failures come back as plain errors so the caller can re-prompt without
// treating the content as rejected.
type HTTPValidator struct {
	url string
	hc  *http.Client
	log *zap.Logger
}

func NewValidator(url string, log *zap.Logger) *HTTPValidator {
	return &HTTPValidator{
		url: url,
		hc:  &http.Client{Timeout: 10 * time.Second},
		log: log,
	}
}

type validateRequest struct {
	Content  string `json:"content"`
	MediaRef string `json:"media_ref,omitempty"`
}

type validateResponse struct {
	Pass   bool   `json:"pass"`
	Reason string `json:"reason,omitempty"`
}

func (v *HTTPValidator) Validate(ctx context.Context, content, mediaRef string) error {
	body, err := json.Marshal(validateRequest{Content: content, MediaRef: mediaRef})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.hc.Do(req)
	if err != nil {
		return fmt.Errorf("validator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validator: unexpected status %d", resp.StatusCode)
	}
	var out validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("validator: decode: %w", err)
	}
	if !out.Pass {
		v.log.Info("content rejected", zap.String("reason", out.Reason))
		return &core.ValidationError{Reason: out.Reason}
	}
	return nil
}
