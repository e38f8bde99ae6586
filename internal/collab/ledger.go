package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPLedger records committed blocks with the ledger collaborator. The core
// calls it fire-and-forget; an error here only costs the stored block hash.
type HTTPLedger struct {
	url string
	hc  *http.Client
	log *zap.Logger
}

func NewLedger(url string, log *zap.Logger) *HTTPLedger {
	return &HTTPLedger{
		url: url,
		hc:  &http.Client{Timeout: 15 * time.Second},
		log: log,
	}
}

type recordRequest struct {
	ChainID     string `json:"chain_id"`
	Slot        int    `json:"slot"`
	ContentHash string `json:"content_hash"`
	PrevHash    string `json:"prev_hash,omitempty"`
}

type recordResponse struct {
	BlockHash string `json:"block_hash"`
}

func (l *HTTPLedger) RecordBlock(ctx context.Context, chainID string, slot int, contentHash, prevHash string) (string, error) {
	body, err := json.Marshal(recordRequest{
		ChainID:     chainID,
		Slot:        slot,
		ContentHash: contentHash,
		PrevHash:    prevHash,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("ledger: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ledger: unexpected status %d", resp.StatusCode)
	}
	var out recordResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ledger: decode: %w", err)
	}
	l.log.Debug("block recorded", zap.String("chain", chainID), zap.Int("slot", slot))
	return out.BlockHash, nil
}
