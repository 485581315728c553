// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// Package pricing estimates USD cost for token usage. It ships a built-in
// price table and can optionally refresh it once at startup from the
// LiteLLM community price list; a failed refresh keeps the built-in
// numbers, never an empty table.
package pricing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/sessionlens/sessionlens/internal/logging"
	"github.com/sessionlens/sessionlens/internal/models"
)

// Price holds USD rates per million tokens.
type Price struct {
	InputPerMTok         float64
	OutputPerMTok        float64
	CacheCreationPerMTok float64
	CacheReadPerMTok     float64
}

// Table is a thread-safe model price table.
type Table struct {
	mu     sync.RWMutex
	prices map[string]Price
}

// fallbackPrices covers the model families seen in agent session logs.
// Rates are USD per million tokens.
var fallbackPrices = map[string]Price{
	"claude-sonnet-4-20250514": {3.00, 15.00, 3.75, 0.30},
	"claude-opus-4-20250514":   {15.00, 75.00, 18.75, 1.50},
	"claude-3-5-haiku":         {0.80, 4.00, 1.00, 0.08},
	"claude-3-5-sonnet":        {3.00, 15.00, 3.75, 0.30},
	"claude-3-opus":            {15.00, 75.00, 18.75, 1.50},
}

// Fallback returns a table with the built-in prices.
func Fallback() *Table {
	prices := make(map[string]Price, len(fallbackPrices))
	for k, v := range fallbackPrices {
		prices[k] = v
	}
	return &Table{prices: prices}
}

// Lookup finds the price for a model: exact match first, then the longest
// table key that prefixes the model name (price lists usually carry the
// base name while logs carry dated snapshots).
func (t *Table) Lookup(model string) (Price, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if p, ok := t.prices[model]; ok {
		return p, true
	}

	var best string
	for key := range t.prices {
		if strings.HasPrefix(model, key) && len(key) > len(best) {
			best = key
		}
	}
	if best != "" {
		return t.prices[best], true
	}
	return Price{}, false
}

// Cost computes the itemized USD cost for usage on a model. Unknown
// models cost zero rather than guessing.
func (t *Table) Cost(model string, u models.TokenUsage) models.CostBreakdown {
	p, ok := t.Lookup(model)
	if !ok {
		return models.CostBreakdown{}
	}
	c := models.CostBreakdown{
		InputUSD:         float64(u.InputTokens) / 1e6 * p.InputPerMTok,
		OutputUSD:        float64(u.OutputTokens) / 1e6 * p.OutputPerMTok,
		CacheCreationUSD: float64(u.CacheCreationTokens) / 1e6 * p.CacheCreationPerMTok,
		CacheReadUSD:     float64(u.CacheReadTokens) / 1e6 * p.CacheReadPerMTok,
	}
	c.TotalUSD = c.InputUSD + c.OutputUSD + c.CacheCreationUSD + c.CacheReadUSD
	return c
}

// CacheHitRate returns cache reads as a percentage of all non-output
// input the model saw.
func CacheHitRate(u models.TokenUsage) float64 {
	denom := u.CacheReadTokens + u.CacheCreationTokens + u.InputTokens
	if denom == 0 {
		return 0.0
	}
	return float64(u.CacheReadTokens) / float64(denom) * 100.0
}

// litellmEntry is the subset of the LiteLLM price list we consume. Rates
// there are USD per single token.
type litellmEntry struct {
	InputCostPerToken       float64 `json:"input_cost_per_token"`
	OutputCostPerToken      float64 `json:"output_cost_per_token"`
	CacheCreationInputCost  float64 `json:"cache_creation_input_token_cost"`
	CacheReadInputTokenCost float64 `json:"cache_read_input_token_cost"`
	LiteLLMProvider         string  `json:"litellm_provider"`
}

// Refresh fetches the remote price list and merges anthropic entries over
// the current table. Errors leave the table untouched.
func (t *Table) Refresh(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build pricing request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch pricing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pricing fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("failed to read pricing body: %w", err)
	}

	var entries map[string]litellmEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return fmt.Errorf("failed to decode pricing body: %w", err)
	}

	merged := 0
	t.mu.Lock()
	for model, e := range entries {
		if e.LiteLLMProvider != "anthropic" {
			continue
		}
		if e.InputCostPerToken == 0 && e.OutputCostPerToken == 0 {
			continue
		}
		t.prices[model] = Price{
			InputPerMTok:         e.InputCostPerToken * 1e6,
			OutputPerMTok:        e.OutputCostPerToken * 1e6,
			CacheCreationPerMTok: e.CacheCreationInputCost * 1e6,
			CacheReadPerMTok:     e.CacheReadInputTokenCost * 1e6,
		}
		merged++
	}
	t.mu.Unlock()

	logging.Info().Int("models", merged).Msg("Refreshed model price table")
	return nil
}

// FormatCost renders a USD amount the way the dashboard shows it.
func FormatCost(usd float64) string {
	if usd < 0.01 && usd > 0 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}
