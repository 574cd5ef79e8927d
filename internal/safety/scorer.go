// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package safety

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/types"
)

// Score is a raw risk score with whatever the scorer reported alongside it.
type Score struct {
	Value   float64
	Signals []string
	Details map[string]any
}

// Scorer rates how risky a piece of text is, from 0 (safe) to 1.
type Scorer interface {
	Score(ctx context.Context, text string, dir types.Direction) (Score, error)
}

// maxResponseBody bounds how much of an upstream response is read.
const maxResponseBody = 4 << 20

type guardrailMessage struct {
	From       string   `json:"from"`
	To         string   `json:"to"`
	Content    string   `json:"content"`
	Processors []string `json:"processors"`
}

type guardrailRequest struct {
	Messages []guardrailMessage `json:"messages"`
}

type guardrailResponse struct {
	Messages []struct {
		Score float64 `json:"score"`
	} `json:"messages"`
}

// HTTPScorer scores text with a semantic guardrail service.
type HTTPScorer struct {
	url    string
	client *http.Client
}

// NewHTTPScorer returns a scorer posting to url. A nil client uses http.DefaultClient.
func NewHTTPScorer(url string, client *http.Client) *HTTPScorer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPScorer{url: url, client: client}
}

func (s *HTTPScorer) Score(ctx context.Context, text string, dir types.Direction) (Score, error) {
	msg := guardrailMessage{From: "user", To: "ai", Content: text, Processors: []string{"customer-support"}}
	if dir == types.DirectionOutput {
		msg = guardrailMessage{From: "ai", To: "user", Content: text, Processors: []string{"pii"}}
	}

	body, err := json.Marshal(guardrailRequest{Messages: []guardrailMessage{msg}})
	if err != nil {
		return Score{}, sigilerr.Wrapf(err, sigilerr.CodeSafetyGuardrailFailure, "encoding guardrail request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Score{}, sigilerr.Wrapf(err, sigilerr.CodeSafetyGuardrailFailure, "building guardrail request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Score{}, sigilerr.Wrapf(err, sigilerr.CodeSafetyGuardrailFailure, "calling guardrail service")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Score{}, sigilerr.Wrapf(err, sigilerr.CodeSafetyGuardrailFailure, "reading guardrail response")
	}
	if resp.StatusCode != http.StatusOK {
		return Score{Details: map[string]any{"error": string(raw)}},
			sigilerr.Errorf(sigilerr.CodeSafetyGuardrailFailure, "guardrail service returned %d", resp.StatusCode)
	}

	var parsed guardrailResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Score{}, sigilerr.Wrapf(err, sigilerr.CodeSafetyGuardrailFailure, "decoding guardrail response")
	}
	var details map[string]any
	_ = json.Unmarshal(raw, &details)

	score := Score{Details: details}
	if len(parsed.Messages) > 0 {
		score.Value = parsed.Messages[0].Score
	}
	return score, nil
}
