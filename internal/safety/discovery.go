// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package safety

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

// Discoverer finds sensitive spans in text.
type Discoverer interface {
	Discover(ctx context.Context, text string) (Discovery, error)
}

// entityTypes maps classifier labels to the labels used in redacted text.
var entityTypes = map[string]string{
	"US_SSN":                 "SSN",
	"SOCIAL_SECURITY_NUMBER": "SSN",
	"EMAIL_ADDRESS":          "EMAIL",
	"PHONE_NUMBER":           "PHONE",
	"CREDIT_CARD":            "CREDIT_CARD",
	"PERSON":                 "NAME",
	"LOCATION":               "LOCATION",
	"IP_ADDRESS":             "IP_ADDRESS",
	"URL":                    "URL",
	"US_BANK_NUMBER":         "BANK_ACCOUNT",
	"US_PASSPORT":            "PASSPORT",
	"US_DRIVER_LICENSE":      "DRIVER_LICENSE",
	"IBAN_CODE":              "IBAN",
	"MEDICAL_LICENSE":        "MEDICAL_LICENSE",
	"DATE_TIME":              "DATE",
	"CITY":                   "CITY",
	"STATE":                  "STATE",
	"AGE":                    "AGE",
	"USERNAME":               "USERNAME",
}

// EntityType returns the redaction label for a classifier label. Unknown
// labels pass through unchanged.
func EntityType(label string) string {
	if t, ok := entityTypes[strings.ToUpper(label)]; ok {
		return t
	}
	return label
}

type classifyResponse struct {
	Classifications map[string][]struct {
		Score    float64 `json:"score"`
		Location struct {
			StartIndex int `json:"start_index"`
			EndIndex   int `json:"end_index"`
		} `json:"location"`
	} `json:"classifications"`
}

// HTTPDiscoverer classifies text with a data discovery service.
type HTTPDiscoverer struct {
	url            string
	scoreThreshold float64
	client         *http.Client
}

// NewHTTPDiscoverer returns a discoverer posting to rawURL. Detections below
// scoreThreshold are dropped by the service.
func NewHTTPDiscoverer(rawURL string, scoreThreshold float64, client *http.Client) *HTTPDiscoverer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDiscoverer{url: rawURL, scoreThreshold: scoreThreshold, client: client}
}

func (d *HTTPDiscoverer) Discover(ctx context.Context, text string) (Discovery, error) {
	u, err := url.Parse(d.url)
	if err != nil {
		return Discovery{}, sigilerr.Wrapf(err, sigilerr.CodeSafetyDiscoveryFailure, "parsing discovery url")
	}
	q := u.Query()
	q.Set("score_threshold", strconv.FormatFloat(d.scoreThreshold, 'f', -1, 64))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(text))
	if err != nil {
		return Discovery{}, sigilerr.Wrapf(err, sigilerr.CodeSafetyDiscoveryFailure, "building discovery request")
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := d.client.Do(req)
	if err != nil {
		return Discovery{}, sigilerr.Wrapf(err, sigilerr.CodeSafetyDiscoveryFailure, "calling discovery service")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Discovery{}, sigilerr.Wrapf(err, sigilerr.CodeSafetyDiscoveryFailure, "reading discovery response")
	}
	if resp.StatusCode != http.StatusOK {
		return Discovery{}, sigilerr.Errorf(sigilerr.CodeSafetyDiscoveryFailure,
			"discovery service returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed classifyResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Discovery{}, sigilerr.Wrapf(err, sigilerr.CodeSafetyDiscoveryFailure, "decoding discovery response")
	}

	// The service reports character offsets; entities carry byte offsets.
	offsets := runeOffsets(text)
	runes := len(offsets) - 1

	var entities []Entity
	for label, detections := range parsed.Classifications {
		typ := EntityType(label)
		for _, det := range detections {
			start, end := det.Location.StartIndex, det.Location.EndIndex
			if start < 0 || end < start || end > runes {
				return Discovery{}, sigilerr.Errorf(sigilerr.CodeSafetyDiscoveryFailure,
					"discovery span [%d,%d) out of range for %d characters", start, end, runes)
			}
			bs, be := offsets[start], offsets[end]
			entities = append(entities, Entity{
				Type:  typ,
				Start: bs,
				End:   be,
				Text:  text[bs:be],
				Score: det.Score,
			})
		}
	}
	sortEntities(entities)
	return Discovery{Text: text, Entities: entities}, nil
}

// runeOffsets returns the byte offset of every character in s, plus len(s).
func runeOffsets(s string) []int {
	offsets := make([]int, 0, utf8.RuneCountInString(s)+1)
	for i := range s {
		offsets = append(offsets, i)
	}
	return append(offsets, len(s))
}

func sortEntities(entities []Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Start != entities[j].Start {
			return entities[i].Start < entities[j].Start
		}
		return entities[i].End > entities[j].End
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
