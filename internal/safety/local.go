// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package safety

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/types"
)

// Severity weights a risk rule.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Score returns the risk score a match of this severity contributes.
func (s Severity) Score() float64 {
	switch s {
	case SeverityHigh:
		return 0.95
	case SeverityMedium:
		return 0.6
	default:
		return 0
	}
}

// RiskRule is a pattern the local scorer looks for.
type RiskRule struct {
	Name      string
	Direction types.Direction
	Pattern   *regexp.Regexp
	Severity  Severity
}

// InputRiskRules returns prompt injection patterns checked on user text.
func InputRiskRules() []RiskRule {
	return []RiskRule{
		{
			Name:     "instruction_override",
			Pattern:  regexp.MustCompile(`(?i)(ignore|disregard|override|forget|do\s+not\s+follow)\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts|rules)`),
			Severity: SeverityHigh,
		},
		{
			Name:     "role_confusion",
			Pattern:  regexp.MustCompile(`(?i)you\s+are\s+now\s+\w+[,.]?\s*(do|ignore|forget|disregard)`),
			Severity: SeverityHigh,
		},
		{
			Name:     "system_block_injection",
			Pattern:  regexp.MustCompile(`(?i)(?:<\|?system\|?>|\[system\]|<<SYS>>)`),
			Severity: SeverityHigh,
		},
		{
			Name:     "delimiter_abuse",
			Pattern:  regexp.MustCompile("(?i)```system\\b"),
			Severity: SeverityMedium,
		},
		{
			Name:     "new_task_injection",
			Pattern:  regexp.MustCompile(`(?i)(new\s+task|from\s+now\s+on|pretend\s+(?:the\s+)?(?:above|previous)\s+(?:rules?|instructions?)\s+(?:do\s+not|don'?t)\s+exist)`),
			Severity: SeverityMedium,
		},
	}
}

// OutputRiskRules returns patterns checked on model text.
func OutputRiskRules() []RiskRule {
	return []RiskRule{
		{
			Name:     "system_prompt_leak",
			Pattern:  regexp.MustCompile(`(?im)^SYSTEM:\s`),
			Severity: SeverityHigh,
		},
		{
			Name:     "role_impersonation",
			Pattern:  regexp.MustCompile(`(?is)\[INST\].{0,1000}?\[/INST\]`),
			Severity: SeverityHigh,
		},
	}
}

func withDirection(rules []RiskRule, dir types.Direction) []RiskRule {
	for i := range rules {
		rules[i].Direction = dir
	}
	return rules
}

// LocalScorer scores text against regex rules without any network call.
type LocalScorer struct {
	rules []RiskRule
}

// NewLocalScorer validates rules. No rules means the built-in set.
func NewLocalScorer(rules ...RiskRule) (*LocalScorer, error) {
	if len(rules) == 0 {
		rules = append(withDirection(InputRiskRules(), types.DirectionInput),
			withDirection(OutputRiskRules(), types.DirectionOutput)...)
	}
	for i, r := range rules {
		if r.Pattern == nil {
			return nil, sigilerr.Errorf(sigilerr.CodeSafetyRuleInvalid, "rule %d (%s) has nil pattern", i, r.Name)
		}
		if r.Name == "" {
			return nil, sigilerr.Errorf(sigilerr.CodeSafetyRuleInvalid, "rule %d has empty name", i)
		}
		if !r.Direction.Valid() {
			return nil, sigilerr.Errorf(sigilerr.CodeSafetyRuleInvalid, "rule %d (%s) has invalid direction %q", i, r.Name, r.Direction)
		}
		if r.Severity.Score() == 0 {
			return nil, sigilerr.Errorf(sigilerr.CodeSafetyRuleInvalid, "rule %d (%s) has invalid severity %q", i, r.Name, r.Severity)
		}
	}
	return &LocalScorer{rules: rules}, nil
}

// Score returns the highest severity score among matching rules.
func (s *LocalScorer) Score(_ context.Context, text string, dir types.Direction) (Score, error) {
	text = normalize(text)

	var score Score
	matches := 0
	for _, r := range s.rules {
		if r.Direction != dir {
			continue
		}
		n := len(r.Pattern.FindAllStringIndex(text, -1))
		if n == 0 {
			continue
		}
		matches += n
		score.Signals = append(score.Signals, r.Name)
		if v := r.Severity.Score(); v > score.Value {
			score.Value = v
		}
	}
	score.Details = map[string]any{"scorer": "local", "matches": matches}
	return score, nil
}

// EntityRule is a pattern the local discoverer reports as Type.
type EntityRule struct {
	Type    string
	Pattern *regexp.Regexp
}

// DefaultEntityRules returns the built-in PII and credential patterns.
func DefaultEntityRules() []EntityRule {
	return []EntityRule{
		{Type: "SSN", Pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{Type: "EMAIL", Pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
		{Type: "CREDIT_CARD", Pattern: regexp.MustCompile(`\b(?:\d{4}[- ]?){3}\d{4}\b`)},
		{Type: "PHONE", Pattern: regexp.MustCompile(`(?:\+?1[-. ]?)?(?:\(\d{3}\)\s?|\b\d{3}[-. ])\d{3}[-. ]\d{4}\b`)},
		{Type: "IP_ADDRESS", Pattern: regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`)},
		{Type: "SECRET", Pattern: regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
		{Type: "SECRET", Pattern: regexp.MustCompile(`sk-ant-api\d{2}-[A-Za-z0-9_-]{20,}`)},
		{Type: "SECRET", Pattern: regexp.MustCompile(`sk-proj-[A-Za-z0-9_-]{20,}`)},
		{Type: "SECRET", Pattern: regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`)},
		{Type: "SECRET", Pattern: regexp.MustCompile(`github_pat_[A-Za-z0-9_]{22,}`)},
		{Type: "SECRET", Pattern: regexp.MustCompile(`xox[bpas]-[A-Za-z0-9-]+`)},
		{Type: "SECRET", Pattern: regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`)},
		{Type: "SECRET", Pattern: regexp.MustCompile(`-----BEGIN\s+(?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`)},
	}
}

// localEntityScore is the confidence reported for regex detections.
const localEntityScore = 0.9

// LocalDiscoverer finds entities with regexes over normalized text.
type LocalDiscoverer struct {
	rules []EntityRule
}

// NewLocalDiscoverer validates rules. No rules means the built-in set.
func NewLocalDiscoverer(rules ...EntityRule) (*LocalDiscoverer, error) {
	if len(rules) == 0 {
		rules = DefaultEntityRules()
	}
	for i, r := range rules {
		if r.Pattern == nil || r.Type == "" {
			return nil, sigilerr.Errorf(sigilerr.CodeSafetyRuleInvalid, "entity rule %d needs a type and a pattern", i)
		}
	}
	return &LocalDiscoverer{rules: rules}, nil
}

func (d *LocalDiscoverer) Discover(ctx context.Context, text string) (Discovery, error) {
	if err := ctx.Err(); err != nil {
		return Discovery{}, sigilerr.Wrapf(err, sigilerr.CodeSafetyDiscoveryFailure, "discovering entities")
	}

	normalized := normalize(text)
	var entities []Entity
	for _, r := range d.rules {
		for _, loc := range r.Pattern.FindAllStringIndex(normalized, -1) {
			entities = append(entities, Entity{
				Type:  r.Type,
				Start: loc[0],
				End:   loc[1],
				Text:  normalized[loc[0]:loc[1]],
				Score: localEntityScore,
			})
		}
	}
	sortEntities(entities)

	// Offsets refer to the normalized form only when it differs.
	out := Discovery{Text: text, Entities: entities}
	if normalized != text {
		out.Text = normalized
	}
	return out, nil
}

var invisibleCharReplacer = strings.NewReplacer(
	"\u200b", "", // zero-width space
	"\u200c", "", // zero-width non-joiner
	"\u200d", "", // zero-width joiner
	"\ufeff", "", // zero-width no-break space / BOM
	"\u00ad", "", // soft hyphen
	"\u2060", "", // word joiner
	"\u2061", "", // invisible function application
	"\u2062", "", // invisible times
	"\u2063", "", // invisible separator
	"\u2064", "", // invisible plus
)

// normalize applies NFKC normalization and strips invisible characters so
// fullwidth digits and zero-width joiners cannot hide a match.
func normalize(s string) string {
	s = invisibleCharReplacer.Replace(s)
	return norm.NFKC.String(s)
}
