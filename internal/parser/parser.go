// Package parser turns loosely structured classifier replies into rule labels.
//
// The classifier's output schema changed over time, so several JSON shapes are
// accepted:
//
//	[{"rules": ["yes", "no", ...]}]
//	{"results": [{"rules": ["yes", "no", ...]}]}
//	{"rules": ["yes", "no", ...]}
//
// Verdicts are positional: the Nth entry becomes ruleN. Parsing never fails;
// anything that cannot be resolved yields an empty label.
package parser

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/ppiankov/rulelabel/internal/model"
)

// Parse converts a raw reply into a rule label
func Parse(raw string) model.RuleLabel {
	payload := unwrapFence(raw)
	if payload == "" {
		return model.RuleLabel{}
	}

	verdicts, ok := resolveRules([]byte(payload))
	if !ok {
		return model.RuleLabel{}
	}

	label := make(model.RuleLabel, len(verdicts))
	for i, rawVerdict := range verdicts {
		var s string
		if err := json.Unmarshal(rawVerdict, &s); err != nil {
			// A single undecodable verdict invalidates the whole reply
			return model.RuleLabel{}
		}
		if v := model.ParseVerdict(s); v.IsSet() {
			label[model.RuleName(i+1)] = v
		}
	}
	return label
}

// resolveRules finds the verdict sequence in one of the accepted shapes
func resolveRules(data []byte) ([]json.RawMessage, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, false
	}

	switch data[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil || len(items) == 0 {
			return nil, false
		}
		var first map[string]json.RawMessage
		if err := json.Unmarshal(items[0], &first); err != nil {
			return nil, false
		}
		rules, ok := first["rules"]
		if !ok {
			return nil, false
		}
		return decodeList(rules)

	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, false
		}
		if results, ok := obj["results"]; ok {
			var entries []map[string]json.RawMessage
			if err := json.Unmarshal(results, &entries); err != nil || len(entries) == 0 {
				return nil, false
			}
			rules, ok := entries[0]["rules"]
			if !ok {
				return nil, false
			}
			return decodeList(rules)
		}
		if rules, ok := obj["rules"]; ok {
			return decodeList(rules)
		}
		return nil, false

	default:
		return nil, false
	}
}

func decodeList(raw json.RawMessage) ([]json.RawMessage, bool) {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false
	}
	return list, true
}

// unwrapFence strips a surrounding Markdown code fence (```json ... ```)
func unwrapFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the language tag line
		s = s[nl+1:]
	} else {
		return ""
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}
