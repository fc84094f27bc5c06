// Package transform rewrites outbound completion payloads based on
// provider/model rules. All functions are pure: the input payload is
// never mutated, mutated branches are copied on write.
package transform

import (
	"regexp"
	"strings"
)

type Config struct {
	ForceReasoningEnabled       bool
	ForceReasoningEffort        string
	ForceReasoningModelPatterns []string
	ForceReasoningOverride      bool

	EnableInjectionTag bool
	InjectionTagName   string
}

func DefaultConfig() Config {
	return Config{
		ForceReasoningEffort:        "high",
		ForceReasoningModelPatterns: []string{"z-ai/glm-4.6:nitro"},
		InjectionTagName:            "injection",
	}
}

// Apply runs both transform rules. Each rule is independent; either
// may leave the payload untouched.
func Apply(payload map[string]any, provider, model string, cfg Config) map[string]any {
	out := ApplyReasoningForce(payload, provider, model, cfg)
	return ApplyInjectionTag(out, cfg)
}

// globMatch implements `*`/`?` wildcard matching, case-sensitive,
// anchored at both ends.
func globMatch(pattern, s string) bool {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func modelMatches(model string, patterns []string) bool {
	model = strings.TrimSpace(model)
	if model == "" {
		return false
	}
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		if globMatch(p, model) {
			return true
		}
	}
	return false
}

// ApplyReasoningForce enables reasoning for configured OpenRouter
// models, preserving any other reasoning fields already present.
func ApplyReasoningForce(payload map[string]any, provider, model string, cfg Config) map[string]any {
	out := copyMap(payload)

	if provider != "openrouter" {
		return out
	}
	if !cfg.ForceReasoningEnabled {
		return out
	}
	if !modelMatches(model, cfg.ForceReasoningModelPatterns) {
		return out
	}

	existing, hasReasoning := out["reasoning"].(map[string]any)
	if hasReasoning && !cfg.ForceReasoningOverride {
		return out
	}

	reasoning := map[string]any{}
	if hasReasoning {
		reasoning = copyMap(existing)
	}
	reasoning["enabled"] = true
	if cfg.ForceReasoningEffort != "" {
		reasoning["effort"] = cfg.ForceReasoningEffort
	}
	out["reasoning"] = reasoning
	return out
}

// ApplyInjectionTag lifts <tag>...</tag> spans out of system messages
// and relocates their inner text to the last message in the list.
func ApplyInjectionTag(payload map[string]any, cfg Config) map[string]any {
	out := copyMap(payload)

	if !cfg.EnableInjectionTag {
		return out
	}
	msgs, ok := out["messages"].([]any)
	if !ok || len(msgs) == 0 {
		return out
	}

	tag := cfg.InjectionTagName
	if tag == "" {
		tag = "injection"
	}
	re, err := regexp.Compile(`(?is)<` + regexp.QuoteMeta(tag) + `>(.*?)</` + regexp.QuoteMeta(tag) + `>`)
	if err != nil {
		return out
	}

	newMsgs := make([]any, len(msgs))
	copy(newMsgs, msgs)

	var extracted []string
	for i, raw := range newMsgs {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		role, _ := msg["role"].(string)
		if !strings.EqualFold(role, "system") {
			continue
		}
		content, ok := msg["content"].(string)
		if !ok {
			continue
		}
		matches := re.FindAllStringSubmatch(content, -1)
		if len(matches) == 0 {
			continue
		}
		for _, m := range matches {
			if inner := strings.TrimSpace(m[1]); inner != "" {
				extracted = append(extracted, inner)
			}
		}
		cleaned := strings.TrimSpace(re.ReplaceAllString(content, ""))
		cp := copyMap(msg)
		cp["content"] = cleaned
		newMsgs[i] = cp
	}

	if len(extracted) == 0 {
		return out
	}

	joined := strings.Join(extracted, "\n\n")
	newMsgs[len(newMsgs)-1] = appendToMessage(newMsgs[len(newMsgs)-1], joined)
	out["messages"] = newMsgs
	return out
}

// appendToMessage adds text to a message's content: after existing
// string content separated by a blank line, or into the first
// text-typed part of structured content.
func appendToMessage(raw any, text string) any {
	msg, ok := raw.(map[string]any)
	if !ok {
		return raw
	}
	cp := copyMap(msg)

	switch content := cp["content"].(type) {
	case string:
		if content == "" {
			cp["content"] = text
		} else {
			cp["content"] = content + "\n\n" + text
		}
	case []any:
		parts := make([]any, len(content))
		copy(parts, content)
		appended := false
		for i, p := range parts {
			part, ok := p.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := part["type"].(string); t != "text" {
				continue
			}
			pc := copyMap(part)
			if existing, _ := pc["text"].(string); existing != "" {
				pc["text"] = existing + "\n\n" + text
			} else {
				pc["text"] = text
			}
			parts[i] = pc
			appended = true
			break
		}
		if !appended {
			parts = append(parts, map[string]any{"type": "text", "text": text})
		}
		cp["content"] = parts
	default:
		cp["content"] = text
	}
	return cp
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
