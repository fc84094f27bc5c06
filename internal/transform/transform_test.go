package transform

import (
	"reflect"
	"strings"
	"testing"
)

func reasoningCfg(override bool, patterns ...string) Config {
	if len(patterns) == 0 {
		patterns = []string{"z-ai/glm-4.6:nitro"}
	}
	return Config{
		ForceReasoningEnabled:       true,
		ForceReasoningEffort:        "high",
		ForceReasoningModelPatterns: patterns,
		ForceReasoningOverride:      override,
	}
}

func TestReasoningForce_InjectsWhenEnabledAndModelMatches(t *testing.T) {
	payload := map[string]any{
		"model":    "z-ai/glm-4.6:nitro",
		"messages": []any{map[string]any{"role": "user", "content": "hi"}},
	}

	out := ApplyReasoningForce(payload, "openrouter", "z-ai/glm-4.6:nitro", reasoningCfg(false))

	reasoning, ok := out["reasoning"].(map[string]any)
	if !ok {
		t.Fatalf("expected reasoning block, got %v", out["reasoning"])
	}
	if reasoning["enabled"] != true || reasoning["effort"] != "high" {
		t.Fatalf("unexpected reasoning: %v", reasoning)
	}
	if _, exists := payload["reasoning"]; exists {
		t.Fatalf("input payload was mutated")
	}
}

func TestReasoningForce_NoChangeWhenDisabled(t *testing.T) {
	payload := map[string]any{"model": "z-ai/glm-4.6:nitro", "messages": []any{}}
	cfg := Config{ForceReasoningEnabled: false}

	out := ApplyReasoningForce(payload, "openrouter", "z-ai/glm-4.6:nitro", cfg)
	if !reflect.DeepEqual(out, payload) {
		t.Fatalf("expected payload unchanged, got %v", out)
	}
}

func TestReasoningForce_NoOverrideWhenReasoningPresent(t *testing.T) {
	payload := map[string]any{
		"model":     "z-ai/glm-4.6:nitro",
		"reasoning": map[string]any{"enabled": false, "effort": "low"},
	}

	out := ApplyReasoningForce(payload, "openrouter", "z-ai/glm-4.6:nitro", reasoningCfg(false))
	if !reflect.DeepEqual(out, payload) {
		t.Fatalf("expected payload unchanged, got %v", out)
	}
}

func TestReasoningForce_OverrideReplacesExistingState(t *testing.T) {
	payload := map[string]any{
		"model":     "z-ai/glm-4.6:nitro",
		"reasoning": map[string]any{"enabled": false, "effort": "low", "max_tokens": 64},
	}

	out := ApplyReasoningForce(payload, "openrouter", "z-ai/glm-4.6:nitro", reasoningCfg(true))

	reasoning := out["reasoning"].(map[string]any)
	if reasoning["enabled"] != true || reasoning["effort"] != "high" {
		t.Fatalf("unexpected reasoning: %v", reasoning)
	}
	// other fields survive the override
	if reasoning["max_tokens"] != 64 {
		t.Fatalf("expected extra reasoning fields preserved, got %v", reasoning)
	}
}

func TestReasoningForce_NoChangeWhenModelDoesNotMatch(t *testing.T) {
	payload := map[string]any{"model": "openai/gpt-4o-mini", "messages": []any{}}

	out := ApplyReasoningForce(payload, "openrouter", "openai/gpt-4o-mini", reasoningCfg(false))
	if !reflect.DeepEqual(out, payload) {
		t.Fatalf("expected payload unchanged, got %v", out)
	}
}

func TestReasoningForce_NoChangeForOtherProvider(t *testing.T) {
	payload := map[string]any{"model": "z-ai/glm-4.6:nitro", "messages": []any{}}

	out := ApplyReasoningForce(payload, "other-provider", "z-ai/glm-4.6:nitro", reasoningCfg(false))
	if !reflect.DeepEqual(out, payload) {
		t.Fatalf("expected payload unchanged, got %v", out)
	}
}

func TestReasoningForce_GlobPatterns(t *testing.T) {
	cases := []struct {
		pattern string
		model   string
		want    bool
	}{
		{"z-ai/*", "z-ai/glm-4.6:nitro", true},
		{"*:nitro", "z-ai/glm-4.6:nitro", true},
		{"z-ai/glm-4.?:nitro", "z-ai/glm-4.6:nitro", true},
		{"Z-AI/*", "z-ai/glm-4.6:nitro", false}, // case-sensitive
		{"openai/*", "z-ai/glm-4.6:nitro", false},
	}
	for _, tc := range cases {
		if got := modelMatches(tc.model, []string{tc.pattern}); got != tc.want {
			t.Errorf("pattern %q vs %q: got %v want %v", tc.pattern, tc.model, got, tc.want)
		}
	}
}

func injectionCfg() Config {
	return Config{EnableInjectionTag: true, InjectionTagName: "injection"}
}

func TestInjectionTag_ExtractsFromSystemAndAppendsToLast(t *testing.T) {
	payload := map[string]any{
		"messages": []any{
			map[string]any{
				"role":    "system",
				"content": "Base system. <injection>Think step-by-step before answering.</injection>",
			},
			map[string]any{"role": "user", "content": "What is 2+2?"},
		},
	}

	out := ApplyInjectionTag(payload, injectionCfg())

	msgs := out["messages"].([]any)
	sys := msgs[0].(map[string]any)["content"].(string)
	if strings.Contains(sys, "<injection>") {
		t.Fatalf("tag left in system content: %q", sys)
	}
	if !strings.Contains(sys, "Base system.") {
		t.Fatalf("system content lost: %q", sys)
	}
	last := msgs[1].(map[string]any)["content"].(string)
	if !strings.HasSuffix(last, "Think step-by-step before answering.") {
		t.Fatalf("extracted text not appended: %q", last)
	}
	// input untouched
	orig := payload["messages"].([]any)[0].(map[string]any)["content"].(string)
	if !strings.Contains(orig, "<injection>") {
		t.Fatalf("input payload was mutated")
	}
}

func TestInjectionTag_NoChangeWhenDisabled(t *testing.T) {
	payload := map[string]any{
		"messages": []any{
			map[string]any{"role": "system", "content": "<injection>secret</injection>"},
			map[string]any{"role": "user", "content": "hi"},
		},
	}

	out := ApplyInjectionTag(payload, Config{EnableInjectionTag: false})
	if !reflect.DeepEqual(out, payload) {
		t.Fatalf("expected payload unchanged, got %v", out)
	}
}

func TestInjectionTag_MultipleSystemTags(t *testing.T) {
	payload := map[string]any{
		"messages": []any{
			map[string]any{"role": "system", "content": "A <injection>first</injection> B"},
			map[string]any{"role": "system", "content": "C <injection>second</injection> D"},
			map[string]any{"role": "user", "content": "prompt"},
		},
	}

	out := ApplyInjectionTag(payload, injectionCfg())

	msgs := out["messages"].([]any)
	for i := 0; i < 2; i++ {
		content := msgs[i].(map[string]any)["content"].(string)
		if strings.Contains(content, "<injection>") {
			t.Fatalf("msg %d still has tag: %q", i, content)
		}
	}
	last := msgs[2].(map[string]any)["content"].(string)
	if !strings.Contains(last, "first") || !strings.Contains(last, "second") {
		t.Fatalf("extracted spans missing from last message: %q", last)
	}
	if strings.Index(last, "first") > strings.Index(last, "second") {
		t.Fatalf("spans out of discovery order: %q", last)
	}
}

func TestInjectionTag_CaseInsensitiveAndMultiline(t *testing.T) {
	payload := map[string]any{
		"messages": []any{
			map[string]any{"role": "system", "content": "X <INJECTION>line one\nline two</Injection> Y"},
			map[string]any{"role": "user", "content": "go"},
		},
	}

	out := ApplyInjectionTag(payload, injectionCfg())

	last := out["messages"].([]any)[1].(map[string]any)["content"].(string)
	if !strings.Contains(last, "line one\nline two") {
		t.Fatalf("multiline span not extracted: %q", last)
	}
}

func TestInjectionTag_StructuredLastMessage(t *testing.T) {
	payload := map[string]any{
		"messages": []any{
			map[string]any{"role": "system", "content": "<injection>hidden</injection>"},
			map[string]any{"role": "user", "content": []any{
				map[string]any{"type": "image_url", "image_url": "http://example.com/x.png"},
				map[string]any{"type": "text", "text": "describe this"},
			}},
		},
	}

	out := ApplyInjectionTag(payload, injectionCfg())

	parts := out["messages"].([]any)[1].(map[string]any)["content"].([]any)
	text := parts[1].(map[string]any)["text"].(string)
	if text != "describe this\n\nhidden" {
		t.Fatalf("unexpected text part: %q", text)
	}
}

func TestInjectionTag_StructuredLastMessageWithoutTextPart(t *testing.T) {
	payload := map[string]any{
		"messages": []any{
			map[string]any{"role": "system", "content": "<injection>hidden</injection>"},
			map[string]any{"role": "user", "content": []any{
				map[string]any{"type": "image_url", "image_url": "http://example.com/x.png"},
			}},
		},
	}

	out := ApplyInjectionTag(payload, injectionCfg())

	parts := out["messages"].([]any)[1].(map[string]any)["content"].([]any)
	if len(parts) != 2 {
		t.Fatalf("expected appended text part, got %v", parts)
	}
	added := parts[1].(map[string]any)
	if added["type"] != "text" || added["text"] != "hidden" {
		t.Fatalf("unexpected appended part: %v", added)
	}
}

func TestInjectionTag_NoTagsReturnsPayloadUnchanged(t *testing.T) {
	payload := map[string]any{
		"messages": []any{
			map[string]any{"role": "system", "content": "plain system"},
			map[string]any{"role": "user", "content": "hi"},
		},
	}

	out := ApplyInjectionTag(payload, injectionCfg())
	if !reflect.DeepEqual(out, payload) {
		t.Fatalf("expected payload unchanged, got %v", out)
	}
}

// Once no tags remain and reasoning state is settled, re-application
// is a no-op.
func TestApply_IdempotentAfterFirstPass(t *testing.T) {
	cfg := reasoningCfg(false)
	cfg.EnableInjectionTag = true
	cfg.InjectionTagName = "injection"

	payload := map[string]any{
		"model": "z-ai/glm-4.6:nitro",
		"messages": []any{
			map[string]any{"role": "system", "content": "Be terse. <injection>Use bullet points.</injection>"},
		},
	}

	once := Apply(payload, "openrouter", "z-ai/glm-4.6:nitro", cfg)
	twice := Apply(once, "openrouter", "z-ai/glm-4.6:nitro", cfg)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("transform not idempotent:\nonce:  %v\ntwice: %v", once, twice)
	}
}

// End-to-end scenario: both rules active against one payload.
func TestApply_ReasoningAndInjectionTogether(t *testing.T) {
	cfg := reasoningCfg(false)
	cfg.EnableInjectionTag = true
	cfg.InjectionTagName = "injection"

	payload := map[string]any{
		"model": "z-ai/glm-4.6:nitro",
		"messages": []any{
			map[string]any{"role": "system", "content": "Be terse. <injection>Use bullet points.</injection>"},
		},
	}

	out := Apply(payload, "openrouter", "z-ai/glm-4.6:nitro", cfg)

	msgs := out["messages"].([]any)
	sys := msgs[0].(map[string]any)["content"].(string)
	if strings.Contains(sys, "<injection>") {
		t.Fatalf("tag survived: %q", sys)
	}
	if !strings.HasSuffix(sys, "Use bullet points.") {
		t.Fatalf("last message does not end with extracted text: %q", sys)
	}
	reasoning := out["reasoning"].(map[string]any)
	if reasoning["enabled"] != true {
		t.Fatalf("reasoning not forced: %v", reasoning)
	}
}
