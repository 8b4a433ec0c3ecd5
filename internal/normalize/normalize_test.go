package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVariants(t *testing.T) {
	tests := []struct {
		name    string
		raw     interface{}
		variant Variant
		jsons   int
	}{
		{"canonical text", `{"jsons":{"Document Checker":{"passed":true}},"plain_texts":{}}`, VariantCanonical, 1},
		{"data wrapped", `{"data":{"jsons":{"A":{}, "B":{}}}}`, VariantDataWrapped, 2},
		{"array wrapped", `[{"other":1},{"data":{"plain_texts":{"A":"x"}}}]`, VariantArrayWrapped, 0},
		{"array without host", `[1,2,3]`, VariantArrayWrapped, 0},
		{"plain object", `{"status":"ok"}`, VariantObject, 0},
		{"not json", "analysis complete", VariantFallback, 1},
		{"number", []byte("42"), VariantFallback, 1},
		{"decoded map", map[string]interface{}{"jsons": map[string]interface{}{"A": true}}, VariantCanonical, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.raw)
			assert.Equal(t, tt.variant, res.Variant)
			assert.Len(t, res.Envelope.Jsons, tt.jsons)
			assert.NotNil(t, res.Envelope.PlainTexts)
			assert.NotNil(t, res.Envelope.DomainWiseJsons)
			assert.NotNil(t, res.Envelope.DomainWiseTexts)
		})
	}
}

func TestParseFallbackShapes(t *testing.T) {
	env := Normalize("analysis complete")
	assert.Equal(t, "analysis complete", env.Jsons[ResponseKey])
	assert.Equal(t, "analysis complete", env.PlainTexts[ResponseKey])

	env = Normalize(json.RawMessage(`true`))
	assert.Equal(t, true, env.Jsons[ResponseKey])
	assert.Equal(t, "true", env.PlainTexts[ResponseKey])

	env = Normalize(`"quoted"`)
	assert.Equal(t, "quoted", env.PlainTexts[ResponseKey])
}

func TestParseIsIdempotent(t *testing.T) {
	inputs := []interface{}{
		`{"data":{"jsons":{"A":{"passed":false}},"domain_wise_jsons":{"Air":{"x":1}}}}`,
		`[{"jsons":{"B":"text"}}]`,
		`{"unrelated":true}`,
		"free text",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		assert.Equal(t, once, twice)

		raw, err := json.Marshal(once)
		require.NoError(t, err)
		assert.Equal(t, once, Normalize(raw))
	}
}

func TestAgentKeysOrder(t *testing.T) {
	env := Normalize(`{
		"jsons": {"summary": {}, "zeta": {}, "EPA rule book": {}, "alpha": {}},
		"plain_texts": {"Document Checker": "ok", "Beta": "x"}
	}`)
	preferred := []string{"Document Checker", "Sample Adequacy", "EPA rule book"}
	assert.Equal(t, []string{"Document Checker", "EPA rule book", "alpha", "Beta", "zeta"}, AgentKeys(env, preferred))
}

func TestDomainKeysNumericOrder(t *testing.T) {
	env := Normalize(`{"domain_wise_jsons": {"Domain 10": {}, "Domain 2": {}, "Water": {}, "Air": {}}}`)
	assert.Equal(t, []string{"Water", "Air", "Domain 2", "Domain 10"}, DomainKeys(env, []string{"Water", "Air", "Soil"}))
	assert.Equal(t, []string{"Air", "Domain 2", "Domain 10", "Water"}, DomainKeys(env, nil))
}

func TestSummarize(t *testing.T) {
	env := Normalize(`{"jsons": {"summary": {"total_nodes": 6, "passed_count": 4, "failed_count": 2}}}`)
	assert.Equal(t, Summary{Total: 6, Passed: 4, Failed: 2}, Summarize(env, nil))

	env = Normalize(`{"jsons": {"A": {"passed": true}, "B": {"passed": false}, "C": "text"}}`)
	keys := AgentKeys(env, nil)
	assert.Equal(t, Summary{Total: 3, Passed: 1, Failed: 2}, Summarize(env, keys))

	env = Normalize(`{"jsons": {"summary": {"total_nodes": 1, "passed_count": 3}}}`)
	assert.Equal(t, Summary{Total: 1, Passed: 3, Failed: 0}, Summarize(env, nil))
}

func TestAgentVerdictAndOutput(t *testing.T) {
	env := Normalize(`{"jsons": {"A": {"passed": 1, "output": {"k": "v"}}, "B": {"output": null}, "C": "plain"}}`)

	require.NotNil(t, AgentPassed(env, "A"))
	assert.True(t, *AgentPassed(env, "A"))
	assert.Nil(t, AgentPassed(env, "B"))
	assert.Nil(t, AgentPassed(env, "C"))

	assert.Equal(t, map[string]interface{}{"k": "v"}, AgentOutput(env, "A"))
	assert.Equal(t, map[string]interface{}{"output": nil}, AgentOutput(env, "B"))
	assert.Equal(t, "plain", AgentOutput(env, "C"))
	assert.Nil(t, AgentOutput(env, "missing"))

	assert.Equal(t, "No output", JSONText(nil))
	assert.Equal(t, "{\n  \"k\": \"v\"\n}", JSONText(map[string]interface{}{"k": "v"}))
	assert.Equal(t, "No plain text available", PlainText(nil, "No plain text available"))
}

func TestHasDomainContent(t *testing.T) {
	env := Normalize(`{"domain_wise_jsons": {"A": {}, "B": {"x": 1}, "C": "t", "D": null}, "domain_wise_texts": {"A": "  ", "D": "notes"}}`)
	assert.False(t, HasDomainContent(env, "A"))
	assert.True(t, HasDomainContent(env, "B"))
	assert.True(t, HasDomainContent(env, "C"))
	assert.True(t, HasDomainContent(env, "D"))
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "Passed check", SanitizeText("  Passed\u200b check \u2705\ufe0f "))
	assert.Equal(t, "ABC", SanitizeText("\uff21\uff22\uff23"))
	assert.Equal(t, "line1\nline2", SanitizeText("line1\x00\nline2\x07"))
	assert.Equal(t, "fine", SanitizeText("\U0001F680 fine"))
	assert.Equal(t, "quoted text", CleanPlain(`  "'quoted text`))
}
