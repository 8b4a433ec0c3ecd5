package normalize

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// sortLocale orders keys the way a reader expects; numeric also orders digit runs by value
func sortLocale(keys []string, numeric bool) {
	opts := []collate.Option{collate.IgnoreCase}
	if numeric {
		opts = append(opts, collate.Numeric)
	}
	c := collate.New(language.English, opts...)
	sort.SliceStable(keys, func(i, j int) bool {
		return c.CompareString(keys[i], keys[j]) < 0
	})
}

// ordered puts names from preferred first (in that order), then the rest sorted
func ordered(keys map[string]struct{}, preferred []string, numeric bool) []string {
	out := make([]string, 0, len(keys))
	for _, name := range preferred {
		if _, ok := keys[name]; ok {
			out = append(out, name)
			delete(keys, name)
		}
	}

	rest := make([]string, 0, len(keys))
	for k := range keys {
		rest = append(rest, k)
	}
	sortLocale(rest, numeric)
	return append(out, rest...)
}

// AgentKeys lists the agents present in jsons or plain_texts, excluding the summary
func AgentKeys(env Envelope, preferred []string) []string {
	set := make(map[string]struct{}, len(env.Jsons)+len(env.PlainTexts))
	for k := range env.Jsons {
		set[k] = struct{}{}
	}
	for k := range env.PlainTexts {
		set[k] = struct{}{}
	}
	delete(set, SummaryKey)
	return ordered(set, preferred, false)
}

// DomainKeys lists the domains of domain_wise_jsons, canonical names first
func DomainKeys(env Envelope, canonical []string) []string {
	set := make(map[string]struct{}, len(env.DomainWiseJsons))
	for k := range env.DomainWiseJsons {
		set[k] = struct{}{}
	}
	return ordered(set, canonical, true)
}

// Summary is the pass/fail tally of an envelope
type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

func count(m map[string]interface{}, key string) (int, bool) {
	switch n := m[key].(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

// Summarize prefers the agent-provided summary counts and falls back to the passed flags of keys
func Summarize(env Envelope, keys []string) Summary {
	sum, _ := env.Jsons[SummaryKey].(map[string]interface{})

	total, ok := count(sum, "total_nodes")
	if !ok {
		total = len(keys)
	}

	passed, ok := count(sum, "passed_count")
	if !ok {
		passed = 0
		for _, k := range keys {
			if node, isMap := env.Jsons[k].(map[string]interface{}); isMap && truthy(node["passed"]) {
				passed++
			}
		}
	}

	failed, ok := count(sum, "failed_count")
	if !ok {
		failed = total - passed
		if failed < 0 {
			failed = 0
		}
	}
	return Summary{Total: total, Passed: passed, Failed: failed}
}

// AgentPassed reports an agent's verdict; nil when it gave none
func AgentPassed(env Envelope, key string) *bool {
	node, ok := env.Jsons[key].(map[string]interface{})
	if !ok {
		return nil
	}
	v, ok := node["passed"]
	if !ok {
		return nil
	}
	passed := truthy(v)
	return &passed
}

// AgentOutput is the agent's output field, or the whole node when it has none
func AgentOutput(env Envelope, key string) interface{} {
	node := env.Jsons[key]
	if m, ok := node.(map[string]interface{}); ok {
		if out, ok := m["output"]; ok && out != nil {
			return out
		}
	}
	return node
}

// JSONText renders a JSON node for display
func JSONText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "No output"
	case string:
		return SanitizeText(t)
	}
	return Indent(v)
}

// PlainText renders a plain text node for display, or missing when there is none
func PlainText(v interface{}, missing string) string {
	switch t := v.(type) {
	case nil:
		return missing
	case string:
		if t == "" {
			return missing
		}
		return CleanPlain(t)
	}
	return CleanPlain(Indent(v))
}

// HasDomainContent reports whether a domain has any JSON or non-blank text to show
func HasDomainContent(env Envelope, key string) bool {
	switch j := env.DomainWiseJsons[key].(type) {
	case nil:
	case string:
		return true
	case map[string]interface{}:
		if len(j) > 0 {
			return true
		}
	default:
		return true
	}
	p, ok := env.DomainWiseTexts[key].(string)
	return ok && strings.TrimSpace(p) != ""
}
