// normalize.go
//
// A compliance report review and analysis-agent gateway service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of reportdesk.
// reportdesk is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// reportdesk is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with reportdesk.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

// Package normalize turns the many shapes an analysis agent may answer with
// into one canonical envelope.
package normalize

import (
	"encoding/json"
)

// Canonical envelope keys
const (
	KeyJsons           = "jsons"
	KeyPlainTexts      = "plain_texts"
	KeyDomainWiseJsons = "domain_wise_jsons"
	KeyDomainWiseTexts = "domain_wise_texts"

	// SummaryKey holds aggregate counts inside jsons and is never an agent
	SummaryKey = "summary"
	// ResponseKey is the single entry of a fallback envelope
	ResponseKey = "Response"
)

var canonicalKeys = []string{KeyJsons, KeyPlainTexts, KeyDomainWiseJsons, KeyDomainWiseTexts}

// Variant records which input shape was recognized
type Variant string

const (
	VariantCanonical    Variant = "canonical"
	VariantDataWrapped  Variant = "data_wrapped"
	VariantArrayWrapped Variant = "array_wrapped"
	VariantObject       Variant = "object"
	VariantFallback     Variant = "fallback"
)

// Envelope is the canonical agent response. Maps are never nil.
type Envelope struct {
	Jsons           map[string]interface{} `json:"jsons"`
	PlainTexts      map[string]interface{} `json:"plain_texts"`
	DomainWiseJsons map[string]interface{} `json:"domain_wise_jsons"`
	DomainWiseTexts map[string]interface{} `json:"domain_wise_texts"`
}

// Empty returns an envelope with four empty maps
func Empty() Envelope {
	return Envelope{
		Jsons:           map[string]interface{}{},
		PlainTexts:      map[string]interface{}{},
		DomainWiseJsons: map[string]interface{}{},
		DomainWiseTexts: map[string]interface{}{},
	}
}

// Result is an envelope and the shape it came from
type Result struct {
	Envelope Envelope
	Variant  Variant
}

// decode turns raw input into a generic JSON value. Text that is not JSON stays a string.
func decode(raw interface{}) interface{} {
	var text []byte
	switch v := raw.(type) {
	case Envelope:
		return toGeneric(v)
	case *Envelope:
		if v == nil {
			return nil
		}
		return toGeneric(*v)
	case json.RawMessage:
		text = v
	case []byte:
		text = v
	case string:
		text = []byte(v)
	default:
		return raw
	}

	var out interface{}
	if err := json.Unmarshal(text, &out); err != nil {
		return string(text)
	}
	return out
}

func toGeneric(e Envelope) interface{} {
	return map[string]interface{}{
		KeyJsons:           e.Jsons,
		KeyPlainTexts:      e.PlainTexts,
		KeyDomainWiseJsons: e.DomainWiseJsons,
		KeyDomainWiseTexts: e.DomainWiseTexts,
	}
}

// truthy follows the loose truthiness agent payloads are written against
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	}
	return true
}

func isCanonical(m map[string]interface{}) bool {
	for _, k := range canonicalKeys {
		if truthy(m[k]) {
			return true
		}
	}
	return false
}

// host finds the canonical object in x, directly or under "data"
func host(x interface{}) (map[string]interface{}, Variant, bool) {
	m, ok := x.(map[string]interface{})
	if !ok {
		return nil, "", false
	}
	if isCanonical(m) {
		return m, VariantCanonical, true
	}
	if data, ok := m["data"].(map[string]interface{}); ok && isCanonical(data) {
		return data, VariantDataWrapped, true
	}
	return nil, "", false
}

func section(m map[string]interface{}, key string) map[string]interface{} {
	if sub, ok := m[key].(map[string]interface{}); ok && sub != nil {
		return sub
	}
	return map[string]interface{}{}
}

func fromHost(m map[string]interface{}) Envelope {
	return Envelope{
		Jsons:           section(m, KeyJsons),
		PlainTexts:      section(m, KeyPlainTexts),
		DomainWiseJsons: section(m, KeyDomainWiseJsons),
		DomainWiseTexts: section(m, KeyDomainWiseTexts),
	}
}

// Parse normalizes any agent response. It never fails: unrecognized objects give an
// empty envelope and scalars become a single "Response" entry.
func Parse(raw interface{}) Result {
	value := decode(raw)

	switch v := value.(type) {
	case []interface{}:
		for _, item := range v {
			if m, _, ok := host(item); ok {
				return Result{Envelope: fromHost(m), Variant: VariantArrayWrapped}
			}
		}
		return Result{Envelope: Empty(), Variant: VariantArrayWrapped}

	case map[string]interface{}:
		if m, variant, ok := host(v); ok {
			return Result{Envelope: fromHost(m), Variant: variant}
		}
		return Result{Envelope: Empty(), Variant: VariantObject}
	}

	env := Empty()
	env.Jsons[ResponseKey] = value
	if s, ok := value.(string); ok {
		env.PlainTexts[ResponseKey] = s
	} else {
		env.PlainTexts[ResponseKey] = Indent(value)
	}
	return Result{Envelope: env, Variant: VariantFallback}
}

// Normalize is Parse without the variant
func Normalize(raw interface{}) Envelope {
	return Parse(raw).Envelope
}

// Indent renders v as two-space indented JSON
func Indent(v interface{}) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(out)
}
