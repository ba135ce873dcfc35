package vcr

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ScriptStep is one decoded `[code, params]` entry from an action script, per spec
// §6: "JSON array of [code, params] pairs... params is either a string, null, an
// integer, or a tuple as specified per action."
type ScriptStep struct {
	Code   string
	Params Params
}

// wireStep is the raw two-element JSON array shape a ScriptStep marshals to/from.
type wireStep [2]json.RawMessage

// EncodeScript serializes steps to the base64'd single line spec §6 describes for
// clipboard transfer: "encoded then base64'd to a single line."
func EncodeScript(steps []ScriptStep) (string, error) {
	raw := make([][2]interface{}, len(steps))
	for i, step := range steps {
		raw[i] = [2]interface{}{step.Code, encodeParams(step.Params)}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("vcr: encode script: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeScript parses a base64'd script line back into steps.
func DecodeScript(encoded string) ([]ScriptStep, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("vcr: decode script: base64: %w", err)
	}

	var raw []wireStep
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("vcr: decode script: %w", err)
	}

	steps := make([]ScriptStep, len(raw))
	for i, entry := range raw {
		var code string
		if err := json.Unmarshal(entry[0], &code); err != nil {
			return nil, fmt.Errorf("vcr: decode script: step %d code: %w", i, err)
		}
		params, err := decodeParams(code, entry[1])
		if err != nil {
			return nil, fmt.Errorf("vcr: decode script: step %d params: %w", i, err)
		}
		steps[i] = ScriptStep{Code: code, Params: params}
	}
	return steps, nil
}

// encodeParams converts a Params value to its JSON-ready form for action codes whose
// params are a struct rather than a bare string/int/null.
func encodeParams(p Params) interface{} {
	switch v := p.(type) {
	case FormParams:
		script := make(map[string][2]string, len(v.FieldScript))
		for name, spec := range v.FieldScript {
			script[name] = [2]string{fieldSpecCode(spec), spec.Literal}
		}
		return map[string]interface{}{
			"form_match":   v.FormMatch,
			"field_script": script,
		}
	case BasicAuthParams:
		return map[string]interface{}{
			"scheme":    v.Scheme,
			"realm":     v.Realm,
			"scope_url": v.ScopeURL,
			"user":      [2]string{fieldSpecCode(v.UserSpec), v.UserSpec.Literal},
			"pass":      [2]string{fieldSpecCode(v.PassSpec), v.PassSpec.Literal},
		}
	default:
		return p
	}
}

func fieldSpecCode(spec FieldSpec) string {
	if spec.Add {
		return "a" + spec.Kind
	}
	return spec.Kind
}

func decodeFieldSpec(code, literal string) FieldSpec {
	if len(code) == 2 && code[0] == 'a' {
		return FieldSpec{Kind: code[1:], Literal: literal, Add: true}
	}
	return FieldSpec{Kind: code, Literal: literal}
}

// decodeParams reconstructs the action-specific Params shape for code from its raw
// JSON form.
func decodeParams(code string, raw json.RawMessage) (Params, error) {
	if string(raw) == "null" {
		return nil, nil
	}
	switch code {
	case "f":
		var wire struct {
			FormMatch   string              `json:"form_match"`
			FieldScript map[string][2]string `json:"field_script"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		script := make(map[string]FieldSpec, len(wire.FieldScript))
		for name, pair := range wire.FieldScript {
			script[name] = decodeFieldSpec(pair[0], pair[1])
		}
		return FormParams{FormMatch: wire.FormMatch, FieldScript: script}, nil
	case "a":
		var wire struct {
			Scheme   string    `json:"scheme"`
			Realm    string    `json:"realm"`
			ScopeURL string    `json:"scope_url"`
			User     [2]string `json:"user"`
			Pass     [2]string `json:"pass"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		return BasicAuthParams{
			Scheme:   wire.Scheme,
			Realm:    wire.Realm,
			ScopeURL: wire.ScopeURL,
			UserSpec: decodeFieldSpec(wire.User[0], wire.User[1]),
			PassSpec: decodeFieldSpec(wire.Pass[0], wire.Pass[1]),
		}, nil
	case "b":
		var n int
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		return n, nil
	default:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	}
}
