package vcr

import (
	"fmt"
	"net/url"
	"strings"
)

// FormParams is the 'f' action's replay parameter tuple: spec §4.4's
// "(form_name, form_action, form_method, field_script)". FormMatch is matched against
// the form's action attribute only (see selectForm); the form's name and id are not
// recorded or consulted.
type FormParams struct {
	FormMatch   string
	FieldScript map[string]FieldSpec
}

// selectForm finds a unique form by a case-insensitive substring match against its
// action attribute; form name and id attributes are not parsed, so they cannot be
// matched. An empty match selects the page's only form. Exactly one candidate must
// match; ambiguity or absence is a ReplayFailure in every mode.
func selectForm(forms []Form, match string) (*Form, error) {
	if match == "" && len(forms) == 1 {
		return &forms[0], nil
	}
	var candidates []*Form
	lower := strings.ToLower(match)
	for i := range forms {
		f := &forms[i]
		if strings.Contains(strings.ToLower(f.Action), lower) {
			candidates = append(candidates, f)
		}
	}
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return nil, fmt.Errorf("%w: select form: no form matches %q", ErrReplayFailure, match)
	default:
		return nil, fmt.Errorf("%w: select form: %d forms match %q", ErrReplayFailure, len(candidates), match)
	}
}

// matchOne implements link/element disambiguation: an item matches when its text
// contains matcher, compared case-insensitively, and exactly one item must match;
// zero or multiple matches raise ReplayFailure. The interactive flag is not consulted:
// Record mode gets the same single-match rule and no re-prompt.
func matchOne[T any](items []T, matcher string, interactive bool, text func(T) string) (T, error) {
	var zero T
	lower := strings.ToLower(matcher)
	var matches []T
	for _, item := range items {
		if strings.Contains(strings.ToLower(text(item)), lower) {
			matches = append(matches, item)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return zero, fmt.Errorf("%w: no element matches %q", ErrReplayFailure, matcher)
	default:
		return zero, fmt.Errorf("%w: %d elements match %q", ErrReplayFailure, len(matches), matcher)
	}
}

// buildSubmission implements spec §4.4's "Form submission details": at most one
// pressed submit button, excluded unchecked radios, current defaults for every other
// field, then the field_script overlay (s/u/o/n/as/au/ao/an).
func buildSubmission(form Form, script map[string]FieldSpec, session *Session) (url.Values, string, error) {
	present := make(map[string]bool, len(form.Fields))
	for _, f := range form.Fields {
		present[f.Name] = true
	}

	values := url.Values{}
	submitUsed := false

	for _, f := range form.Fields {
		switch f.Type {
		case "submit":
			if submitUsed || f.Name == "" {
				continue
			}
			// Only the pressed submit button is sent; without an interactive
			// press signal, replay sends none, matching "at most one".
			continue
		case "radio":
			if !f.Checked {
				continue
			}
			values.Set(f.Name, f.Value)
		case "checkbox":
			if !f.Checked {
				continue
			}
			values.Set(f.Name, f.Value)
		default:
			if f.Name != "" {
				values.Set(f.Name, f.Value)
			}
		}
	}

	for name, spec := range script {
		// A non-"a"-prefixed spec targets a field expected to exist in the live
		// form; per spec §4.4 an "a"-prefix means "field not present... add it".
		// A mismatch here (the recorded field vanished from the live form) is
		// exactly the S6 scenario's ReplayFailure.
		if !spec.Add && !present[name] {
			return nil, "", fmt.Errorf("%w: field %q not present in live form", ErrReplayFailure, name)
		}
		literal, err := session.resolveFieldSpec(spec)
		if err != nil {
			return nil, "", err
		}
		values.Set(name, literal)
	}

	return values, form.Method, nil
}

// hostOf extracts the bare host (no port) from a URL, used to scope basic-auth
// handlers by host; the scope URL's path is discarded, not directory-truncated.
func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}
