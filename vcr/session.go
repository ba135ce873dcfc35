package vcr

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
)

// Session owns the credential triple, the current navigation State, the action
// history, and the HTTP client for one URL-VCR run. Per spec §4.4: "A session owns a
// credential triple (username, oldpass, newpass) (each optional, filled lazily)."
type Session struct {
	ID uuid.UUID

	table *ActionTable
	ui    UI
	client *Client

	root    *State
	current *State

	// history is the stack of applied actions, used to roll back on ReplayFailure
	// (spec §4.4: "A ReplayFailure in any action restores the previous state (pop)
	// and propagates").
	history []historyEntry

	username *string
	oldpass  *string
	newpass  *string

	interactive bool
	quit        bool

	fixtures map[string][]byte

	// Logger receives a redacted one-line transcript of every applied action when
	// non-nil. It is nil by default: transcript logging is opt-in, per spec §7 the
	// redaction rule only governs what gets logged IF logging happens.
	Logger *log.Logger
}

type historyEntry struct {
	action Action
	prior  *State
}

// NewSession creates a Session in the given mode, with a fresh root State and cookie
// jar. interactive (with a non-nil ui) lets a missing credential be prompted for when a
// field spec needs it; otherwise a missing credential is a ReplayFailure. Link and form
// matching use the same single-match rule in both modes.
func NewSession(table *ActionTable, ui UI, interactive bool) (*Session, error) {
	root, err := NewRootState()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:          uuid.New(),
		table:       table,
		ui:          ui,
		client:      NewClient(root.Jar()),
		root:        root,
		current:     root,
		interactive: interactive,
		fixtures:    make(map[string][]byte),
	}, nil
}

// SetCredentials fills the session's credential triple; any of the three may be left
// nil and, in an interactive session, prompted for lazily when a field_script
// substitution needs it.
func (s *Session) SetCredentials(username, oldpass, newpass *string) {
	s.username, s.oldpass, s.newpass = username, oldpass, newpass
}

// RegisterFixture installs a local fixture body for the '#' debug action.
func (s *Session) RegisterFixture(tag string, body []byte) {
	s.fixtures[tag] = body
}

// Current returns the session's current navigation State.
func (s *Session) Current() *State { return s.current }

// Done reports whether a 'q' action has ended the session.
func (s *Session) Done() bool { return s.quit }

// resolveFieldSpec turns a FieldSpec into a literal value, substituting from the
// credential triple per spec §4.4 ("u/o/n substitute live username/oldpass/newpass,
// prompting if missing").
func (s *Session) resolveFieldSpec(spec FieldSpec) (string, error) {
	switch spec.Kind {
	case "s":
		return spec.Literal, nil
	case "u":
		return s.resolveCredential(&s.username, "username")
	case "o":
		return s.resolveCredential(&s.oldpass, "old password")
	case "n":
		return s.resolveCredential(&s.newpass, "new password")
	default:
		return "", fmt.Errorf("%w: unknown field spec kind %q", ErrReplayFailure, spec.Kind)
	}
}

func (s *Session) resolveCredential(slot **string, label string) (string, error) {
	if *slot != nil {
		return **slot, nil
	}
	if !s.interactive || s.ui == nil {
		return "", fmt.Errorf("%w: %s required but not supplied", ErrReplayFailure, label)
	}
	value, err := s.ui.Prompt(label)
	if err != nil {
		return "", err
	}
	*slot = &value
	return value, nil
}

// fetchInto issues a GET for target from state, pushing a new State on success.
func (s *Session) fetchInto(ctx context.Context, state *State, target string, useReferer bool) (*State, error) {
	referer := ""
	if ref, ok := state.OverrideReferer(); ok {
		referer = ref
	} else if useReferer {
		referer = state.URL()
	}
	status, body, finalURL, err := s.client.do(ctx, request{
		method:  "GET",
		url:     target,
		referer: referer,
		agent:   state.UserAgent(),
	})
	if err != nil {
		return nil, err
	}
	_ = status
	return state.Push(finalURL, body), nil
}

// savePage writes body to filename, implementing the 'w' action.
func (s *Session) savePage(filename string, body []byte) error {
	return os.WriteFile(filename, body, 0o600)
}

// Apply runs one action by code against the session's current state, updating
// s.current and s.history. It is used by both Record (interactively chosen actions)
// and Replay (decoded script steps) after params have been determined.
func (s *Session) Apply(ctx context.Context, code string, params Params) error {
	action, ok := s.table.Lookup(code)
	if !ok {
		return fmt.Errorf("%w: unknown action code %q", ErrReplayFailure, code)
	}
	if !action.Valid(s.current) {
		return fmt.Errorf("%w: action %q not valid from current state", ErrReplayFailure, code)
	}

	prior := s.current
	next, err := action.Apply(ctx, s, s.current, params)
	if err != nil {
		if action.ChangesState() {
			s.current = prior
		}
		s.logTranscript(code, prior, fmt.Sprintf("error: %v", err))
		return err
	}

	s.history = append(s.history, historyEntry{action: action, prior: prior})
	s.current = next
	s.logTranscript(code, next, "ok")
	return nil
}

// logTranscript emits one redacted transcript line if s.Logger is set. The live
// credential triple is scrubbed from both the URL and the status text before
// anything reaches the logger.
func (s *Session) logTranscript(code string, state *State, status string) {
	if s.Logger == nil {
		return
	}
	url := ""
	if state != nil {
		url = state.URL()
	}
	s.Logger.Printf("vcr session=%s action=%q url=%q status=%q", s.ID, code, s.redact(url), s.redact(status))
}

// Replay runs every step from it in order. Any failure restores the state that was
// current before the failing step and returns ErrReplayFailure (wrapped with
// context), per spec §4.4's "Replay failure policy": "A ReplayFailure in any action
// restores the previous state (pop) and propagates."
func (s *Session) Replay(ctx context.Context, it *ActionIterator) error {
	for {
		step, ok := it.Next()
		if !ok {
			return nil
		}
		if err := s.Apply(ctx, step.Code, step.Params); err != nil {
			return fmt.Errorf("replay step %q: %w", step.Code, err)
		}
		if s.Done() {
			return nil
		}
	}
}

// Undo pops the last applied state-changing action, restoring the prior state. It is
// the programmatic counterpart of the 'u' action for driving code (Record mode UIs)
// that need to roll back without going through the action table.
func (s *Session) Undo() bool {
	for i := len(s.history) - 1; i >= 0; i-- {
		entry := s.history[i]
		if entry.action.ChangesState() {
			s.current = entry.prior
			s.history = s.history[:i]
			return true
		}
	}
	return false
}
