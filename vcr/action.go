package vcr

import (
	"context"
	"fmt"
	"strings"
)

// UI is the interactive half of Action.AskParams: it lets an action ask the operator
// for input during Record mode (never called during Replay). Design Notes §9's
// "explicit current-state accessor methods; no magic delegation" mandate applies here
// too — an Action talks to the UI and the State through explicit parameters, never
// through an ambient global.
type UI interface {
	Prompt(label string) (string, error)
	Choose(label string, options []string) (int, error)
	Show(body []byte)
}

// Action is one entry in the taxonomy described by spec §4.4's table: code, name,
// three flags, and four operations. Implementations are registered in an ActionTable
// that is constructed and injected explicitly — Design Notes §9 calls out "injected
// ActionTable (no global registry)" as the Go-idiomatic replacement for whatever
// module-level dispatch dict the original used.
type Action interface {
	// Code is the single-character serialized tag (spec §4.4's "codes are the
	// serialized tags; do not reassign without a schema-version bump").
	Code() string
	// ChangesState reports whether the driver must push a new State before Apply.
	ChangesState() bool
	// UseReferer reports whether this action's originating request should carry an
	// auto-Referer from the parent state's URL.
	UseReferer() bool
	// Valid reports whether this action is offered from the given state.
	Valid(state *State) bool
	// AskParams interactively captures parameters in Record mode; never called
	// during Replay, where params are taken from the serialized script instead.
	AskParams(ctx context.Context, ui UI, state *State) (Params, error)
	// Apply executes the action against state, returning the State to become
	// current (itself, for non-state-changing actions; a pushed child otherwise).
	Apply(ctx context.Context, session *Session, state *State, params Params) (*State, error)
}

// Params is the decoded parameter value for one action invocation; its concrete
// shape (string, nil, int, or a struct) depends on the action, per spec §6: "params
// is either a string, null, an integer, or a tuple as specified per action."
type Params interface{}

// ActionTable maps action codes to their Action implementation. It is built once
// (see NewActionTable) and passed into a Session explicitly, rather than consulted
// through a package-level registry.
type ActionTable struct {
	actions map[string]Action
}

// NewActionTable builds the standard ActionTable covering every code in spec §4.4's
// table (g,l,f,m,b,r,R,t,a,v,w,x,u,q,#).
func NewActionTable() *ActionTable {
	t := &ActionTable{actions: make(map[string]Action)}
	for _, a := range []Action{
		gotoAction{},
		followLinkAction{},
		submitFormAction{},
		enterFrameAction{},
		backAction{},
		refreshAction{},
		overrideRefererAction{},
		overrideAgentAction{},
		basicAuthAction{},
		validateAction{},
		savePageAction{},
		viewAction{},
		undoAction{},
		quitAction{},
		debugAction{},
	} {
		t.actions[a.Code()] = a
	}
	return t
}

// Lookup returns the Action registered for code, if any.
func (t *ActionTable) Lookup(code string) (Action, bool) {
	a, ok := t.actions[code]
	return a, ok
}

// ActionIterator walks a recorded or offered action sequence with an explicit Next
// method, per Design Notes §9's "explicit ActionIterator.Next() (no generators)"
// mandate — replacing whatever Python generator drove action selection.
type ActionIterator struct {
	steps []ScriptStep
	pos   int
}

// NewActionIterator wraps a decoded script for sequential replay.
func NewActionIterator(steps []ScriptStep) *ActionIterator {
	return &ActionIterator{steps: steps}
}

// Next returns the next step and true, or a zero step and false at the end.
func (it *ActionIterator) Next() (ScriptStep, bool) {
	if it.pos >= len(it.steps) {
		return ScriptStep{}, false
	}
	step := it.steps[it.pos]
	it.pos++
	return step, true
}

// Remaining reports how many steps have not yet been consumed.
func (it *ActionIterator) Remaining() int { return len(it.steps) - it.pos }

// --- g: goto -----------------------------------------------------------------

type gotoAction struct{}

func (gotoAction) Code() string              { return "g" }
func (gotoAction) ChangesState() bool        { return true }
func (gotoAction) UseReferer() bool          { return false }
func (gotoAction) Valid(state *State) bool   { return true }

func (gotoAction) AskParams(ctx context.Context, ui UI, state *State) (Params, error) {
	return ui.Prompt("URL to load")
}

func (gotoAction) Apply(ctx context.Context, session *Session, state *State, params Params) (*State, error) {
	target, ok := params.(string)
	if !ok || target == "" {
		return nil, fmt.Errorf("%w: goto requires a url parameter", ErrReplayFailure)
	}
	status, body, finalURL, err := session.client.do(ctx, request{
		method: "GET",
		url:    target,
		agent:  state.UserAgent(),
	})
	if err != nil {
		return nil, err
	}
	_ = status
	return state.Push(finalURL, body), nil
}

// --- l: follow link ------------------------------------------------------------

type followLinkAction struct{}

func (followLinkAction) Code() string            { return "l" }
func (followLinkAction) ChangesState() bool      { return true }
func (followLinkAction) UseReferer() bool        { return true }
func (followLinkAction) Valid(state *State) bool { return state.URL() != "" }

func (followLinkAction) AskParams(ctx context.Context, ui UI, state *State) (Params, error) {
	return ui.Prompt("link text or href substring")
}

func (followLinkAction) Apply(ctx context.Context, session *Session, state *State, params Params) (*State, error) {
	matcher, _ := params.(string)
	links, _ := parsePage(state.Body(), state.URL())

	match, err := matchOne(links, matcher, session.interactive, func(l Link) string { return l.Text + " " + l.Href })
	if err != nil {
		return nil, err
	}

	target, err := resolveURL(state.URL(), match.Href)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving link href: %v", ErrReplayFailure, err)
	}
	return session.fetchInto(ctx, state, target, true)
}

// --- f: submit form --------------------------------------------------------------

type submitFormAction struct{}

func (submitFormAction) Code() string            { return "f" }
func (submitFormAction) ChangesState() bool      { return true }
func (submitFormAction) UseReferer() bool        { return true }
func (submitFormAction) Valid(state *State) bool { return state.URL() != "" }

func (submitFormAction) AskParams(ctx context.Context, ui UI, state *State) (Params, error) {
	name, err := ui.Prompt("form action substring")
	if err != nil {
		return nil, err
	}
	return FormParams{FormMatch: name}, nil
}

func (submitFormAction) Apply(ctx context.Context, session *Session, state *State, params Params) (*State, error) {
	fp, ok := params.(FormParams)
	if !ok {
		return nil, fmt.Errorf("%w: submit form requires FormParams", ErrReplayFailure)
	}
	_, forms := parsePage(state.Body(), state.URL())

	form, err := selectForm(forms, fp.FormMatch)
	if err != nil {
		return nil, err
	}

	values, method, err := buildSubmission(*form, fp.FieldScript, session)
	if err != nil {
		return nil, err
	}

	action := form.Action
	if action == "" {
		action = state.URL()
	}
	target, err := resolveURL(state.URL(), action)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving form action: %v", ErrReplayFailure, err)
	}

	if method == "GET" {
		target = target + "?" + values.Encode()
		return session.fetchInto(ctx, state, target, true)
	}

	status, body, finalURL, err := session.client.do(ctx, request{
		method:  "POST",
		url:     target,
		body:    []byte(values.Encode()),
		referer: refererFor(submitFormAction{}, state),
		agent:   state.UserAgent(),
	})
	if err != nil {
		return nil, err
	}
	_ = status
	return state.Push(finalURL, body), nil
}

// --- m: enter frame --------------------------------------------------------------

type enterFrameAction struct{}

func (enterFrameAction) Code() string            { return "m" }
func (enterFrameAction) ChangesState() bool      { return true }
func (enterFrameAction) UseReferer() bool        { return true }
func (enterFrameAction) Valid(state *State) bool { return state.URL() != "" }

func (enterFrameAction) AskParams(ctx context.Context, ui UI, state *State) (Params, error) {
	src, err := ui.Prompt("frame src")
	if err != nil {
		return nil, err
	}
	return src, nil
}

func (enterFrameAction) Apply(ctx context.Context, session *Session, state *State, params Params) (*State, error) {
	src, _ := params.(string)
	target, err := resolveURL(state.URL(), src)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving frame src: %v", ErrReplayFailure, err)
	}
	return session.fetchInto(ctx, state, target, true)
}

// --- b: back -----------------------------------------------------------------

type backAction struct{}

func (backAction) Code() string            { return "b" }
func (backAction) ChangesState() bool      { return true }
func (backAction) UseReferer() bool        { return false }
func (backAction) Valid(state *State) bool { return state.Parent() != nil }

func (backAction) AskParams(ctx context.Context, ui UI, state *State) (Params, error) {
	return 1, nil
}

func (backAction) Apply(ctx context.Context, session *Session, state *State, params Params) (*State, error) {
	count, _ := params.(int)
	if count <= 0 {
		count = 1
	}
	target := state
	for i := 0; i < count && target.Parent() != nil; i++ {
		target = target.Parent()
	}
	if target == nil || target.URL() == "" {
		return nil, fmt.Errorf("%w: back walked past the root state", ErrReplayFailure)
	}
	status, body, finalURL, err := session.client.do(ctx, request{
		method: "GET",
		url:    target.URL(),
		agent:  state.UserAgent(),
	})
	if err != nil {
		return nil, err
	}
	_ = status
	return state.Push(finalURL, body), nil
}

// --- r: refresh -----------------------------------------------------------------

type refreshAction struct{}

func (refreshAction) Code() string            { return "r" }
func (refreshAction) ChangesState() bool      { return true }
func (refreshAction) UseReferer() bool        { return true }
func (refreshAction) Valid(state *State) bool { return state.URL() != "" }

func (refreshAction) AskParams(ctx context.Context, ui UI, state *State) (Params, error) {
	return nil, nil
}

func (refreshAction) Apply(ctx context.Context, session *Session, state *State, params Params) (*State, error) {
	return session.fetchInto(ctx, state, state.URL(), true)
}

// --- R: override referer --------------------------------------------------------

type overrideRefererAction struct{}

func (overrideRefererAction) Code() string            { return "R" }
func (overrideRefererAction) ChangesState() bool      { return false }
func (overrideRefererAction) UseReferer() bool        { return true }
func (overrideRefererAction) Valid(state *State) bool { return true }

func (overrideRefererAction) AskParams(ctx context.Context, ui UI, state *State) (Params, error) {
	return ui.Prompt("override referer (blank clears)")
}

func (overrideRefererAction) Apply(ctx context.Context, session *Session, state *State, params Params) (*State, error) {
	url, _ := params.(string)
	if url == "" {
		state.SetOverrideReferer(nil)
	} else {
		state.SetOverrideReferer(&url)
	}
	return state, nil
}

// --- t: override agent -----------------------------------------------------------

type overrideAgentAction struct{}

func (overrideAgentAction) Code() string            { return "t" }
func (overrideAgentAction) ChangesState() bool      { return false }
func (overrideAgentAction) UseReferer() bool        { return true }
func (overrideAgentAction) Valid(state *State) bool { return true }

func (overrideAgentAction) AskParams(ctx context.Context, ui UI, state *State) (Params, error) {
	return ui.Prompt("user agent string")
}

func (overrideAgentAction) Apply(ctx context.Context, session *Session, state *State, params Params) (*State, error) {
	agent, _ := params.(string)
	if agent == "" {
		agent = DefaultUserAgent
	}
	state.SetUserAgent(agent)
	return state, nil
}

// --- a: basic auth ----------------------------------------------------------------

// BasicAuthParams mirrors spec §4.4's tuple: "(scheme, realm, scope_url, user_spec,
// pass_spec) where specs are tuples ('u'|'o'|'n'|'s', literal_or_null)".
type BasicAuthParams struct {
	Scheme      string
	Realm       string
	ScopeURL    string
	UserSpec    FieldSpec
	PassSpec    FieldSpec
}

// FieldSpec is one (action, literal) pair as described by spec §4.4's form-submission
// and basic-auth parameter tables: "u/o/n substitute live username/oldpass/newpass...
// s uses literal"; an "a"-prefixed code (as/au/ao/an) means "field not present in the
// live form; add it" — tracked here as Add. buildSubmission accepts an Add spec for
// a field the live form lacks and rejects a non-Add one with ErrReplayFailure; Add
// also round-trips through script encoding/decoding as the "a" prefix.
type FieldSpec struct {
	Kind    string // "u", "o", "n", or "s"
	Literal string
	Add     bool
}

type basicAuthAction struct{}

func (basicAuthAction) Code() string            { return "a" }
func (basicAuthAction) ChangesState() bool      { return false }
func (basicAuthAction) UseReferer() bool        { return true }
func (basicAuthAction) Valid(state *State) bool { return true }

func (basicAuthAction) AskParams(ctx context.Context, ui UI, state *State) (Params, error) {
	scope, err := ui.Prompt("basic auth scope URL")
	if err != nil {
		return nil, err
	}
	return BasicAuthParams{ScopeURL: scope, UserSpec: FieldSpec{Kind: "u"}, PassSpec: FieldSpec{Kind: "o"}}, nil
}

func (basicAuthAction) Apply(ctx context.Context, session *Session, state *State, params Params) (*State, error) {
	bp, ok := params.(BasicAuthParams)
	if !ok {
		return nil, fmt.Errorf("%w: basic auth requires BasicAuthParams", ErrReplayFailure)
	}
	host, err := hostOf(bp.ScopeURL)
	if err != nil {
		return nil, fmt.Errorf("%w: scoping basic auth: %v", ErrReplayFailure, err)
	}
	user, err := session.resolveFieldSpec(bp.UserSpec)
	if err != nil {
		return nil, err
	}
	pass, err := session.resolveFieldSpec(bp.PassSpec)
	if err != nil {
		return nil, err
	}
	session.client.auth.set(host, user, pass)
	return state, nil
}

// --- v: validate ------------------------------------------------------------------

type validateAction struct{}

func (validateAction) Code() string            { return "v" }
func (validateAction) ChangesState() bool      { return false }
func (validateAction) UseReferer() bool        { return true }
func (validateAction) Valid(state *State) bool { return state.URL() != "" }

func (validateAction) AskParams(ctx context.Context, ui UI, state *State) (Params, error) {
	return ui.Prompt("substring that must appear on this page")
}

func (validateAction) Apply(ctx context.Context, session *Session, state *State, params Params) (*State, error) {
	substr, _ := params.(string)
	if !strings.Contains(string(state.Body()), substr) {
		return nil, fmt.Errorf("%w: validate: %q not found in page", ErrReplayFailure, substr)
	}
	return state, nil
}

// --- w: save page -----------------------------------------------------------------

type savePageAction struct{}

func (savePageAction) Code() string            { return "w" }
func (savePageAction) ChangesState() bool      { return false }
func (savePageAction) UseReferer() bool        { return true }
func (savePageAction) Valid(state *State) bool { return state.URL() != "" }

func (savePageAction) AskParams(ctx context.Context, ui UI, state *State) (Params, error) {
	return ui.Prompt("filename to save page to")
}

func (savePageAction) Apply(ctx context.Context, session *Session, state *State, params Params) (*State, error) {
	filename, _ := params.(string)
	if err := session.savePage(filename, state.Body()); err != nil {
		return nil, fmt.Errorf("%w: saving page: %v", ErrReplayFailure, err)
	}
	return state, nil
}

// --- x: view ------------------------------------------------------------------------

type viewAction struct{}

func (viewAction) Code() string            { return "x" }
func (viewAction) ChangesState() bool      { return false }
func (viewAction) UseReferer() bool        { return true }
func (viewAction) Valid(state *State) bool { return state.URL() != "" }

func (viewAction) AskParams(ctx context.Context, ui UI, state *State) (Params, error) { return nil, nil }

func (viewAction) Apply(ctx context.Context, session *Session, state *State, params Params) (*State, error) {
	if session.ui != nil {
		session.ui.Show(state.Body())
	}
	return state, nil
}

// --- u: undo ------------------------------------------------------------------------

type undoAction struct{}

func (undoAction) Code() string            { return "u" }
func (undoAction) ChangesState() bool      { return false }
func (undoAction) UseReferer() bool        { return true }
func (undoAction) Valid(state *State) bool { return state.Parent() != nil }

func (undoAction) AskParams(ctx context.Context, ui UI, state *State) (Params, error) { return nil, nil }

func (undoAction) Apply(ctx context.Context, session *Session, state *State, params Params) (*State, error) {
	if state.Parent() == nil {
		return nil, fmt.Errorf("%w: undo at root state", ErrReplayFailure)
	}
	return state.Parent(), nil
}

// --- q: quit ------------------------------------------------------------------------

type quitAction struct{}

func (quitAction) Code() string            { return "q" }
func (quitAction) ChangesState() bool      { return false }
func (quitAction) UseReferer() bool        { return true }
func (quitAction) Valid(state *State) bool { return true }

func (quitAction) AskParams(ctx context.Context, ui UI, state *State) (Params, error) { return nil, nil }

func (quitAction) Apply(ctx context.Context, session *Session, state *State, params Params) (*State, error) {
	session.quit = true
	return state, nil
}

// --- #: debug -----------------------------------------------------------------------

type debugAction struct{}

func (debugAction) Code() string            { return "#" }
func (debugAction) ChangesState() bool      { return true }
func (debugAction) UseReferer() bool        { return false }
func (debugAction) Valid(state *State) bool { return true }

func (debugAction) AskParams(ctx context.Context, ui UI, state *State) (Params, error) {
	return ui.Prompt("fixture tag (optional)")
}

func (debugAction) Apply(ctx context.Context, session *Session, state *State, params Params) (*State, error) {
	tag, _ := params.(string)
	body, ok := session.fixtures[tag]
	if !ok {
		return nil, fmt.Errorf("%w: debug: no fixture registered for tag %q", ErrReplayFailure, tag)
	}
	return state.Push(state.URL(), body), nil
}

func refererFor(a Action, state *State) string {
	if ref, ok := state.OverrideReferer(); ok {
		return ref
	}
	if !a.UseReferer() {
		return ""
	}
	return state.URL()
}
