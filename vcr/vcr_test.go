package vcr_test

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kosh-project/kosh/vcr"
)

func newTestSession(t *testing.T) *vcr.Session {
	t.Helper()
	s, err := vcr.NewSession(vcr.NewActionTable(), nil, false)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func strPtr(s string) *string { return &s }

// TestRecordReplayLoginForm implements spec §8's S5 scenario: record a goto + form
// submit against a mock login endpoint, serialize the script, then replay it with a
// fresh session and assert the server observed the expected POST body.
func TestRecordReplayLoginForm(t *testing.T) {
	var gotBody string
	var gotReferer string

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><form name="login" action="/do" method="POST">
			<input type="text" name="user" value="">
			<input type="password" name="pass" value="">
			<input type="submit" name="go" value="Sign in">
		</form></body></html>`))
	})
	mux.HandleFunc("/do", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotBody = r.Form.Encode()
		gotReferer = r.Header.Get("Referer")
		w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	session := newTestSession(t)
	session.SetCredentials(strPtr("u"), strPtr("P"), nil)
	ctx := context.Background()

	if err := session.Apply(ctx, "g", srv.URL+"/login"); err != nil {
		t.Fatalf("goto: %v", err)
	}

	fieldScript := map[string]vcr.FieldSpec{
		"user": {Kind: "u"},
		"pass": {Kind: "o"},
	}
	if err := session.Apply(ctx, "f", vcr.FormParams{FormMatch: "/do", FieldScript: fieldScript}); err != nil {
		t.Fatalf("submit form: %v", err)
	}

	steps := []vcr.ScriptStep{
		{Code: "g", Params: srv.URL + "/login"},
		{Code: "f", Params: vcr.FormParams{FormMatch: "/do", FieldScript: fieldScript}},
	}
	encoded, err := vcr.EncodeScript(steps)
	if err != nil {
		t.Fatalf("EncodeScript: %v", err)
	}
	decoded, err := vcr.DecodeScript(encoded)
	if err != nil {
		t.Fatalf("DecodeScript: %v", err)
	}

	replaySession := newTestSession(t)
	replaySession.SetCredentials(strPtr("u"), strPtr("P"), nil)
	if err := replaySession.Replay(ctx, vcr.NewActionIterator(decoded)); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if !strings.Contains(gotBody, "user=u") || !strings.Contains(gotBody, "pass=P") {
		t.Fatalf("expected POST body to contain user=u&pass=P, got %q", gotBody)
	}
	if gotReferer == "" {
		t.Fatalf("expected a recorded Referer header")
	}
}

// TestReplayFailureRollback implements spec §8's S6 scenario: a form whose field
// names don't match the script should fail replay with ErrReplayFailure and leave the
// session's current state unchanged from before the failing action.
func TestReplayFailureRollback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><form name="login" action="/do" method="POST">
			<input type="text" name="different_field" value="">
		</form></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	session := newTestSession(t)
	ctx := context.Background()

	if err := session.Apply(ctx, "g", srv.URL+"/login"); err != nil {
		t.Fatalf("goto: %v", err)
	}
	beforeState := session.Current()

	err := session.Apply(ctx, "f", vcr.FormParams{
		FormMatch:   "/do",
		FieldScript: map[string]vcr.FieldSpec{"user": {Kind: "s", Literal: "x"}},
	})
	if err == nil {
		t.Fatalf("expected a failure from a form missing the scripted field")
	}

	if session.Current() != beforeState {
		t.Fatalf("expected rollback to the pre-action state on failure")
	}
}

func TestValidateAction(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>welcome back</body></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	session := newTestSession(t)
	ctx := context.Background()
	if err := session.Apply(ctx, "g", srv.URL+"/page"); err != nil {
		t.Fatalf("goto: %v", err)
	}
	if err := session.Apply(ctx, "v", "welcome"); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := session.Apply(ctx, "v", "not present anywhere"); err == nil {
		t.Fatalf("expected validate failure for an absent substring")
	}
}

func TestUndoRestoresParentState(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("page a")) })
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("page b")) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	session := newTestSession(t)
	ctx := context.Background()
	if err := session.Apply(ctx, "g", srv.URL+"/a"); err != nil {
		t.Fatalf("goto a: %v", err)
	}
	afterA := session.Current()
	if err := session.Apply(ctx, "g", srv.URL+"/b"); err != nil {
		t.Fatalf("goto b: %v", err)
	}

	if !session.Undo() {
		t.Fatalf("expected Undo to succeed")
	}
	if session.Current() != afterA {
		t.Fatalf("expected Undo to restore the state after goto a")
	}
}

func TestMetaRefreshAutoFollow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><meta http-equiv="refresh" content="0;url=/end"></head></html>`))
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("arrived"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	session := newTestSession(t)
	ctx := context.Background()
	if err := session.Apply(ctx, "g", srv.URL+"/start"); err != nil {
		t.Fatalf("goto: %v", err)
	}
	if !strings.Contains(string(session.Current().Body()), "arrived") {
		t.Fatalf("expected meta-refresh to auto-follow to /end, got body %q", session.Current().Body())
	}
}

func TestScriptEncodeDecodeRoundTrip(t *testing.T) {
	steps := []vcr.ScriptStep{
		{Code: "g", Params: "https://example.com/login"},
		{Code: "f", Params: vcr.FormParams{
			FormMatch: "login",
			FieldScript: map[string]vcr.FieldSpec{
				"user": {Kind: "u"},
				"pass": {Kind: "ao", Literal: ""},
			},
		}},
		{Code: "b", Params: 2},
		{Code: "q", Params: nil},
	}
	encoded, err := vcr.EncodeScript(steps)
	if err != nil {
		t.Fatalf("EncodeScript: %v", err)
	}
	decoded, err := vcr.DecodeScript(encoded)
	if err != nil {
		t.Fatalf("DecodeScript: %v", err)
	}
	if len(decoded) != len(steps) {
		t.Fatalf("expected %d steps, got %d", len(steps), len(decoded))
	}
	if decoded[0].Params.(string) != "https://example.com/login" {
		t.Fatalf("expected goto url to round-trip, got %v", decoded[0].Params)
	}
	fp, ok := decoded[1].Params.(vcr.FormParams)
	if !ok {
		t.Fatalf("expected FormParams, got %T", decoded[1].Params)
	}
	if fp.FieldScript["pass"].Kind != "o" || !fp.FieldScript["pass"].Add {
		t.Fatalf("expected pass field spec to decode as add+o, got %+v", fp.FieldScript["pass"])
	}
}

// TestTranscriptLogRedactsCredentials implements spec §7's redaction requirement:
// a transcript line for an action against a URL containing the live password must
// not contain that password in the clear.
func TestTranscriptLogRedactsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	session := newTestSession(t)
	var buf bytes.Buffer
	session.Logger = log.New(&buf, "", 0)
	session.SetCredentials(strPtr("alice"), strPtr("hunter2"), nil)

	target := srv.URL + "/login?pass=hunter2&user=alice"
	if err := session.Apply(context.Background(), "g", target); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "hunter2") || strings.Contains(out, "alice") {
		t.Fatalf("expected transcript log to redact credentials, got %q", out)
	}
	if !strings.Contains(out, "«oldpass»") || !strings.Contains(out, "«username»") {
		t.Fatalf("expected transcript log to contain redaction sentinels, got %q", out)
	}
}
