// Command koshvcr is the standalone URL-VCR replay binary: it replays one or more
// base64-encoded action scripts against a credential triple supplied on the command
// line, per spec.md §6's "CLI surface of the credential rotator (URL-VCR standalone
// mode)". Passing secrets on argv is a documented caveat, not hidden.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/kosh-project/kosh/vcr"
)

func main() {
	var username, oldpass, newpass string
	fs := flag.NewFlagSet("koshvcr", flag.ContinueOnError)
	fs.StringVar(&username, "u", "", "username to substitute for 'u'-kind field specs")
	fs.StringVar(&oldpass, "p", "", "old password to substitute for 'o'-kind field specs (visible in ps!)")
	fs.StringVar(&newpass, "n", "", "new password to substitute for 'n'-kind field specs (visible in ps!)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: koshvcr [-u USERNAME] [-p OLDPASS] [-n NEWPASS] script.b64 [script.b64 ...]")
		fmt.Fprintln(os.Stderr, "Warning: -p and -n place secrets on the command line, visible to other")
		fmt.Fprintln(os.Stderr, "processes on this machine via ps(1) or /proc. Prefer an interactive")
		fmt.Fprintln(os.Stderr, "credential-bearing caller (cmd/kosh's 'rotate' command) where possible.")
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	table := vcr.NewActionTable()
	ctx := context.Background()
	exitCode := 0

	for _, encoded := range fs.Args() {
		if err := replayOne(ctx, table, encoded, username, oldpass, newpass); err != nil {
			fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

func replayOne(ctx context.Context, table *vcr.ActionTable, encoded, username, oldpass, newpass string) error {
	steps, err := vcr.DecodeScript(encoded)
	if err != nil {
		return fmt.Errorf("decode script: %w", err)
	}

	session, err := vcr.NewSession(table, nil, false)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	session.SetCredentials(optionalString(username), optionalString(oldpass), optionalString(newpass))

	if err := session.Replay(ctx, vcr.NewActionIterator(steps)); err != nil {
		return err
	}
	return nil
}

// optionalString returns nil for an empty flag value, letting the credential-triple
// field specs (spec §4.4: "each optional, filled lazily") fall through to a replay
// failure rather than silently substituting an empty string, when the flag was never
// supplied.
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
