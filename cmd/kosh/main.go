// Command kosh is the interactive terminal password manager: open or create a
// store, unlock it, and run an add/get/edit/delete/rename/find/history REPL,
// optionally driving a URL-VCR rotation against a record's credential triple.
// Modeled on the teacher's cmd/pm/main.go subcommand-and-REPL shape.
package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kosh-project/kosh/auth"
	"github.com/kosh-project/kosh/internal/biogate"
	"github.com/kosh-project/kosh/internal/ttyio"
	"github.com/kosh-project/kosh/krypto"
	"github.com/kosh-project/kosh/record"
	"github.com/kosh-project/kosh/store"
	"github.com/kosh-project/kosh/vcr"
)

const cliVersion = "0.1.0"

type userError struct {
	msg string
}

func (e userError) Error() string { return e.msg }

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Println(cliVersion)
	case "init":
		if err := runInit(os.Args[2:]); err != nil {
			handleError(err)
		}
	case "open":
		if err := runOpen(os.Args[2:]); err != nil {
			handleError(err)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func handleError(err error) {
	if err == nil {
		return
	}
	var uerr userError
	if errors.As(err, &uerr) {
		fmt.Fprintln(os.Stderr, uerr.Error())
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "unexpected error: %v\n", err)
	os.Exit(2)
}

func handleSessionError(err error) {
	if err == nil {
		return
	}
	var uerr userError
	if errors.As(err, &uerr) {
		fmt.Fprintln(os.Stderr, uerr.Error())
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: kosh <command>")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  version")
	fmt.Fprintln(os.Stderr, "  init --path <vault-file> [--legacy]")
	fmt.Fprintln(os.Stderr, "  open --path <vault-file> [--biometric]")
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var path string
	var legacy bool
	fs.StringVar(&path, "path", "", "vault file path")
	fs.BoolVar(&legacy, "legacy", false, "create a K05Hv0 legacy-envelope vault instead of K05Hv1")
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if path == "" {
		return userError{msg: "init requires --path"}
	}

	pw, err := ttyio.ReadPassphrase("Master passphrase: ")
	if err != nil {
		return fmt.Errorf("read passphrase: %w", err)
	}
	defer ttyio.Zero(pw)

	confirm, err := ttyio.ReadPassphrase("Confirm master passphrase: ")
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	defer ttyio.Zero(confirm)

	if !bytes.Equal(pw, confirm) {
		return userError{msg: "passphrases do not match"}
	}
	if err := auth.ValidateMasterPassword(string(pw)); err != nil {
		return userError{msg: "passphrase does not meet policy requirements: " + err.Error()}
	}

	env := krypto.EnvelopeModern
	if legacy {
		env = krypto.EnvelopeLegacy
	}

	s, err := store.Create(path, pw, env)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	defer s.Close()

	fmt.Printf("vault created at %s\n", path)
	return nil
}

func runOpen(args []string) error {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var path string
	var biometric bool
	fs.StringVar(&path, "path", "", "vault file path")
	fs.BoolVar(&biometric, "biometric", false, "attempt the biometric pre-unlock gate before prompting")
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if path == "" {
		return userError{msg: "open requires --path"}
	}

	if biometric {
		if err := biogate.Authenticate(filepath.Dir(path), "unlock kosh vault"); err != nil {
			fmt.Fprintf(os.Stderr, "biometric gate unavailable (%v); falling back to passphrase\n", err)
		}
	}

	s, err := store.Open(path, ttyio.PromptForStore)
	if err != nil {
		if errors.Is(err, store.ErrFileLocked) {
			return userError{msg: "vault is locked by another process"}
		}
		if errors.Is(err, store.ErrUnrecognizedHeader) {
			return userError{msg: "not a kosh vault file"}
		}
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	cache, err := store.OpenSearchCache(path + ".searchcache")
	if err != nil {
		return fmt.Errorf("open search cache: %w", err)
	}
	defer cache.Close()
	if err := cache.Rebuild(s); err != nil {
		fmt.Fprintf(os.Stderr, "warning: search cache rebuild failed: %v\n", err)
	}

	fmt.Println("vault unlocked; type 'help' for commands")
	return sessionLoop(s, cache)
}

func sessionLoop(s *store.Store, cache *store.SearchCache) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("kosh> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Println()
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd := fields[0]
		cmdArgs := fields[1:]

		switch cmd {
		case "help":
			printSessionHelp()
		case "list":
			sessionList(s)
		case "add":
			if err := sessionAdd(s, cmdArgs); err != nil {
				handleSessionError(err)
			}
			refreshCache(cache, s)
		case "get":
			if err := sessionGet(s, cmdArgs); err != nil {
				handleSessionError(err)
			}
		case "edit":
			if err := sessionEdit(s, cmdArgs); err != nil {
				handleSessionError(err)
			}
			refreshCache(cache, s)
		case "rename":
			if err := sessionRename(s, cmdArgs); err != nil {
				handleSessionError(err)
			}
			refreshCache(cache, s)
		case "delete":
			if err := sessionDelete(s, cmdArgs); err != nil {
				handleSessionError(err)
			}
			refreshCache(cache, s)
		case "history":
			if err := sessionHistory(s, cmdArgs); err != nil {
				handleSessionError(err)
			}
		case "find":
			if err := sessionFind(cache, cmdArgs); err != nil {
				handleSessionError(err)
			}
		case "rotate":
			if err := sessionRotate(s, cmdArgs); err != nil {
				handleSessionError(err)
			}
		case "exit", "quit":
			return nil
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		}
	}
}

func printSessionHelp() {
	fmt.Println("commands:")
	fmt.Println("  list                        list record names")
	fmt.Println("  add <name>                  add a record interactively")
	fmt.Println("  get <name>                  show a record's fields")
	fmt.Println("  edit <name> <field> <value> set a field and commit")
	fmt.Println("  rename <old> <new>          rename a record")
	fmt.Println("  delete <name>               tombstone a record")
	fmt.Println("  history <name>              show a record's history chain")
	fmt.Println("  find <pattern>              search the name cache")
	fmt.Println("  rotate <name> <script.b64>  replay a URL-VCR script against a record")
	fmt.Println("  exit                        leave the session")
}

func sessionList(s *store.Store) {
	for _, name := range s.List() {
		fmt.Println(name)
	}
}

func sessionAdd(s *store.Store, args []string) error {
	if len(args) != 1 {
		return userError{msg: "add requires exactly one argument: <name>"}
	}
	name := args[0]

	r := ttyio.NewReader()
	username, err := r.ReadLine("Username: ")
	if err != nil && !errors.Is(err, ttyio.ErrCancelled) {
		return err
	}
	password, err := ttyio.ReadPassphrase("Password: ")
	if err != nil {
		return err
	}
	defer ttyio.Zero(password)

	rec := record.New(name, 0)
	if username != "" {
		rec.Set("Username", username)
	}
	rec.Set("Password", string(password))

	if err := s.Set(rec); err != nil {
		if errors.Is(err, krypto.ErrKeyExpired) {
			return userError{msg: "master key expired; re-open the vault"}
		}
		return fmt.Errorf("add record: %w", err)
	}
	fmt.Printf("added %s\n", name)
	return nil
}

func sessionGet(s *store.Store, args []string) error {
	if len(args) != 1 {
		return userError{msg: "get requires exactly one argument: <name>"}
	}
	rec, ok := s.Get(args[0])
	if !ok {
		return userError{msg: fmt.Sprintf("no record named %q", args[0])}
	}
	for _, field := range rec.Fields() {
		value, _ := rec.Get(field)
		fmt.Printf("%s: %s\n", field, value)
	}
	return nil
}

func sessionEdit(s *store.Store, args []string) error {
	if len(args) != 3 {
		return userError{msg: "edit requires exactly three arguments: <name> <field> <value>"}
	}
	name, field, value := args[0], args[1], args[2]
	existing, ok := s.Get(name)
	if !ok {
		return userError{msg: fmt.Sprintf("no record named %q", name)}
	}
	updated := existing.Clone(name)
	updated.Set(field, value)
	if err := s.Set(updated); err != nil {
		if errors.Is(err, krypto.ErrKeyExpired) {
			return userError{msg: "master key expired; re-open the vault"}
		}
		return fmt.Errorf("edit record: %w", err)
	}
	fmt.Printf("updated %s.%s\n", name, field)
	return nil
}

func sessionRename(s *store.Store, args []string) error {
	if len(args) != 2 {
		return userError{msg: "rename requires exactly two arguments: <old> <new>"}
	}
	if err := s.Rename(args[0], args[1]); err != nil {
		return fmt.Errorf("rename record: %w", err)
	}
	fmt.Printf("renamed %s -> %s\n", args[0], args[1])
	return nil
}

func sessionDelete(s *store.Store, args []string) error {
	if len(args) != 1 {
		return userError{msg: "delete requires exactly one argument: <name>"}
	}
	deleted, err := s.Delete(args[0])
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if !deleted {
		return userError{msg: fmt.Sprintf("no record named %q", args[0])}
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}

func sessionHistory(s *store.Store, args []string) error {
	if len(args) != 1 {
		return userError{msg: "history requires exactly one argument: <name>"}
	}
	rec, ok := s.Get(args[0])
	if !ok {
		return userError{msg: fmt.Sprintf("no record named %q", args[0])}
	}
	for _, h := range s.History(rec) {
		ts, _ := h.Timestamp()
		fmt.Printf("ts=%d deleted=%v\n", ts, h.IsDeleted())
	}
	return nil
}

func sessionFind(cache *store.SearchCache, args []string) error {
	if len(args) != 1 {
		return userError{msg: "find requires exactly one argument: <sql-like-pattern>"}
	}
	names, err := cache.Search(args[0])
	if err != nil {
		return fmt.Errorf("search cache: %w", err)
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

// refreshCache rebuilds the non-authoritative search cache after a mutation. It
// never stores secrets (store.SearchCache keeps only name/timestamp/deleted), so a
// rebuild failure here is logged, not fatal, per spec §7's Bug kind: "logged,
// non-fatal; file still written" — the vault itself is unaffected either way.
func refreshCache(cache *store.SearchCache, s *store.Store) {
	if err := cache.Rebuild(s); err != nil {
		fmt.Fprintf(os.Stderr, "warning: search cache rebuild failed: %v\n", err)
	}
}

func sessionRotate(s *store.Store, args []string) error {
	if len(args) != 2 {
		return userError{msg: "rotate requires exactly two arguments: <name> <script.b64>"}
	}
	name, encoded := args[0], args[1]

	rec, ok := s.Get(name)
	if !ok {
		return userError{msg: fmt.Sprintf("no record named %q", name)}
	}
	username, _ := rec.Get("Username")
	oldpass, _ := rec.Get("Password")

	steps, err := vcr.DecodeScript(encoded)
	if err != nil {
		return fmt.Errorf("decode script: %w", err)
	}

	newpass, err := ttyio.ReadPassphrase("New password: ")
	if err != nil {
		return err
	}
	defer ttyio.Zero(newpass)
	newpassStr := string(newpass)

	session, err := vcr.NewSession(vcr.NewActionTable(), nil, false)
	if err != nil {
		return fmt.Errorf("start rotation session: %w", err)
	}
	session.SetCredentials(&username, &oldpass, &newpassStr)

	if err := session.Replay(context.Background(), vcr.NewActionIterator(steps)); err != nil {
		return userError{msg: fmt.Sprintf("rotation replay failed: %v", err)}
	}

	updated := rec.Clone(name)
	updated.Set("Password", newpassStr)
	if err := s.Set(updated); err != nil {
		return fmt.Errorf("save rotated password: %w", err)
	}
	fmt.Printf("rotated password for %s\n", name)
	return nil
}
