package vcr

import "strings"

// redact replaces any occurrence of the session's live credential-triple values in s
// with fixed sentinels, per spec §7: "Logging of HTTP transcripts MUST redact the live
// username/oldpass/newpass values (substitution with sentinels before emission)."
func (s *Session) redact(in string) string {
	out := in
	if s.username != nil && *s.username != "" {
		out = strings.ReplaceAll(out, *s.username, "«username»")
	}
	if s.oldpass != nil && *s.oldpass != "" {
		out = strings.ReplaceAll(out, *s.oldpass, "«oldpass»")
	}
	if s.newpass != nil && *s.newpass != "" {
		out = strings.ReplaceAll(out, *s.newpass, "«newpass»")
	}
	return out
}
