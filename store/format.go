package store

import "strings"

// Line tags recognized in a kosh store file, per spec §4.3 "File format". Anything not
// matching one of these prefixes is an opaque passthrough line, kept verbatim to
// preserve forward compatibility with comments or future line kinds.
const (
	tagMasterKey = "k:"
	tagRecord    = "p:"
)

// Magic headers, one per envelope. Store.Open dispatches on this line to decide which
// krypto.Envelope new MasterKeys and records are interpreted under; both reuse the same
// k:/p: tag prefixes, so the envelope cannot be inferred from a line alone.
const (
	HeaderLegacy = "K05Hv0 UNSTABLE\n"
	HeaderModern = "K05Hv1 UNSTABLE\n"
)

// lineKind classifies a single raw line from a store file.
type lineKind int

const (
	lineMasterKey lineKind = iota
	lineRecord
	linePassthrough
)

type parsedLine struct {
	kind    lineKind
	payload string // base64 blob, for lineMasterKey/lineRecord
	raw     string // full original line, for linePassthrough
}

func classifyLine(line string) parsedLine {
	switch {
	case strings.HasPrefix(line, tagMasterKey):
		return parsedLine{kind: lineMasterKey, payload: strings.TrimPrefix(line, tagMasterKey)}
	case strings.HasPrefix(line, tagRecord):
		return parsedLine{kind: lineRecord, payload: strings.TrimPrefix(line, tagRecord)}
	default:
		return parsedLine{kind: linePassthrough, raw: line}
	}
}
