package store

import "errors"

// ErrFileLocked is returned by Open when another process already holds the store's
// exclusive advisory lock.
var ErrFileLocked = errors.New("store: file is locked by another process")

// ErrBug indicates an internal bookkeeping inconsistency: Rewrite found Records in the
// arena/index/history set that were never written out as lines, or vice versa. Per spec
// §4.3, this does not lose data — the orphaned entries are still appended, flagged —
// but it signals a defect in the Store implementation, not a recoverable user error.
var ErrBug = errors.New("store: internal bookkeeping bug (data preserved, see warning markers)")

// ErrUnrecognizedHeader is returned by Open when the file's first line matches neither
// HeaderLegacy nor HeaderModern.
var ErrUnrecognizedHeader = errors.New("store: unrecognized file header")

// ErrDuplicateRecord is returned by ImportRecord when a record with an equal name and
// fields already exists, per spec §4.3 "Import": "rejects duplicates (by equality)".
var ErrDuplicateRecord = errors.New("store: duplicate record")

// ErrEmptyName is returned by ImportRecord for a record with no name.
var ErrEmptyName = errors.New("store: record name must not be empty")
