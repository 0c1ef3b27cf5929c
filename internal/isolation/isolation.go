// Package isolation derives the three-layer partition key that scopes
// conversation history and per-project settings.
//
// A key is built from three identity dimensions — the AI client
// application, an operator-supplied worker label, and the project
// directory — and is safe to use as a filesystem fragment, an index
// value, and a settings namespace.
package isolation

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
)

// maxKeyLength bounds derived keys so they stay usable as settings
// group names and index values.
const maxKeyLength = 100

// segmentPrefixLength is how much of each segment survives when the
// naive concatenation exceeds maxKeyLength.
const segmentPrefixLength = 20

var unsafeChars = regexp.MustCompile(`[^a-z0-9_]`)

// Key derives the isolation key for a (client, worker, projectDirectory)
// triple. Derivation is total: any inputs, including empty strings,
// produce a valid bounded key, and repeated calls are deterministic.
// Inputs differing only in case or punctuation collide by design — that
// is how loosely specified client names are normalized.
//
// When the sanitized concatenation exceeds 100 characters, each segment
// is cut to its first 20 characters and an 8-hex-character MD5 suffix of
// the full untruncated key is appended, so long inputs stay
// distinguishable.
func Key(client, worker, projectDirectory string) string {
	k1 := sanitizeSegment(client)
	k2 := sanitizeSegment(worker)
	k3 := sanitizeSegment(ProjectName(projectDirectory))

	key := k1 + "_" + k2 + "_" + k3
	if len(key) > maxKeyLength {
		suffix := Hash(key, 8)
		key = segmentPrefix(k1) + "_" + segmentPrefix(k2) + "_" + segmentPrefix(k3) + "_" + suffix
	}
	return key
}

// ProjectName reduces a project directory to its final path component,
// with trailing slashes and backslashes stripped. Two absolute paths
// sharing a leaf directory name map to the same project; Key inherits
// that collision, which is a documented limitation rather than a bug.
func ProjectName(projectDirectory string) string {
	trimmed := strings.TrimRight(projectDirectory, `/\`)
	if i := strings.LastIndexAny(trimmed, `/\`); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// SettingsGroup returns the preference namespace sharing the key's
// partition. The settings store keeps one bucket per group.
func SettingsGroup(key string) string {
	return "ThreeLayer_" + key
}

// Hash returns the MD5 hex digest of content, truncated to length
// characters when 0 < length < 32. Used for the key overflow suffix and
// for session-id generation; not a security boundary.
func Hash(content string, length int) string {
	sum := md5.Sum([]byte(content))
	digest := hex.EncodeToString(sum[:])
	if length > 0 && length < len(digest) {
		return digest[:length]
	}
	return digest
}

// sanitizeSegment lower-cases a raw identity value and folds every
// character outside [a-z0-9_] to an underscore. Sanitized segments are
// pure ASCII, so byte-indexed truncation below is safe.
func sanitizeSegment(s string) string {
	return unsafeChars.ReplaceAllString(strings.ToLower(s), "_")
}

func segmentPrefix(s string) string {
	if len(s) > segmentPrefixLength {
		return s[:segmentPrefixLength]
	}
	return s
}
