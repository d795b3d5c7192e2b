package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// bodyPrefixLen is how much of the body participates in id derivation.
// Edits never change an id because only the original creation triple is
// ever hashed.
const bodyPrefixLen = 30

// AssignID derives the stable id for a top-level post from its creation
// triple. Identical triples always yield the identical id, which makes
// re-loading persisted documents idempotent: a record loaded twice maps to
// the same entity instead of a duplicate.
func AssignID(scope, timestamp, body string) string {
	prefix := body
	if len(prefix) > bodyPrefixLen {
		prefix = prefix[:bodyPrefixLen]
	}
	sum := sha256.Sum256([]byte(scope + "|" + timestamp + "|" + prefix))
	return fmt.Sprintf("%s_%s", scope, hex.EncodeToString(sum[:])[:8])
}

// NewToken returns a unique id for comments and replies. Their ids do not
// need to be recomputable across reloads, only stable once persisted.
func NewToken(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
