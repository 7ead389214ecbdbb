// Package urn allocates and validates the namespaced identifiers assigned to
// stored entities.
package urn

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Namespaces used by the stored entities.
const (
	NamespaceGameSession   = "tepache-game-session"
	NamespacePlayerSession = "tepache-player-session"
	NamespaceCapture       = "tepache-session-capture"
	NamespaceLog           = "tepache-log"
)

var pattern = regexp.MustCompile(`^urn:[a-z0-9][a-z0-9-]{0,31}:[A-Za-z0-9()+,\-.:=@;$_!*'%/?#]+$`)

// New allocates a fresh URN in namespace.
//
// Precondition: namespace must be a valid namespace identifier.
// Postcondition: Returns a string of the form "urn:<namespace>:<uuid>" for which Valid reports true.
func New(namespace string) string {
	return "urn:" + namespace + ":" + uuid.NewString()
}

// Valid reports whether s is a well-formed URN.
func Valid(s string) bool {
	return pattern.MatchString(s)
}

// Namespace returns the namespace segment of a well-formed URN, or "" when s is malformed.
func Namespace(s string) string {
	if !Valid(s) {
		return ""
	}
	parts := strings.SplitN(s, ":", 3)
	return parts[1]
}
