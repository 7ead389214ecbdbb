package urn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestValid(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"urn:game:abc", true},
		{"urn:tepache-player-session:0b8f3c1e-1111-4222-8333-944455556666", true},
		{"", false},
		{"urn:", false},
		{"urn:game:", false},
		{"game:abc", false},
		{"urn:-bad:abc", false},
		{"urn:Game:abc", false},
		{"urn:game:has space", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Valid(tc.in), "Valid(%q)", tc.in)
	}
}

func TestNamespace(t *testing.T) {
	assert.Equal(t, "game", Namespace("urn:game:abc"))
	assert.Equal(t, "game", Namespace("urn:game:abc:def"))
	assert.Equal(t, "", Namespace("nope"))
}

// Property: every allocated URN is well-formed and carries its namespace.
func TestPropertyNewIsValid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ns := rapid.StringMatching(`[a-z0-9][a-z0-9-]{0,20}`).Draw(t, "namespace")
		u := New(ns)
		if !Valid(u) {
			t.Fatalf("New(%q) = %q is not valid", ns, u)
		}
		if got := Namespace(u); got != ns {
			t.Fatalf("Namespace(%q) = %q, want %q", u, got, ns)
		}
	})
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		u := New(NamespaceCapture)
		assert.False(t, seen[u], "duplicate urn %s", u)
		seen[u] = true
	}
}
