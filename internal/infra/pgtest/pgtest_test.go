package pgtest

import (
	"strings"
	"testing"
)

func TestReplaceDatabase(t *testing.T) {
	got, err := replaceDatabase("postgres://u:p@localhost:5432/postgres?sslmode=disable", "other")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if got != "postgres://u:p@localhost:5432/other?sslmode=disable" {
		t.Fatalf("unexpected dsn %s", got)
	}
}

func TestSanitizeIdent(t *testing.T) {
	name := sanitizeIdent(uniqueName("tipzed", "TestLedger/Concurrent Payouts-"+strings.Repeat("x", 80)))
	if len(name) > 63 {
		t.Fatalf("identifier too long: %d", len(name))
	}
	if strings.ContainsAny(name, "/ -:") || name != strings.ToLower(name) {
		t.Fatalf("identifier not sanitized: %s", name)
	}
}
