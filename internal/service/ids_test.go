package service

import (
	"testing"

	"github.com/google/uuid"
)

func TestUUIDGeneratorIssuesUniqueUUIDs(t *testing.T) {
	gen := NewUUIDGenerator()

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := gen.NewID()
		parsed, err := uuid.Parse(id)
		if err != nil {
			t.Fatalf("generated id %q is not a uuid: %v", id, err)
		}
		if parsed.Version() != 4 {
			t.Fatalf("expected version 4 uuid, got %d", parsed.Version())
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}
