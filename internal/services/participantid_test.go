package services

import (
	"strings"
	"testing"
)

func TestGenerateParticipantID(t *testing.T) {
	id, ok := GenerateParticipantID("Jane Doe")
	if !ok {
		t.Fatalf("expected ok for non-empty name")
	}
	if !strings.HasPrefix(id, "CANDIDATE-") {
		t.Fatalf("unexpected prefix: %s", id)
	}
	parts := strings.Split(id, "-")
	if len(parts) != 3 || len(parts[1]) != 4 || len(parts[2]) != 4 {
		t.Fatalf("unexpected format: %s", id)
	}

	again, _ := GenerateParticipantID("Jane Doe")
	if again != id {
		t.Fatalf("not deterministic: %s vs %s", id, again)
	}
}

func TestGenerateParticipantIDNormalization(t *testing.T) {
	base, _ := GenerateParticipantID("Jane Doe")
	variants := []string{" jane   doe ", "JANE DOE", "jane\tdoe", "  Jane Doe"}
	for _, v := range variants {
		id, ok := GenerateParticipantID(v)
		if !ok || id != base {
			t.Fatalf("variant %q produced %s, want %s", v, id, base)
		}
	}

	other, _ := GenerateParticipantID("John Doe")
	if other == base {
		t.Fatalf("distinct names should not collide here: %s", base)
	}
}

func TestGenerateParticipantIDEmpty(t *testing.T) {
	for _, name := range []string{"", "   ", "\t\n"} {
		if id, ok := GenerateParticipantID(name); ok {
			t.Fatalf("expected not ok for %q, got %s", name, id)
		}
	}
}

func TestVerifyParticipantID(t *testing.T) {
	id, _ := GenerateParticipantID("Ada Lovelace")
	if !VerifyParticipantID("ada  LOVELACE", id) {
		t.Fatalf("expected match for normalized variant")
	}
	if VerifyParticipantID("Grace Hopper", id) {
		t.Fatalf("expected mismatch for different name")
	}
	if VerifyParticipantID("Ada Lovelace", "") {
		t.Fatalf("expected mismatch for empty stored ID")
	}
}
