package repositories

import "testing"

func TestReactionIDDeterministic(t *testing.T) {
	a := ReactionID("mem_1", "🎉", "fp1")
	if a != ReactionID(" mem_1", "🎉 ", "fp1") {
		t.Fatalf("expected trimmed inputs to map to the same id")
	}
	if a == ReactionID("mem_1", "❤️", "fp1") {
		t.Fatalf("expected different emoji to produce a different id")
	}
	if a == ReactionID("mem_1", "🎉", "fp2") {
		t.Fatalf("expected different fingerprint to produce a different id")
	}
	// separator prevents "ab"+"c" colliding with "a"+"bc"
	if ReactionID("ab", "c", "x") == ReactionID("a", "bc", "x") {
		t.Fatalf("expected field boundaries to be preserved")
	}
	if len(a) != len("rct_")+32 {
		t.Fatalf("unexpected id length %d", len(a))
	}
}
