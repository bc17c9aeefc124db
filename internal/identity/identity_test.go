package identity

import "testing"

func TestIsCLICommandToken(t *testing.T) {
	if !IsCLICommandToken("hearth") {
		t.Fatalf("expected hearth to be recognized")
	}
	if !IsCLICommandToken(" Hearth ") {
		t.Fatalf("expected case and whitespace to be ignored")
	}
	if IsCLICommandToken("unknown") {
		t.Fatalf("expected unknown to be rejected")
	}
	if IsCLICommandToken("") {
		t.Fatalf("expected empty token to be rejected")
	}
}
