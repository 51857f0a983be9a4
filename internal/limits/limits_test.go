package limits

import "testing"

func TestTakenGivenRoundtrip(t *testing.T) {
	var s Sysatomic_t = 3
	if !s.Taken(2) {
		t.Fatalf("expected Taken(2) to succeed against a limit of 3")
	}
	if s.Taken(2) {
		t.Fatalf("expected Taken(2) to fail against a remaining limit of 1")
	}
	s.Given(2)
	if int64(s) != 3 {
		t.Fatalf("limit = %d, want 3 after giving back what was taken", int64(s))
	}
}

func TestTakeGiveSingleUnit(t *testing.T) {
	var s Sysatomic_t = 1
	if !s.Take() {
		t.Fatalf("expected Take to succeed")
	}
	if s.Take() {
		t.Fatalf("expected Take to fail once exhausted")
	}
	s.Give()
	if !s.Take() {
		t.Fatalf("expected Take to succeed again after Give")
	}
}
