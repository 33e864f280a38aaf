package domain

import "testing"

func TestValidatePriority(t *testing.T) {
	for _, p := range []string{"low", "medium", "high", "urgent"} {
		if err := ValidatePriority(p); err != nil {
			t.Errorf("ValidatePriority(%q) returned error: %v", p, err)
		}
	}
	for _, p := range []string{"", "critical", "HIGH", "1"} {
		if err := ValidatePriority(p); err == nil {
			t.Errorf("ValidatePriority(%q) should have failed", p)
		}
	}
}

func TestValidateStatus(t *testing.T) {
	for _, s := range []string{"pending", "in_progress", "completed", "cancelled"} {
		if err := ValidateStatus(s); err != nil {
			t.Errorf("ValidateStatus(%q) returned error: %v", s, err)
		}
	}
	if err := ValidateStatus("done"); err == nil {
		t.Error("ValidateStatus(\"done\") should have failed")
	}
}

func TestValidateStrategy(t *testing.T) {
	for _, s := range []string{"overwrite", "merge", "skip_existing"} {
		if err := ValidateStrategy(s); err != nil {
			t.Errorf("ValidateStrategy(%q) returned error: %v", s, err)
		}
	}
	for _, s := range []string{"", "skip", "use_incoming"} {
		if err := ValidateStrategy(s); err == nil {
			t.Errorf("ValidateStrategy(%q) should have failed", s)
		}
	}
}

func TestValidateResolution(t *testing.T) {
	for _, r := range []string{"use_incoming", "use_canonical", "merge"} {
		if err := ValidateResolution(r); err != nil {
			t.Errorf("ValidateResolution(%q) returned error: %v", r, err)
		}
	}
	if err := ValidateResolution("overwrite"); err == nil {
		t.Error("ValidateResolution(\"overwrite\") should have failed")
	}
}

func TestValidateTimestamp(t *testing.T) {
	ts, err := ValidateTimestamp("2026-02-20T08:00:00Z")
	if err != nil {
		t.Fatalf("ValidateTimestamp failed: %v", err)
	}
	if ts.Year() != 2026 || ts.Month() != 2 || ts.Day() != 20 {
		t.Errorf("unexpected parsed time: %v", ts)
	}

	if _, err := ValidateTimestamp("2026-02-20"); err == nil {
		t.Error("expected error for date without time component")
	}
}
