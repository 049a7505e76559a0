package money

import "testing"

func TestSplitEvenHalvesExactly(t *testing.T) {
	fee, farmer, pooler, err := Split(1_000_000, 0.05, 0.50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fee != 50_000 {
		t.Errorf("platform_fee = %d, want 50000", fee)
	}
	if farmer != 475_000 {
		t.Errorf("farmer_share = %d, want 475000", farmer)
	}
	if pooler != 475_000 {
		t.Errorf("pooler_share = %d, want 475000", pooler)
	}
	if fee+farmer+pooler != 1_000_000 {
		t.Errorf("split does not sum to total: %d", fee+farmer+pooler)
	}
}

func TestSplitUnevenTruncatesWithoutLosingAStroop(t *testing.T) {
	fee, farmer, pooler, err := Split(1_000_001, 0.05, 0.70)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fee != 50_000 {
		t.Errorf("platform_fee = %d, want 50000", fee)
	}
	if farmer != 665_000 {
		t.Errorf("farmer_share = %d, want 665000", farmer)
	}
	if pooler != 285_001 {
		t.Errorf("pooler_share = %d, want 285001", pooler)
	}
	if fee+farmer+pooler != 1_000_001 {
		t.Errorf("split does not sum to total: %d", fee+farmer+pooler)
	}
}

func TestSplit_LargeTotalsDoNotOverflow(t *testing.T) {
	total := int64(9_000_000_000_000) // 900,000 KALE
	fee, farmer, pooler, err := Split(total, 0.05, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fee+farmer+pooler != total {
		t.Errorf("split does not sum to total: got %d want %d", fee+farmer+pooler, total)
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(5, 0, 10); got != 5 {
		t.Errorf("Clamp(5,0,10) = %d, want 5", got)
	}
	if got := Clamp(-1, 0, 10); got != 0 {
		t.Errorf("Clamp(-1,0,10) = %d, want 0", got)
	}
	if got := Clamp(20, 0, 10); got != 10 {
		t.Errorf("Clamp(20,0,10) = %d, want 10", got)
	}
}
