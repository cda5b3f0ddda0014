package dispute

import (
	"errors"
	"testing"
)

func TestSettle_Compromise(t *testing.T) {
	d := baseDispute()

	cases := []struct {
		base   int
		score  int
		earned int
	}{
		{100, 1, 20},
		{100, 2, 40},
		{100, 3, 60},
		{100, 4, 80},
		{100, 5, 100},
		{50, 4, 40},
		{33, 2, 13}, // 13.2 rounds down
		{33, 3, 20}, // 19.8 rounds up
		{25, 3, 15},
	}
	for _, tc := range cases {
		settle, err := Settle(ResolutionCompromise, d, tc.base, intPtr(tc.score))
		if err != nil {
			t.Fatalf("base %d score %d: %v", tc.base, tc.score, err)
		}
		if settle == nil {
			t.Fatalf("base %d score %d: expected a settlement", tc.base, tc.score)
		}
		if settle.EarnedPoints != tc.earned {
			t.Fatalf("base %d score %d: expected %d points, got %d", tc.base, tc.score, tc.earned, settle.EarnedPoints)
		}
		if settle.QualityScore != tc.score {
			t.Fatalf("expected quality %d, got %d", tc.score, settle.QualityScore)
		}
		if settle.SubmissionID != d.SubmissionID || settle.CreditUserID != d.DisputantID {
			t.Fatalf("settlement targets wrong records: %+v", settle)
		}
	}
}

func TestSettle_Overturned(t *testing.T) {
	d := baseDispute()

	settle, err := Settle(ResolutionOverturned, d, 80, nil)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settle.QualityScore != 5 || settle.EarnedPoints != 80 {
		t.Fatalf("expected full credit at quality 5, got %+v", settle)
	}
}

func TestSettle_UpheldAndDismissedAreNoops(t *testing.T) {
	d := baseDispute()

	for _, res := range []Resolution{ResolutionUpheld, ResolutionDismissed} {
		settle, err := Settle(res, d, 80, nil)
		if err != nil {
			t.Fatalf("%s: %v", res, err)
		}
		if settle != nil {
			t.Fatalf("%s: expected no settlement, got %+v", res, settle)
		}
	}
}

func TestSettle_Validation(t *testing.T) {
	d := baseDispute()

	if _, err := Settle(ResolutionCompromise, d, 80, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("compromise without score: expected ErrValidation, got %v", err)
	}
	if _, err := Settle(ResolutionCompromise, d, 80, intPtr(0)); !errors.Is(err, ErrValidation) {
		t.Fatalf("score 0: expected ErrValidation, got %v", err)
	}
	if _, err := Settle(ResolutionCompromise, d, 80, intPtr(6)); !errors.Is(err, ErrValidation) {
		t.Fatalf("score 6: expected ErrValidation, got %v", err)
	}
	if _, err := Settle(ResolutionUpheld, d, 80, intPtr(3)); !errors.Is(err, ErrValidation) {
		t.Fatalf("score on upheld: expected ErrValidation, got %v", err)
	}
	if _, err := Settle(ResolutionOverturned, d, 80, intPtr(3)); !errors.Is(err, ErrValidation) {
		t.Fatalf("score on overturned: expected ErrValidation, got %v", err)
	}
	if _, err := Settle(Resolution("partial"), d, 80, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown resolution: expected ErrValidation, got %v", err)
	}
}

func TestTerminalStatus(t *testing.T) {
	if got := terminalStatus(ResolutionDismissed); got != StatusDismissed {
		t.Fatalf("dismissed: got %s", got)
	}
	for _, res := range []Resolution{ResolutionUpheld, ResolutionOverturned, ResolutionCompromise} {
		if got := terminalStatus(res); got != StatusResolved {
			t.Fatalf("%s: got %s", res, got)
		}
	}
}
