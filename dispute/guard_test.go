package dispute

import (
	"errors"
	"testing"
)

func TestGuards_Unauthenticated(t *testing.T) {
	d := baseDispute()
	anon := Actor{}

	if err := CanRespond(d, anon); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("respond: expected ErrUnauthenticated, got %v", err)
	}
	if err := CanMediate(d, anon); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("mediate: expected ErrUnauthenticated, got %v", err)
	}
	if err := CanAssign(d, anon); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("assign: expected ErrUnauthenticated, got %v", err)
	}
	if err := CanResolve(d, anon); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("resolve: expected ErrUnauthenticated, got %v", err)
	}
	if err := CanAppeal(d, anon); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("appeal: expected ErrUnauthenticated, got %v", err)
	}
	if err := CanWithdraw(d, anon); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("withdraw: expected ErrUnauthenticated, got %v", err)
	}
	if err := CanComment(d, anon); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("comment: expected ErrUnauthenticated, got %v", err)
	}
}

func TestCanMediate_PartiesOnly(t *testing.T) {
	d := baseDispute()

	if err := CanMediate(d, Actor{UserID: disputantID, Role: RoleMember}); err != nil {
		t.Fatalf("disputant: %v", err)
	}
	if err := CanMediate(d, Actor{UserID: reviewerID, Role: RoleMember}); err != nil {
		t.Fatalf("reviewer: %v", err)
	}
	// Even admins are not a mediation party.
	if err := CanMediate(d, Actor{UserID: adminID, Role: RoleAdmin}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("admin: expected ErrForbidden, got %v", err)
	}
}

func TestCanResolve_ConflictOfInterest(t *testing.T) {
	d := baseDispute()
	d.ArbitratorID = strPtr(reviewerID)

	// The reviewer is excluded even if they somehow hold the assignment or
	// an admin role.
	if err := CanResolve(d, Actor{UserID: reviewerID, Role: RoleAdmin}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCanViewFull(t *testing.T) {
	d := baseDispute()

	cases := []struct {
		actor Actor
		want  bool
	}{
		{Actor{UserID: disputantID, Role: RoleMember}, true},
		{Actor{UserID: reviewerID, Role: RoleMember}, true},
		{Actor{UserID: councilID, Role: RoleCouncil}, true},
		{Actor{UserID: adminID, Role: RoleAdmin}, true},
		{Actor{UserID: outsiderID, Role: RoleMember}, false},
		{Actor{UserID: outsiderID, Role: RoleGuest}, false},
	}
	for _, tc := range cases {
		if got := CanViewFull(d, tc.actor); got != tc.want {
			t.Fatalf("%s/%s: expected %v, got %v", tc.actor.UserID, tc.actor.Role, tc.want, got)
		}
	}
}
