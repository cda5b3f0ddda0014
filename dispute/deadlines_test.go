package dispute

import (
	"testing"
	"time"
)

func TestDeadlinePast(t *testing.T) {
	now := fixedNow

	if DeadlinePast(nil, now) {
		t.Fatal("nil deadline must never be past")
	}
	if DeadlinePast(timePtr(now), now) {
		t.Fatal("deadline equal to now is not past")
	}
	if !DeadlinePast(timePtr(now.Add(-time.Second)), now) {
		t.Fatal("deadline one second ago is past")
	}
	if DeadlinePast(timePtr(now.Add(time.Second)), now) {
		t.Fatal("future deadline is not past")
	}
}

func TestWindowClosed(t *testing.T) {
	now := fixedNow

	if WindowClosed(nil, now) {
		t.Fatal("a task outside any sprint has no window to close")
	}
	if !WindowClosed(timePtr(now.Add(-time.Minute)), now) {
		t.Fatal("window that ended a minute ago is closed")
	}
	if WindowClosed(timePtr(now.Add(time.Minute)), now) {
		t.Fatal("window ending in a minute is open")
	}
}

func TestAppealWindowClosed(t *testing.T) {
	resolvedAt := fixedNow
	window := 48 * time.Hour

	if !AppealWindowClosed(nil, window, fixedNow) {
		t.Fatal("no resolution time means no open window")
	}
	if AppealWindowClosed(&resolvedAt, window, resolvedAt.Add(47*time.Hour+59*time.Minute)) {
		t.Fatal("one minute before expiry the window is open")
	}
	if AppealWindowClosed(&resolvedAt, window, resolvedAt.Add(window)) {
		t.Fatal("exactly at expiry the window is still open")
	}
	if !AppealWindowClosed(&resolvedAt, window, resolvedAt.Add(48*time.Hour+time.Minute)) {
		t.Fatal("one minute after expiry the window is closed")
	}
}
