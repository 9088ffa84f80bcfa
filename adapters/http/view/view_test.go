package view

import (
	"testing"
	"time"

	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/domain/usage"
)

var t0 = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func TestFromAccount_SuspensionExpired(t *testing.T) {
	a := account.New("u1", "u1@example.com", "", account.RoleUser, t0)
	a, err := account.Suspend(a, account.Suspend7Days, t0)
	if err != nil {
		t.Fatalf("Suspend() error = %v", err)
	}

	during := FromAccount(a, t0.Add(6*24*time.Hour))
	if during.Status != account.StateSuspended || during.SuspensionExpired {
		t.Errorf("day 6: status=%s expired=%v", during.Status, during.SuspensionExpired)
	}

	after := FromAccount(a, t0.Add(8*24*time.Hour))
	if after.Status != account.StateActive || !after.SuspensionExpired {
		t.Errorf("day 8: status=%s expired=%v", after.Status, after.SuspensionExpired)
	}
	if after.StoredStatus != account.StatusSuspended {
		t.Errorf("stored status = %s, want suspended", after.StoredStatus)
	}
	if after.MessageCount == nil {
		t.Error("MessageCount should never be nil")
	}
}

func TestFromSnapshot_History(t *testing.T) {
	snap := usage.Summarize("u1", map[string]int64{"2024-06": 3, "2023-11": 9}, t0)
	u := FromSnapshot(snap)

	if u.MessageCount != 3 || u.TotalCount != 12 || u.CurrentMonth != "2024-06" {
		t.Errorf("usage = %+v", u)
	}
	want := []UsageMonth{{Month: "2023-11", Count: 9}, {Month: "2024-06", Count: 3}}
	if len(u.History) != len(want) || u.History[0] != want[0] || u.History[1] != want[1] {
		t.Errorf("History = %+v, want %+v", u.History, want)
	}
	if !u.ResetsAt.Equal(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ResetsAt = %v", u.ResetsAt)
	}
}
