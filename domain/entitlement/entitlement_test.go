package entitlement

import (
	"strings"
	"testing"
	"time"

	"github.com/RayBen445/ChatBot/domain/account"
)

var t0 = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func acct(role account.Role, tier account.Tier) account.Account {
	a := account.New("u1", "u1@example.com", "", role, t0)
	return account.ChangeTier(a, tier, t0)
}

// -----------------------------------------------------------------------------
// Lifecycle first
// -----------------------------------------------------------------------------

func TestResolve_BannedDeniesEveryone(t *testing.T) {
	for _, role := range []account.Role{account.RoleUser, account.RoleAdmin} {
		for _, tier := range account.Tiers {
			a := account.Ban(acct(role, tier), t0)
			for _, f := range AllFeatures {
				d := Resolve(a, f, 0, t0)
				if d.Allowed || d.Reason != ReasonBanned {
					t.Errorf("Resolve(%s/%s, %s) = %v/%s, want denied banned", role, tier, f, d.Allowed, d.Reason)
				}
				if d.ResponseBudgetChars != 0 {
					t.Errorf("banned budget = %d, want 0", d.ResponseBudgetChars)
				}
			}
		}
	}
}

func TestResolve_SuspendedCarriesDeadline(t *testing.T) {
	a, _ := account.Suspend(acct(account.RoleAdmin, account.TierPlus), account.Suspend7Days, t0)

	d := Resolve(a, FeatureChat, 0, t0.Add(24*time.Hour))

	if d.Allowed || d.Reason != ReasonSuspended {
		t.Fatalf("Resolve() = %v/%s, want denied suspended", d.Allowed, d.Reason)
	}
	want := "suspended until " + t0.Add(account.Suspend7Days).Format(time.RFC3339)
	if !strings.Contains(d.Message, want) {
		t.Errorf("Message = %q, want it to contain %q", d.Message, want)
	}
	if d.SuspendedUntil == nil {
		t.Error("SuspendedUntil = nil")
	}
}

func TestResolve_ExpiredSuspensionAllows(t *testing.T) {
	a, _ := account.Suspend(acct(account.RoleUser, account.TierFree), account.Suspend7Days, t0)

	if d := Resolve(a, FeatureChat, 0, t0.Add(6*24*time.Hour)); d.Allowed {
		t.Error("Resolve() at T+6d allowed, want denied")
	}
	if d := Resolve(a, FeatureChat, 0, t0.Add(8*24*time.Hour)); !d.Allowed {
		t.Errorf("Resolve() at T+8d denied with %s, want allowed", d.Reason)
	}
}

// -----------------------------------------------------------------------------
// Role and tier
// -----------------------------------------------------------------------------

func TestResolve_AdminGetsEverything(t *testing.T) {
	a := acct(account.RoleAdmin, account.TierFree)

	d := Resolve(a, FeatureFileUpload, 1000, t0)

	if !d.Allowed || d.Reason != ReasonAdmin {
		t.Fatalf("Resolve() = %v/%s, want allowed admin", d.Allowed, d.Reason)
	}
	if d.ResponseBudgetChars != MaxResponseBudgetChars {
		t.Errorf("budget = %d, want %d", d.ResponseBudgetChars, MaxResponseBudgetChars)
	}
	if len(d.Features) != len(AllFeatures) {
		t.Errorf("features = %v, want all", d.Features)
	}
	if d.Remaining != Unlimited {
		t.Errorf("Remaining = %d, want unlimited", d.Remaining)
	}
}

func TestResolve_TierProfiles(t *testing.T) {
	tests := []struct {
		tier    account.Tier
		feature Feature
		allowed bool
		reason  Reason
		budget  int
	}{
		{account.TierFree, FeatureChat, true, ReasonAllowed, 1000},
		{account.TierFree, FeatureAdvancedChat, false, ReasonFeatureNotInTier, 0},
		{account.TierPro, FeatureAdvancedChat, true, ReasonAllowed, 4000},
		{account.TierPro, FeatureVoiceInput, true, ReasonAllowed, 4000},
		{account.TierPro, FeatureLongContext, false, ReasonFeatureNotInTier, 0},
		{account.TierPro, FeatureFileUpload, false, ReasonFeatureNotInTier, 0},
		{account.TierPlus, FeatureFileUpload, true, ReasonAllowed, 8000},
		{account.TierPlus, FeatureLongContext, true, ReasonAllowed, 8000},
		{account.TierPlus, Feature("teleport"), false, ReasonUnknownFeature, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier)+"/"+string(tt.feature), func(t *testing.T) {
			d := Resolve(acct(account.RoleUser, tt.tier), tt.feature, 0, t0)
			if d.Allowed != tt.allowed || d.Reason != tt.reason {
				t.Errorf("Resolve() = %v/%s, want %v/%s", d.Allowed, d.Reason, tt.allowed, tt.reason)
			}
			if d.ResponseBudgetChars != tt.budget {
				t.Errorf("budget = %d, want %d", d.ResponseBudgetChars, tt.budget)
			}
		})
	}
}

func TestResolve_PriorityAndContext(t *testing.T) {
	free := Resolve(acct(account.RoleUser, account.TierFree), FeatureChat, 0, t0)
	plus := Resolve(acct(account.RoleUser, account.TierPlus), FeatureChat, 0, t0)

	if free.Priority != PriorityLow || free.ContextMessages != 5 || free.HistoryDays != 7 {
		t.Errorf("free = %s/%d/%d", free.Priority, free.ContextMessages, free.HistoryDays)
	}
	if plus.Priority != PriorityHigh || plus.ContextMessages != 10 || plus.HistoryDays != 0 {
		t.Errorf("plus = %s/%d/%d", plus.Priority, plus.ContextMessages, plus.HistoryDays)
	}
}

// -----------------------------------------------------------------------------
// Quota
// -----------------------------------------------------------------------------

func TestResolve_FreeCeiling(t *testing.T) {
	a := acct(account.RoleUser, account.TierFree)

	d := Resolve(a, FeatureChat, 49, t0)
	if !d.Allowed || d.Remaining != 1 || d.Limit != FreeMonthlyCeiling {
		t.Errorf("at 49: allowed=%v remaining=%d limit=%d", d.Allowed, d.Remaining, d.Limit)
	}

	d = Resolve(a, FeatureChat, 50, t0)
	if d.Allowed || d.Reason != ReasonQuotaExceeded || d.Remaining != 0 {
		t.Errorf("at 50: allowed=%v reason=%s remaining=%d", d.Allowed, d.Reason, d.Remaining)
	}
}

func TestQuotaExceeded_LostRace(t *testing.T) {
	d := Resolve(acct(account.RoleUser, account.TierFree), FeatureChat, 49, t0)
	if !d.Allowed {
		t.Fatalf("at 49: want allowed, got %s", d.Reason)
	}

	d = QuotaExceeded(d, 50)
	if d.Allowed || d.Reason != ReasonQuotaExceeded {
		t.Errorf("QuotaExceeded() = %v/%s", d.Allowed, d.Reason)
	}
	if d.Used != 50 || d.Remaining != 0 || d.ResponseBudgetChars != 0 {
		t.Errorf("used=%d remaining=%d budget=%d", d.Used, d.Remaining, d.ResponseBudgetChars)
	}
	if !strings.Contains(d.Message, "limit of 50") {
		t.Errorf("message = %q", d.Message)
	}
}

func TestResolve_PaidTiersHaveNoCeiling(t *testing.T) {
	for _, tier := range []account.Tier{account.TierPro, account.TierPlus} {
		d := Resolve(acct(account.RoleUser, tier), FeatureChat, 1_000_000, t0)
		if !d.Allowed || d.Remaining != Unlimited {
			t.Errorf("%s: allowed=%v remaining=%d", tier, d.Allowed, d.Remaining)
		}
	}
}

func TestStoreUnavailable_Denies(t *testing.T) {
	d := StoreUnavailable(FeatureChat)
	if d.Allowed || d.Reason != ReasonStoreUnavailable {
		t.Errorf("StoreUnavailable() = %v/%s", d.Allowed, d.Reason)
	}
}

func TestParseFeature(t *testing.T) {
	if got := ParseFeature(""); got != FeatureChat {
		t.Errorf("ParseFeature(\"\") = %s, want chat", got)
	}
	if got := ParseFeature(" Advanced_Chat "); got != FeatureAdvancedChat {
		t.Errorf("ParseFeature() = %s", got)
	}
}

// -----------------------------------------------------------------------------
// Catalog
// -----------------------------------------------------------------------------

func TestCatalog(t *testing.T) {
	if CapabilityEnabled(account.TierFree, "testGeneration") {
		t.Error("free testGeneration enabled")
	}
	if !CapabilityEnabled(account.TierPro, "testGeneration") {
		t.Error("pro testGeneration disabled")
	}
	if !CapabilityEnabled(account.TierPlus, "architecture") {
		t.Error("plus architecture disabled")
	}
	if CapabilityEnabled(account.TierPro, "architecture") {
		t.Error("pro architecture should be absent")
	}
}
