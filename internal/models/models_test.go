package models

import (
	"testing"
	"time"
)

func TestBloodType_Valid(t *testing.T) {
	for _, bt := range BloodTypes {
		if !bt.Valid() {
			t.Errorf("%s should be valid", bt)
		}
	}
	for _, bt := range []BloodType{"", "o+", "C+", "AB"} {
		if bt.Valid() {
			t.Errorf("%q should be invalid", bt)
		}
	}
	if len(BloodTypes) != 8 {
		t.Fatalf("expected 8 blood types, got %d", len(BloodTypes))
	}
}

func TestAccountType_MembershipRole(t *testing.T) {
	tests := []struct {
		name string
		acct AccountType
		want Role
	}{
		{"blood bank becomes admin", AccountBloodBank, RoleAdmin},
		{"official becomes editor", AccountOfficial, RoleEditor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.acct.MembershipRole(); got != tt.want {
				t.Errorf("MembershipRole() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestShortage_BeforeCreateDefaults(t *testing.T) {
	s := &Shortage{CenterID: "c1", BloodType: BloodTypeOPos}
	if err := s.BeforeCreate(nil); err != nil {
		t.Fatalf("BeforeCreate: %v", err)
	}
	if s.ID == "" {
		t.Error("expected generated id")
	}
	if s.Status != StatusNormal {
		t.Errorf("Status = %s, want normal", s.Status)
	}
	if s.GetCenterID() != "c1" {
		t.Errorf("GetCenterID() = %s", s.GetCenterID())
	}
}

func TestOneTimeCode_Usable(t *testing.T) {
	now := time.Now()
	c := &OneTimeCode{ExpiresAt: now.Add(time.Minute)}
	if !c.Usable(now) {
		t.Error("fresh code should be usable")
	}
	if c.Usable(now.Add(2 * time.Minute)) {
		t.Error("expired code should not be usable")
	}
	consumed := now
	c.ConsumedAt = &consumed
	if c.Usable(now) {
		t.Error("consumed code should not be usable")
	}

	burned := &OneTimeCode{ExpiresAt: now.Add(time.Minute), FailedAttempts: MaxCodeAttempts}
	if burned.Usable(now) {
		t.Error("code at the attempt cap should not be usable")
	}
}

func TestStringPtr(t *testing.T) {
	if StringPtr("") != nil {
		t.Error("empty string should map to nil")
	}
	if got := Deref(StringPtr("Kandy")); got != "Kandy" {
		t.Errorf("Deref(StringPtr) = %q", got)
	}
	if Deref(nil) != "" {
		t.Error("Deref(nil) should be empty")
	}
}
