package models

import (
	"testing"
	"time"
)

func TestGroupMemberRoleOrdering(t *testing.T) {
	tests := []struct {
		role        GroupMemberRole
		canModerate bool
		isAdmin     bool
		atLeastMod  bool
	}{
		{GroupRoleAdmin, true, true, true},
		{GroupRoleModerator, true, false, true},
		{GroupRoleMember, false, false, false},
		{GroupMemberRole("owner"), false, false, false},
	}
	for _, tt := range tests {
		if got := tt.role.CanModerate(); got != tt.canModerate {
			t.Errorf("%q.CanModerate() = %v, want %v", tt.role, got, tt.canModerate)
		}
		if got := tt.role.IsAdmin(); got != tt.isAdmin {
			t.Errorf("%q.IsAdmin() = %v, want %v", tt.role, got, tt.isAdmin)
		}
		if got := tt.role.AtLeast(GroupRoleModerator); got != tt.atLeastMod {
			t.Errorf("%q.AtLeast(moderator) = %v, want %v", tt.role, got, tt.atLeastMod)
		}
	}
	if !(GroupRoleMember.Level() < GroupRoleModerator.Level() && GroupRoleModerator.Level() < GroupRoleAdmin.Level()) {
		t.Fatal("expected member < moderator < admin")
	}
}

func TestValidateStatusDates(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		status  MovieStatus
		planned *time.Time
		watched *time.Time
		want    error
	}{
		{"tracking without dates", MovieStatusTracking, nil, nil, nil},
		{"tracking with planned date", MovieStatusTracking, &day, nil, ErrTrackingWithDates},
		{"planned with date", MovieStatusPlanned, &day, nil, nil},
		{"planned without date", MovieStatusPlanned, nil, nil, ErrPlannedDateRequired},
		{"watched with both dates", MovieStatusWatched, &day, &day, nil},
		{"watched without date", MovieStatusWatched, &day, nil, ErrWatchedDateRequired},
		{"unknown", MovieStatus("dropped"), nil, nil, ErrUnknownStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateStatusDates(tt.status, tt.planned, tt.watched); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}
