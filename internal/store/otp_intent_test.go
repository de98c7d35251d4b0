package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestIntentMatches(t *testing.T) {
	reminderID := uuid.New()
	otherReminderID := uuid.New()

	stored := otpIntent{
		Amount:          decimal.RequireFromString("20000"),
		ToAccountNumber: "2222222222",
		FeePayer:        "sender",
		BankCode:        "RBNK",
	}

	tests := []struct {
		name   string
		stored otpIntent
		want   otpIntent
		match  bool
	}{
		{
			name:   "identical intent matches",
			stored: stored,
			want:   stored,
			match:  true,
		},
		{
			name:   "equal amount with different scale matches",
			stored: stored,
			want: otpIntent{
				Amount:          decimal.RequireFromString("20000.00"),
				ToAccountNumber: "2222222222",
				FeePayer:        "sender",
				BankCode:        "RBNK",
			},
			match: true,
		},
		{
			name:   "tampered amount rejected",
			stored: stored,
			want: otpIntent{
				Amount:          decimal.RequireFromString("90000"),
				ToAccountNumber: "2222222222",
				FeePayer:        "sender",
				BankCode:        "RBNK",
			},
			match: false,
		},
		{
			name:   "redirected destination rejected",
			stored: stored,
			want: otpIntent{
				Amount:          decimal.RequireFromString("20000"),
				ToAccountNumber: "9999999999",
				FeePayer:        "sender",
				BankCode:        "RBNK",
			},
			match: false,
		},
		{
			name:   "flipped fee payer rejected",
			stored: stored,
			want: otpIntent{
				Amount:          decimal.RequireFromString("20000"),
				ToAccountNumber: "2222222222",
				FeePayer:        "receiver",
				BankCode:        "RBNK",
			},
			match: false,
		},
		{
			name:   "swapped bank rejected",
			stored: stored,
			want: otpIntent{
				Amount:          decimal.RequireFromString("20000"),
				ToAccountNumber: "2222222222",
				FeePayer:        "sender",
				BankCode:        "XBNK",
			},
			match: false,
		},
		{
			name: "matching reminder binding matches",
			stored: otpIntent{
				Amount:         decimal.RequireFromString("30000"),
				DebtReminderID: &reminderID,
			},
			want: otpIntent{
				Amount:         decimal.RequireFromString("30000"),
				DebtReminderID: &reminderID,
			},
			match: true,
		},
		{
			name: "different reminder rejected",
			stored: otpIntent{
				Amount:         decimal.RequireFromString("30000"),
				DebtReminderID: &reminderID,
			},
			want: otpIntent{
				Amount:         decimal.RequireFromString("30000"),
				DebtReminderID: &otherReminderID,
			},
			match: false,
		},
		{
			name: "reminder code spent on a plain transfer rejected",
			stored: otpIntent{
				Amount:         decimal.RequireFromString("30000"),
				DebtReminderID: &reminderID,
			},
			want: otpIntent{
				Amount: decimal.RequireFromString("30000"),
			},
			match: false,
		},
		{
			name:   "plain code spent on a reminder rejected",
			stored: otpIntent{Amount: decimal.RequireFromString("30000")},
			want: otpIntent{
				Amount:         decimal.RequireFromString("30000"),
				DebtReminderID: &reminderID,
			},
			match: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := intentMatches(tt.stored, tt.want); got != tt.match {
				t.Fatalf("expected match=%t, got %t", tt.match, got)
			}
		})
	}
}
