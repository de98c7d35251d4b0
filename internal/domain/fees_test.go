package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSplitFee(t *testing.T) {
	tests := []struct {
		name         string
		amount       string
		fee          string
		feePayer     string
		wantTotal    string
		wantReceived string
	}{
		{
			name:         "sender pays fee on top",
			amount:       "20000",
			fee:          "5000",
			feePayer:     FeePayerSender,
			wantTotal:    "25000",
			wantReceived: "20000",
		},
		{
			name:         "receiver pays fee out of credit",
			amount:       "20000",
			fee:          "5000",
			feePayer:     FeePayerReceiver,
			wantTotal:    "20000",
			wantReceived: "15000",
		},
		{
			name:         "zero fee splits nothing",
			amount:       "20000",
			fee:          "0",
			feePayer:     FeePayerSender,
			wantTotal:    "20000",
			wantReceived: "20000",
		},
		{
			name:         "fractional amounts stay exact",
			amount:       "0.10",
			fee:          "0.01",
			feePayer:     FeePayerReceiver,
			wantTotal:    "0.10",
			wantReceived: "0.09",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tt.amount)
			fee := decimal.RequireFromString(tt.fee)
			total, received := SplitFee(amount, fee, tt.feePayer)
			if !total.Equal(decimal.RequireFromString(tt.wantTotal)) {
				t.Fatalf("expected total=%s, got %s", tt.wantTotal, total)
			}
			if !received.Equal(decimal.RequireFromString(tt.wantReceived)) {
				t.Fatalf("expected received=%s, got %s", tt.wantReceived, received)
			}
		})
	}
}
