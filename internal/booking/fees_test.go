package booking

import "testing"

func TestNewFeePolicy(t *testing.T) {
	tests := []struct {
		name    string
		bps     int64
		fixed   int64
		tiers   string
		amount  int64
		wantFee int64
		wantErr bool
	}{
		{name: "flat", bps: 250, fixed: 100, amount: 10000, wantFee: 350},
		{name: "flat rounds half up", bps: 250, amount: 1, wantFee: 0},
		{name: "flat rounds half up at boundary", bps: 5000, amount: 1, wantFee: 1},
		{name: "tiers first", tiers: "1000:0:50, 10000:300:0, *:200:0", amount: 800, wantFee: 50},
		{name: "tiers middle", tiers: "1000:0:50,10000:300:0,*:200:0", amount: 10000, wantFee: 300},
		{name: "tiers unbounded", tiers: "1000:0:50,10000:300:0,*:200:0", amount: 50000, wantFee: 1000},
		{name: "tiers win over flat", bps: 9999, tiers: "*:100:0", amount: 10000, wantFee: 100},
		{name: "negative flat", bps: -1, wantErr: true},
		{name: "malformed tier", tiers: "1000:0", wantErr: true},
		{name: "unsorted tiers", tiers: "5000:0:0,1000:0:0", wantErr: true},
		{name: "unbounded not last", tiers: "*:0:0,1000:0:0", wantErr: true},
		{name: "bad bps", tiers: "*:x:0", wantErr: true},
		{name: "no unbounded tier", tiers: "1000:0:50,10000:300:0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewFeePolicy(tt.bps, tt.fixed, tt.tiers)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got policy %+v", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewFeePolicy: %v", err)
			}
			if got := p.PlatformFee(tt.amount); got != tt.wantFee {
				t.Fatalf("PlatformFee(%d) = %d, want %d", tt.amount, got, tt.wantFee)
			}
		})
	}
}

func TestSplitRevenueClamps(t *testing.T) {
	fee, rev := SplitRevenue(FlatFee{FixedCents: 500}, 300)
	if fee != 300 || rev != 0 {
		t.Fatalf("fee=%d rev=%d, want 300 and 0", fee, rev)
	}
	fee, rev = SplitRevenue(FlatFee{BasisPoints: 1000}, 0)
	if fee != 0 || rev != 0 {
		t.Fatalf("zero amount: fee=%d rev=%d", fee, rev)
	}
}

func TestTieredFeeAboveLastBound(t *testing.T) {
	p := TieredFee{Tiers: []FeeTier{{UpToCents: 1000, FixedCents: 50}, {UpToCents: 10000, BasisPoints: 300}}}
	if got := p.PlatformFee(20000); got != 600 {
		t.Fatalf("PlatformFee(20000) = %d, want 600 from the last tier", got)
	}
	if got := (TieredFee{}).PlatformFee(500); got != 0 {
		t.Fatalf("empty tiers fee = %d, want 0", got)
	}
}
