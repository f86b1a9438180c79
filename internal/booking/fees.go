package booking

import (
	"fmt"
	"strconv"
	"strings"
)

// FeePolicy decides the platform's share of a charged amount.  The
// organizer receives the rest.
type FeePolicy interface {
	PlatformFee(amountCents int64) int64
}

// FlatFee charges BasisPoints (1/100 of a percent) plus FixedCents per
// paid booking.
type FlatFee struct {
	BasisPoints int64
	FixedCents  int64
}

func (f FlatFee) PlatformFee(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return bps(amount, f.BasisPoints) + f.FixedCents
}

// FeeTier applies to amounts up to and including UpToCents.  A zero
// UpToCents means no upper bound.
type FeeTier struct {
	UpToCents   int64
	BasisPoints int64
	FixedCents  int64
}

// TieredFee picks the first tier whose bound covers the amount.  Tiers
// must be sorted by UpToCents.  Amounts above every bound pay the last tier.
type TieredFee struct {
	Tiers []FeeTier
}

func (t TieredFee) PlatformFee(amount int64) int64 {
	if amount <= 0 || len(t.Tiers) == 0 {
		return 0
	}
	tier := t.Tiers[len(t.Tiers)-1]
	for _, c := range t.Tiers {
		if c.UpToCents == 0 || amount <= c.UpToCents {
			tier = c
			break
		}
	}
	return bps(amount, tier.BasisPoints) + tier.FixedCents
}

// SplitRevenue returns the platform fee and organizer revenue for amount.
// The fee is clamped to [0, amount] so the two always add up to amount.
func SplitRevenue(policy FeePolicy, amount int64) (fee, revenue int64) {
	if amount <= 0 {
		return 0, 0
	}
	fee = policy.PlatformFee(amount)
	if fee < 0 {
		fee = 0
	}
	if fee > amount {
		fee = amount
	}
	return fee, amount - fee
}

// bps computes amount*basisPoints/10000 rounded half up.
func bps(amount, basisPoints int64) int64 {
	return (amount*basisPoints + 5000) / 10000
}

// NewFeePolicy builds the policy described by configuration.  A non-empty
// tiers spec wins over the flat settings.  The tiers format is a comma
// separated list of upto:bps:fixed, where the last upto must be "*".
func NewFeePolicy(flatBps, flatFixed int64, tiers string) (FeePolicy, error) {
	tiers = strings.TrimSpace(tiers)
	if tiers == "" {
		if flatBps < 0 || flatFixed < 0 {
			return nil, fmt.Errorf("fee policy: negative flat fee")
		}
		return FlatFee{BasisPoints: flatBps, FixedCents: flatFixed}, nil
	}
	specs := strings.Split(tiers, ",")
	var out TieredFee
	var last int64
	for i, raw := range specs {
		parts := strings.Split(strings.TrimSpace(raw), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("fee policy: tier %d: want upto:bps:fixed, got %q", i+1, raw)
		}
		var tier FeeTier
		if parts[0] != "*" {
			n, err := strconv.ParseInt(parts[0], 10, 64)
			if err != nil || n <= last {
				return nil, fmt.Errorf("fee policy: tier %d: bad bound %q", i+1, parts[0])
			}
			tier.UpToCents = n
			last = n
		}
		b, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || b < 0 {
			return nil, fmt.Errorf("fee policy: tier %d: bad bps %q", i+1, parts[1])
		}
		f, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("fee policy: tier %d: bad fixed fee %q", i+1, parts[2])
		}
		tier.BasisPoints, tier.FixedCents = b, f
		out.Tiers = append(out.Tiers, tier)
		if tier.UpToCents == 0 && i != len(specs)-1 {
			return nil, fmt.Errorf("fee policy: unbounded tier must be last")
		}
	}
	if out.Tiers[len(out.Tiers)-1].UpToCents != 0 {
		return nil, fmt.Errorf("fee policy: last tier must be unbounded (\"*\")")
	}
	return out, nil
}
