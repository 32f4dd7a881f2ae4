package wager

import "github.com/coldbell/wager/backend/internal/fixedpoint"

// Payout is how one settlement leg is distributed.
type Payout struct {
	Winner         uint64
	Admin          uint64
	WinnerReferrer uint64
	LoserReferrer  uint64
}

// Total is the sum of every share.
func (p Payout) Total() uint64 {
	return p.Winner + p.Admin + p.WinnerReferrer + p.LoserReferrer
}

// SplitFee distributes value between the winner, the admin and up to two
// referrers. Each present referrer earns fee*(referrer_fee/2)/100. The
// admin takes the rest of the fee, so absent referrers and rounding dust
// both land with the admin and the shares always add up to value. The fee
// setters keep admin_fee+referrer_fee within 100, so the admin's share is
// never below fee*admin_fee/100.
func SplitFee(value, fee uint64, registry *Registry, winnerReferred, loserReferred bool) (Payout, error) {
	if fee > value {
		return Payout{}, fixedpoint.ErrOperationOverflow
	}
	var out Payout
	refShare := registry.ReferrerFee / 2
	var err error
	if winnerReferred {
		if out.WinnerReferrer, err = fixedpoint.Percent(fee, refShare); err != nil {
			return Payout{}, err
		}
	}
	if loserReferred {
		if out.LoserReferrer, err = fixedpoint.Percent(fee, refShare); err != nil {
			return Payout{}, err
		}
	}
	referrers, err := fixedpoint.CheckedAdd(out.WinnerReferrer, out.LoserReferrer)
	if err != nil {
		return Payout{}, err
	}
	if out.Admin, err = fixedpoint.CheckedSub(fee, referrers); err != nil {
		return Payout{}, err
	}
	out.Winner = value - fee
	return out, nil
}

// settlementFee is the fee charged on the first leg: twice the global fee
// of amount1.
func settlementFee(amount1 uint64, registry *Registry) (uint64, error) {
	total, err := fixedpoint.Percent(amount1, registry.GlobalFee)
	if err != nil {
		return 0, err
	}
	fee, err := fixedpoint.CheckedMul(total, 2)
	if err != nil {
		return 0, err
	}
	if fee > amount1 {
		return 0, fixedpoint.ErrOperationOverflow
	}
	return fee, nil
}

// stakeFor converts a tier price into token units at the feed quote.
func stakeFor(price, quote uint64) (uint64, error) {
	return fixedpoint.MulDivFloor(price, Precision*Precision, quote)
}
