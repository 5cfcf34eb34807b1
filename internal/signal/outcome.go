package signal

import (
	"math"
	"time"

	"marketvision/internal/market"
)

// Pending signals trigger when price trades through entry or closes within
// this fraction of entry on the adverse side.
const entryTolerance = 0.001

// CheckOutcome advances one signal's state machine against a new bar.
// It returns true when the signal's status changed. Closed signals are
// never mutated, so repeated calls on the same bar are idempotent.
//
// When one bar spans both stop and target the stop wins; bar geometry is
// unknown, so the conservative reading is applied consistently.
func CheckOutcome(sig *Signal, bar market.Candle, now time.Time) bool {
	if sig == nil || sig.Status.Closed() {
		return false
	}

	switch sig.Status {
	case StatusPending:
		if now.After(sig.ExpiresAt) {
			sig.Status = StatusExpired
			t := now.UTC()
			sig.ClosedAt = &t
			return true
		}
		if entryReached(sig, bar) {
			sig.Status = StatusActive
			t := now.UTC()
			sig.TriggeredAt = &t
			return true
		}
		return false

	case StatusActive:
		updateExcursions(sig, bar)
		exit, terminal := resolveExit(sig, bar)
		if terminal == "" {
			return false
		}
		closeSignal(sig, exit, terminal, now)
		return true
	}
	return false
}

func entryReached(sig *Signal, bar market.Candle) bool {
	if sig.Direction == DirectionLong {
		return bar.Low <= sig.EntryPrice || bar.Close <= sig.EntryPrice*(1+entryTolerance)
	}
	return bar.High >= sig.EntryPrice || bar.Close >= sig.EntryPrice*(1-entryTolerance)
}

// updateExcursions keeps MFE/MAE as running maxima; they never decrease.
func updateExcursions(sig *Signal, bar market.Candle) {
	var favorable, adverse float64
	if sig.Direction == DirectionLong {
		favorable = bar.High - sig.EntryPrice
		adverse = sig.EntryPrice - bar.Low
	} else {
		favorable = sig.EntryPrice - bar.Low
		adverse = bar.High - sig.EntryPrice
	}
	favorable = math.Max(0, favorable)
	adverse = math.Max(0, adverse)

	if sig.MFE == nil || favorable > *sig.MFE {
		sig.MFE = &favorable
	}
	if sig.MAE == nil || adverse > *sig.MAE {
		sig.MAE = &adverse
	}
}

// resolveExit returns the exit price and terminal status, or "" when the
// bar closes nothing. Stop-loss is checked before take-profit.
func resolveExit(sig *Signal, bar market.Candle) (float64, Status) {
	if sig.Direction == DirectionLong {
		if bar.Low <= sig.StopLoss {
			return sig.StopLoss, StatusLoss
		}
		if bar.High >= sig.TakeProfit {
			return sig.TakeProfit, StatusWin
		}
		return 0, ""
	}
	if bar.High >= sig.StopLoss {
		return sig.StopLoss, StatusLoss
	}
	if bar.Low <= sig.TakeProfit {
		return sig.TakeProfit, StatusWin
	}
	return 0, ""
}

func closeSignal(sig *Signal, exit float64, terminal Status, now time.Time) {
	pnl := exit - sig.EntryPrice
	if sig.Direction == DirectionShort {
		pnl = -pnl
	}
	pct := 0.0
	if sig.EntryPrice != 0 {
		pct = pnl / sig.EntryPrice * 100
	}

	sig.Status = terminal
	sig.ExitPrice = &exit
	sig.PnL = &pnl
	sig.PnLPct = &pct
	t := now.UTC()
	sig.ClosedAt = &t
}
