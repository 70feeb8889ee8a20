package portfolio

import (
	"strings"

	"github.com/Danijel-Enoch/OctoBot-Trading/pkg/exchanges/common"
)

// reconcile combines one authoritative balance snapshot with the locally
// derived locked amounts into a consistent asset table. It is a pure
// function: the two inputs are never mutated in place, so both writers of
// balance state (exchange pushes, order transitions) meet only here.
//
// The authoritative total always wins. Locked comes from open orders;
// available is whatever remains — the venue's reported available is
// discarded, venues report it without knowledge of our in-flight orders.
// The result diverges when derived locked exceeds the authoritative total,
// an allocation the venue cannot honor.
func reconcile(snap common.BalanceSnapshot, lockedByAsset map[string]float64, tolerance float64) (map[string]Asset, bool) {
	assets := make(map[string]Asset, len(snap.Balances))
	converged := true

	seen := make(map[string]struct{}, len(snap.Balances))
	for _, b := range snap.Balances {
		seen[b.Asset] = struct{}{}
		locked := lockedByAsset[b.Asset]
		available := b.Total - locked
		if available < -tolerance {
			// Orders reserve more than the venue says we own.
			converged = false
			available = 0
			locked = b.Total
		} else if available < 0 {
			available = 0
			locked = b.Total
		}
		assets[b.Asset] = Asset{
			Asset:     b.Asset,
			Available: available,
			Locked:    locked,
			Total:     b.Total,
		}
	}

	// Assets locked by open orders but absent from the snapshot cannot be
	// reconciled; surface them as divergence.
	for asset, locked := range lockedByAsset {
		if locked <= tolerance {
			continue
		}
		if _, ok := seen[asset]; !ok {
			converged = false
		}
	}
	return assets, converged
}

// quoteSuffixes are tried longest-first when a symbol has no separator.
var quoteSuffixes = []string{"USDT", "USDC", "BUSD", "TUSD", "BTC", "ETH", "BNB", "EUR", "USD"}

// splitSymbol breaks a trading pair into base and quote assets. Separated
// forms (BTC/USDT, BTC-USDT, BTC_USDT) split directly; bare forms fall back
// to known quote suffixes.
func splitSymbol(symbol string) (base, quote string) {
	for _, sep := range []string{"/", "-", "_"} {
		if i := strings.Index(symbol, sep); i > 0 {
			return symbol[:i], symbol[i+len(sep):]
		}
	}
	for _, q := range quoteSuffixes {
		if len(symbol) > len(q) && strings.HasSuffix(symbol, q) {
			return symbol[:len(symbol)-len(q)], q
		}
	}
	return symbol, "USDT"
}
