package holdings

import "mintwatch/internal/domain"

// Field-merge policy, kept in one place so it can be reviewed and tested
// independently of scheduling:
//
//   - descriptive metadata (symbol, name, icon, socials, dev, launchpad,
//     funding) is fill-if-absent: never overwritten once set;
//   - current-state metrics (price, liquidity, holder count, mcap,
//     top-holder percentage, dev migrations) are overwrite-if-newer-non-null:
//     always replaced by the latest non-null observation;
//   - provenance (last_signature, last_slot, last_timestamp) follows the
//     maximum timestamp observed.

// copyFloat detaches an amount from the record it arrived on, so cache
// state never shares memory with published records.
func copyFloat(src *float64) *float64 {
	if src == nil {
		return nil
	}
	v := *src
	return &v
}

func fillString(dst **string, src *string) {
	if *dst == nil && src != nil {
		*dst = src
	}
}

func fillInt64(dst **int64, src *int64) {
	if *dst == nil && src != nil {
		*dst = src
	}
}

func overwriteFloat(dst **float64, src *float64) {
	if src != nil {
		*dst = src
	}
}

func overwriteInt64(dst **int64, src *int64) {
	if src != nil {
		*dst = src
	}
}

func newCardFromRecord(mint string, rec *domain.TransactionRecord, ts int64) *domain.MintCard {
	card := &domain.MintCard{
		Mint:                 mint,
		TokenSymbol:          rec.TokenSymbol,
		TokenName:            rec.TokenName,
		TokenIcon:            rec.TokenIcon,
		UsdPrice:             rec.UsdPrice,
		Liquidity:            rec.Liquidity,
		HolderCount:          rec.HolderCount,
		Mcap:                 rec.Mcap,
		TopHoldersPercentage: rec.TopHoldersPercentage,
		DevMigrations:        rec.DevMigrations,
		Dev:                  rec.Dev,
		Launchpad:            rec.Launchpad,
		FirstPoolCreatedAt:   rec.FirstPoolCreatedAt,
		Twitter:              rec.Twitter,
		Website:              rec.Website,
		LastSignature:        strPtrOrNil(rec.Signature),
		LastSlot:             rec.Slot,
		LastTimestamp:        ts,
		SourceURL:            rec.SourceURL,
		FundOrigin:           rec.FundOrigin,
		FundAgeLiteral:       rec.FundAgeLiteral,
		FundAgeSeconds:       rec.FundAgeSeconds,
		Accounts:             make(map[string]*domain.WalletEntry),
	}
	if label := labelFor(rec.SourceURL); label != "" {
		card.TypeLabel = &label
	}
	return card
}

// mergeCardMetadata applies the fill-if-absent and overwrite-if-newer groups
// of one observation to an existing card.
func mergeCardMetadata(card *domain.MintCard, rec *domain.TransactionRecord) {
	fillString(&card.TokenSymbol, rec.TokenSymbol)
	fillString(&card.TokenName, rec.TokenName)
	fillString(&card.TokenIcon, rec.TokenIcon)
	fillString(&card.Twitter, rec.Twitter)
	fillString(&card.Website, rec.Website)
	fillString(&card.SourceURL, rec.SourceURL)
	fillString(&card.Dev, rec.Dev)
	fillString(&card.Launchpad, rec.Launchpad)
	fillString(&card.FirstPoolCreatedAt, rec.FirstPoolCreatedAt)
	fillString(&card.FundOrigin, rec.FundOrigin)
	fillString(&card.FundAgeLiteral, rec.FundAgeLiteral)
	fillInt64(&card.FundAgeSeconds, rec.FundAgeSeconds)

	overwriteFloat(&card.UsdPrice, rec.UsdPrice)
	overwriteFloat(&card.Liquidity, rec.Liquidity)
	overwriteInt64(&card.HolderCount, rec.HolderCount)
	overwriteFloat(&card.Mcap, rec.Mcap)
	overwriteFloat(&card.TopHoldersPercentage, rec.TopHoldersPercentage)
	overwriteInt64(&card.DevMigrations, rec.DevMigrations)

	if card.TypeLabel == nil {
		if label := labelFor(rec.SourceURL); label != "" {
			card.TypeLabel = &label
		}
	}
}

// mergeCardProvenance advances last_signature/slot/timestamp when the
// observation is at least as recent as the card.
func mergeCardProvenance(card *domain.MintCard, rec *domain.TransactionRecord, ts int64) {
	if ts < card.LastTimestamp {
		return
	}
	card.LastTimestamp = ts
	if rec.Slot != nil {
		card.LastSlot = rec.Slot
	}
	if rec.Signature != "" {
		sig := rec.Signature
		card.LastSignature = &sig
	}
}

// mergeTokenInfo applies a token-search result to a card: descriptive fields
// fill-if-absent, current-state metrics overwrite-if-newer.
func mergeTokenInfo(card *domain.MintCard, info *domain.TokenInfo) {
	overwriteInt64(&card.HolderCount, info.HolderCount)
	overwriteFloat(&card.Mcap, info.Mcap)
	overwriteFloat(&card.UsdPrice, info.UsdPrice)
	overwriteFloat(&card.Liquidity, info.Liquidity)
	overwriteFloat(&card.TopHoldersPercentage, info.TopHoldersPercentage)
	overwriteInt64(&card.DevMigrations, info.DevMigrations)

	fillString(&card.TokenName, info.Name)
	fillString(&card.TokenSymbol, info.Symbol)
	fillString(&card.TokenIcon, info.Icon)
	fillString(&card.Twitter, info.Twitter)
	fillString(&card.Website, info.Website)
	fillString(&card.Dev, info.Dev)
	fillString(&card.Launchpad, info.Launchpad)
	fillString(&card.FirstPoolCreatedAt, info.FirstPoolCreatedAt)
}

// upsertWalletEntry creates or updates the wallet entry for one observation.
func upsertWalletEntry(card *domain.MintCard, rec *domain.TransactionRecord, ts int64) {
	acct := *rec.Wallet
	entry, ok := card.Accounts[acct]
	if !ok {
		entry = &domain.WalletEntry{
			Account:        acct,
			FirstSeen:      ts,
			LastSeen:       ts,
			LastSlot:       rec.Slot,
			LastAmount:     copyFloat(rec.TokenAmount),
			TxCount:        1,
			FundingOrigin:  rec.FundOrigin,
			FundAgeLiteral: rec.FundAgeLiteral,
			FundAgeSeconds: rec.FundAgeSeconds,
		}
		if rec.Signature != "" {
			sig := rec.Signature
			entry.LastSignature = &sig
			entry.FundingSignature = &sig
		}
		if label := labelFor(rec.SourceURL); label != "" {
			entry.TypeLabel = &label
			entry.TypeTags = []string{label}
		}
		if entry.LastAmount != nil && *entry.LastAmount <= 0 {
			soldAt := ts
			entry.SoldAt = &soldAt
		}
		card.Accounts[acct] = entry
		return
	}

	if ts > entry.LastSeen {
		entry.LastSeen = ts
	}
	if rec.Signature != "" {
		sig := rec.Signature
		entry.LastSignature = &sig
		entry.FundingSignature = &sig
	}
	if rec.Slot != nil {
		entry.LastSlot = rec.Slot
	}
	if rec.TokenAmount != nil {
		entry.LastAmount = copyFloat(rec.TokenAmount)
	}
	// sold_at toggles with the observed amount, as in SetWalletAmount.
	if entry.LastAmount != nil {
		if *entry.LastAmount > 0 {
			entry.SoldAt = nil
		} else {
			soldAt := ts
			entry.SoldAt = &soldAt
		}
	}
	entry.TxCount++

	// Funding follows the latest non-null observation for the wallet.
	if rec.FundOrigin != nil {
		entry.FundingOrigin = rec.FundOrigin
	}
	if rec.FundAgeLiteral != nil {
		entry.FundAgeLiteral = rec.FundAgeLiteral
	}
	if rec.FundAgeSeconds != nil {
		entry.FundAgeSeconds = rec.FundAgeSeconds
	}

	if label := labelFor(rec.SourceURL); label != "" {
		if entry.TypeLabel == nil {
			entry.TypeLabel = &label
		}
		if !containsString(entry.TypeTags, label) {
			entry.TypeTags = append(entry.TypeTags, label)
		}
	}
}

func labelFor(sourceURL *string) string {
	if sourceURL == nil {
		return ""
	}
	return domain.TypeLabelForSource(*sourceURL)
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
