package merch

// ResolveSnapshotFields merges a freshly crawled product with the
// previously stored snapshot, carrying stored values forward wherever the
// new crawl could not re-derive a field. A transient page load that loses
// the BSR block must not erase history.
//
// The category rides with the rank: it is only replaced when the crawl
// produced a fresh non-empty category, even if the rank itself updated.
func ResolveSnapshotFields(existing, crawled Product) Product {
	resolved := crawled

	if resolved.BSR == nil {
		resolved.BSR = existing.BSR
	}
	if resolved.BSRCategory == "" {
		resolved.BSRCategory = existing.BSRCategory
	}
	if resolved.MerchSource == "" {
		resolved.MerchSource = existing.MerchSource
	}
	if resolved.ProductType == "" {
		resolved.ProductType = existing.ProductType
	}
	if resolved.PriceCents == nil {
		resolved.PriceCents = existing.PriceCents
	}
	if resolved.Rating == nil {
		resolved.Rating = existing.Rating
	}
	if resolved.ReviewCount == nil {
		resolved.ReviewCount = existing.ReviewCount
	}
	if resolved.Title == "" {
		resolved.Title = existing.Title
	}
	if resolved.Brand == "" {
		resolved.Brand = existing.Brand
	}
	if resolved.ImageURL == "" {
		resolved.ImageURL = existing.ImageURL
	}
	if !existing.FirstSeen.IsZero() {
		resolved.FirstSeen = existing.FirstSeen
	}
	return resolved
}

// Snapshot converts a resolved product into its history row.
func (p Product) Snapshot() HistorySnapshot {
	return HistorySnapshot{
		ASIN:        p.ASIN,
		CapturedAt:  p.LastSeen,
		PriceCents:  p.PriceCents,
		Rating:      p.Rating,
		ReviewCount: p.ReviewCount,
		BSR:         p.BSR,
		BSRCategory: p.BSRCategory,
		MerchSource: p.MerchSource,
		ProductType: p.ProductType,
	}
}
