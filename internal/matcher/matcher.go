package matcher

import (
	"strings"

	"pricesync-service/internal/models"
)

// Match confidences
const (
	ConfidenceExact      = 1.0
	ConfidenceNormalized = 0.9
)

// Match correlates feed records to platform listings by SKU. Every feed
// record is classified exactly once: matched (exact SKU, then normalized
// SKU) or unlisted. Listings with blank SKUs can never be matched; on
// duplicate SKU keys the first listing seen wins. Deterministic for
// identical inputs in identical order.
func Match(feed []models.FeedRecord, listings []models.ListingRecord) models.MatchResult {
	exact := make(map[string]models.ListingRecord, len(listings))
	normalized := make(map[string]models.ListingRecord, len(listings))

	for _, l := range listings {
		if strings.TrimSpace(l.SKU) == "" {
			continue
		}
		if _, ok := exact[l.SKU]; !ok {
			exact[l.SKU] = l
		}
		key := normalizeSKU(l.SKU)
		if _, ok := normalized[key]; !ok {
			normalized[key] = l
		}
	}

	result := models.MatchResult{
		Matched:  make([]models.MatchedPair, 0, len(feed)),
		Unlisted: make([]models.FeedRecord, 0),
	}

	for _, f := range feed {
		if strings.TrimSpace(f.SKU) == "" {
			result.Unlisted = append(result.Unlisted, f)
			continue
		}

		if l, ok := exact[f.SKU]; ok {
			result.Matched = append(result.Matched, models.MatchedPair{
				Feed: f, Listing: l, Confidence: ConfidenceExact,
			})
			continue
		}

		if l, ok := normalized[normalizeSKU(f.SKU)]; ok {
			result.Matched = append(result.Matched, models.MatchedPair{
				Feed: f, Listing: l, Confidence: ConfidenceNormalized,
			})
			continue
		}

		result.Unlisted = append(result.Unlisted, f)
	}

	return result
}

// normalizeSKU lowercases and strips spaces and hyphens.
func normalizeSKU(sku string) string {
	s := strings.ToLower(sku)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}
