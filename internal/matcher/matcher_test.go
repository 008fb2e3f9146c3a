package matcher

import (
	"fmt"
	"testing"

	"pricesync-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(skus ...string) []models.FeedRecord {
	records := make([]models.FeedRecord, len(skus))
	for i, sku := range skus {
		records[i] = models.FeedRecord{ID: fmt.Sprintf("f%d", i), SKU: sku}
	}
	return records
}

func listings(skus ...string) []models.ListingRecord {
	records := make([]models.ListingRecord, len(skus))
	for i, sku := range skus {
		records[i] = models.ListingRecord{ID: fmt.Sprintf("l%d", i), SKU: sku}
	}
	return records
}

func TestEveryFeedRecordClassifiedExactlyOnce(t *testing.T) {
	f := feed("ABC-123", "abc123", "", "  ", "MISSING", "XYZ 9")
	l := listings("ABC-123", "xyz9", "other")

	result := Match(f, l)

	assert.Equal(t, len(f), len(result.Matched)+len(result.Unlisted))
}

func TestExactMatchWins(t *testing.T) {
	f := feed("ABC-123")
	// Both an exact listing and one that only matches after normalization.
	l := []models.ListingRecord{
		{ID: "normalized-only", SKU: "abc123"},
		{ID: "exact", SKU: "ABC-123"},
	}

	result := Match(f, l)

	require.Len(t, result.Matched, 1)
	assert.Equal(t, "exact", result.Matched[0].Listing.ID)
	assert.Equal(t, ConfidenceExact, result.Matched[0].Confidence)
}

func TestNormalizedMatch(t *testing.T) {
	f := feed("ABC-123")
	l := listings("abc123")

	result := Match(f, l)

	require.Len(t, result.Matched, 1)
	assert.Equal(t, ConfidenceNormalized, result.Matched[0].Confidence)
	assert.Empty(t, result.Unlisted)
}

func TestNormalizationStripsSpacesAndHyphens(t *testing.T) {
	f := feed("aB c-12 3")
	l := listings("ABC123")

	result := Match(f, l)

	require.Len(t, result.Matched, 1)
	assert.Equal(t, ConfidenceNormalized, result.Matched[0].Confidence)
}

func TestUnmatchedFeedRecordIsUnlisted(t *testing.T) {
	f := feed("NOPE-1")
	l := listings("abc123", "def456")

	result := Match(f, l)

	assert.Empty(t, result.Matched)
	require.Len(t, result.Unlisted, 1)
	assert.Equal(t, "NOPE-1", result.Unlisted[0].SKU)
}

func TestBlankFeedSKUAlwaysUnlisted(t *testing.T) {
	f := feed("", "   ")
	l := listings("", "   ")

	result := Match(f, l)

	assert.Empty(t, result.Matched)
	assert.Len(t, result.Unlisted, 2)
}

func TestBlankListingSKUNeverMatched(t *testing.T) {
	f := feed("ABC")
	l := listings("", "  ")

	result := Match(f, l)

	assert.Empty(t, result.Matched)
	assert.Len(t, result.Unlisted, 1)
}

func TestDuplicateListingSKUFirstWins(t *testing.T) {
	f := feed("ABC")
	l := []models.ListingRecord{
		{ID: "first", SKU: "ABC"},
		{ID: "second", SKU: "ABC"},
	}

	result := Match(f, l)

	require.Len(t, result.Matched, 1)
	assert.Equal(t, "first", result.Matched[0].Listing.ID)
}

func TestDeterministic(t *testing.T) {
	f := feed("A-1", "b2", "C 3", "", "D4")
	l := listings("a1", "B-2", "c3", "E5")

	first := Match(f, l)
	second := Match(f, l)

	assert.Equal(t, first, second)
}
