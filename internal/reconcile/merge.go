package reconcile

import (
	"slices"
	"strings"

	"tonearm/internal/models"
	"tonearm/internal/shared"
)

// Merge combines per-catalog results into a canonical record. Returns nil
// when every input is nil.
//
// The base record comes from the primary catalog, falling back to the
// fallback catalog and then the community catalog. The base defines track
// membership and order; other sources only backfill missing ISRCs, never add
// or remove tracks. Genres are the lowercased union across all sources, and
// social links resolve per platform scanning primary, community, fallback.
func Merge(primary, community, fallback *models.CatalogResult) *models.CanonicalRecord {
	base := primary
	if base == nil {
		base = fallback
	}
	if base == nil {
		base = community
	}
	if base == nil {
		return nil
	}

	record := &models.CanonicalRecord{
		Artist:      base.Artist,
		Release:     base.Title,
		ReleaseDate: firstNonEmpty(primary, fallback, community, func(r *models.CatalogResult) string { return r.ReleaseDate }),
		Label:       firstNonEmpty(primary, fallback, community, func(r *models.CatalogResult) string { return r.Label }),
	}

	// Base tracks are deduplicated by normalized title and position,
	// keeping the first occurrence.
	tracks := make([]models.Track, 0, len(base.Tracks))
	seen := make(map[string]bool, len(base.Tracks))
	for _, t := range base.Tracks {
		key := shared.NormalizeTrackKey(t.Title, t.Position)
		if seen[key] {
			continue
		}
		seen[key] = true
		tracks = append(tracks, t)
	}
	slices.SortStableFunc(tracks, func(a, b models.Track) int { return a.Position - b.Position })

	for i := range tracks {
		if tracks[i].ISRC != nil {
			continue
		}
		for _, donor := range []*models.CatalogResult{fallback, community} {
			if donor == nil || donor == base {
				continue
			}
			if isrc := donorISRC(donor.Tracks, tracks[i]); isrc != nil {
				tracks[i].ISRC = isrc
				break
			}
		}
	}
	record.Tracks = tracks

	record.Genres = genreUnion(primary, community, fallback)
	record.SocialLinks = mergeSocialLinks(primary, community, fallback)

	for _, r := range []*models.CatalogResult{primary, community, fallback} {
		if r != nil {
			record.SourcesUsed = append(record.SourcesUsed, r.Source)
		}
	}

	return record
}

// donorISRC finds an ISRC in donor tracks matching the target by normalized
// title and position.
func donorISRC(tracks []models.Track, target models.Track) *string {
	key := shared.NormalizeTrackKey(target.Title, target.Position)
	for _, t := range tracks {
		if t.ISRC == nil {
			continue
		}
		if shared.NormalizeTrackKey(t.Title, t.Position) == key {
			isrc := *t.ISRC
			return &isrc
		}
	}
	return nil
}

func firstNonEmpty(primary, fallback, community *models.CatalogResult, field func(*models.CatalogResult) string) string {
	for _, r := range []*models.CatalogResult{primary, fallback, community} {
		if r == nil {
			continue
		}
		if v := field(r); v != "" {
			return v
		}
	}
	return ""
}

// genreUnion returns the deduplicated union of genres across sources,
// lowercased, trimmed, and sorted for deterministic output.
func genreUnion(results ...*models.CatalogResult) []string {
	seen := make(map[string]bool)
	for _, r := range results {
		if r == nil {
			continue
		}
		for _, g := range r.Genres {
			g = strings.ToLower(strings.TrimSpace(g))
			if g != "" {
				seen[g] = true
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}

	genres := make([]string, 0, len(seen))
	for g := range seen {
		genres = append(genres, g)
	}
	slices.Sort(genres)
	return genres
}

// mergeSocialLinks resolves each platform to the first link found scanning
// primary, then community, then fallback.
func mergeSocialLinks(primary, community, fallback *models.CatalogResult) map[string]string {
	links := make(map[string]string)
	for _, r := range []*models.CatalogResult{primary, community, fallback} {
		if r == nil {
			continue
		}
		for platform, link := range r.SocialLinks {
			if link == "" {
				continue
			}
			if _, exists := links[platform]; !exists {
				links[platform] = link
			}
		}
	}
	if len(links) == 0 {
		return nil
	}
	return links
}
