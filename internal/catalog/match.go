package catalog

import (
	"strings"

	"tonearm/internal/shared"
)

// Matching tier weights. Each tier outranks all lower tiers combined, so an
// exact artist match always beats any combination of release, country, and
// official-status matches.
const (
	weightArtist   = 8
	weightRelease  = 4
	weightCountry  = 2
	weightOfficial = 1
)

// editDistanceMax bounds the loose-match edit distance.
const editDistanceMax = 2

// SelectCandidate picks the best candidate for the query, preferring exact
// artist matches, then exact release matches, then country, then official
// status. Ties keep the earliest candidate in catalog order. Candidates that
// do not at least loosely match both artist and release are never eligible,
// so an unrelated official candidate cannot shadow a loose match. When no
// candidate is eligible, no candidate is returned.
func SelectCandidate(candidates []Candidate, artist, release, country string) (Candidate, bool) {
	artistKey := shared.NormalizeText(artist)
	releaseKey := shared.NormalizeText(release)
	countryKey := shared.NormalizeCountry(country)

	best := -1
	bestScore := -1
	for i, c := range candidates {
		candArtist := shared.NormalizeText(c.Artist)
		candTitle := shared.NormalizeText(c.Title)
		if !looseMatch(candArtist, artistKey) || !looseMatch(candTitle, releaseKey) {
			continue
		}

		score := 0
		if candArtist == artistKey {
			score += weightArtist
		}
		if candTitle == releaseKey {
			score += weightRelease
		}
		if countryKey != "" && shared.NormalizeCountry(c.Country) == countryKey {
			score += weightCountry
		}
		if c.Official {
			score += weightOfficial
		}
		if score > bestScore {
			bestScore = score
			best = i
		}
	}

	if best < 0 {
		return Candidate{}, false
	}

	return candidates[best], true
}

// looseMatch reports whether two normalized strings are close enough to
// count as the same name: equal, substring of one another, or within a small
// edit distance.
func looseMatch(got, want string) bool {
	if got == want {
		return true
	}
	if got == "" || want == "" {
		return false
	}
	if strings.Contains(got, want) || strings.Contains(want, got) {
		return true
	}
	return levenshtein(got, want) <= editDistanceMax
}

// levenshtein computes the edit distance between two strings using the
// two-row dynamic programming formulation.
func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}
