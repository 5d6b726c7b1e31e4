package reconcile

import (
	"slices"
	"testing"

	"tonearm/internal/models"
)

func strptr(s string) *string { return &s }

func TestMerge(t *testing.T) {
	t.Run("all nil inputs", func(t *testing.T) {
		if record := Merge(nil, nil, nil); record != nil {
			t.Errorf("expected nil record, got %+v", record)
		}
	})

	t.Run("primary fields beat community fields", func(t *testing.T) {
		primary := &models.CatalogResult{
			Source: models.SourcePrimary,
			Artist: "Gojira",
			Title:  "Fortitude",
			Label:  "Roadrunner Records",
		}
		community := &models.CatalogResult{
			Source: models.SourceCommunity,
			Artist: "Gojira",
			Title:  "Fortitude",
			Label:  "Nuclear Blast",
		}

		record := Merge(primary, community, nil)
		if record.Label != "Roadrunner Records" {
			t.Errorf("expected primary label to win, got %s", record.Label)
		}
	})

	t.Run("fallback is base when primary absent", func(t *testing.T) {
		community := &models.CatalogResult{Source: models.SourceCommunity, Title: "Fortitude (MB)"}
		fallback := &models.CatalogResult{Source: models.SourceFallback, Title: "Fortitude (DZ)"}

		record := Merge(nil, community, fallback)
		if record.Release != "Fortitude (DZ)" {
			t.Errorf("expected fallback to provide the base, got %s", record.Release)
		}
	})

	t.Run("community is base when it is the only source", func(t *testing.T) {
		community := &models.CatalogResult{Source: models.SourceCommunity, Title: "Fortitude"}

		record := Merge(nil, community, nil)
		if record.Release != "Fortitude" {
			t.Errorf("expected community base, got %s", record.Release)
		}
		if len(record.SourcesUsed) != 1 || record.SourcesUsed[0] != models.SourceCommunity {
			t.Errorf("expected community in sources used, got %v", record.SourcesUsed)
		}
	})

	t.Run("empty base scalar falls through", func(t *testing.T) {
		primary := &models.CatalogResult{Source: models.SourcePrimary, Title: "Fortitude"}
		community := &models.CatalogResult{Source: models.SourceCommunity, Title: "Fortitude", ReleaseDate: "2021-04-30"}

		record := Merge(primary, community, nil)
		if record.ReleaseDate != "2021-04-30" {
			t.Errorf("expected community date to fill the gap, got %s", record.ReleaseDate)
		}
	})

	t.Run("ISRC backfill matches normalized title and position", func(t *testing.T) {
		primary := &models.CatalogResult{
			Source: models.SourcePrimary,
			Tracks: []models.Track{
				{Position: 1, Title: "Title A"},
				{Position: 2, Title: "Title B", ISRC: strptr("FR-XXX-00-00002")},
			},
		}
		fallback := &models.CatalogResult{
			Source: models.SourceFallback,
			Tracks: []models.Track{
				{Position: 1, Title: "  title a ", ISRC: strptr("FR-XXX-00-00001")},
			},
		}

		record := Merge(primary, nil, fallback)
		if record.Tracks[0].ISRC == nil || *record.Tracks[0].ISRC != "FR-XXX-00-00001" {
			t.Errorf("expected backfilled ISRC on first track, got %v", record.Tracks[0].ISRC)
		}
		if *record.Tracks[1].ISRC != "FR-XXX-00-00002" {
			t.Error("expected existing ISRC to be untouched")
		}
	})

	t.Run("fallback ISRC beats community ISRC", func(t *testing.T) {
		primary := &models.CatalogResult{
			Source: models.SourcePrimary,
			Tracks: []models.Track{{Position: 1, Title: "Title A"}},
		}
		community := &models.CatalogResult{
			Source: models.SourceCommunity,
			Tracks: []models.Track{{Position: 1, Title: "Title A", ISRC: strptr("COMMUNITY")}},
		}
		fallback := &models.CatalogResult{
			Source: models.SourceFallback,
			Tracks: []models.Track{{Position: 1, Title: "Title A", ISRC: strptr("FALLBACK")}},
		}

		record := Merge(primary, community, fallback)
		if *record.Tracks[0].ISRC != "FALLBACK" {
			t.Errorf("expected fallback ISRC to win, got %s", *record.Tracks[0].ISRC)
		}
	})

	t.Run("community backfills when fallback has no match", func(t *testing.T) {
		primary := &models.CatalogResult{
			Source: models.SourcePrimary,
			Tracks: []models.Track{{Position: 1, Title: "Title A"}},
		}
		community := &models.CatalogResult{
			Source: models.SourceCommunity,
			Tracks: []models.Track{{Position: 1, Title: "Title A", ISRC: strptr("COMMUNITY")}},
		}
		fallback := &models.CatalogResult{
			Source: models.SourceFallback,
			Tracks: []models.Track{{Position: 1, Title: "Different Song", ISRC: strptr("FALLBACK")}},
		}

		record := Merge(primary, community, fallback)
		if *record.Tracks[0].ISRC != "COMMUNITY" {
			t.Errorf("expected community ISRC, got %s", *record.Tracks[0].ISRC)
		}
	})

	t.Run("position mismatch blocks backfill", func(t *testing.T) {
		primary := &models.CatalogResult{
			Source: models.SourcePrimary,
			Tracks: []models.Track{{Position: 1, Title: "Title A"}},
		}
		fallback := &models.CatalogResult{
			Source: models.SourceFallback,
			Tracks: []models.Track{{Position: 5, Title: "Title A", ISRC: strptr("FALLBACK")}},
		}

		record := Merge(primary, nil, fallback)
		if record.Tracks[0].ISRC != nil {
			t.Errorf("expected nil ISRC when positions differ, got %v", *record.Tracks[0].ISRC)
		}
	})

	t.Run("base defines track membership and order", func(t *testing.T) {
		primary := &models.CatalogResult{
			Source: models.SourcePrimary,
			Tracks: []models.Track{
				{Position: 2, Title: "Title B"},
				{Position: 1, Title: "Title A"},
			},
		}
		fallback := &models.CatalogResult{
			Source: models.SourceFallback,
			Tracks: []models.Track{
				{Position: 1, Title: "Title A"},
				{Position: 2, Title: "Title B"},
				{Position: 3, Title: "Bonus Track", ISRC: strptr("BONUS")},
			},
		}

		record := Merge(primary, nil, fallback)
		if len(record.Tracks) != 2 {
			t.Fatalf("expected 2 tracks from base, got %d", len(record.Tracks))
		}
		if record.Tracks[0].Position != 1 || record.Tracks[1].Position != 2 {
			t.Errorf("expected tracks sorted by position, got %+v", record.Tracks)
		}
	})

	t.Run("duplicate base tracks collapse to first occurrence", func(t *testing.T) {
		primary := &models.CatalogResult{
			Source: models.SourcePrimary,
			Tracks: []models.Track{
				{Position: 1, Title: "Born for One Thing", ISRC: strptr("FIRST")},
				{Position: 2, Title: "Amazonia"},
				{Position: 1, Title: " born for one thing "},
			},
		}

		record := Merge(primary, nil, nil)
		if len(record.Tracks) != 2 {
			t.Fatalf("expected 2 deduplicated tracks, got %d", len(record.Tracks))
		}
		if record.Tracks[0].ISRC == nil || *record.Tracks[0].ISRC != "FIRST" {
			t.Errorf("expected first occurrence kept, got %+v", record.Tracks[0])
		}
		if record.Tracks[1].Title != "Amazonia" {
			t.Errorf("expected Amazonia second, got %s", record.Tracks[1].Title)
		}
	})

	t.Run("genre union lowercased and sorted", func(t *testing.T) {
		primary := &models.CatalogResult{Source: models.SourcePrimary, Genres: []string{"Metal", " Progressive Metal "}}
		community := &models.CatalogResult{Source: models.SourceCommunity, Genres: []string{"metal", "Death Metal"}}

		record := Merge(primary, community, nil)
		want := []string{"death metal", "metal", "progressive metal"}
		if !slices.Equal(record.Genres, want) {
			t.Errorf("expected %v, got %v", want, record.Genres)
		}
	})

	t.Run("social links resolve per platform", func(t *testing.T) {
		primary := &models.CatalogResult{
			Source:      models.SourcePrimary,
			SocialLinks: map[string]string{"spotify": "https://open.spotify.com/album/x"},
		}
		community := &models.CatalogResult{
			Source: models.SourceCommunity,
			SocialLinks: map[string]string{
				"website": "https://www.gojira-music.com",
				"spotify": "https://community-copy.example.com",
			},
		}
		fallback := &models.CatalogResult{
			Source:      models.SourceFallback,
			SocialLinks: map[string]string{"website": "https://fallback.example.com"},
		}

		record := Merge(primary, community, fallback)
		if record.SocialLinks["spotify"] != "https://open.spotify.com/album/x" {
			t.Errorf("expected primary spotify link, got %s", record.SocialLinks["spotify"])
		}
		if record.SocialLinks["website"] != "https://www.gojira-music.com" {
			t.Errorf("expected community website over fallback, got %s", record.SocialLinks["website"])
		}
	})

	t.Run("sources used lists contributors in role order", func(t *testing.T) {
		primary := &models.CatalogResult{Source: models.SourcePrimary}
		fallback := &models.CatalogResult{Source: models.SourceFallback}

		record := Merge(primary, nil, fallback)
		want := []models.Source{models.SourcePrimary, models.SourceFallback}
		if !slices.Equal(record.SourcesUsed, want) {
			t.Errorf("expected %v, got %v", want, record.SourcesUsed)
		}
	})
}
