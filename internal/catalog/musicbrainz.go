// MusicBrainz catalog [Client] implementation
//
// Anonymous access with a mandatory descriptive User-Agent, throttled to
// one request per second per the MusicBrainz rate limiting rules.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"tonearm/internal/models"
	"tonearm/internal/shared"
)

const (
	musicbrainzBaseURL     = "https://musicbrainz.org/ws/2"
	musicbrainzSearchLimit = 25

	// Slightly over one second between requests keeps us under the
	// anonymous rate limit even with clock jitter.
	musicbrainzRequestGap = 1100 * time.Millisecond

	musicbrainzReleaseInc = "recordings+artists+artist-credits+labels+release-groups+genres+tags+media+isrcs"
	musicbrainzArtistInc  = "url-rels+genres"
)

type mbArtistCredit struct {
	Name   string `json:"name"`
	Artist struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"artist"`
}

type mbGenre struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type mbTrack struct {
	Title     string `json:"title"`
	Position  int    `json:"position"`
	Recording struct {
		Title  string   `json:"title"`
		Length int      `json:"length"`
		ISRCs  []string `json:"isrcs"`
	} `json:"recording"`
}

type mbRelease struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Status       string           `json:"status"`
	Country      string           `json:"country"`
	Date         string           `json:"date"`
	ArtistCredit []mbArtistCredit `json:"artist-credit"`
	LabelInfo    []struct {
		Label struct {
			Name string `json:"name"`
		} `json:"label"`
	} `json:"label-info"`
	Media []struct {
		Tracks []mbTrack `json:"tracks"`
	} `json:"media"`
	Genres []mbGenre `json:"genres"`
	Tags   []mbGenre `json:"tags"`
}

type mbSearchResponse struct {
	Releases []mbRelease `json:"releases"`
}

type mbURLRelation struct {
	Type string `json:"type"`
	URL  struct {
		Resource string `json:"resource"`
	} `json:"url"`
}

type mbArtist struct {
	Genres    []mbGenre       `json:"genres"`
	Relations []mbURLRelation `json:"relations"`
}

// MusicBrainzClient implements [Client] backed by the MusicBrainz API.
// Requests are anonymous but must carry a contact User-Agent.
type MusicBrainzClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	userAgent  string
	backoff    time.Duration
	logger     *log.Logger
	closeOnce  sync.Once
}

// NewMusicBrainzClient creates a MusicBrainz client identified by the app
// name, version, and contact from cfg. An empty baseURL selects production.
func NewMusicBrainzClient(cfg shared.MusicBrainzConfig, baseURL string, logger *log.Logger) *MusicBrainzClient {
	if baseURL == "" {
		baseURL = musicbrainzBaseURL
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &MusicBrainzClient{
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Every(musicbrainzRequestGap), 1),
		baseURL:    baseURL,
		userAgent:  fmt.Sprintf("%s/%s ( %s )", cfg.AppName, cfg.AppVersion, cfg.Contact),
		logger:     shared.WithLogger(logger, "catalog", models.SourceCommunity),
	}
}

// Source identifies this catalog in merge provenance.
func (m *MusicBrainzClient) Source() models.Source {
	return models.SourceCommunity
}

func (m *MusicBrainzClient) doRequest(ctx context.Context, endpoint string, result any) error {
	if err := m.limiter.Wait(ctx); err != nil {
		if ctxErr := contextError(ctx); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
	}

	resp, err := doWithRetry(ctx, m.httpClient, m.backoff, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("User-Agent", m.userAgent)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Search queries the release index with a Lucene field query.
func (m *MusicBrainzClient) Search(ctx context.Context, artist, release, country string) ([]Candidate, error) {
	params := url.Values{}
	params.Set("query", fmt.Sprintf("artist:%q AND release:%q", artist, release))
	params.Set("fmt", "json")
	params.Set("limit", fmt.Sprintf("%d", musicbrainzSearchLimit))

	var response mbSearchResponse
	if err := m.doRequest(ctx, "/release?"+params.Encode(), &response); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(response.Releases))
	for _, rel := range response.Releases {
		c := Candidate{
			ID:       rel.ID,
			Title:    rel.Title,
			Country:  rel.Country,
			Official: rel.Status == "Official",
		}
		if len(rel.ArtistCredit) > 0 {
			c.Artist = rel.ArtistCredit[0].Name
		}
		candidates = append(candidates, c)
	}

	return candidates, nil
}

// FetchDetails retrieves a release with recordings, labels, genres, and
// tags, then enriches it with artist-level genres and social links.
func (m *MusicBrainzClient) FetchDetails(ctx context.Context, id string) (*models.CatalogResult, error) {
	endpoint := fmt.Sprintf("/release/%s?fmt=json&inc=%s", url.PathEscape(id), musicbrainzReleaseInc)

	var release mbRelease
	if err := m.doRequest(ctx, endpoint, &release); err != nil {
		return nil, err
	}

	result := &models.CatalogResult{
		Source:      models.SourceCommunity,
		Title:       release.Title,
		ReleaseDate: release.Date,
	}
	if len(release.ArtistCredit) > 0 {
		result.Artist = release.ArtistCredit[0].Name
	}
	if len(release.LabelInfo) > 0 {
		result.Label = release.LabelInfo[0].Label.Name
	}

	genres := genreNames(release.Genres)
	genres = append(genres, genreNames(release.Tags)...)

	// Track positions restart per medium, so flatten with a running offset.
	offset := 0
	var tracks []models.Track
	for _, medium := range release.Media {
		for _, t := range medium.Tracks {
			title := t.Title
			if title == "" {
				title = t.Recording.Title
			}
			track := models.Track{
				Position: offset + t.Position,
				Title:    title,
			}
			if secs := t.Recording.Length / 1000; secs > 0 {
				track.DurationSeconds = &secs
			}
			if len(t.Recording.ISRCs) > 0 {
				track.ISRC = &t.Recording.ISRCs[0]
			}
			tracks = append(tracks, track)
		}
		offset += len(medium.Tracks)
	}
	result.Tracks = tracks

	// Artist enrichment is best effort. Missing social links should not
	// fail the release lookup.
	if len(release.ArtistCredit) > 0 && release.ArtistCredit[0].Artist.ID != "" {
		artist, err := m.fetchArtist(ctx, release.ArtistCredit[0].Artist.ID)
		if err != nil {
			m.logger.Warn("artist enrichment failed", "artist_id", release.ArtistCredit[0].Artist.ID, "error", err)
		} else {
			genres = append(genres, genreNames(artist.Genres)...)
			result.SocialLinks = socialLinks(artist.Relations)
		}
	}

	result.Genres = genres
	return result, nil
}

func (m *MusicBrainzClient) fetchArtist(ctx context.Context, id string) (*mbArtist, error) {
	endpoint := fmt.Sprintf("/artist/%s?fmt=json&inc=%s", url.PathEscape(id), musicbrainzArtistInc)

	var artist mbArtist
	if err := m.doRequest(ctx, endpoint, &artist); err != nil {
		return nil, err
	}
	return &artist, nil
}

// Close releases idle connections. Safe to call multiple times.
func (m *MusicBrainzClient) Close() error {
	m.closeOnce.Do(func() {
		m.httpClient.CloseIdleConnections()
	})
	return nil
}

func genreNames(genres []mbGenre) []string {
	names := make([]string, 0, len(genres))
	for _, g := range genres {
		if g.Name != "" {
			names = append(names, g.Name)
		}
	}
	return names
}

// socialLinks maps URL relationships to known platforms. Official homepages
// over plain HTTP are rejected.
func socialLinks(relations []mbURLRelation) map[string]string {
	links := make(map[string]string)
	set := func(platform, link string) {
		if _, exists := links[platform]; !exists {
			links[platform] = link
		}
	}

	for _, rel := range relations {
		link := rel.URL.Resource
		if link == "" {
			continue
		}
		switch {
		case rel.Type == "official homepage":
			if strings.HasPrefix(link, "https://") {
				set("website", link)
			}
		case strings.Contains(link, "facebook.com"):
			set("facebook", link)
		case strings.Contains(link, "twitter.com"), strings.Contains(link, "x.com"):
			set("twitter", link)
		case strings.Contains(link, "instagram.com"):
			set("instagram", link)
		case strings.Contains(link, "youtube.com"):
			set("youtube", link)
		case strings.Contains(link, "vk.com"):
			set("vk", link)
		}
	}

	if len(links) == 0 {
		return nil
	}
	return links
}
