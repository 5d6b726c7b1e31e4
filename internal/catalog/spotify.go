// Spotify catalog [Client] implementation
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"tonearm/internal/models"
	"tonearm/internal/shared"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	spotifySearchLimit    = 50
	spotifyTracksPageSize = 50

	// Tokens refresh this long before expiry so in-flight requests never
	// carry a token about to lapse.
	spotifyTokenRefreshWindow = 60 * time.Second
)

type externalIDs struct {
	ISRC string `json:"isrc"`
}

type spotifyArtist struct {
	Name string `json:"name"`
}

type spotifyAlbumItem struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	AlbumType        string          `json:"album_type"`
	Artists          []spotifyArtist `json:"artists"`
	AvailableMarkets []string        `json:"available_markets"`
}

type spotifySearchResponse struct {
	Albums struct {
		Items []spotifyAlbumItem `json:"items"`
	} `json:"albums"`
}

type spotifyAlbumTrack struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TrackNumber int    `json:"track_number"`
	DurationMS  int    `json:"duration_ms"`
}

type spotifyAlbum struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []spotifyArtist `json:"artists"`
	ReleaseDate string          `json:"release_date"`
	Label       string          `json:"label"`
	Genres      []string        `json:"genres"`
	Tracks      struct {
		Items []spotifyAlbumTrack `json:"items"`
	} `json:"tracks"`
	ExternalURLs map[string]string `json:"external_urls"`
}

type spotifyTrack struct {
	ID          string      `json:"id"`
	DurationMS  int         `json:"duration_ms"`
	ExternalIDs externalIDs `json:"external_ids"`
}

// SpotifyClient implements [Client] backed by the Spotify Web API.
//
// Access tokens come from the client-credentials flow. The token source
// serializes concurrent refreshes and renews ahead of expiry, so callers
// never trigger more than one refresh at a time.
type SpotifyClient struct {
	httpClient *http.Client
	tokens     oauth2.TokenSource
	baseURL    string
	backoff    time.Duration
	logger     *log.Logger
	closeOnce  sync.Once
}

// NewSpotifyClient creates a Spotify client with the given credentials.
// Empty baseURL and tokenURL select the production endpoints.
func NewSpotifyClient(cfg shared.SpotifyConfig, baseURL, tokenURL string, logger *log.Logger) (*SpotifyClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret", shared.ErrMissingCredentials)
	}
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}
	if tokenURL == "" {
		tokenURL = spotifyTokenURL
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	httpClient := &http.Client{Timeout: defaultTimeout}
	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	tokens := oauth2.ReuseTokenSourceWithExpiry(nil, creds.TokenSource(tokenCtx), spotifyTokenRefreshWindow)

	return &SpotifyClient{
		httpClient: httpClient,
		tokens:     tokens,
		baseURL:    baseURL,
		logger:     shared.WithLogger(logger, "catalog", models.SourcePrimary),
	}, nil
}

// Source identifies this catalog in merge provenance.
func (s *SpotifyClient) Source() models.Source {
	return models.SourcePrimary
}

// doRequest performs an authenticated GET against the Spotify API and
// decodes the JSON response into result.
func (s *SpotifyClient) doRequest(ctx context.Context, endpoint string, result any) error {
	resp, err := doWithRetry(ctx, s.httpClient, s.backoff, func() (*http.Request, error) {
		token, err := s.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		token.SetAuthHeader(req)
		req.Header.Set("Content-Type", "application/json")
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

// Search queries the album index with artist and album field filters.
func (s *SpotifyClient) Search(ctx context.Context, artist, release, country string) ([]Candidate, error) {
	country = shared.NormalizeCountry(country)

	params := url.Values{}
	params.Set("q", fmt.Sprintf("artist:%s album:%s", artist, release))
	params.Set("type", "album")
	params.Set("limit", fmt.Sprintf("%d", spotifySearchLimit))
	if country != "" {
		params.Set("market", country)
	}

	var response spotifySearchResponse
	if err := s.doRequest(ctx, "/search?"+params.Encode(), &response); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(response.Albums.Items))
	for _, item := range response.Albums.Items {
		c := Candidate{
			ID:       item.ID,
			Title:    item.Name,
			Official: item.AlbumType == "album",
		}
		if len(item.Artists) > 0 {
			c.Artist = item.Artists[0].Name
		}
		if country != "" && slices.Contains(item.AvailableMarkets, country) {
			c.Country = country
		}
		candidates = append(candidates, c)
	}

	return candidates, nil
}

// FetchDetails retrieves an album and enriches its tracks with ISRCs from
// the batched tracks endpoint, since album track listings omit external IDs.
func (s *SpotifyClient) FetchDetails(ctx context.Context, id string) (*models.CatalogResult, error) {
	var album spotifyAlbum
	if err := s.doRequest(ctx, "/albums/"+url.PathEscape(id), &album); err != nil {
		return nil, err
	}

	result := &models.CatalogResult{
		Source:      models.SourcePrimary,
		Title:       album.Name,
		ReleaseDate: album.ReleaseDate,
		Label:       album.Label,
		Genres:      album.Genres,
	}
	if len(album.Artists) > 0 {
		result.Artist = album.Artists[0].Name
	}
	if link := album.ExternalURLs["spotify"]; link != "" {
		result.SocialLinks = map[string]string{"spotify": link}
	}

	isrcs, err := s.trackISRCs(ctx, album.Tracks.Items)
	if err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(album.Tracks.Items))
	for _, item := range album.Tracks.Items {
		track := models.Track{
			Position: item.TrackNumber,
			Title:    item.Name,
		}
		if secs := item.DurationMS / 1000; secs > 0 {
			track.DurationSeconds = &secs
		}
		if isrc, ok := isrcs[item.ID]; ok {
			track.ISRC = &isrc
		}
		tracks = append(tracks, track)
	}
	result.Tracks = tracks

	return result, nil
}

// trackISRCs batch-fetches full track objects to recover ISRCs, up to 50
// IDs per request.
func (s *SpotifyClient) trackISRCs(ctx context.Context, items []spotifyAlbumTrack) (map[string]string, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.ID != "" {
			ids = append(ids, item.ID)
		}
	}

	isrcs := make(map[string]string, len(ids))
	for start := 0; start < len(ids); start += spotifyTracksPageSize {
		end := min(start+spotifyTracksPageSize, len(ids))

		var response struct {
			Tracks []spotifyTrack `json:"tracks"`
		}
		endpoint := "/tracks?ids=" + url.QueryEscape(strings.Join(ids[start:end], ","))
		if err := s.doRequest(ctx, endpoint, &response); err != nil {
			return nil, err
		}

		for _, track := range response.Tracks {
			if track.ExternalIDs.ISRC != "" {
				isrcs[track.ID] = track.ExternalIDs.ISRC
			}
		}
	}

	return isrcs, nil
}

// Close releases idle connections. Safe to call multiple times.
func (s *SpotifyClient) Close() error {
	s.closeOnce.Do(func() {
		s.httpClient.CloseIdleConnections()
	})
	return nil
}
