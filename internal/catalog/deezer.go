// Deezer catalog [Client] implementation
//
// The public Deezer API requires no authentication. Errors come back as a
// 200 response carrying an error envelope, so every payload is checked
// before decoding.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"tonearm/internal/models"
	"tonearm/internal/shared"
)

const deezerBaseURL = "https://api.deezer.com"

type deezerArtist struct {
	Name string `json:"name"`
}

type deezerAlbumSummary struct {
	ID         int64        `json:"id"`
	Title      string       `json:"title"`
	RecordType string       `json:"record_type"`
	Artist     deezerArtist `json:"artist"`
}

type deezerSearchResponse struct {
	Data []deezerAlbumSummary `json:"data"`
}

type deezerAlbum struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	ReleaseDate string       `json:"release_date"`
	Label       string       `json:"label"`
	Artist      deezerArtist `json:"artist"`
	Genres      struct {
		Data []struct {
			Name string `json:"name"`
		} `json:"data"`
	} `json:"genres"`
}

type deezerTrack struct {
	Title         string `json:"title"`
	TitleShort    string `json:"title_short"`
	ISRC          string `json:"isrc"`
	Duration      int    `json:"duration"`
	TrackPosition int    `json:"track_position"`
}

type deezerTracksResponse struct {
	Data []deezerTrack `json:"data"`
}

type deezerErrorEnvelope struct {
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// DeezerClient implements [Client] backed by the public Deezer API.
type DeezerClient struct {
	httpClient *http.Client
	baseURL    string
	backoff    time.Duration
	logger     *log.Logger
	closeOnce  sync.Once
}

// NewDeezerClient creates a Deezer client. An empty baseURL selects the
// public API endpoint.
func NewDeezerClient(baseURL string, logger *log.Logger) *DeezerClient {
	if baseURL == "" {
		baseURL = deezerBaseURL
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &DeezerClient{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		logger:     shared.WithLogger(logger, "catalog", models.SourceFallback),
	}
}

// Source identifies this catalog in merge provenance.
func (d *DeezerClient) Source() models.Source {
	return models.SourceFallback
}

func (d *DeezerClient) doRequest(ctx context.Context, endpoint string, result any) error {
	resp, err := doWithRetry(ctx, d.httpClient, d.backoff, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var envelope deezerErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return fmt.Errorf("%w: deezer error %d: %s", shared.ErrSourceUnavailable, envelope.Error.Code, envelope.Error.Message)
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Search queries the album index with artist and album field filters.
func (d *DeezerClient) Search(ctx context.Context, artist, release, country string) ([]Candidate, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("artist:%q album:%q", artist, release))
	params.Set("type", "album")

	var response deezerSearchResponse
	if err := d.doRequest(ctx, "/search/album?"+params.Encode(), &response); err != nil {
		return nil, err
	}

	// Deezer albums carry no release country, so the country tier never
	// applies to fallback candidates.
	candidates := make([]Candidate, 0, len(response.Data))
	for _, item := range response.Data {
		candidates = append(candidates, Candidate{
			ID:       strconv.FormatInt(item.ID, 10),
			Artist:   item.Artist.Name,
			Title:    item.Title,
			Official: item.RecordType == "album",
		})
	}

	return candidates, nil
}

// FetchDetails retrieves an album and its track listing. The track listing
// is a second request because the album payload omits ISRCs.
func (d *DeezerClient) FetchDetails(ctx context.Context, id string) (*models.CatalogResult, error) {
	var album deezerAlbum
	if err := d.doRequest(ctx, "/album/"+url.PathEscape(id), &album); err != nil {
		return nil, err
	}

	var trackResp deezerTracksResponse
	if err := d.doRequest(ctx, "/album/"+url.PathEscape(id)+"/tracks", &trackResp); err != nil {
		return nil, err
	}

	result := &models.CatalogResult{
		Source:      models.SourceFallback,
		Artist:      album.Artist.Name,
		Title:       album.Title,
		ReleaseDate: album.ReleaseDate,
		Label:       album.Label,
	}
	for _, g := range album.Genres.Data {
		if g.Name != "" {
			result.Genres = append(result.Genres, g.Name)
		}
	}

	tracks := make([]models.Track, 0, len(trackResp.Data))
	for i, t := range trackResp.Data {
		title := t.TitleShort
		if title == "" {
			title = t.Title
		}
		position := t.TrackPosition
		if position == 0 {
			position = i + 1
		}
		track := models.Track{
			Position: position,
			Title:    title,
		}
		if t.Duration > 0 {
			secs := t.Duration
			track.DurationSeconds = &secs
		}
		if t.ISRC != "" {
			isrc := t.ISRC
			track.ISRC = &isrc
		}
		tracks = append(tracks, track)
	}
	result.Tracks = tracks

	return result, nil
}

// Close releases idle connections. Safe to call multiple times.
func (d *DeezerClient) Close() error {
	d.closeOnce.Do(func() {
		d.httpClient.CloseIdleConnections()
	})
	return nil
}
