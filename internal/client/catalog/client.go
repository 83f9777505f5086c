// Package catalog implements the external downloader API consumed by the
// download manager (C6, spec §6): get_album, get_album_tracks, get_artist,
// download_track_audio, download_image. The core trusts the downloader's
// ids as catalog ids.
package catalog

//go:generate $MOCKGEN -source=client.go -destination=mocks/client_mock.go

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/machinebox/graphql"

	"github.com/pezzottify/catalog-engine/internal/config"
	http_transport "github.com/pezzottify/catalog-engine/internal/transport/http"
	"github.com/pezzottify/catalog-engine/internal/utils"
)

// ErrUnexpectedHTTPStatus indicates an unexpected HTTP status code was received.
var ErrUnexpectedHTTPStatus = errors.New("catalog: unexpected HTTP status")

// Client is the external downloader API the download manager fetches media through.
type Client interface {
	// GetAlbum returns the track and artist ids, and candidate covers, for an album.
	GetAlbum(ctx context.Context, id string) (*Album, error)
	// GetAlbumTracks returns the ordered track list for an album.
	GetAlbumTracks(ctx context.Context, id string) ([]Track, error)
	// GetArtist returns portrait candidates for an artist.
	GetArtist(ctx context.Context, id string) (*Artist, error)
	// DownloadTrackAudio streams a track's audio payload and its content type.
	DownloadTrackAudio(ctx context.Context, id string) (body io.ReadCloser, contentType string, err error)
	// DownloadImage streams an image payload (cover or portrait).
	DownloadImage(ctx context.Context, id string) (io.ReadCloser, error)
	// UpdateTrackAudioURI records where a track's converted audio now lives,
	// called by the ingestion manager once a file finishes converting.
	UpdateTrackAudioURI(ctx context.Context, trackID, audioURI string) error
}

// ClientImpl implements Client over a GraphQL metadata endpoint and plain
// HTTP byte-range-capable downloads, following the same cookie-authenticated
// transport shape the download manager's media fetches rely on.
type ClientImpl struct {
	cfg           *config.Config
	baseURL       string
	httpClient    *http.Client
	graphQLClient *graphql.Client
}

// NewClient builds a Client bound to cfg.DownloaderBaseURL, authenticating
// via cfg.DownloaderAuthToken.
func NewClient(cfg *config.Config) (Client, error) {
	cookies, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: create cookie jar: %w", err)
	}

	baseURL, err := url.Parse(cfg.DownloaderBaseURL)
	if err != nil {
		return nil, fmt.Errorf("catalog: invalid downloader base url: %w", err)
	}

	if cfg.DownloaderAuthToken != "" {
		cookies.SetCookies(baseURL, []*http.Cookie{{Name: "auth", Value: cfg.DownloaderAuthToken}})
	}

	httpClient := &http.Client{
		Transport: http_transport.NewUserAgentInjector(
			http_transport.NewLogTransport(http.DefaultTransport, 0),
			utils.NewSimpleUserAgentProvider(http_transport.DefaultUserAgent)),
		Jar:     cookies,
		Timeout: http_transport.DefaultTimeout,
	}

	graphQLURL := baseURL.JoinPath("graphql")
	graphQLClient := graphql.NewClient(graphQLURL.String(), graphql.WithHTTPClient(httpClient))

	return &ClientImpl{
		cfg:           cfg,
		baseURL:       baseURL.String(),
		httpClient:    httpClient,
		graphQLClient: graphQLClient,
	}, nil
}

// GetAlbum returns the track and artist ids, and candidate covers, for an album.
func (c *ClientImpl) GetAlbum(ctx context.Context, id string) (*Album, error) {
	request := graphql.NewRequest(`
		query getAlbum($id: ID!) {
			getAlbum(id: $id) {
				id
				tracks_ids
				artists_ids
				covers { id size }
			}
		}
	`)
	c.authorize(request)
	request.Var("id", id)

	var response struct {
		GetAlbum Album `json:"getAlbum"`
	}

	if err := c.graphQLClient.Run(ctx, request, &response); err != nil {
		return nil, fmt.Errorf("catalog: get album %s: %w", id, err)
	}

	return &response.GetAlbum, nil
}

// GetAlbumTracks returns the ordered track list for an album.
func (c *ClientImpl) GetAlbumTracks(ctx context.Context, id string) ([]Track, error) {
	request := graphql.NewRequest(`
		query getAlbumTracks($id: ID!) {
			getAlbum(id: $id) {
				tracks { id title disc_num track_num duration_ms }
			}
		}
	`)
	c.authorize(request)
	request.Var("id", id)

	var response struct {
		GetAlbum struct {
			Tracks []Track `json:"tracks"`
		} `json:"getAlbum"`
	}

	if err := c.graphQLClient.Run(ctx, request, &response); err != nil {
		return nil, fmt.Errorf("catalog: get album tracks %s: %w", id, err)
	}

	return response.GetAlbum.Tracks, nil
}

// GetArtist returns portrait candidates for an artist.
func (c *ClientImpl) GetArtist(ctx context.Context, id string) (*Artist, error) {
	request := graphql.NewRequest(`
		query getArtist($id: ID!) {
			getArtist(id: $id) {
				id
				name
				portraits { id size }
			}
		}
	`)
	c.authorize(request)
	request.Var("id", id)

	var response struct {
		GetArtist Artist `json:"getArtist"`
	}

	if err := c.graphQLClient.Run(ctx, request, &response); err != nil {
		return nil, fmt.Errorf("catalog: get artist %s: %w", id, err)
	}

	return &response.GetArtist, nil
}

// DownloadTrackAudio streams a track's audio payload and its content type.
func (c *ClientImpl) DownloadTrackAudio(ctx context.Context, id string) (io.ReadCloser, string, error) {
	route, err := url.JoinPath(c.baseURL, "tracks", id, "audio")
	if err != nil {
		return nil, "", fmt.Errorf("catalog: build track audio url: %w", err)
	}

	body, contentType, err := c.download(ctx, route)
	if err != nil {
		return nil, "", fmt.Errorf("catalog: download track audio %s: %w", id, err)
	}

	return body, contentType, nil
}

// DownloadImage streams an image payload (cover or portrait).
func (c *ClientImpl) DownloadImage(ctx context.Context, id string) (io.ReadCloser, error) {
	route, err := url.JoinPath(c.baseURL, "images", id)
	if err != nil {
		return nil, fmt.Errorf("catalog: build image url: %w", err)
	}

	body, _, err := c.download(ctx, route)
	if err != nil {
		return nil, fmt.Errorf("catalog: download image %s: %w", id, err)
	}

	return body, nil
}

// UpdateTrackAudioURI records where a track's converted audio now lives.
func (c *ClientImpl) UpdateTrackAudioURI(ctx context.Context, trackID, audioURI string) error {
	request := graphql.NewRequest(`
		mutation updateTrackAudioURI($id: ID!, $audioURI: String!) {
			updateTrackAudioURI(id: $id, audio_uri: $audioURI) {
				id
			}
		}
	`)
	c.authorize(request)
	request.Var("id", trackID)
	request.Var("audioURI", audioURI)

	var response struct {
		UpdateTrackAudioURI struct {
			ID string `json:"id"`
		} `json:"updateTrackAudioURI"`
	}

	if err := c.graphQLClient.Run(ctx, request, &response); err != nil {
		return fmt.Errorf("catalog: update track audio uri %s: %w", trackID, err)
	}

	return nil
}

func (c *ClientImpl) download(ctx context.Context, route string) (io.ReadCloser, string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, route, http.NoBody)
	if err != nil {
		return nil, "", err
	}

	request.Header.Add("Range", "bytes=0-")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, "", err
	}

	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusPartialContent {
		response.Body.Close() //nolint:errcheck // Best-effort close on the error path.

		return nil, "", fmt.Errorf("%w: %d", ErrUnexpectedHTTPStatus, response.StatusCode)
	}

	return response.Body, response.Header.Get("Content-Type"), nil
}

func (c *ClientImpl) authorize(request *graphql.Request) {
	if c.cfg.DownloaderAuthToken != "" {
		request.Header.Add("X-Auth-Token", c.cfg.DownloaderAuthToken)
	}
}
