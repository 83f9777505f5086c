// Package search implements the search-index collaborator consumed by the
// ingestion manager's general album-identification path (spec §4.7): it
// looks up candidate albums by name and resolves one to its full track list
// for weighted scoring. Search index maintenance itself is out of scope —
// this package only consumes the collaborator's read interface.
package search

//go:generate $MOCKGEN -source=client.go -destination=mocks/client_mock.go

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pezzottify/catalog-engine/internal/config"
	http_transport "github.com/pezzottify/catalog-engine/internal/transport/http"
	"github.com/pezzottify/catalog-engine/internal/utils"
)

// ErrUnexpectedHTTPStatus indicates an unexpected HTTP status code was received.
var ErrUnexpectedHTTPStatus = errors.New("search: unexpected HTTP status")

// Client is the read-only search collaborator.
type Client interface {
	// SearchAlbums returns album candidates matching an album-name query.
	SearchAlbums(ctx context.Context, query string) ([]Hit, error)
	// SearchArtistAlbums returns album candidates for an artist-name query,
	// expanded to that artist's top albums.
	SearchArtistAlbums(ctx context.Context, artistQuery string) ([]Hit, error)
	// ResolveAlbum fetches the full candidate detail for one album id.
	ResolveAlbum(ctx context.Context, albumID string) (*ResolvedAlbum, error)
	// PushAvailability tells the search collaborator an album (and its
	// artists) now has converted audio available, called once an ingestion
	// job finishes converting.
	PushAvailability(ctx context.Context, albumID string, artistIDs []string) error
}

// ClientImpl implements Client over plain HTTP+JSON.
type ClientImpl struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client bound to cfg.SearchBaseURL.
func NewClient(cfg *config.Config) (Client, error) {
	baseURL, err := url.Parse(cfg.SearchBaseURL)
	if err != nil {
		return nil, fmt.Errorf("search: invalid search base url: %w", err)
	}

	httpClient := &http.Client{
		Transport: http_transport.NewUserAgentInjector(
			http_transport.NewLogTransport(http.DefaultTransport, 0),
			utils.NewSimpleUserAgentProvider(http_transport.DefaultUserAgent)),
		Timeout: http_transport.DefaultTimeout,
	}

	return &ClientImpl{baseURL: baseURL.String(), httpClient: httpClient}, nil
}

// SearchAlbums returns album candidates matching an album-name query.
func (c *ClientImpl) SearchAlbums(ctx context.Context, query string) ([]Hit, error) {
	var response struct {
		Hits []Hit `json:"hits"`
	}

	q := url.Values{}
	q.Set("q", query)

	if err := c.getJSON(ctx, "search/albums", q, &response); err != nil {
		return nil, fmt.Errorf("search: search albums %q: %w", query, err)
	}

	return response.Hits, nil
}

// SearchArtistAlbums returns album candidates for an artist-name query.
func (c *ClientImpl) SearchArtistAlbums(ctx context.Context, artistQuery string) ([]Hit, error) {
	var response struct {
		Hits []Hit `json:"hits"`
	}

	q := url.Values{}
	q.Set("q", artistQuery)

	if err := c.getJSON(ctx, "search/artists", q, &response); err != nil {
		return nil, fmt.Errorf("search: search artist albums %q: %w", artistQuery, err)
	}

	return response.Hits, nil
}

// ResolveAlbum fetches the full candidate detail for one album id.
func (c *ClientImpl) ResolveAlbum(ctx context.Context, albumID string) (*ResolvedAlbum, error) {
	var resolved ResolvedAlbum

	route := fmt.Sprintf("albums/%s/resolved", albumID)
	if err := c.getJSON(ctx, route, nil, &resolved); err != nil {
		return nil, fmt.Errorf("search: resolve album %s: %w", albumID, err)
	}

	return &resolved, nil
}

// availabilityRequest is the body of a PushAvailability call.
type availabilityRequest struct {
	AlbumID   string   `json:"album_id"`
	ArtistIDs []string `json:"artist_ids"`
}

// PushAvailability tells the search collaborator an album (and its artists)
// now has converted audio available.
func (c *ClientImpl) PushAvailability(ctx context.Context, albumID string, artistIDs []string) error {
	body, err := json.Marshal(availabilityRequest{AlbumID: albumID, ArtistIDs: artistIDs})
	if err != nil {
		return fmt.Errorf("search: marshal availability push for %s: %w", albumID, err)
	}

	route, err := url.JoinPath(c.baseURL, "availability")
	if err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, route, bytes.NewReader(body))
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("search: push availability for %s: %w", albumID, err)
	}
	defer response.Body.Close() //nolint:errcheck // Read-only handle.

	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: %d", ErrUnexpectedHTTPStatus, response.StatusCode)
	}

	return nil
}

func (c *ClientImpl) getJSON(ctx context.Context, uri string, query url.Values, out any) error {
	route, err := url.JoinPath(c.baseURL, uri)
	if err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, route, http.NoBody)
	if err != nil {
		return err
	}

	if len(query) > 0 {
		request.URL.RawQuery = query.Encode()
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close() //nolint:errcheck // Read-only handle.

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrUnexpectedHTTPStatus, response.StatusCode)
	}

	return json.NewDecoder(response.Body).Decode(out)
}
