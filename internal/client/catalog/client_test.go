package catalog_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pezzottify/catalog-engine/internal/client/catalog"
	"github.com/pezzottify/catalog-engine/internal/config"
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")

		switch req.Variables["id"] {
		case "t1":
			if req.Variables["audioURI"] != nil {
				_, _ = w.Write([]byte(`{"data":{"updateTrackAudioURI":{"id":"t1"}}}`))

				return
			}

			_, _ = w.Write([]byte(`{"data":{}}`))
		case "album-1":
			_, _ = w.Write([]byte(`{"data":{"getAlbum":{
				"id":"album-1",
				"tracks_ids":["t1","t2"],
				"artists_ids":["a1"],
				"covers":[{"id":"c1","size":"large"}],
				"tracks":[
					{"id":"t1","title":"One","disc_num":1,"track_num":1,"duration_ms":180000},
					{"id":"t2","title":"Two","disc_num":1,"track_num":2,"duration_ms":200000}
				]
			}}}`))
		case "artist-1":
			_, _ = w.Write([]byte(`{"data":{"getArtist":{
				"id":"artist-1",
				"name":"Boards of Canada",
				"portraits":[{"id":"p1","size":"large"}]
			}}}`))
		default:
			_, _ = w.Write([]byte(`{"data":{}}`))
		}
	})

	mux.HandleFunc("/tracks/t1/audio", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/flac")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("fake flac bytes"))
	})

	mux.HandleFunc("/images/c1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("fake image bytes"))
	})

	return httptest.NewServer(mux)
}

func newTestClient(t *testing.T, baseURL string) catalog.Client {
	t.Helper()

	cfg := &config.Config{DownloaderBaseURL: baseURL, DownloaderAuthToken: "token"}

	client, err := catalog.NewClient(cfg)
	require.NoError(t, err)

	return client
}

func TestGetAlbum(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	defer server.Close()

	client := newTestClient(t, server.URL)

	album, err := client.GetAlbum(context.Background(), "album-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, album.TrackIDs)
	assert.Equal(t, []string{"a1"}, album.ArtistIDs)
	require.Len(t, album.Covers, 1)
	assert.Equal(t, "c1", album.Covers[0].ID)
}

func TestGetAlbumTracks(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	defer server.Close()

	client := newTestClient(t, server.URL)

	tracks, err := client.GetAlbumTracks(context.Background(), "album-1")
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "One", tracks[0].Title)
	assert.Equal(t, int64(180000), tracks[0].DurationMs)
}

func TestGetArtist(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	defer server.Close()

	client := newTestClient(t, server.URL)

	artist, err := client.GetArtist(context.Background(), "artist-1")
	require.NoError(t, err)
	assert.Equal(t, "Boards of Canada", artist.Name)
	require.Len(t, artist.Portraits, 1)
}

func TestDownloadTrackAudio(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	defer server.Close()

	client := newTestClient(t, server.URL)

	body, contentType, err := client.DownloadTrackAudio(context.Background(), "t1")
	require.NoError(t, err)
	defer body.Close()

	assert.Equal(t, "audio/flac", contentType)

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "fake flac bytes", string(data))
}

func TestUpdateTrackAudioURI(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	defer server.Close()

	client := newTestClient(t, server.URL)

	err := client.UpdateTrackAudioURI(context.Background(), "t1", "media_root/audio/t1/t1.ogg")
	require.NoError(t, err)
}

func TestDownloadImage(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	defer server.Close()

	client := newTestClient(t, server.URL)

	body, err := client.DownloadImage(context.Background(), "c1")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "fake image bytes", string(data))
}
