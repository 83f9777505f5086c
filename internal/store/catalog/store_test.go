package catalog_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pezzottify/catalog-engine/internal/model"
	"github.com/pezzottify/catalog-engine/internal/store/catalog"
)

func openTestStore(t *testing.T) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestUpsertAndListTracks(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	track := model.CatalogTrack{ID: "track-1", Title: "Ready Lets Go", AlbumID: "album-1", AlbumTitle: "Greatest Hits", ArtistName: "Some Band"}
	require.NoError(t, store.UpsertTrack(ctx, track))

	tracks, err := store.ListTracks(ctx)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Empty(t, tracks[0].AudioURI)

	require.NoError(t, store.UpdateTrackAudioURI(ctx, "track-1", "/media/audio/tr/ac/track-1.ogg"))

	tracks, err = store.ListTracks(ctx)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "/media/audio/tr/ac/track-1.ogg", tracks[0].AudioURI)

	// Re-upserting the same id updates in place rather than duplicating.
	require.NoError(t, store.UpsertTrack(ctx, track))

	tracks, err = store.ListTracks(ctx)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
}

func TestUpsertAndListImages(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertAlbumImage(ctx, model.CatalogAlbumImage{ID: "img-1", AlbumID: "album-1", AlbumTitle: "Greatest Hits"}))
	require.NoError(t, store.UpsertArtistImage(ctx, model.CatalogArtistImage{ID: "img-2", ArtistID: "artist-1", ArtistName: "Some Band"}))

	albumImages, err := store.ListAlbumImages(ctx)
	require.NoError(t, err)
	require.Len(t, albumImages, 1)
	assert.Equal(t, "album-1", albumImages[0].AlbumID)

	artistImages, err := store.ListArtistImages(ctx)
	require.NoError(t, err)
	require.Len(t, artistImages, 1)
	assert.Equal(t, "artist-1", artistImages[0].ArtistID)
}
