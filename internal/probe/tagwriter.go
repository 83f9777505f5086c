package probe

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	flac "github.com/go-flac/go-flac"
	"github.com/oshokin/id3v2/v2"
)

// ErrEmptyTagPath is returned when WriteTags is asked to stamp a file with no path.
var ErrEmptyTagPath = errors.New("probe: tag path cannot be empty")

// WriteTagsRequest carries the canonical catalog metadata to stamp onto a
// convert stage output file that was copied rather than transcoded (spec
// §4.7's NoConversionNeeded path): the source container keeps its own
// codec, but its tags are refreshed to match the catalog's resolved names
// rather than whatever the uploader's file happened to carry.
type WriteTagsRequest struct {
	Path       string
	Artist     string
	Album      string
	Title      string
	TrackNum   int64
	TrackTotal int64
	Year       string
	CoverPath  string
}

// WriteTags stamps req onto an already-placed output file, dispatching by
// extension: .flac via Vorbis comments, .mp3 via ID3v2. Any other extension
// (notably .ogg, the transcoder's own output format) is left untouched —
// the transcoder already wrote source tags through during conversion.
func WriteTags(req WriteTagsRequest) error {
	if req.Path == "" {
		return ErrEmptyTagPath
	}

	switch strings.ToLower(filepath.Ext(req.Path)) {
	case ".flac":
		return writeFLACTags(req)
	case ".mp3":
		return writeMP3Tags(req)
	default:
		return nil
	}
}

func writeFLACTags(req WriteTagsRequest) error {
	f, err := flac.ParseFile(filepath.Clean(req.Path))
	if err != nil {
		return err
	}

	comment, idx := extractFLACComment(f)
	if comment == nil {
		comment = flacvorbis.New()
	}

	addFLACTags(comment, req)

	meta := comment.Marshal()
	if idx >= 0 {
		f.Meta[idx] = &meta
	} else {
		f.Meta = append(f.Meta, &meta)
	}

	embedFLACCover(f, req.CoverPath)

	return f.Save(req.Path)
}

func extractFLACComment(f *flac.File) (*flacvorbis.MetaDataBlockVorbisComment, int) {
	for idx, meta := range f.Meta {
		if meta.Type != flac.VorbisComment {
			continue
		}

		if comment, err := flacvorbis.ParseFromMetaDataBlock(*meta); err == nil {
			return comment, idx
		}
	}

	return nil, -1
}

func addFLACTags(tag *flacvorbis.MetaDataBlockVorbisComment, req WriteTagsRequest) {
	values := map[string]string{
		"ARTIST":      req.Artist,
		"ALBUM":       req.Album,
		"TITLE":       req.Title,
		"DATE":        req.Year,
		"TRACKNUMBER": formatCount(req.TrackNum),
		"TOTALTRACKS": formatCount(req.TrackTotal),
	}

	for key, value := range values {
		if value == "" {
			continue
		}

		_ = tag.Add(key, value) //nolint:errcheck // flacvorbis.Add only fails on an invalid key, which this fixed set never hits.
	}
}

func embedFLACCover(f *flac.File, coverPath string) {
	if coverPath == "" {
		return
	}

	data, err := os.ReadFile(filepath.Clean(coverPath))
	if err != nil {
		return
	}

	picture, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, "", data, "image/jpeg")
	if err != nil {
		return
	}

	meta := picture.Marshal()
	f.Meta = append(f.Meta, &meta)
}

func writeMP3Tags(req WriteTagsRequest) error {
	//nolint:exhaustruct // ParseFrames intentionally omitted when Parse=false (parsing disabled).
	tag, err := id3v2.Open(req.Path, id3v2.Options{Parse: false})
	if err != nil {
		return err
	}
	defer tag.Close() //nolint:errcheck // Save below reports the write error.

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetArtist(req.Artist)
	tag.SetAlbum(req.Album)
	tag.SetTitle(req.Title)
	tag.SetYear(req.Year)

	if req.TrackNum > 0 {
		position := formatCount(req.TrackNum)
		if req.TrackTotal > 0 {
			position += "/" + formatCount(req.TrackTotal)
		}

		tag.AddTextFrame(tag.CommonID("Track number/Position in set"), tag.DefaultEncoding(), position)
	}

	embedMP3Cover(tag, req.CoverPath)

	return tag.Save()
}

func embedMP3Cover(tag *id3v2.Tag, coverPath string) {
	if coverPath == "" {
		return
	}

	data, err := os.ReadFile(filepath.Clean(coverPath))
	if err != nil {
		return
	}

	//nolint:exhaustruct // Description field intentionally empty for cover images.
	tag.AddAttachedPicture(id3v2.PictureFrame{
		Encoding:    id3v2.EncodingUTF8,
		MimeType:    "image/jpeg",
		PictureType: id3v2.PTFrontCover,
		Picture:     data,
	})
}

func formatCount(n int64) string {
	if n <= 0 {
		return ""
	}

	return strconv.FormatInt(n, 10)
}
