package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagestudio/internal/domain"
)

func TestValidate(t *testing.T) {
	var png1 bytes.Buffer
	require.NoError(t, png.Encode(&png1, image.NewGray(image.Rect(0, 0, 4, 4))))

	tests := []struct {
		name   string
		c      domain.UploadCandidate
		limit  int64
		reason domain.ValidationReason
	}{
		{"jpeg within limit", domain.UploadCandidate{MediaType: "image/jpeg", Size: 3 << 20}, GeneralUploadLimit, ""},
		{"exactly at limit", domain.UploadCandidate{MediaType: "image/webp", Size: SpecialtyUploadLimit}, SpecialtyUploadLimit, ""},
		{"declared with params", domain.UploadCandidate{MediaType: "Image/PNG; charset=binary", Size: 10}, GeneralUploadLimit, ""},
		{"sniffed png", domain.UploadCandidate{Data: png1.Bytes()}, GeneralUploadLimit, ""},
		{"pdf", domain.UploadCandidate{MediaType: "application/pdf", Size: 10}, GeneralUploadLimit, domain.ValidationUnsupportedType},
		{"sniffed text", domain.UploadCandidate{Data: []byte("just words")}, GeneralUploadLimit, domain.ValidationUnsupportedType},
		{"octet-stream text", domain.UploadCandidate{MediaType: "application/octet-stream", Data: []byte("just words")}, GeneralUploadLimit, domain.ValidationUnsupportedType},
		{"octet-stream png", domain.UploadCandidate{MediaType: "application/octet-stream", Data: png1.Bytes()}, GeneralUploadLimit, domain.ValidationUnsupportedType},
		{"one byte over", domain.UploadCandidate{MediaType: "image/jpeg", Size: SpecialtyUploadLimit + 1}, SpecialtyUploadLimit, domain.ValidationTooLarge},
		{"empty", domain.UploadCandidate{MediaType: "image/jpeg"}, GeneralUploadLimit, domain.ValidationEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.c, tt.limit)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.reason, ve.Reason)
		})
	}
}

func TestUploadLimitsFor(t *testing.T) {
	l := DefaultUploadLimits()
	assert.Equal(t, int64(10<<20), l.For(domain.StyleAnime))
	assert.Equal(t, int64(5<<20), l.For(domain.StyleGhibli))

	custom := UploadLimits{General: 1 << 20}
	assert.Equal(t, int64(1<<20), custom.For(domain.StylePhotorealistic))
	assert.Equal(t, SpecialtyUploadLimit, custom.For(domain.StyleGhibli))
}

func TestMaterializePreview(t *testing.T) {
	ch := MaterializePreview(context.Background(), domain.UploadCandidate{MediaType: "image/gif", Data: []byte("GIF89a")})
	pv, ok := <-ch
	require.True(t, ok)
	require.NoError(t, pv.Err)
	assert.True(t, strings.HasPrefix(pv.DataURI, "data:image/gif;base64,"))
	_, ok = <-ch
	assert.False(t, ok, "channel closes after one value")

	ch = MaterializePreview(context.Background(), domain.UploadCandidate{MediaType: "image/gif"})
	pv = <-ch
	assert.Error(t, pv.Err)
}
