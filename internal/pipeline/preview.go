package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"imagestudio/internal/domain"
)

// Preview is the outcome of materializing a candidate for display.
type Preview struct {
	DataURI string
	Err     error
}

// DataURI encodes data as a base64 data URI.
func DataURI(mediaType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("preview: no image data")
	}
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(mediaType) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(mediaType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String(), nil
}

// MaterializePreview encodes the candidate in its own goroutine. The channel
// receives exactly one value and is then closed. A failed preview never
// affects the run.
func MaterializePreview(ctx context.Context, c domain.UploadCandidate) <-chan Preview {
	out := make(chan Preview, 1)
	go func() {
		defer close(out)
		if err := ctx.Err(); err != nil {
			out <- Preview{Err: err}
			return
		}
		uri, err := DataURI(ResolveMediaType(c), c.Data)
		out <- Preview{DataURI: uri, Err: err}
	}()
	return out
}
