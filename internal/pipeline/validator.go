package pipeline

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"imagestudio/internal/domain"
)

const (
	// GeneralUploadLimit applies to every style except specialty ones.
	GeneralUploadLimit int64 = 10 << 20
	// SpecialtyUploadLimit applies to the ghibli flow.
	SpecialtyUploadLimit int64 = 5 << 20
)

// UploadLimits holds the per-flow byte ceilings.
type UploadLimits struct {
	General   int64
	Specialty int64
}

// DefaultUploadLimits returns the standard ceilings.
func DefaultUploadLimits() UploadLimits {
	return UploadLimits{General: GeneralUploadLimit, Specialty: SpecialtyUploadLimit}
}

// For returns the ceiling that applies to uploads destined for style.
func (l UploadLimits) For(style domain.Style) int64 {
	if style.Specialty() {
		if l.Specialty > 0 {
			return l.Specialty
		}
		return SpecialtyUploadLimit
	}
	if l.General > 0 {
		return l.General
	}
	return GeneralUploadLimit
}

// ResolveMediaType returns the declared media type without parameters. Only
// a missing declaration is replaced by the sniffed content type; a declared
// non-image type such as application/octet-stream is kept so it is rejected.
func ResolveMediaType(c domain.UploadCandidate) string {
	declared := strings.TrimSpace(c.MediaType)
	if declared == "" {
		if len(c.Data) == 0 {
			return declared
		}
		declared = mimetype.Detect(c.Data).String()
	}
	if parsed, _, err := mime.ParseMediaType(declared); err == nil {
		return strings.ToLower(parsed)
	}
	return strings.ToLower(declared)
}

// Validate checks that the candidate is an image no larger than limit. It
// performs no I/O.
func Validate(c domain.UploadCandidate, limit int64) error {
	mediaType := ResolveMediaType(c)
	if !strings.HasPrefix(mediaType, "image/") {
		return &domain.ValidationError{Reason: domain.ValidationUnsupportedType, MediaType: mediaType}
	}
	size := c.Size
	if size <= 0 {
		size = int64(len(c.Data))
	}
	if limit > 0 && size > limit {
		return &domain.ValidationError{Reason: domain.ValidationTooLarge, MediaType: mediaType, Size: size, Limit: limit}
	}
	if size == 0 {
		return &domain.ValidationError{Reason: domain.ValidationEmpty, MediaType: mediaType}
	}
	return nil
}
