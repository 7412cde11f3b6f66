package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidPrompt    = errors.New("invalid prompt")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrUnsupportedTier  = errors.New("unsupported tier")
	ErrUnsupportedStyle = errors.New("unsupported style")
	ErrProviderFailure  = errors.New("provider failure")
	ErrRunSuperseded    = errors.New("run superseded by a newer submission")
)

// ValidationReason names why an upload was rejected before any network call.
type ValidationReason string

const (
	ValidationUnsupportedType ValidationReason = "unsupported_type"
	ValidationTooLarge        ValidationReason = "too_large"
	ValidationEmpty           ValidationReason = "empty"
)

// ValidationError rejects an UploadCandidate.
type ValidationError struct {
	Reason    ValidationReason
	MediaType string
	Size      int64
	Limit     int64
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ValidationUnsupportedType:
		return fmt.Sprintf("unsupported media type %q: only images are accepted", e.MediaType)
	case ValidationTooLarge:
		if e.Size <= 0 {
			return fmt.Sprintf("file is too large: exceeds the %d byte limit", e.Limit)
		}
		return fmt.Sprintf("file is too large: %d bytes exceeds the %d byte limit", e.Size, e.Limit)
	case ValidationEmpty:
		return "file is empty"
	default:
		return "invalid upload"
	}
}

// QuotaReason names which rule of the quota gate refused a style.
type QuotaReason string

const (
	QuotaGeneralLimitReached QuotaReason = "general_limit_reached"
	QuotaStyleLimitReached   QuotaReason = "style_limit_reached"
	QuotaStyleNotInTier      QuotaReason = "style_not_in_tier"
)

// QuotaExceededError is returned when the gate refuses a generation.
type QuotaExceededError struct {
	Reason QuotaReason
	Style  Style
	Tier   Tier
}

func (e *QuotaExceededError) Error() string {
	switch e.Reason {
	case QuotaStyleNotInTier:
		return fmt.Sprintf("style %q is not available on the %s tier", e.Style, e.Tier)
	case QuotaStyleLimitReached:
		return fmt.Sprintf("daily limit for %q images reached", e.Style)
	default:
		return "daily image limit reached"
	}
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// AnalysisError is a terminal failure of the primary analysis path that did
// not qualify for degradation.
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string {
	return "image analysis failed: " + e.Err.Error()
}

func (e *AnalysisError) Unwrap() error { return e.Err }

func (e *AnalysisError) Is(target error) bool {
	return target == ErrProviderFailure
}

// AnalysisFallbackError is returned once the primary attempt and every
// degradation strategy have failed.
type AnalysisFallbackError struct {
	Primary  error
	Attempts []error
}

func (e *AnalysisFallbackError) Error() string {
	msgs := make([]string, 0, len(e.Attempts)+1)
	if e.Primary != nil {
		msgs = append(msgs, e.Primary.Error())
	}
	for _, err := range e.Attempts {
		msgs = append(msgs, err.Error())
	}
	if len(msgs) == 0 {
		return "all analysis methods failed"
	}
	return "all analysis methods failed: " + strings.Join(msgs, "; ")
}

func (e *AnalysisFallbackError) Unwrap() []error {
	out := make([]error, 0, len(e.Attempts)+1)
	if e.Primary != nil {
		out = append(out, e.Primary)
	}
	return append(out, e.Attempts...)
}

func (e *AnalysisFallbackError) Is(target error) bool {
	return target == ErrProviderFailure
}

// GenerationError wraps a failure reported by the image generation backend.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "image generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool {
	return target == ErrProviderFailure
}
