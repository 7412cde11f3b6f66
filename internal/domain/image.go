package domain

import "time"

// UploadCandidate is a file selected by the user, prior to validation.
type UploadCandidate struct {
	Filename  string
	MediaType string
	Size      int64
	Data      []byte
}

// Payload returns the bytes and media type sent to the analysis backend.
func (c UploadCandidate) Payload() ImagePayload {
	return ImagePayload{Data: c.Data, MediaType: c.MediaType}
}

// ImagePayload is an encoded image handed to a provider.
type ImagePayload struct {
	Data      []byte
	MediaType string
}

// AnalysisResult is the description produced for an upload. Degraded is set
// when a degradation strategy produced it.
type AnalysisResult struct {
	Description string `json:"description"`
	Degraded    bool   `json:"degraded"`
	Strategy    string `json:"strategy,omitempty"`
}

// GenerationRequest is what the generation backend receives.
type GenerationRequest struct {
	UserID      string
	Prompt      string
	Style       Style
	AspectRatio AspectRatio
	Quality     string
}

// GenerationOutput is the raw outcome of a generation call.
type GenerationOutput struct {
	URL        string
	Prompt     string
	StorageKey string
	MediaType  string
}

// GeneratedArtifact is an immutable record of a generated image.
type GeneratedArtifact struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	URL         string      `json:"url"`
	Prompt      string      `json:"prompt"`
	Style       Style       `json:"style"`
	AspectRatio AspectRatio `json:"aspect_ratio"`
	StorageKey  string      `json:"-"`
	CreatedAt   time.Time   `json:"created_at"`
}
