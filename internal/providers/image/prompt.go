package image

import (
	"fmt"
	"strings"

	"imagestudio/internal/domain"
)

// DefaultNegativePrompt captures undesirable artefacts we want the model to avoid.
const DefaultNegativePrompt = "low quality, blurry, distorted, washed out, incorrect anatomy, extra limbs, text artefacts, watermark"

var styleDirections = map[domain.Style]string{
	domain.StylePhotorealistic: "a photorealistic photograph with natural lighting, true-to-life colour and sharp focus",
	domain.StyleDigitalArt:     "polished digital art with vibrant colour and clean rendering",
	domain.StyleIllustration:   "a hand-drawn illustration with confident linework and balanced flat colour",
	domain.Style3DRender:       "a 3D render with soft global illumination and physically based materials",
	domain.StylePixelArt:       "pixel art with a limited palette and crisp, unblurred pixels",
	domain.StyleAnime:          "an anime frame with cel shading and expressive characters",
	domain.StyleGhibli:         "a Studio Ghibli inspired scene with painterly backgrounds, warm light and gentle whimsy",
	domain.StyleWatercolor:     "a watercolor painting with soft washes, visible paper texture and bleeding edges",
	domain.StyleOilPainting:    "an oil painting with rich impasto brushwork and deep tones",
}

// BuildStylePrompt turns a description and a style into the instruction sent
// to the image model.
func BuildStylePrompt(description string, style domain.Style) string {
	var lines []string

	description = strings.TrimSpace(description)
	if direction, ok := styleDirections[style]; ok {
		lines = append(lines, fmt.Sprintf("Create %s.", direction))
	} else {
		lines = append(lines, fmt.Sprintf("Create an image in the %s style.", style.Label()))
	}
	if description != "" {
		lines = append(lines, "Subject: "+description)
	}
	lines = append(lines, "Avoid: "+DefaultNegativePrompt+".")

	return strings.Join(lines, "\n")
}
