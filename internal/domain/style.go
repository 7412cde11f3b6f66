package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Style is an opaque style token understood by the generation backend.
type Style string

const (
	StylePhotorealistic Style = "photorealistic"
	StyleDigitalArt     Style = "digital-art"
	StyleIllustration   Style = "illustration"
	Style3DRender       Style = "3d-render"
	StylePixelArt       Style = "pixel-art"
	StyleAnime          Style = "anime"
	StyleGhibli         Style = "ghibli"
	StyleWatercolor     Style = "watercolor"
	StyleOilPainting    Style = "oil-painting"
)

// DefaultStyle is used when a request omits the style.
const DefaultStyle = StylePhotorealistic

var allStyles = []Style{
	StylePhotorealistic,
	StyleDigitalArt,
	StyleIllustration,
	Style3DRender,
	StylePixelArt,
	StyleAnime,
	StyleGhibli,
	StyleWatercolor,
	StyleOilPainting,
}

// Styles lists every known style in catalog order.
func Styles() []Style {
	out := make([]Style, len(allStyles))
	copy(out, allStyles)
	return out
}

// ParseStyle normalizes user input into a known style.
func ParseStyle(raw string) (Style, bool) {
	s := Style(strings.ToLower(strings.TrimSpace(raw)))
	if s == "" {
		return DefaultStyle, true
	}
	for _, known := range allStyles {
		if s == known {
			return s, true
		}
	}
	return s, false
}

// Specialty reports whether the style draws from the specialty pool instead
// of the general one.
func (s Style) Specialty() bool {
	return s == StyleGhibli
}

var titleCaser = cases.Title(language.English)

// Label renders a human readable name, e.g. "oil-painting" -> "Oil Painting".
func (s Style) Label() string {
	if s == Style3DRender {
		return "3D Render"
	}
	return titleCaser.String(strings.ReplaceAll(string(s), "-", " "))
}

// AspectRatio tags the requested output shape. Unknown values pass through.
type AspectRatio string

const (
	AspectSquare    AspectRatio = "1:1"
	AspectWide      AspectRatio = "16:9"
	AspectLandscape AspectRatio = "4:3"
)

// NormalizeAspectRatio trims input and defaults to square.
func NormalizeAspectRatio(raw string) AspectRatio {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return AspectSquare
	}
	return AspectRatio(raw)
}
