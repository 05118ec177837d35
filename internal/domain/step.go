package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Step actions. Every action except resize names an engine effect; resize
// only rescales the source.
const (
	ActionResize     = "resize"
	ActionNone       = "none"
	ActionMonochrome = "monochrome"
	ActionPencil     = "pencil"
	ActionCel        = "cel"
	ActionPopArt     = "popart"
	ActionGenga      = "genga"
	ActionUkiyoE     = "ukiyoe"
	Action8Bit       = "8bit"
	ActionSilhouette = "silhouette"
	ActionASCII      = "ascii"
	ActionASCIIColor = "ascii_color"
)

// Output formats.
const (
	FormatPNG     = "png"
	FormatJPEG    = "jpeg"
	FormatWebP    = "webp"
	FormatGIF     = "gif"
	FormatText    = "txt"
	FormatTextZst = "txt.zst"
)

const (
	DefaultPixelSize           = 8
	DefaultSilhouetteThreshold = 128
	DefaultASCIIWidth          = 100
	MaxASCIIWidth              = 400
)

var knownActions = map[string]struct{}{
	ActionResize: {}, ActionNone: {}, ActionMonochrome: {}, ActionPencil: {},
	ActionCel: {}, ActionPopArt: {}, ActionGenga: {}, ActionUkiyoE: {},
	Action8Bit: {}, ActionSilhouette: {}, ActionASCII: {}, ActionASCIIColor: {},
}

type PipelineStep struct {
	ID      string `json:"id"`
	Action  string `json:"action"`
	Width   int    `json:"width,omitempty"`
	Format  string `json:"format,omitempty"`
	Quality int    `json:"quality,omitempty"`

	Genga     *GengaParams `json:"genga,omitempty"`
	PixelSize int          `json:"pixel_size,omitempty"`
	Threshold *float64     `json:"threshold,omitempty"`
	ASCII     *ASCIIParams `json:"ascii,omitempty"`
}

type GengaParams struct {
	Outline        string   `json:"outline,omitempty"`
	Shadow         string   `json:"shadow,omitempty"`
	Highlight      string   `json:"highlight,omitempty"`
	ImproveQuality *bool    `json:"improve_quality,omitempty"`
	LineThreshold  *float64 `json:"line_threshold,omitempty"`
}

type ASCIIParams struct {
	Width               int      `json:"width,omitempty"`
	OutlineThreshold    *float64 `json:"outline_threshold,omitempty"`
	BackgroundThreshold *float64 `json:"background_threshold,omitempty"`
	Invert              bool     `json:"invert,omitempty"`
}

// NormalizedAction lower-cases and trims the step action.
func (s PipelineStep) NormalizedAction() string {
	return strings.ToLower(strings.TrimSpace(s.Action))
}

// NormalizedFormat returns the canonical spelling of the requested format,
// or "" when none was requested.
func (s PipelineStep) NormalizedFormat() string {
	return NormalizeFormat(s.Format)
}

func NormalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "jpg":
		return FormatJPEG
	case "text":
		return FormatText
	case "txt.zstd", "zst":
		return FormatTextZst
	}
	return format
}

func IsTextFormat(format string) bool {
	return format == FormatText || format == FormatTextZst
}

func isKnownFormat(format string) bool {
	switch format {
	case FormatPNG, FormatJPEG, FormatWebP, FormatGIF, FormatText, FormatTextZst:
		return true
	}
	return false
}

// ASCIIWidth returns the requested glyph columns or the default.
func (s PipelineStep) ASCIIWidth() int {
	if s.ASCII == nil || s.ASCII.Width <= 0 {
		return DefaultASCIIWidth
	}
	return s.ASCII.Width
}

func (s PipelineStep) Validate() error {
	action := s.NormalizedAction()
	if _, ok := knownActions[action]; !ok {
		return fmt.Errorf("unsupported action: %s", s.Action)
	}
	if s.Width < 0 {
		return errors.New("width must not be negative")
	}
	if action == ActionResize && s.Width == 0 {
		return errors.New("resize action requires width > 0")
	}
	if s.Quality < 0 || s.Quality > 100 {
		return errors.New("quality must be within 0..100")
	}

	format := s.NormalizedFormat()
	if format != "" && !isKnownFormat(format) {
		return fmt.Errorf("unsupported format: %s", s.Format)
	}
	switch action {
	case ActionASCII:
		if format != "" && !IsTextFormat(format) {
			return fmt.Errorf("ascii action renders text, format %s is not allowed", format)
		}
	case ActionASCIIColor:
	default:
		if IsTextFormat(format) {
			return fmt.Errorf("%s action renders images, format %s is not allowed", action, format)
		}
	}

	if s.PixelSize < 0 {
		return errors.New("pixel_size must not be negative")
	}
	if s.Genga != nil {
		if _, _, _, err := s.Genga.ColorSlots(); err != nil {
			return err
		}
	}
	if s.ASCII != nil {
		if s.ASCII.Width < 0 || s.ASCII.Width > MaxASCIIWidth {
			return fmt.Errorf("ascii.width must be within 0..%d", MaxASCIIWidth)
		}
	}
	return nil
}
