package media

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SubtitleStyle describes how burned-in subtitles are rendered.
type SubtitleStyle struct {
	FontFamily        string  `json:"fontFamily"`
	FontSize          int     `json:"fontSize"`
	FontColor         string  `json:"fontColor"`
	BackgroundColor   string  `json:"backgroundColor"`
	BackgroundOpacity float64 `json:"backgroundOpacity"`
	OutlineColor      string  `json:"outlineColor"`
	OutlineWidth      int     `json:"outlineWidth"`
	Alignment         string  `json:"alignment"`
	VerticalPosition  string  `json:"verticalPosition"`
	MarginHorizontal  int     `json:"marginHorizontal"`
	MarginVertical    int     `json:"marginVertical"`
	Bold              bool    `json:"bold"`
	Italic            bool    `json:"italic"`
}

// DefaultSubtitleStyle returns white Arial text on a translucent black box,
// centred at the bottom of the frame.
func DefaultSubtitleStyle() SubtitleStyle {
	return SubtitleStyle{
		FontFamily:        "Arial",
		FontSize:          24,
		FontColor:         "#FFFFFF",
		BackgroundColor:   "#000000",
		BackgroundOpacity: 0.7,
		OutlineColor:      "#000000",
		OutlineWidth:      2,
		Alignment:         "center",
		VerticalPosition:  "bottom",
		MarginHorizontal:  20,
		MarginVertical:    20,
	}
}

// Validate checks enum fields, colours and numeric ranges.
func (s SubtitleStyle) Validate() error {
	switch s.Alignment {
	case "left", "center", "right":
	default:
		return fmt.Errorf("subtitle style: invalid alignment %q", s.Alignment)
	}
	switch s.VerticalPosition {
	case "top", "middle", "bottom":
	default:
		return fmt.Errorf("subtitle style: invalid vertical position %q", s.VerticalPosition)
	}
	for name, value := range map[string]string{"font color": s.FontColor, "background color": s.BackgroundColor, "outline color": s.OutlineColor} {
		if _, err := parseHexColor(value); err != nil {
			return fmt.Errorf("subtitle style: %s: %w", name, err)
		}
	}
	if s.FontSize <= 0 {
		return fmt.Errorf("subtitle style: font size must be positive")
	}
	if s.BackgroundOpacity < 0 || s.BackgroundOpacity > 1 {
		return fmt.Errorf("subtitle style: background opacity must be between 0 and 1")
	}
	if s.OutlineWidth < 0 || s.MarginHorizontal < 0 || s.MarginVertical < 0 {
		return fmt.Errorf("subtitle style: widths and margins must be >= 0")
	}
	return nil
}

// ForceStyle renders the style as an ASS force_style value for ffmpeg's
// subtitles filter.
func (s SubtitleStyle) ForceStyle() string {
	primary, _ := parseHexColor(s.FontColor)
	outline, _ := parseHexColor(s.OutlineColor)
	back, _ := parseHexColor(s.BackgroundColor)
	backAlpha := uint8(math.Round(255 * (1 - clamp01(s.BackgroundOpacity))))

	borderStyle := 1
	if s.BackgroundOpacity > 0 {
		borderStyle = 3
	}

	fields := []string{
		"FontName=" + s.FontFamily,
		"FontSize=" + strconv.Itoa(s.FontSize),
		"PrimaryColour=" + assColor(primary, 0),
		"OutlineColour=" + assColor(outline, 0),
		"BackColour=" + assColor(back, backAlpha),
		"BorderStyle=" + strconv.Itoa(borderStyle),
		"Outline=" + strconv.Itoa(s.OutlineWidth),
		"Bold=" + assBool(s.Bold),
		"Italic=" + assBool(s.Italic),
		"Alignment=" + strconv.Itoa(s.assAlignment()),
		"MarginL=" + strconv.Itoa(s.MarginHorizontal),
		"MarginR=" + strconv.Itoa(s.MarginHorizontal),
		"MarginV=" + strconv.Itoa(s.MarginVertical),
	}
	return strings.Join(fields, ",")
}

// assAlignment maps the style to the ASS numpad layout (1-3 bottom, 4-6
// middle, 7-9 top).
func (s SubtitleStyle) assAlignment() int {
	column := 2
	switch s.Alignment {
	case "left":
		column = 1
	case "right":
		column = 3
	}
	switch s.VerticalPosition {
	case "top":
		return 6 + column
	case "middle":
		return 3 + column
	default:
		return column
	}
}

type rgb struct{ r, g, b uint8 }

func parseHexColor(value string) (rgb, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return rgb{}, fmt.Errorf("invalid color %q", value)
	}
	parsed, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return rgb{}, fmt.Errorf("invalid color %q", value)
	}
	return rgb{r: uint8(parsed >> 16), g: uint8(parsed >> 8), b: uint8(parsed)}, nil
}

// assColor renders &HAABBGGRR.
func assColor(c rgb, alpha uint8) string {
	return fmt.Sprintf("&H%02X%02X%02X%02X", alpha, c.b, c.g, c.r)
}

func assBool(v bool) string {
	if v {
		return "-1"
	}
	return "0"
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
