package report

import (
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

// Style names used by the renderer. They carry a prefix so they can never be
// mistaken for one of the built-in font identifiers below.
const (
	styleCategoryHeader = "swCategoryHeader"
	styleSectionTitle   = "swSectionTitle"
	styleBody           = "swBody"
	styleEmpty          = "swEmpty"
	styleFooter         = "swFooter"
	styleFooterLabel    = "swFooterLabel"
)

// coreFonts are the font keys fpdf registers for the standard PDF fonts.
var coreFonts = map[string]struct{}{
	"courier": {}, "courierb": {}, "courieri": {}, "courierbi": {},
	"helvetica": {}, "helveticab": {}, "helveticai": {}, "helveticabi": {},
	"arial": {}, "arialb": {}, "ariali": {}, "arialbi": {},
	"times": {}, "timesb": {}, "timesi": {}, "timesbi": {},
	"symbol": {}, "zapfdingbats": {},
}

// fontFamilies are the families a report may be set in.
var fontFamilies = map[string]string{
	"helvetica": "Helvetica",
	"arial":     "Helvetica",
	"times":     "Times",
	"courier":   "Courier",
}

// unicodeFamily is the family name a configured TrueType font is registered as.
const unicodeFamily = "swUnicode"

type rgb struct{ r, g, b int }

var (
	colorHeading = rgb{44, 62, 80}
	colorMuted   = rgb{127, 140, 141}
	colorBorder  = rgb{189, 195, 199}
	colorFill    = rgb{236, 240, 241}
	colorText    = rgb{0, 0, 0}
)

type style struct {
	family   string
	emphasis string // "", "B", "I" or "BI"
	size     float64
	leading  float64 // line height as a multiple of size
	color    rgb
}

func (s style) lineHeight() float64 {
	return s.size * s.leading
}

type stylesheet map[string]style

// newStylesheet builds the named styles for a font family and body size. It
// fails if a style name collides with a built-in font identifier.
func newStylesheet(family string, bodySize float64) (stylesheet, error) {
	sheet := stylesheet{
		styleCategoryHeader: {family: family, emphasis: "B", size: 12, leading: 1.5, color: colorHeading},
		styleSectionTitle:   {family: family, emphasis: "B", size: bodySize + 2, leading: 1.6, color: colorHeading},
		styleBody:           {family: family, size: bodySize, leading: 1.4, color: colorText},
		styleEmpty:          {family: family, emphasis: "I", size: bodySize, leading: 1.4, color: colorMuted},
		styleFooter:         {family: family, size: 9, leading: 1.4, color: colorMuted},
		styleFooterLabel:    {family: family, emphasis: "B", size: 9, leading: 1.4, color: colorMuted},
	}
	for name := range sheet {
		if _, clash := coreFonts[strings.ToLower(name)]; clash {
			return nil, fmt.Errorf("style name %q collides with a built-in font", name)
		}
	}
	return sheet, nil
}

// apply switches pdf to the named style and returns its line height.
func (s stylesheet) apply(pdf *fpdf.Fpdf, name string) float64 {
	st, ok := s[name]
	if !ok {
		st = s[styleBody]
	}
	pdf.SetFont(st.family, st.emphasis, st.size)
	pdf.SetTextColor(st.color.r, st.color.g, st.color.b)
	return st.lineHeight()
}
