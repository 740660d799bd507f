package ui

// Unscaled layout sizes in pixels
const (
	HeaderHeight = 32
	FooterHeight = 32
	TipHeight    = 20
)

// Metrics are the scaled pixel sizes a renderer lays the widget out with
type Metrics struct {
	Scale        float32
	FontHeight   float32
	HeaderHeight float32
	FooterHeight float32
	TipHeight    float32
}

func newMetrics(scale float32, fontHeight int32) Metrics {
	return Metrics{
		Scale:        scale,
		FontHeight:   float32(fontHeight) * scale,
		HeaderHeight: HeaderHeight * scale,
		FooterHeight: FooterHeight * scale,
		TipHeight:    TipHeight * scale,
	}
}
