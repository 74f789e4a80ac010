// Package chart renders category breakdowns as PNG images.
package chart

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Veraticus/finbot/internal/service"
	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var _ service.ChartRenderer = (*PieRenderer)(nil)

// ErrNoData is returned when there is nothing positive to draw.
var ErrNoData = errors.New("no chart data")

// Palette colors wedges in order; it wraps for more slices.
var Palette = []drawing.Color{
	drawing.ColorFromHex("ff6384"),
	drawing.ColorFromHex("36a2eb"),
	drawing.ColorFromHex("ffce56"),
	drawing.ColorFromHex("4bc0c0"),
	drawing.ColorFromHex("9966ff"),
	drawing.ColorFromHex("ff9f40"),
	drawing.ColorFromHex("8bc34a"),
	drawing.ColorFromHex("c9cbcf"),
}

// PieRenderer draws pie charts whose wedges carry their category and share.
type PieRenderer struct {
	Background drawing.Color
	Size       int // width and height in pixels
	FontSize   float64
}

// NewPieRenderer creates a 512px renderer on white.
func NewPieRenderer() *PieRenderer {
	return &PieRenderer{
		Background: drawing.ColorWhite,
		Size:       512,
		FontSize:   11,
	}
}

// RenderPie draws one labelled wedge per slice. Slices with non-positive
// values are skipped.
func (r *PieRenderer) RenderPie(slices []service.ChartSlice) ([]byte, error) {
	values := Values(slices)
	if len(values) == 0 {
		return nil, ErrNoData
	}

	return r.render(values)
}

func (r *PieRenderer) render(values []gochart.Value) ([]byte, error) {
	size := r.Size
	if size <= 0 {
		size = 512
	}
	fontSize := r.FontSize
	if fontSize <= 0 {
		fontSize = 11
	}
	pad := size / 16

	pie := gochart.PieChart{
		Width:  size,
		Height: size,
		Background: gochart.Style{
			FillColor:   r.Background,
			StrokeColor: r.Background,
			Padding:     gochart.Box{Top: pad, Left: pad, Right: pad, Bottom: pad},
		},
		Canvas: gochart.Style{
			FillColor:   r.Background,
			StrokeColor: r.Background,
		},
		SliceStyle: gochart.Style{
			FontSize:    fontSize,
			FontColor:   drawing.ColorBlack,
			StrokeColor: r.Background,
			StrokeWidth: 2,
		},
		Values: values,
	}

	var buf bytes.Buffer
	if err := pie.Render(gochart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// Values converts slices into chart values labelled "Category 12.5%",
// dropping non-positive slices. Colors follow the slice's position in the
// input so a category keeps its color whether or not earlier ones are empty.
func Values(slices []service.ChartSlice) []gochart.Value {
	total := 0.0
	for _, s := range slices {
		if s.Value > 0 {
			total += s.Value
		}
	}
	if total == 0 {
		return nil
	}

	values := make([]gochart.Value, 0, len(slices))
	for i, s := range slices {
		if s.Value <= 0 {
			continue
		}
		values = append(values, gochart.Value{
			Label: Label(s, total),
			Value: s.Value,
			Style: gochart.Style{FillColor: Palette[i%len(Palette)]},
		})
	}
	return values
}

// Label is the wedge caption for s out of total.
func Label(s service.ChartSlice, total float64) string {
	return fmt.Sprintf("%s %.1f%%", s.Label, s.Value/total*100)
}
