package export

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgpdf"
)

// filterGrid adapts a Filter to plotter.GridXYZ with positions as columns
// and nucleotides as rows.
type filterGrid struct{ f Filter }

func (g filterGrid) Dims() (c, r int)   { return len(g.f), 4 }
func (g filterGrid) Z(c, r int) float64 { return g.f[c][r] }
func (g filterGrid) X(c int) float64    { return float64(c) }
func (g filterGrid) Y(r int) float64    { return float64(3 - r) }
func (g filterGrid) Min() float64       { return 0 }
func (g filterGrid) Max() float64       { return 1 }

var nucleotideTicks = plot.ConstantTicks{
	{Value: 3, Label: "A"},
	{Value: 2, Label: "C"},
	{Value: 1, Label: "G"},
	{Value: 0, Label: "T"},
}

// PageSize is the rendered page size of a filter grid.
var PageSize = struct{ Width, Height vg.Length }{30 * vg.Inch, 5 * vg.Inch}

func filterPlot(index int, f Filter) *plot.Plot {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("filter%d", index)
	p.Y.Tick.Marker = nucleotideTicks
	p.X.Tick.Marker = plot.ConstantTicks{}
	p.Add(plotter.NewHeatMap(filterGrid{f}, palette.Heat(16, 1)))
	return p
}

// RenderPDF draws every filter as a heat map in a grid with cols columns
// and writes it to path as PDF.
func RenderPDF(path string, filters []Filter, cols int) error {
	if len(filters) == 0 {
		return fmt.Errorf("no filters to render")
	}
	if cols < 1 {
		cols = 1
	}
	rows := (len(filters) + cols - 1) / cols
	grid := make([][]*plot.Plot, rows)
	for r := range grid {
		grid[r] = make([]*plot.Plot, cols)
	}
	for i, f := range filters {
		if len(f) == 0 {
			return fmt.Errorf("filter%d is empty", i)
		}
		grid[i/cols][i%cols] = filterPlot(i, f)
	}

	c := vgpdf.New(PageSize.Width, PageSize.Height)
	dc := draw.New(c)
	tiles := draw.Tiles{
		Rows: rows,
		Cols: cols,
		PadX: vg.Millimeter,
		PadY: vg.Millimeter,
	}
	canvases := plot.Align(grid, tiles, dc)
	for r := range grid {
		for col, p := range grid[r] {
			if p != nil {
				p.Draw(canvases[r][col])
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating figure dir: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating figure: %w", err)
	}
	if _, err := c.WriteTo(out); err != nil {
		out.Close()
		return fmt.Errorf("writing figure %s: %w", path, err)
	}
	return out.Close()
}
