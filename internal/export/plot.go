package export

import (
	"bufio"
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/san-kum/smctune/internal/optim"
	"github.com/san-kum/smctune/internal/physics"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// DPI is the raster resolution of PNG output.
const DPI = 300

const (
	plotWidth  = 8.0 // inches
	plotHeight = 5.0
)

var ErrNoData = errors.New("export: nothing to plot")

var palette = []color.Color{
	color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
}

// Series is one named curve.
type Series struct {
	Name string
	X, Y []float64
}

func limitedTicker(maxLabels int, labelFmt string) plot.Ticker {
	if maxLabels < 2 {
		maxLabels = 2
	}
	return plot.TickerFunc(func(min, max float64) []plot.Tick {
		if math.IsNaN(min) || math.IsNaN(max) || math.IsInf(min, 0) || math.IsInf(max, 0) {
			return nil
		}
		if min == max {
			return []plot.Tick{{Value: min, Label: fmt.Sprintf(labelFmt, min)}}
		}
		step := (max - min) / float64(maxLabels-1)
		ticks := make([]plot.Tick, 0, maxLabels)
		for i := 0; i < maxLabels; i++ {
			v := min + float64(i)*step
			ticks = append(ticks, plot.Tick{Value: v, Label: fmt.Sprintf(labelFmt, v)})
		}
		return ticks
	})
}

func stylePlot(p *plot.Plot) {
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.Title.Padding = vg.Points(10)
	p.X.Label.TextStyle.Font.Size = vg.Points(13)
	p.Y.Label.TextStyle.Font.Size = vg.Points(13)
	p.X.Padding = vg.Points(8)
	p.Y.Padding = vg.Points(8)
	p.X.Tick.Label.Font.Size = vg.Points(11)
	p.Y.Tick.Label.Font.Size = vg.Points(11)
	p.X.Tick.Marker = limitedTicker(8, "%.2g")
	p.Y.Tick.Marker = limitedTicker(8, "%.3g")
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
}

// LinePlot draws every series on one set of axes. Non-finite points are
// dropped.
func LinePlot(title, xlabel, ylabel string, series ...Series) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	stylePlot(p)

	drawn := 0
	for i, s := range series {
		n := min(len(s.X), len(s.Y))
		pts := make(plotter.XYs, 0, n)
		for k := 0; k < n; k++ {
			if finite(s.X[k]) && finite(s.Y[k]) {
				pts = append(pts, plotter.XY{X: s.X[k], Y: s.Y[k]})
			}
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = palette[i%len(palette)]
		p.Add(line)
		if s.Name != "" {
			p.Legend.Add(s.Name, line)
		}
		drawn++
	}
	if drawn == 0 {
		return nil, ErrNoData
	}
	return p, nil
}

// Save writes p as a 300 DPI PNG, or through gonum's vector backends
// when the extension is .svg or .pdf.
func Save(p *plot.Plot, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	w := vg.Length(plotWidth) * vg.Inch
	h := vg.Length(plotHeight) * vg.Inch

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".svg", ".pdf", ".eps":
		return p.Save(w, h, filename)
	}

	c := vgimg.NewWith(
		vgimg.UseWH(w, h),
		vgimg.UseDPI(DPI),
	)
	p.Draw(draw.New(c))

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("cannot create png: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	pngc := vgimg.PngCanvas{Canvas: c}
	if _, err := pngc.WriteTo(bw); err != nil {
		return fmt.Errorf("cannot write png: %w", err)
	}
	return bw.Flush()
}

// Convergence plots the best and mean fitness per iteration. The y axis is
// logarithmic when every plotted value is positive.
func Convergence(history []optim.IterationRecord, filename string) error {
	if len(history) == 0 {
		return ErrNoData
	}
	it := make([]float64, len(history))
	best := make([]float64, len(history))
	mean := make([]float64, len(history))
	positive := true
	for i, r := range history {
		it[i] = float64(r.Iteration)
		best[i] = r.Best
		mean[i] = r.Mean
		if (finite(r.Best) && r.Best <= 0) || (finite(r.Mean) && r.Mean <= 0) {
			positive = false
		}
	}

	p, err := LinePlot("Swarm convergence", "iteration", "cost",
		Series{Name: "best", X: it, Y: best},
		Series{Name: "mean", X: it, Y: mean},
	)
	if err != nil {
		return err
	}
	if positive {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}
	return Save(p, filename)
}

// Trajectory writes angles.png, cart.png and control.png into dir and
// returns their paths. states rows follow the plant layout.
func Trajectory(times []float64, states [][]float64, controls []float64, dir string) ([]string, error) {
	if len(times) == 0 || len(states) == 0 {
		return nil, ErrNoData
	}
	n := min(len(times), len(states))
	col := func(idx int) []float64 {
		out := make([]float64, n)
		for k := 0; k < n; k++ {
			if idx < len(states[k]) {
				out[k] = states[k][idx]
			} else {
				out[k] = math.NaN()
			}
		}
		return out
	}
	t := times[:n]

	plots := []struct {
		file string
		make func() (*plot.Plot, error)
	}{
		{"angles.png", func() (*plot.Plot, error) {
			return LinePlot("Link angles", "time (s)", "angle (rad)",
				Series{Name: "θ1", X: t, Y: col(physics.IdxTheta1)},
				Series{Name: "θ2", X: t, Y: col(physics.IdxTheta2)})
		}},
		{"cart.png", func() (*plot.Plot, error) {
			return LinePlot("Cart position", "time (s)", "x (m)",
				Series{X: t, Y: col(physics.IdxX)})
		}},
		{"control.png", func() (*plot.Plot, error) {
			m := min(len(times), len(controls))
			return LinePlot("Control force", "time (s)", "u (N)",
				Series{X: times[:m], Y: controls[:m]})
		}},
	}

	paths := make([]string, 0, len(plots))
	for _, pl := range plots {
		p, err := pl.make()
		if errors.Is(err, ErrNoData) {
			continue
		}
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, pl.file)
		if err := Save(p, path); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
