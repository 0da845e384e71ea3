// Package plot renders mean cluster trajectories as PNG maps, one per stratum.
package plot

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/couchcryptid/trajectory-cluster/internal/cluster"
	"github.com/couchcryptid/trajectory-cluster/internal/domain"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Renderer writes summary plots into a directory.
// It implements pipeline.Reporter.
type Renderer struct {
	dir    string
	logger *slog.Logger
}

// NewRenderer creates a Renderer writing into dir, which is created if needed.
func NewRenderer(dir string, logger *slog.Logger) *Renderer {
	return &Renderer{dir: dir, logger: logger}
}

// Report renders the summary of res.
func (r *Renderer) Report(_ context.Context, res cluster.Result) error {
	files, err := r.Render(res.Summary(), res.RunID)
	if err != nil {
		return err
	}
	r.logger.Info("summary plots written", "run_id", res.RunID, "dir", r.dir, "files", len(files))
	return nil
}

// Render writes one PNG per stratum of sum and returns the file paths.
func (r *Renderer) Render(sum domain.Summary, title string) ([]string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}

	means := make(map[string]map[int]plotter.XYs)
	for _, m := range sum.Means {
		if means[m.Stratum] == nil {
			means[m.Stratum] = make(map[int]plotter.XYs)
		}
		means[m.Stratum][m.Cluster] = append(means[m.Stratum][m.Cluster], plotter.XY{X: m.Lon, Y: m.Lat})
	}
	shares := make(map[string][]domain.ClusterShare)
	for _, s := range sum.Shares {
		shares[s.Stratum] = append(shares[s.Stratum], s)
	}

	files := make([]string, 0, len(sum.Strata))
	for _, stratum := range sum.Strata {
		p, err := stratumPlot(stratum, title, means[stratum], shares[stratum])
		if err != nil {
			return files, fmt.Errorf("plot stratum %q: %w", stratum, err)
		}
		path := filepath.Join(r.dir, "clusters_"+slug(stratum)+".png")
		if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
			return files, fmt.Errorf("save plot: %w", err)
		}
		files = append(files, path)
	}
	return files, nil
}

func stratumPlot(stratum, title string, lines map[int]plotter.XYs, shares []domain.ClusterShare) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = stratum
	if title != "" {
		p.Title.Text = fmt.Sprintf("%s (%s)", stratum, title)
	}
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"
	p.Add(plotter.NewGrid())

	colors := generateColors(len(shares))
	var origin plotter.XYs
	for i, share := range shares {
		pts := lines[share.Cluster]
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = colors[i]
		line.Width = vg.Points(2)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("C%d (%.1f%%)", share.Cluster, share.Percent), line)
		// Means are ordered oldest first, so the receptor is the last point.
		origin = append(origin, pts[len(pts)-1])
	}

	if len(origin) > 0 {
		receptor, err := plotter.NewScatter(origin)
		if err != nil {
			return nil, err
		}
		receptor.GlyphStyle.Shape = draw.CrossGlyph{}
		receptor.GlyphStyle.Color = color.Black
		receptor.GlyphStyle.Radius = vg.Points(4)
		p.Add(receptor)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// slug turns a stratum label into a file name fragment.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "all"
	}
	return out
}

// generateColors creates a palette of distinct colors for cluster lines.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range).
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	switch {
	case t < 0:
		t++
	case t > 1:
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}
