// Command gentraj writes a synthetic back-trajectory sample table for local
// runs and fixtures. Each trajectory is drawn from one of a few transport
// regimes so that clustering has real structure to recover.
//
// Usage:
//
//	go run ./cmd/gentraj -out data/mock/samples.csv -n 200 -seed 7
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/trajectory-cluster/internal/adapter/csvfile"
	"github.com/couchcryptid/trajectory-cluster/internal/domain"
)

// regime is a prevailing flow: trajectories travel upwind along heading
// (degrees clockwise from north) at speed degrees per hour.
type regime struct {
	name    string
	heading float64
	speed   float64
	curve   float64 // heading change per hour, degrees
}

var regimes = []regime{
	{name: "westerly", heading: 270, speed: 0.35, curve: 0},
	{name: "northerly", heading: 0, speed: 0.25, curve: 0.4},
	{name: "maritime", heading: 200, speed: 0.15, curve: -0.6},
	{name: "stagnant", heading: 90, speed: 0.04, curve: 2.5},
}

type genConfig struct {
	n         int
	length    int
	seed      uint64
	start     time.Time
	interval  time.Duration
	lat, lon  float64
	dropRatio float64
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("gentraj", flag.ContinueOnError)
	out := fs.String("out", "-", "output CSV path, - for stdout")
	n := fs.Int("n", 100, "number of trajectories")
	length := fs.Int("length", domain.DefaultLength, "samples per complete trajectory")
	seed := fs.Uint64("seed", 1, "random seed")
	start := fs.String("start", "2024-01-01T00:00:00Z", "release time of the first trajectory")
	interval := fs.Duration("interval", 6*time.Hour, "time between releases")
	lat := fs.Float64("lat", 40.0, "receptor latitude")
	lon := fs.Float64("lon", -105.0, "receptor longitude")
	drop := fs.Float64("drop", 0.05, "fraction of trajectories written with a missing sample")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := genConfig{
		n:         *n,
		length:    *length,
		seed:      *seed,
		interval:  *interval,
		lat:       *lat,
		lon:       *lon,
		dropRatio: *drop,
	}
	t, err := csvfile.ParseDate(*start)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}
	cfg.start = t
	if err := cfg.validate(); err != nil {
		return err
	}

	samples, dropped := generate(cfg)
	if err := writeSamples(*out, stdout, samples); err != nil {
		return fmt.Errorf("writing samples: %w", err)
	}
	log.Printf("wrote %d samples: %d trajectories, %d incomplete", len(samples), cfg.n, dropped)
	return nil
}

func writeSamples(path string, stdout io.Writer, samples []domain.Sample) error {
	if path == "-" {
		return csvfile.WriteSamples(stdout, samples)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := csvfile.WriteSamples(f, samples); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c genConfig) validate() error {
	var errs []error
	if c.n < 1 {
		errs = append(errs, fmt.Errorf("-n must be positive, got %d", c.n))
	}
	if c.length < 2 {
		errs = append(errs, fmt.Errorf("-length must be at least 2, got %d", c.length))
	}
	if c.interval <= 0 {
		errs = append(errs, fmt.Errorf("-interval must be positive, got %s", c.interval))
	}
	if c.dropRatio < 0 || c.dropRatio > 1 {
		errs = append(errs, fmt.Errorf("-drop must be in [0, 1], got %g", c.dropRatio))
	}
	if c.lat < -90 || c.lat > 90 {
		errs = append(errs, fmt.Errorf("-lat out of range: %g", c.lat))
	}
	return errors.Join(errs...)
}

// generate returns the samples of cfg.n trajectories, newest position first
// within each, and how many trajectories had a sample removed.
func generate(cfg genConfig) ([]domain.Sample, int) {
	rng := rand.New(rand.NewPCG(cfg.seed, cfg.seed^0x9e3779b97f4a7c15))
	samples := make([]domain.Sample, 0, cfg.n*cfg.length)
	var dropped int

	for i := range cfg.n {
		date := cfg.start.Add(time.Duration(i) * cfg.interval).UTC()
		r := regimes[rng.IntN(len(regimes))]
		traj := walk(rng, r, cfg, date)
		if rng.Float64() < cfg.dropRatio {
			drop := 1 + rng.IntN(cfg.length-1)
			traj = append(traj[:drop], traj[drop+1:]...)
			dropped++
		}
		samples = append(samples, traj...)
	}
	return samples, dropped
}

// walk traces one back-trajectory from the receptor. Hour increments run
// 0, -1, ... and longitudes are wrapped into [-180, 180).
func walk(rng *rand.Rand, r regime, cfg genConfig, date time.Time) []domain.Sample {
	out := make([]domain.Sample, cfg.length)
	lat, lon := cfg.lat, cfg.lon
	heading := r.heading + rng.NormFloat64()*15
	speed := r.speed * (0.75 + rng.Float64()*0.5)

	for h := range cfg.length {
		out[h] = domain.Sample{Date: date, HourInc: -h, Lat: lat, Lon: wrapLon(lon)}
		rad := heading * math.Pi / 180
		lat += speed * math.Cos(rad)
		lon += speed * math.Sin(rad) / math.Max(math.Cos(lat*math.Pi/180), 0.1)
		lat = math.Max(-89.9, math.Min(89.9, lat))
		heading += r.curve + rng.NormFloat64()*2
	}
	return out
}

func wrapLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
