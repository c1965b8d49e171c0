// Command genfeed writes a deterministic set of hourly telemetry shards in the
// feed's wire format, for local runs against FEED_BASE_URL and for fixtures.
// Each balloon keeps its ordinal across shards and drifts between hours, so
// shard 00 is the newest position and shard 23 the oldest.
//
// Usage:
//
//	go run ./cmd/genfeed -out data/feed -balloons 500 -seed 42
//	python3 -m http.server -d data/feed 9000   # FEED_BASE_URL=http://localhost:9000
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for NN.json shards")
	balloons := flag.Int("balloons", 500, "balloons per shard")
	seed := flag.Uint64("seed", 42, "random seed")
	malformed := flag.Float64("malformed", 0.01, "fraction of elements written as malformed")
	flag.Parse()

	if *out == "" || *balloons <= 0 {
		flag.Usage()
		return fmt.Errorf("missing required flags: -out, -balloons > 0")
	}

	shards := generate(*balloons, *seed, *malformed)
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}
	for i, shard := range shards {
		path := filepath.Join(*out, fmt.Sprintf("%02d.json", i))
		data, err := json.Marshal(shard)
		if err != nil {
			return fmt.Errorf("marshal shard %02d: %w", i, err)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return err
		}
	}
	log.Printf("wrote %d shards of %d balloons to %s", len(shards), *balloons, *out)
	return nil
}

// generate returns BatchCount shards. Elements are [lat, lon, alt] triples,
// or a malformed placeholder the feed adapter is expected to drop.
func generate(balloons int, seed uint64, malformedRate float64) [][]any {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	type track struct{ lat, lon, alt, dLat, dLon float64 }
	tracks := make([]track, balloons)
	for i := range tracks {
		tracks[i] = track{
			lat:  rng.Float64()*150 - 75,
			lon:  rng.Float64()*360 - 180,
			alt:  rng.Float64() * 25,
			dLat: rng.NormFloat64() * 0.3,
			dLon: rng.NormFloat64()*0.8 + 0.4, // prevailing westerlies
		}
	}

	shards := make([][]any, domain.BatchCount)
	for hour := domain.BatchCount - 1; hour >= 0; hour-- {
		shard := make([]any, balloons)
		for i := range tracks {
			t := &tracks[i]
			t.lat = clamp(t.lat+t.dLat, -89.9, 89.9)
			t.lon = wrapLon(t.lon + t.dLon)
			t.alt = clamp(t.alt+rng.NormFloat64()*0.5, 0, 30)

			if rng.Float64() < malformedRate {
				shard[i] = malformedElement(rng)
				continue
			}
			shard[i] = []float64{round(t.lat, 5), round(t.lon, 5), round(t.alt, 3)}
		}
		shards[hour] = shard
	}
	return shards
}

func malformedElement(rng *rand.Rand) any {
	switch rng.IntN(3) {
	case 0:
		return []any{nil, 12.5, 3.0}
	case 1:
		return []float64{45.0}
	default:
		return "offline"
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func wrapLon(v float64) float64 {
	return math.Mod(v+540, 360) - 180
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
