package ssr

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	cssFile       = regexp.MustCompile(`\.css$`)
	jsFile        = regexp.MustCompile(`\.js$`)
	runtimeChunk  = regexp.MustCompile(`runtime~client-(.+?)\.js$`)
	runtimeMarker = "runtime~client"
)

// Stats is a webpack stats document: chunk name to {assets, chunks, ...}.
type Stats struct {
	raw string
}

// ParseStats validates data as a stats document.
func ParseStats(data []byte) (Stats, error) {
	if len(data) == 0 {
		return Stats{raw: "{}"}, nil
	}
	if !gjson.ValidBytes(data) {
		return Stats{}, fmt.Errorf("ssr: stats are not valid JSON")
	}
	return Stats{raw: string(data)}, nil
}

// LoadStats reads a stats file. An empty path yields empty stats.
func LoadStats(path string) (Stats, error) {
	if path == "" {
		return Stats{raw: "{}"}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Stats{}, fmt.Errorf("ssr: read stats: %w", err)
	}
	return ParseStats(data)
}

// chunkAssets returns the assets of the chunk named exactly name.
func (s Stats) chunkAssets(name string) ([]string, bool) {
	var (
		out   []string
		found bool
	)
	gjson.Parse(s.raw).ForEach(func(key, value gjson.Result) bool {
		if key.String() != name {
			return true
		}
		found = true
		for _, a := range value.Get("assets").Array() {
			out = append(out, a.String())
		}
		return false
	})
	return out, found
}

func (s Stats) clientAssets() []string {
	assets, _ := s.chunkAssets("client")
	return assets
}

func filter(in []string, keep func(string) bool) []string {
	var out []string
	for _, x := range in {
		if keep(x) {
			out = append(out, x)
		}
	}
	return out
}

// CriticalAssets are inlined into every page.
type CriticalAssets struct {
	JS  string
	CSS string
}

// ReadCriticalAssets reads the client chunk's stylesheets and runtime chunk
// from distDir.
func ReadCriticalAssets(stats Stats, distDir string) (CriticalAssets, error) {
	assets := stats.clientAssets()
	css, err := readAll(distDir, filter(assets, cssFile.MatchString))
	if err != nil {
		return CriticalAssets{}, err
	}
	js, err := readAll(distDir, filter(assets, runtimeChunk.MatchString))
	if err != nil {
		return CriticalAssets{}, err
	}
	return CriticalAssets{JS: js, CSS: css}, nil
}

func readAll(dir string, names []string) (string, error) {
	parts := make([]string, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", fmt.Errorf("ssr: read critical asset: %w", err)
		}
		parts = append(parts, string(data))
	}
	return strings.Join(parts, "\n"), nil
}

// EntryPoints are the client chunk's scripts except the runtime chunk.
func EntryPoints(stats Stats) []string {
	return filter(stats.clientAssets(), func(x string) bool {
		return jsFile.MatchString(x) && !strings.Contains(x, runtimeMarker)
	})
}

// TypeAssets are the scripts and stylesheets of one root component.
type TypeAssets struct {
	JS  []string
	CSS []string
}

// AssetsForType returns the assets of the "<name>_root" chunk of the first
// component name.
func AssetsForType(names []string, stats Stats) TypeAssets {
	if len(names) == 0 {
		return TypeAssets{}
	}
	assets, ok := stats.chunkAssets(names[0] + "_root")
	if !ok {
		return TypeAssets{}
	}
	return TypeAssets{
		JS:  filter(assets, jsFile.MatchString),
		CSS: filter(assets, cssFile.MatchString),
	}
}
