package fiducial

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/ballotcount/internal/utils"
	"gopkg.in/yaml.v3"
)

// SidecarSuffix is appended to an image's base name to find its marker file.
const SidecarSuffix = ".markers.yaml"

type sidecarFile struct {
	Markers map[int][2]float64 `yaml:"markers"`
}

// SidecarPath returns the marker file that accompanies imagePath.
func SidecarPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + SidecarSuffix
}

// HasSidecar reports whether a marker file exists for imagePath.
func HasSidecar(imagePath string) bool {
	_, err := os.Stat(SidecarPath(imagePath))
	return err == nil
}

// LoadSidecar reads marker observations written by an external detector:
//
//	markers:
//	  0: [112.5, 98.0]
//	  1: [1540.2, 101.7]
//	  3: [109.9, 2230.4]
//
// Ids outside 0..3 are ignored.
func LoadSidecar(path string) (MarkerSet, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: sidecar sits next to a user-provided scan
	if err != nil {
		return nil, fmt.Errorf("fiducial: read sidecar: %w", err)
	}
	var f sidecarFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("fiducial: parse sidecar %s: %w", path, err)
	}
	if f.Markers == nil {
		return nil, fmt.Errorf("fiducial: sidecar %s: %w", path, errors.New("no markers key"))
	}
	set := make(MarkerSet, len(f.Markers))
	for id, xy := range f.Markers {
		c := Corner(id)
		if !c.Valid() {
			continue
		}
		set[c] = utils.Point{X: xy[0], Y: xy[1]}
	}
	return set, nil
}

// WriteSidecar stores set next to imagePath.
func WriteSidecar(imagePath string, set MarkerSet) error {
	f := sidecarFile{Markers: make(map[int][2]float64, len(set))}
	for c, p := range set {
		f.Markers[int(c)] = [2]float64{p.X, p.Y}
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(SidecarPath(imagePath), data, 0o600)
}
