// Package source turns command-line arguments into the list of ballots to
// count: image files, directories of images and PDF scans whose embedded
// page images each become one ballot.
package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
	"github.com/MeKo-Tech/ballotcount/internal/fiducial"
	"github.com/MeKo-Tech/ballotcount/internal/utils"
)

// Ballot is one scanned ballot awaiting counting.
type Ballot struct {
	ID      string
	Path    string // image or PDF file
	Page    int    // PDF page, 0 for image files
	Sidecar string // marker file consulted before the detector

	image image.Image // preloaded PDF page image
}

// Load decodes the ballot image. Decode failures wrap ballot.ErrImageUnreadable.
func (b Ballot) Load() (image.Image, error) {
	if b.image != nil {
		return b.image, nil
	}
	img, _, err := utils.LoadImage(b.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ballot.ErrImageUnreadable, err)
	}
	return img, nil
}

// Markers returns the fiducial observations for b: its sidecar when one
// exists, otherwise whatever det finds in img.
func (b Ballot) Markers(ctx context.Context, img image.Image, det fiducial.Detector) (fiducial.MarkerSet, error) {
	if b.Sidecar != "" {
		if _, err := os.Stat(b.Sidecar); err == nil {
			return fiducial.LoadSidecar(b.Sidecar)
		}
	}
	if det == nil {
		return nil, fmt.Errorf("no sidecar %s and no detector: %w", b.Sidecar, ballot.ErrInsufficientMarkers)
	}
	set, err := det.Detect(ctx, img)
	if errors.Is(err, fiducial.ErrNoBackend) {
		return nil, fmt.Errorf("%w: %w", ballot.ErrInsufficientMarkers, err)
	}
	return set, err
}

// Options filters discovery.
type Options struct {
	Recursive bool
	Include   []string // base-name glob patterns, all files when empty
	Exclude   []string
	Pages     string // PDF page range, all pages when empty
}

// Discover expands args into ballots ordered by path then page.
func Discover(args []string, opts Options) ([]Ballot, error) {
	files, err := discoverFiles(args, opts)
	if err != nil {
		return nil, err
	}

	var out []Ballot
	for _, f := range files {
		if isPDF(f) {
			pages, err := ExtractPages(f, opts.Pages)
			if err != nil {
				return nil, err
			}
			stem := stem(f)
			for _, p := range pages {
				id := stem + "_p" + strconv.Itoa(p.Page) + "_" + strconv.Itoa(p.Index)
				out = append(out, Ballot{
					ID:      id,
					Path:    f,
					Page:    p.Page,
					Sidecar: filepath.Join(filepath.Dir(f), id+fiducial.SidecarSuffix),
					image:   p.Image,
				})
			}
			continue
		}
		out = append(out, Ballot{ID: stem(f), Path: f, Sidecar: fiducial.SidecarPath(f)})
	}
	dedupeIDs(out)
	return out, nil
}

func stem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func isPDF(path string) bool { return strings.EqualFold(filepath.Ext(path), ".pdf") }

// dedupeIDs suffixes repeated ids with _2, _3 and so on, skipping suffixed
// ids that another ballot already carries.
func dedupeIDs(bs []Ballot) {
	taken := make(map[string]bool, len(bs))
	for _, b := range bs {
		taken[b.ID] = true
	}
	kept := make(map[string]bool, len(bs))
	next := make(map[string]int)
	for i := range bs {
		id := bs[i].ID
		if !kept[id] {
			kept[id] = true
			continue
		}
		n := max(next[id], 2)
		for taken[id+"_"+strconv.Itoa(n)] {
			n++
		}
		bs[i].ID = id + "_" + strconv.Itoa(n)
		taken[bs[i].ID] = true
		next[id] = n + 1
	}
}

func discoverFiles(args []string, opts Options) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			if accepted(arg) && shouldInclude(arg, opts.Include, opts.Exclude) {
				files = append(files, arg)
			}
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if !opts.Recursive && path != arg {
					return filepath.SkipDir
				}
				return nil
			}
			if accepted(path) && shouldInclude(path, opts.Include, opts.Exclude) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

func accepted(path string) bool { return utils.IsSupportedImage(path) || isPDF(path) }

// shouldInclude applies exclude patterns first, then include patterns.
func shouldInclude(path string, include, exclude []string) bool {
	if matchesAny(path, exclude) {
		return false
	}
	return len(include) == 0 || matchesAny(path, include)
}

func matchesAny(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}
