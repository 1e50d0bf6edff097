package source

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/ballotcount/internal/utils"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageImage is one image embedded in a PDF page.
type PageImage struct {
	Page  int
	Index int // 1-based position within the page
	Image image.Image
}

// ExtractPages pulls the embedded images out of a scanned PDF. Pages are
// extracted one at a time so every file pdfcpu writes is attributed to its
// page regardless of how pdfcpu names it.
func ExtractPages(path, pageRange string) ([]PageImage, error) {
	count, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("read PDF %s: %w", path, err)
	}
	pages, err := parsePageRange(pageRange, count)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", pageRange, err)
	}

	tempDir, err := os.MkdirTemp("", "ballotcount-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var out []PageImage
	for _, p := range pages {
		dir := filepath.Join(tempDir, strconv.Itoa(p))
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
		if err := api.ExtractImagesFile(path, dir, []string{strconv.Itoa(p)}, nil); err != nil {
			return nil, fmt.Errorf("extract images from %s page %d: %w", path, p, err)
		}
		imgs, err := loadDir(dir)
		if err != nil {
			return nil, err
		}
		for i, img := range imgs {
			out = append(out, PageImage{Page: p, Index: i + 1, Image: img})
		}
	}
	return out, nil
}

// loadDir decodes every supported image in dir, in file name order.
// Files that fail to decode are skipped.
func loadDir(dir string) ([]image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && utils.IsSupportedImage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	var imgs []image.Image
	for _, n := range names {
		img, _, err := utils.LoadImage(filepath.Join(dir, n))
		if err != nil {
			continue
		}
		imgs = append(imgs, img)
	}
	return imgs, nil
}

// parsePageRange parses "1-5", "1,3,5" or a mix. Empty selects all pages.
func parsePageRange(pageRange string, count int) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		all := make([]int, count)
		for i := range all {
			all[i] = i + 1
		}
		return all, nil
	}
	var pages []int
	for _, part := range strings.Split(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		for _, p := range tokenPages {
			if p < 1 || p > count {
				return nil, fmt.Errorf("page %d out of range 1-%d", p, count)
			}
		}
		pages = append(pages, tokenPages...)
	}
	slices.Sort(pages)
	return slices.Compact(pages), nil
}

// parseRangeToken parses either a single page ("3") or a range ("1-5").
func parseRangeToken(part string) ([]int, error) {
	if lo, hi, ok := strings.Cut(part, "-"); ok {
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid start page: %s", lo)
		}
		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("invalid end page: %s", hi)
		}
		if start > end {
			return nil, fmt.Errorf("start page %d greater than end page %d", start, end)
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	page, err := strconv.Atoi(part)
	if err != nil {
		return nil, fmt.Errorf("invalid page number: %s", part)
	}
	return []int{page}, nil
}
