package yolo

import (
	"fmt"
	"slices"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
)

// decode turns a YOLOv8 head output of shape [1, 4+nc, anchors] into
// detections above conf, suppressing same-class overlaps above iou.
// Boxes are returned as x1, y1, x2, y2 in input pixels.
func decode(out []float32, shape []int64, classes []string, conf, iou float64) ([]ballot.Detection, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("yolo: unexpected output shape %v", shape)
	}
	rows, n := int(shape[1]), int(shape[2])
	nc := rows - 4
	if nc < 1 {
		return nil, fmt.Errorf("yolo: output has no class rows: %v", shape)
	}
	if len(out) != rows*n {
		return nil, fmt.Errorf("yolo: output length %d does not match shape %v", len(out), shape)
	}

	var dets []ballot.Detection
	for i := range n {
		best, cls := float32(0), -1
		for c := range nc {
			if s := out[(4+c)*n+i]; s > best {
				best, cls = s, c
			}
		}
		if cls < 0 || float64(best) < conf {
			continue
		}
		cx, cy := float64(out[i]), float64(out[n+i])
		w, h := float64(out[2*n+i]), float64(out[3*n+i])
		dets = append(dets, ballot.Detection{
			Class:      className(classes, cls),
			Confidence: float64(best),
			Box:        [4]float64{cx - w/2, cy - h/2, cx + w/2, cy + h/2},
		})
	}
	return suppress(dets, iou), nil
}

func className(classes []string, i int) string {
	if i < len(classes) {
		return classes[i]
	}
	return fmt.Sprintf("class_%d", i)
}

// suppress is greedy per-class NMS, highest confidence first.
func suppress(dets []ballot.Detection, iou float64) []ballot.Detection {
	if len(dets) <= 1 {
		return dets
	}
	slices.SortStableFunc(dets, func(a, b ballot.Detection) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		default:
			return 0
		}
	})
	kept := make([]ballot.Detection, 0, len(dets))
	for _, d := range dets {
		overlap := false
		for _, k := range kept {
			if k.Class == d.Class && boxIoU(k.Box, d.Box) > iou {
				overlap = true
				break
			}
		}
		if !overlap {
			kept = append(kept, d)
		}
	}
	return kept
}

func boxIoU(a, b [4]float64) float64 {
	ix := min(a[2], b[2]) - max(a[0], b[0])
	iy := min(a[3], b[3]) - max(a[1], b[1])
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// verdict reduces detections to a mark result: present iff any detection of
// the mark class survived, with its best confidence. Other classes (crossed
// out marks) are kept in the detail list but never count.
func verdict(dets []ballot.Detection, markClass string) ballot.MarkResult {
	r := ballot.MarkResult{Detections: dets}
	for _, d := range dets {
		if d.Class == markClass {
			r.Present = true
			r.Confidence = max(r.Confidence, d.Confidence)
		}
	}
	return r
}
