//go:build !aruco_gocv

package fiducial

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultDetectorWithoutBackend(t *testing.T) {
	d, err := NewDetector(DefaultOptions())
	require.NoError(t, err)
	_, err = d.Detect(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoBackend)
}
