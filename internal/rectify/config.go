package rectify

import "fmt"

// Reference canonical frame: A4 at 200 dpi.
const (
	CanonicalWidth  = 1654
	CanonicalHeight = 2339
)

// Config holds configuration for ballot rectification.
type Config struct {
	Width  int // canonical frame width in pixels
	Height int // canonical frame height in pixels
	// Debug dumping
	DebugDir string // if non-empty, writes marker overlay and rectified PNGs here
}

// DefaultConfig returns the reference canonical frame.
func DefaultConfig() Config {
	return Config{Width: CanonicalWidth, Height: CanonicalHeight}
}

// Validate checks the frame dimensions.
func (c Config) Validate() error {
	if c.Width < 2 || c.Height < 2 {
		return fmt.Errorf("rectify: canonical frame %dx%d too small", c.Width, c.Height)
	}
	return nil
}
