// Package label renders scannable codes for assets: single PNG images and
// printable PDF label sheets.
package label

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

// ErrEncoding wraps every failure to produce an image or sheet.
var ErrEncoding = errors.New("code encoding failed")

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 256

// Encoder turns text into an image. Calls are short-lived and idempotent.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]byte, error)
}

// PNGEncoder encodes QR codes as PNG images.
type PNGEncoder struct {
	size  int
	level qrcode.RecoveryLevel
}

// NewPNGEncoder returns an encoder producing size×size PNGs at medium error
// correction. A non-positive size selects DefaultSize.
func NewPNGEncoder(size int) *PNGEncoder {
	if size <= 0 {
		size = DefaultSize
	}
	return &PNGEncoder{size: size, level: qrcode.Medium}
}

// Encode implements Encoder.
func (e *PNGEncoder) Encode(ctx context.Context, text string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: empty content", ErrEncoding)
	}
	png, err := qrcode.Encode(text, e.level, e.size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return png, nil
}

// AssetURL is the address encoded into an asset's code. It carries the
// scan-origin flag.
func AssetURL(baseURL, name string) string {
	return strings.TrimRight(baseURL, "/") + "/asset/" + url.PathEscape(name) + "?scan=true"
}
