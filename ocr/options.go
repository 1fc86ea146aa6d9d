package ocr

import (
	"strconv"

	"github.com/cardshield/cardshield/coords"
)

// InputOption mutates an OCR input before submission.
type InputOption func(*Input)

// WithLanguages sets language hints on the OCR input.
func WithLanguages(langs ...string) InputOption {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

// WithRegion sets the recognition region on the OCR input.
func WithRegion(region coords.Rect) InputOption {
	return func(in *Input) {
		if region.IsEmpty() {
			in.Region = nil
			return
		}
		in.Region = &region
	}
}

// WithDPI overrides the DPI value on the OCR input.
func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

// WithTesseractPSM sets the page segmentation mode (PSM) variable for
// Tesseract. See the tessdoc page-segmentation documentation for values.
func WithTesseractPSM(mode int) InputOption {
	return func(in *Input) {
		if in.Metadata == nil {
			in.Metadata = make(map[string]string)
		}
		in.Metadata["tessedit_pageseg_mode"] = strconv.Itoa(mode)
	}
}

// WithTesseractWhitelist restricts recognition to the provided characters.
func WithTesseractWhitelist(chars string) InputOption {
	return func(in *Input) {
		if in.Metadata == nil {
			in.Metadata = make(map[string]string)
		}
		in.Metadata["tessedit_char_whitelist"] = chars
	}
}

// ROI option presets for the field kinds the packs read.

// PANDigitsOptions configures a single-line digit read for PAN bands.
func PANDigitsOptions() []InputOption {
	return []InputOption{
		WithLanguages("eng"),
		WithTesseractPSM(7),
		WithTesseractWhitelist("0123456789 -"),
	}
}

// ExpiryOptions configures a single-line read for expiry dates.
func ExpiryOptions() []InputOption {
	return []InputOption{
		WithLanguages("eng"),
		WithTesseractPSM(7),
		WithTesseractWhitelist("0123456789/"),
	}
}

// MRZOptions configures a block read for machine-readable zones.
func MRZOptions() []InputOption {
	return []InputOption{
		WithLanguages("eng"),
		WithTesseractPSM(6),
		WithTesseractWhitelist("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789<"),
	}
}

// IDAlnumOptions configures a single-line alphanumeric read for document
// numbers.
func IDAlnumOptions() []InputOption {
	return []InputOption{
		WithLanguages("eng"),
		WithTesseractPSM(7),
		WithTesseractWhitelist("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"),
	}
}

// Apply runs the options over a fresh copy of in and returns it.
func Apply(in Input, opts ...InputOption) Input {
	for _, opt := range opts {
		opt(&in)
	}
	return in
}
