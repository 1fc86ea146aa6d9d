// Package extract turns input documents into position-tagged text tokens.
// Native text-layer parsing is an upstream collaborator concern: it delivers
// its output as token files that this package loads. Raster documents are
// handled natively by running the OCR chain over the full page.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/cardshield/cardshield/coords"
	"github.com/cardshield/cardshield/detect"
	"github.com/cardshield/cardshield/ocr"
	"github.com/cardshield/cardshield/observability"
)

// ErrExtraction marks a document that could not be opened or parsed. It is
// fatal for the run and must never be treated as "no PII found".
var ErrExtraction = errors.New("extraction failed")

// Stats summarizes one extraction pass for the report trace.
type Stats struct {
	UsedOCR        bool `json:"used_ocr"`
	TokenCount     int  `json:"token_count"`
	TextTokenCount int  `json:"text_token_count"`
	OCRTokenCount  int  `json:"ocr_token_count"`
}

// Extractor produces the token stream for one document.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]detect.Token, Stats, error)
}

// tokenRecord is the wire form of a collaborator-produced token file.
type tokenRecord struct {
	Text       string     `json:"text"`
	BBox       [4]float64 `json:"bbox"`
	Page       int        `json:"page"`
	Source     string     `json:"source"`
	Confidence *float64   `json:"ocr_conf"`
}

// DocumentExtractor routes by file type: token files (.json) from the text
// layer collaborator load directly; raster images run through the OCR chain.
type DocumentExtractor struct {
	chain *ocr.Chain
	log   observability.Logger

	// LastAttempts holds the backend attempt log of the most recent OCR
	// extraction, for the report trace.
	LastAttempts []ocr.Attempt
}

// NewDocumentExtractor builds an extractor over the given OCR chain.
func NewDocumentExtractor(chain *ocr.Chain, log observability.Logger) *DocumentExtractor {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &DocumentExtractor{chain: chain, log: log}
}

func (e *DocumentExtractor) Extract(ctx context.Context, path string) ([]detect.Token, Stats, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return e.loadTokenFile(path)
	case ".png", ".jpg", ".jpeg":
		return e.ocrImage(ctx, path)
	default:
		return nil, Stats{}, fmt.Errorf("%w: unsupported document type %q", ErrExtraction, filepath.Ext(path))
	}
}

func (e *DocumentExtractor) loadTokenFile(path string) ([]detect.Token, Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	var records []tokenRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, Stats{}, fmt.Errorf("%w: decode token file: %v", ErrExtraction, err)
	}
	tokens := make([]detect.Token, 0, len(records))
	for _, rec := range records {
		tok := detect.Token{
			Text:   rec.Text,
			Box:    coords.NewRect(rec.BBox[0], rec.BBox[1], rec.BBox[2], rec.BBox[3]),
			Page:   rec.Page,
			Source: detect.Source(rec.Source),
		}
		if tok.Source == "" {
			tok.Source = detect.SourceText
		}
		if rec.Confidence != nil {
			tok.Confidence = *rec.Confidence
		}
		tokens = append(tokens, tok)
	}
	return tokens, tokenStats(tokens, false), nil
}

func (e *DocumentExtractor) ocrImage(ctx context.Context, path string) ([]detect.Token, Stats, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, Stats{}, err
	}
	data, err := EncodePNG(img)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	in := ocr.Apply(ocr.Input{
		ID:     filepath.Base(path),
		Image:  data,
		Format: ocr.ImageFormatPNG,
	}, ocr.WithLanguages("eng"))
	results, attempts := e.chain.Run(ctx, in)
	e.LastAttempts = attempts
	best := ocr.SelectBest(results, false)

	tokens := make([]detect.Token, 0, len(best.Words))
	for _, w := range best.Words {
		if strings.TrimSpace(w.Text) == "" {
			continue
		}
		tokens = append(tokens, detect.Token{
			Text:       w.Text,
			Box:        w.Box,
			Page:       0,
			Source:     detect.SourceOCR,
			Confidence: w.Confidence,
		})
	}
	e.log.Debug("full-page ocr extraction",
		observability.String("engine", best.Engine),
		observability.Int("tokens", len(tokens)))
	return tokens, tokenStats(tokens, true), nil
}

func tokenStats(tokens []detect.Token, usedOCR bool) Stats {
	s := Stats{UsedOCR: usedOCR, TokenCount: len(tokens)}
	for _, tok := range tokens {
		switch tok.Source {
		case detect.SourceText:
			s.TextTokenCount++
		case detect.SourceOCR, detect.SourceROIOCR:
			s.OCRTokenCount++
		}
	}
	return s
}

// CharCount sums trimmed token text lengths, the volume signal the decision
// engine gates on.
func CharCount(tokens []detect.Token) int {
	n := 0
	for _, tok := range tokens {
		n += len(strings.TrimSpace(tok.Text))
	}
	return n
}

// LoadImage decodes a PNG or JPEG document page.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrExtraction, filepath.Base(path), err)
	}
	return img, nil
}

// EncodePNG renders img to PNG bytes for OCR submission.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
