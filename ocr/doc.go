// Package ocr defines the abstraction layer for plugging OCR engines (for
// example, Tesseract) into the scan pipeline, and the sequential fallback
// chain that keeps a single backend failure from aborting a document run.
// The interfaces are intentionally small and transport-agnostic so engines
// can be backed by native libraries, local binaries, or remote APIs without
// leaking provider-specific concerns into callers.
package ocr
