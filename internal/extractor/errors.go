package extractor

import "errors"

var (
	// ErrUnsupportedFormat indicates a file kind this extractor does not handle.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrExtractionFailed indicates a parser error such as a corrupt archive
	// or an encrypted PDF.
	ErrExtractionFailed = errors.New("text extraction failed")
)
