// Package scanning holds the vision model clients used by the extraction
// pipeline and the image preparation they share.
package scanning

import "context"

// Scanner sends a document image and a prompt to a vision-capable model and
// returns the model's text answer unparsed.
type Scanner interface {
	// Generate converts the image to PNG if needed and runs the prompt
	Generate(ctx context.Context, image []byte, contentType string, prompt string) (string, error)
	// Close closes the scanner and releases resources
	Close() error
}
