package receipt

import (
	"time"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

// Extraction is the outcome of processing one uploaded document
type Extraction struct {
	ID          string                      `json:"id"`
	Kind        extraction.Kind             `json:"kind"`
	Source      extraction.Source           `json:"source"`
	Filename    string                      `json:"filename,omitempty"`
	ContentType string                      `json:"content_type,omitempty"`
	Fields      extraction.ExtractionResult `json:"fields"`
	CreatedAt   time.Time                   `json:"created_at"`
}

// TextRequest is the body of a text-only extraction
type TextRequest struct {
	Text string `json:"text"`
	Kind string `json:"kind"`
}

// DocumentTypes describes the label sets and field schemas the service knows
type DocumentTypes struct {
	Labels           []extraction.DocumentLabel   `json:"labels"`
	MaintenanceTypes []string                     `json:"maintenance_types"`
	FuelCategories   []string                     `json:"fuel_categories"`
	Schemas          map[extraction.Kind][]string `json:"schemas"`
}
