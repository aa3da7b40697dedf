package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

var (
	// ErrEmptyDocument is returned when neither an image nor text was supplied
	ErrEmptyDocument = errors.New("document is empty")
	// ErrInvalidKind is returned for an unknown document kind
	ErrInvalidKind = errors.New("invalid document kind")
)

// Extractor runs the extraction pipeline
type Extractor interface {
	Extract(ctx context.Context, doc extraction.Document) (extraction.ExtractionResult, extraction.Source)
}

// IDGenerator generates unique IDs for extractions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles extraction requests
type Service struct {
	extractor   Extractor
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(extractor Extractor) *Service {
	return &Service{
		extractor:   extractor,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(extractor Extractor, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		extractor:   extractor,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	// Phones generate very long names
	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// ProcessDocument runs the pipeline over an uploaded document. Only invalid
// input is an error; a document nothing could be read from still produces an
// Extraction with every field empty.
func (s *Service) ProcessDocument(ctx context.Context, filename string, data []byte, contentType string, kind string, text string) (*Extraction, error) {
	k, err := extraction.ParseKind(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKind, err)
	}
	if len(data) == 0 && strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}

	id := extraction.RequestID(ctx)
	if id == "" {
		id = s.idGenerator.Generate()
		ctx = extraction.WithRequestID(ctx, id)
	}
	cleanFilename := ""
	if filename != "" {
		cleanFilename = sanitizeFilename(filename)
	}

	slog.Info("Processing document",
		"request_id", id,
		"filename", cleanFilename,
		"content_type", contentType,
		"file_size", len(data),
		"kind", k,
	)

	result, source := s.extractor.Extract(ctx, extraction.Document{
		Image:       data,
		ContentType: contentType,
		Text:        text,
		Kind:        k,
	})

	return &Extraction{
		ID:          id,
		Kind:        k,
		Source:      source,
		Filename:    cleanFilename,
		ContentType: contentType,
		Fields:      result,
		CreatedAt:   s.timeSource.Now(),
	}, nil
}

// ProcessText runs only the text path of the pipeline
func (s *Service) ProcessText(ctx context.Context, req TextRequest) (*Extraction, error) {
	return s.ProcessDocument(ctx, "", nil, "", req.Kind, req.Text)
}

// DocumentTypes lists the labels and schemas the pipeline works with
func (s *Service) DocumentTypes() DocumentTypes {
	return DocumentTypes{
		Labels:           extraction.DocumentLabels,
		MaintenanceTypes: extraction.MaintenanceTypes,
		FuelCategories:   extraction.FuelCategories,
		Schemas: map[extraction.Kind][]string{
			extraction.KindMaintenance: extraction.KindMaintenance.Fields(),
			extraction.KindFuel:        extraction.KindFuel.Fields(),
		},
	}
}
