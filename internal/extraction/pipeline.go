package extraction

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document is one extraction request.
type Document struct {
	Image       []byte
	ContentType string
	// Text is recognized text supplied by the caller, used when structured
	// extraction fails. Optional.
	Text string
	Kind Kind
}

// Recorder observes pipeline outcomes.
type Recorder interface {
	ObserveClassification(docType DocumentType)
	ObserveExtraction(kind Kind, source Source, result ExtractionResult, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveClassification(DocumentType) {}
func (nopRecorder) ObserveExtraction(Kind, Source, ExtractionResult, time.Duration) {}

type requestIDKey struct{}

// WithRequestID attaches a request id that the pipeline uses in its logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id attached by WithRequestID, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Pipeline composes classification, structured extraction, the regex
// fallback and normalization. It holds no per-request state and is safe for
// concurrent use.
type Pipeline struct {
	classifier *Classifier
	structured *StructuredExtractor
	regex      *RegexExtractor
	normalizer *Normalizer
	clock      TimeSource
	recorder   Recorder
}

// NewPipeline creates a Pipeline with the system clock and no recorder.
func NewPipeline(vision Vision, params Params) *Pipeline {
	return NewPipelineWithDeps(vision, params, systemClock{}, nil)
}

// NewPipelineWithDeps creates a Pipeline with custom dependencies for testing
// and metrics.
func NewPipelineWithDeps(vision Vision, params Params, clock TimeSource, recorder Recorder) *Pipeline {
	params = params.normalize()
	if clock == nil {
		clock = systemClock{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Pipeline{
		classifier: NewClassifier(vision, params),
		structured: NewStructuredExtractor(vision, params),
		regex:      NewRegexExtractor(params, clock),
		normalizer: NewNormalizer(NewValidators(clock, params.MinYear)),
		clock:      clock,
		recorder:   recorder,
	}
}

// Extract runs the full pipeline. It never fails: the weakest outcome is a
// result in which every field is (nil, 0), reported as SourceEmpty.
func (p *Pipeline) Extract(ctx context.Context, doc Document) (ExtractionResult, Source) {
	start := p.clock.Now()
	kind := doc.Kind
	if kind == "" {
		kind = KindMaintenance
	}

	id := RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	log := slog.With("request_id", id, "kind", kind)

	var (
		res    ExtractionResult
		source Source
	)
	if len(doc.Image) == 0 {
		res, source = p.extractText(doc.Text, kind)
	} else {
		res, source = p.extractImage(ctx, log, doc, kind)
	}

	elapsed := p.clock.Now().Sub(start)
	p.recorder.ObserveExtraction(kind, source, res, elapsed)
	log.Info("extraction finished",
		"source", source,
		"document_type", res[FieldDocumentType].Value,
		"extracted", res.Extracted(),
		"duration", elapsed,
	)
	return res, source
}

// ExtractText runs only the regex path over recognized text. The document
// type is guessed from keywords.
func (p *Pipeline) ExtractText(text string, kind Kind) ExtractionResult {
	start := p.clock.Now()
	res, source := p.extractText(text, kind)
	p.recorder.ObserveExtraction(kind, source, res, p.clock.Now().Sub(start))
	return res
}

func (p *Pipeline) extractImage(ctx context.Context, log *slog.Logger, doc Document, kind Kind) (ExtractionResult, Source) {
	docType := p.classifier.Classify(ctx, doc.Image, doc.ContentType)
	p.recorder.ObserveClassification(docType)
	log.Debug("document classified", "label", docType.Label, "confidence", docType.Confidence)

	raw, modelText, err := p.structured.Extract(ctx, doc.Image, doc.ContentType, docType, kind)
	if err == nil {
		return p.normalizer.Normalize(raw, p.documentType(docType, doc.Text), kind), SourceStructured
	}

	switch {
	case errors.Is(err, ErrVisionUnavailable):
		log.Warn("structured extraction unavailable, falling back", "error", err)
	default:
		log.Warn("structured extraction failed, falling back", "error", err)
	}

	text := doc.Text
	if strings.TrimSpace(text) == "" {
		text = modelText
	}
	if strings.TrimSpace(text) == "" {
		return p.normalizer.Normalize(nil, docType, kind), SourceEmpty
	}
	raw = p.regex.Extract(text, kind)
	return p.normalizer.Normalize(raw, p.documentType(docType, text), kind), SourceFallback
}

func (p *Pipeline) extractText(text string, kind Kind) (ExtractionResult, Source) {
	if kind == "" {
		kind = KindMaintenance
	}
	if strings.TrimSpace(text) == "" {
		return p.normalizer.Normalize(nil, DocumentType{Label: LabelOther}, kind), SourceEmpty
	}
	raw := p.regex.Extract(text, kind)
	return p.normalizer.Normalize(raw, p.documentType(DocumentType{Label: LabelOther}, text), kind), SourceFallback
}

// documentType replaces a failed classification with a keyword guess over
// the available text.
func (p *Pipeline) documentType(docType DocumentType, text string) DocumentType {
	if docType.Confidence > 0 || strings.TrimSpace(text) == "" {
		return docType
	}
	if guess, ok := p.regex.GuessDocumentType(text); ok {
		return guess
	}
	return docType
}
