package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Vision sends one image and a text prompt to a vision-capable model and
// returns the model's raw text answer.
type Vision interface {
	Generate(ctx context.Context, image []byte, contentType string, prompt string) (string, error)
}

var errNoJSON = errors.New("no JSON object in model response")

const classificationSchema = `{
	"type": "object",
	"required": ["label"],
	"properties": {
		"label": {"type": "string", "minLength": 1},
		"confidence": {
			"anyOf": [
				{"type": "number", "minimum": 0, "maximum": 1},
				{"type": "null"}
			]
		}
	}
}`

var classificationResponse = jsonschema.MustCompileString("classification.json", classificationSchema)

type classification struct {
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence"`
}

// Classifier assigns a document label to an image.
type Classifier struct {
	vision Vision
	params Params
	labels Rule
}

func NewClassifier(vision Vision, params Params) *Classifier {
	return &Classifier{
		vision: vision,
		params: params.normalize(),
		labels: Enum(documentLabelStrings()),
	}
}

// Classify never fails. Any error yields LabelOther with zero confidence; a
// label outside the closed set yields LabelOther with its confidence capped
// at ClassifierFallbackCeiling.
func (c *Classifier) Classify(ctx context.Context, image []byte, contentType string) DocumentType {
	ctx, cancel := withCallTimeout(ctx, c.params.CallTimeout)
	defer cancel()

	text, err := c.vision.Generate(ctx, image, contentType, classificationPrompt())
	if err != nil {
		slog.Warn("classifying document", "error", err)
		return DocumentType{Label: LabelOther}
	}

	resp, err := parseClassification(text)
	if err != nil {
		slog.Warn("parsing classification", "error", err)
		return DocumentType{Label: LabelOther}
	}

	conf := c.params.BareValueConfidence
	if resp.Confidence != nil {
		conf = *resp.Confidence
	}

	label, ok := c.labels(resp.Label)
	if !ok {
		slog.Info("classifier returned unknown label", "label", resp.Label)
		return DocumentType{Label: LabelOther, Confidence: min(conf, c.params.ClassifierFallbackCeiling)}
	}
	return DocumentType{Label: DocumentLabel(label.(string)), Confidence: conf}
}

func parseClassification(text string) (classification, error) {
	block, ok := firstJSONObject(text)
	if !ok {
		return classification{}, errNoJSON
	}

	var tree any
	if err := json.Unmarshal([]byte(block), &tree); err != nil {
		return classification{}, fmt.Errorf("decoding classification: %w", err)
	}
	if err := classificationResponse.Validate(tree); err != nil {
		return classification{}, fmt.Errorf("classification does not match schema: %w", err)
	}

	var resp classification
	if err := json.Unmarshal([]byte(block), &resp); err != nil {
		return classification{}, fmt.Errorf("decoding classification: %w", err)
	}
	return resp, nil
}

func withCallTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
