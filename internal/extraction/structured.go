package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrVisionUnavailable wraps transport and availability failures of the
	// vision model call.
	ErrVisionUnavailable = errors.New("vision model unavailable")
	// ErrMalformedResponse means the model answered but not with a usable
	// JSON object.
	ErrMalformedResponse = errors.New("malformed model response")
)

// StructuredExtractor asks the vision model for every schema field in the
// {value, confidence} shape.
type StructuredExtractor struct {
	vision Vision
	params Params
}

func NewStructuredExtractor(vision Vision, params Params) *StructuredExtractor {
	return &StructuredExtractor{vision: vision, params: params.normalize()}
}

// Extract returns a raw, unvalidated candidate together with the model's raw
// answer. On failure the error wraps ErrVisionUnavailable or
// ErrMalformedResponse and the raw answer, if any, is still returned so the
// caller can mine it for text.
func (s *StructuredExtractor) Extract(ctx context.Context, image []byte, contentType string, docType DocumentType, kind Kind) (ExtractionResult, string, error) {
	ctx, cancel := withCallTimeout(ctx, s.params.CallTimeout)
	defer cancel()

	text, err := s.vision.Generate(ctx, image, contentType, extractionPrompt(kind, docType))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrVisionUnavailable, err)
	}

	res, err := s.parse(text, kind)
	if err != nil {
		return nil, text, err
	}
	return res, text, nil
}

func (s *StructuredExtractor) parse(text string, kind Kind) (ExtractionResult, error) {
	block, ok := firstJSONObject(text)
	if !ok {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, errNoJSON)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(block)))
	dec.UseNumber()
	var tree map[string]any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("%w: decoding fields: %w", ErrMalformedResponse, err)
	}

	fields := kind.Fields()
	if !hasAnyKey(tree, fields) {
		// Some models nest the answer one level down.
		if inner, ok := tree["fields"].(map[string]any); ok && hasAnyKey(inner, fields) {
			tree = inner
		} else {
			return nil, fmt.Errorf("%w: no expected field in response", ErrMalformedResponse)
		}
	}

	res := newResult(fields)
	for _, f := range fields {
		res[f] = s.coerce(tree[f])
	}
	return res, nil
}

// coerce maps whatever the model returned for one field onto FieldResult. A
// bare value, or an object without a usable confidence, gets
// BareValueConfidence.
func (s *StructuredExtractor) coerce(raw any) FieldResult {
	if raw == nil {
		return FieldResult{}
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return FieldResult{Value: raw, Confidence: s.params.BareValueConfidence}
	}
	value, ok := obj["value"]
	if !ok {
		return FieldResult{Value: raw, Confidence: s.params.BareValueConfidence}
	}
	if value == nil {
		return FieldResult{}
	}

	conf, ok := number(obj["confidence"])
	if !ok {
		conf = s.params.BareValueConfidence
	}
	return FieldResult{Value: value, Confidence: conf}
}

func number(raw any) (float64, bool) {
	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func hasAnyKey(m map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}
