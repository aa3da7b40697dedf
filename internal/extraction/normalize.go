package extraction

import "math"

// Normalizer validates a raw candidate and produces the final result.
type Normalizer struct {
	validators *Validators
}

func NewNormalizer(validators *Validators) *Normalizer {
	return &Normalizer{validators: validators}
}

// Normalize runs every schema field through its rule and folds the document
// type in under FieldDocumentType. Rejected values, keys outside the schema
// and missing keys all end up as (nil, 0) or absent; nothing here fails.
func (n *Normalizer) Normalize(raw ExtractionResult, docType DocumentType, kind Kind) ExtractionResult {
	rules := n.validators.Rules(kind)
	fields := kind.Fields()

	out := newResult(fields)
	for _, f := range fields {
		out[f] = normalizeField(rules[f], raw[f])
	}
	out[FieldDocumentType] = normalizeField(rules[FieldDocumentType], FieldResult{
		Value:      string(docType.Label),
		Confidence: docType.Confidence,
	})
	return out
}

func normalizeField(rule Rule, in FieldResult) FieldResult {
	conf := clamp(in.Confidence)
	if rule == nil || in.Value == nil || conf == 0 {
		return FieldResult{}
	}
	v, ok := rule(in.Value)
	if !ok || v == nil {
		return FieldResult{}
	}
	return FieldResult{Value: v, Confidence: conf}
}

func clamp(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return math.Min(1, math.Max(0, c))
}
