package extraction

import (
	"fmt"
	"strings"
)

func classificationPrompt() string {
	labels := make([]string, len(DocumentLabels))
	for i, l := range DocumentLabels {
		labels[i] = `"` + string(l) + `"`
	}

	return fmt.Sprintf(`You are classifying a photographed Brazilian vehicle expense document (fuel or maintenance).

Choose exactly one label from this closed set: %s.

- "quote": an estimate (orçamento) for work not yet performed
- "service_order": a workshop service order (ordem de serviço)
- "simple_receipt": a generic receipt or coupon (recibo, cupom fiscal)
- "oil_change_receipt": a receipt for an oil change
- "fuel_receipt": a fuel station receipt
- "other": anything else, or if you are unsure

Return ONLY valid JSON in this exact format:
{"label": "<one of the labels>", "confidence": <number between 0 and 1>}

Do not include any text before or after the JSON.`, strings.Join(labels, ", "))
}

func extractionPrompt(kind Kind, docType DocumentType) string {
	var b strings.Builder

	b.WriteString("You are reading a photographed Brazilian vehicle expense document. ")
	if docType.Label != "" && docType.Label != LabelOther {
		fmt.Fprintf(&b, "It was classified as %q. ", docType.Label)
	}
	b.WriteString("Carefully read all text in the image and extract these fields:\n\n")

	for _, f := range kind.Fields() {
		fmt.Fprintf(&b, "- %q: %s\n", f, fieldDescriptions[f])
	}

	b.WriteString(`
Return ONLY valid JSON with one key per field above. Each value must be an object of the form
{"value": <extracted value>, "confidence": <number between 0 and 1>}

Important:
- Use {"value": null, "confidence": 0} for any field you cannot see on the document
- Do not guess; confidence reflects how clearly the value is printed
- Amounts and liters are numbers, not strings
- Dates are YYYY-MM-DD
- Do not include any text before or after the JSON
- Do not use markdown code blocks`)

	return b.String()
}
