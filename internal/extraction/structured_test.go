package extraction

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("StructuredExtractor", func() {
	var (
		vision    *mockVision
		extractor *StructuredExtractor
		docType   DocumentType
		kind      Kind
		result    ExtractionResult
		raw       string
		err       error
	)

	BeforeEach(func() {
		vision = &mockVision{}
		docType = DocumentType{Label: LabelFuelReceipt, Confidence: 0.9}
		kind = KindFuel
	})

	JustBeforeEach(func() {
		extractor = NewStructuredExtractor(vision, DefaultParams())
		result, raw, err = extractor.Extract(context.Background(), []byte("image"), "image/png", docType, kind)
	})

	Describe("the prompt", func() {
		It("lists every schema field and the document type", func() {
			Expect(vision.prompts).To(HaveLen(1))
			for _, f := range KindFuel.Fields() {
				Expect(vision.prompts[0]).To(ContainSubstring(`"` + f + `"`))
			}
			Expect(vision.prompts[0]).To(ContainSubstring(`classified as "fuel_receipt"`))
			Expect(vision.prompts[0]).To(ContainSubstring(`{"value": null, "confidence": 0}`))
		})

		When("the document type is unknown", func() {
			BeforeEach(func() {
				docType = DocumentType{Label: LabelOther}
			})

			It("does not mention a classification", func() {
				Expect(vision.prompts[0]).NotTo(ContainSubstring("classified as"))
			})
		})
	})

	When("the model follows the requested shape", func() {
		BeforeEach(func() {
			vision.extractResponse = "```json\n" + `{
				"date": {"value": "2025-03-10", "confidence": 0.9},
				"total_value": {"value": 236.32, "confidence": 0.95},
				"plate": {"value": null, "confidence": 0},
				"category": {"value": "gasoline", "confidence": "0.8"}
			}` + "\n```"
		})

		It("keeps values and confidences", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result[FieldDate]).To(Equal(FieldResult{Value: "2025-03-10", Confidence: 0.9}))
			Expect(result[FieldTotalValue]).To(Equal(FieldResult{Value: json.Number("236.32"), Confidence: 0.95}))
			Expect(result[FieldCategory]).To(Equal(FieldResult{Value: "gasoline", Confidence: 0.8}))
		})

		It("maps nulls and missing keys to empty fields", func() {
			Expect(result[FieldPlate]).To(Equal(FieldResult{}))
			Expect(result[FieldLiters]).To(Equal(FieldResult{}))
		})

		It("returns the raw answer", func() {
			Expect(raw).To(ContainSubstring("236.32"))
		})
	})

	When("the model returns bare values", func() {
		BeforeEach(func() {
			vision.extractResponse = `{"date": "2025-03-10", "total_value": 50, "liters": {"value": 10.5}}`
		})

		It("assigns the bare value confidence", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result[FieldDate]).To(Equal(FieldResult{Value: "2025-03-10", Confidence: 0.7}))
			Expect(result[FieldTotalValue]).To(Equal(FieldResult{Value: json.Number("50"), Confidence: 0.7}))
			Expect(result[FieldLiters]).To(Equal(FieldResult{Value: json.Number("10.5"), Confidence: 0.7}))
		})
	})

	When("the fields are nested under a wrapper", func() {
		BeforeEach(func() {
			vision.extractResponse = `{"fields": {"plate": {"value": "ABC1234", "confidence": 0.85}}}`
		})

		It("unwraps them", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result[FieldPlate]).To(Equal(FieldResult{Value: "ABC1234", Confidence: 0.85}))
		})
	})

	When("the schema is maintenance", func() {
		BeforeEach(func() {
			kind = KindMaintenance
			vision.extractResponse = `{"service_list": {"value": ["troca de óleo", "filtro"], "confidence": 0.8}, "liters": 40}`
		})

		It("only returns maintenance fields", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(HaveLen(len(KindMaintenance.Fields())))
			Expect(result).NotTo(HaveKey(FieldLiters))
			Expect(result[FieldServiceList]).To(Equal(FieldResult{Value: []any{"troca de óleo", "filtro"}, Confidence: 0.8}))
		})
	})

	DescribeTable("malformed responses",
		func(response string) {
			vision.extractResponse = response
			res, text, err := extractor.Extract(context.Background(), []byte("image"), "image/png", docType, kind)
			Expect(err).To(MatchError(ErrMalformedResponse))
			Expect(res).To(BeNil())
			Expect(text).To(Equal(response))
		},
		Entry("prose only", "The total is R$ 236,32"),
		Entry("truncated JSON", `{"date": {"value": "2025-03-10"`),
		Entry("invalid JSON", `{"date": {"value": 2025-03-10}}`),
		Entry("no expected field", `{"merchant": "Posto Shell"}`),
	)

	When("the vision call fails", func() {
		BeforeEach(func() {
			vision.extractErr = errors.New("503 service unavailable")
		})

		It("reports the model as unavailable", func() {
			Expect(err).To(MatchError(ErrVisionUnavailable))
			Expect(err.Error()).To(ContainSubstring("503"))
			Expect(result).To(BeNil())
			Expect(raw).To(BeEmpty())
		})
	})
})

var _ = Describe("firstJSONObject", func() {
	DescribeTable("scanning model output",
		func(input string, expected string, found bool) {
			block, ok := firstJSONObject(input)
			Expect(ok).To(Equal(found))
			Expect(block).To(Equal(expected))
		},
		Entry("bare object", `{"a":1}`, `{"a":1}`, true),
		Entry("object in prose", `result: {"a":{"b":2}} done`, `{"a":{"b":2}}`, true),
		Entry("braces inside strings", `{"a":"}{","b":"\"}"}`, `{"a":"}{","b":"\"}"}`, true),
		Entry("unbalanced prefix", `use {braces then {"a":1}`, `{"a":1}`, true),
		Entry("stray brace before object", `} {"a":1}`, `{"a":1}`, true),
		Entry("no object", `nothing here`, ``, false),
		Entry("unterminated", `{"a":1`, ``, false),
	)
})
