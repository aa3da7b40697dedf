package extraction

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Classifier", func() {
	var (
		vision     *mockVision
		classifier *Classifier
		result     DocumentType
	)

	BeforeEach(func() {
		vision = &mockVision{}
	})

	JustBeforeEach(func() {
		classifier = NewClassifier(vision, DefaultParams())
		result = classifier.Classify(context.Background(), []byte("image"), "image/png")
	})

	It("offers the closed label set in the prompt", func() {
		Expect(vision.prompts).To(HaveLen(1))
		for _, l := range DocumentLabels {
			Expect(vision.prompts[0]).To(ContainSubstring(`"` + string(l) + `"`))
		}
	})

	When("the model answers with a known label", func() {
		BeforeEach(func() {
			vision.classifyResponse = `{"label": "fuel_receipt", "confidence": 0.92}`
		})

		It("returns the label and confidence", func() {
			Expect(result).To(Equal(DocumentType{Label: LabelFuelReceipt, Confidence: 0.92}))
		})
	})

	When("the JSON is wrapped in prose", func() {
		BeforeEach(func() {
			vision.classifyResponse = "Sure! Here is the result:\n```json\n{\"label\": \"quote\", \"confidence\": 0.8}\n```"
		})

		It("finds the object", func() {
			Expect(result).To(Equal(DocumentType{Label: LabelQuote, Confidence: 0.8}))
		})
	})

	When("the label is spelled loosely", func() {
		BeforeEach(func() {
			vision.classifyResponse = `{"label": "Oil Change Receipt", "confidence": 0.6}`
		})

		It("maps it onto the enum", func() {
			Expect(result).To(Equal(DocumentType{Label: LabelOilChangeReceipt, Confidence: 0.6}))
		})
	})

	When("the confidence is missing", func() {
		BeforeEach(func() {
			vision.classifyResponse = `{"label": "service_order"}`
		})

		It("uses the bare value confidence", func() {
			Expect(result).To(Equal(DocumentType{Label: LabelServiceOrder, Confidence: 0.7}))
		})
	})

	When("the label is outside the enum", func() {
		BeforeEach(func() {
			vision.classifyResponse = `{"label": "invoice", "confidence": 0.95}`
		})

		It("falls back to other with a capped confidence", func() {
			Expect(result).To(Equal(DocumentType{Label: LabelOther, Confidence: 0.5}))
		})
	})

	When("the label is outside the enum with low confidence", func() {
		BeforeEach(func() {
			vision.classifyResponse = `{"label": "invoice", "confidence": 0.2}`
		})

		It("keeps the lower confidence", func() {
			Expect(result).To(Equal(DocumentType{Label: LabelOther, Confidence: 0.2}))
		})
	})

	DescribeTable("responses that fall back to other with zero confidence",
		func(response string, err error) {
			vision.classifyResponse = response
			vision.classifyErr = err
			Expect(classifier.Classify(context.Background(), []byte("image"), "image/png")).
				To(Equal(DocumentType{Label: LabelOther}))
		},
		Entry("transport error", "", errors.New("connection refused")),
		Entry("no JSON", "I cannot read this image", nil),
		Entry("truncated JSON", `{"label": "quote"`, nil),
		Entry("label of the wrong type", `{"label": 5}`, nil),
		Entry("confidence out of range", `{"label": "quote", "confidence": 2}`, nil),
		Entry("missing label", `{"confidence": 0.9}`, nil),
	)
})
