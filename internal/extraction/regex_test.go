package extraction

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const workshopReceipt = `AUTO CENTER SILVA
Troca de óleo e filtro
Data: 15/01/2025
Placa: ABC-1D23
KM: 45.000
Subtotal R$ 300,00
TOTAL R$ 350,00`

const fuelReceipt = `POSTO SHELL
GASOLINA COMUM
40,123 L x R$ 5,89
TOTAL R$ 236,32
10/03/2025`

var _ = Describe("RegexExtractor", func() {
	var (
		extractor *RegexExtractor
		params    Params
		text      string
		kind      Kind
		result    ExtractionResult
	)

	BeforeEach(func() {
		params = DefaultParams()
		kind = KindMaintenance
		text = workshopReceipt
	})

	JustBeforeEach(func() {
		extractor = NewRegexExtractor(params, fixedClock{now: testNow})
		result = extractor.Extract(text, kind)
	})

	When("reading a workshop receipt", func() {
		BeforeEach(func() {
			text = workshopReceipt
		})

		It("finds the date", func() {
			Expect(result[FieldDate]).To(Equal(FieldResult{Value: "2025-01-15", Confidence: 0.7}))
		})

		It("prefers the largest labelled total", func() {
			Expect(result[FieldTotalValue]).To(Equal(FieldResult{Value: 350.0, Confidence: 0.7}))
		})

		It("finds the Mercosul plate", func() {
			Expect(result[FieldPlate]).To(Equal(FieldResult{Value: "ABC1D23", Confidence: 0.75}))
		})

		It("finds the labelled odometer reading", func() {
			Expect(result[FieldOdometer]).To(Equal(FieldResult{Value: int64(45000), Confidence: 0.65}))
		})

		It("maps keywords to the maintenance type", func() {
			Expect(result[FieldType]).To(Equal(FieldResult{Value: TypeOilService, Confidence: 0.6}))
		})

		It("leaves fields it cannot find empty", func() {
			for _, f := range []string{FieldWorkshop, FieldServiceList, FieldDescription, FieldNextServiceHint} {
				Expect(result[f]).To(Equal(FieldResult{}), f)
			}
		})

		It("only populates the maintenance schema", func() {
			Expect(result).To(HaveLen(len(KindMaintenance.Fields())))
			Expect(result).NotTo(HaveKey(FieldLiters))
		})

		It("returns the same output for the same text", func() {
			Expect(extractor.Extract(text, kind)).To(Equal(result))
		})
	})

	When("reading a fuel receipt", func() {
		BeforeEach(func() {
			text = fuelReceipt
			kind = KindFuel
		})

		It("finds the fuel fields", func() {
			Expect(result[FieldCategory]).To(Equal(FieldResult{Value: FuelGasoline, Confidence: 0.6}))
			Expect(result[FieldLiters]).To(Equal(FieldResult{Value: 40.123, Confidence: 0.6}))
			Expect(result[FieldTotalValue]).To(Equal(FieldResult{Value: 236.32, Confidence: 0.7}))
			Expect(result[FieldDate]).To(Equal(FieldResult{Value: "2025-03-10", Confidence: 0.7}))
		})

		It("does not populate maintenance fields", func() {
			Expect(result).NotTo(HaveKey(FieldOdometer))
			Expect(result).NotTo(HaveKey(FieldType))
		})
	})

	When("several dates appear", func() {
		BeforeEach(func() {
			text = "Emissão 31/02/2025, válido até 01/01/1949, serviço em 20/02/2025"
		})

		It("uses the first real calendar date inside the year window", func() {
			Expect(result[FieldDate].Value).To(Equal("2025-02-20"))
		})
	})

	When("the only amount is negative", func() {
		BeforeEach(func() {
			text = "Estorno -50,00 em 15/01/2025"
		})

		It("does not report it as a positive total", func() {
			Expect(result[FieldTotalValue]).To(Equal(FieldResult{}))
			Expect(result[FieldDate].Value).To(Equal("2025-01-15"))
		})
	})

	When("a refund follows the total", func() {
		BeforeEach(func() {
			text = "TOTAL R$ 120,00\nDesconto R$ -900,00"
		})

		It("keeps the positive total", func() {
			Expect(result[FieldTotalValue]).To(Equal(FieldResult{Value: 120.0, Confidence: 0.7}))
		})
	})

	When("the plate is separated by a space", func() {
		BeforeEach(func() {
			text = "Placa ABC 1234"
		})

		It("finds the legacy plate", func() {
			Expect(result[FieldPlate]).To(Equal(FieldResult{Value: "ABC1234", Confidence: 0.75}))
		})
	})

	When("a year is too far ahead", func() {
		BeforeEach(func() {
			text = "Garantia até 2027-01-01"
		})

		It("ignores it", func() {
			Expect(result[FieldDate]).To(Equal(FieldResult{}))
		})
	})

	When("amounts are unlabelled", func() {
		BeforeEach(func() {
			text = "Peças R$ 120,00\nMão de obra R$ 80,00"
		})

		It("uses the largest amount at the lower confidence", func() {
			Expect(result[FieldTotalValue]).To(Equal(FieldResult{Value: 120.0, Confidence: 0.6}))
		})
	})

	When("numbers carry neither a prefix nor decimal cents", func() {
		BeforeEach(func() {
			text = "Pedido 350 em 2025"
		})

		It("does not treat them as amounts", func() {
			Expect(result[FieldTotalValue]).To(Equal(FieldResult{}))
		})
	})

	When("the odometer is written as a suffix", func() {
		BeforeEach(func() {
			text = "Revisão realizada com 62.500 km rodados"
		})

		It("parses the reading", func() {
			Expect(result[FieldOdometer].Value).To(Equal(int64(62500)))
			Expect(result[FieldType].Value).To(Equal(TypeInspection))
		})
	})

	When("no keyword matches", func() {
		BeforeEach(func() {
			text = "Serviço diverso R$ 10,00"
		})

		It("defaults to other without confidence", func() {
			Expect(result[FieldType]).To(Equal(FieldResult{Value: TypeOther, Confidence: 0}))
		})
	})

	When("the text is blank", func() {
		BeforeEach(func() {
			text = "   "
		})

		It("returns every field empty", func() {
			for _, f := range KindMaintenance.Fields() {
				Expect(result[f]).To(Equal(FieldResult{}))
			}
		})
	})

	When("configured confidences exceed the regex ceiling", func() {
		BeforeEach(func() {
			text = workshopReceipt
			params.Regex.Plate = 0.95
			params.Regex.Date = 0.9
		})

		It("caps them", func() {
			Expect(result[FieldPlate].Confidence).To(Equal(0.75))
			Expect(result[FieldDate].Confidence).To(Equal(0.75))
		})
	})

	It("never exceeds the regex ceiling", func() {
		for _, f := range result {
			Expect(f.Confidence).To(BeNumerically("<=", 0.75))
		}
	})

	Describe("GuessDocumentType", func() {
		It("recognizes fuel receipts", func() {
			docType, ok := extractor.GuessDocumentType("ABASTECIMENTO\nGasolina aditivada")
			Expect(ok).To(BeTrue())
			Expect(docType).To(Equal(DocumentType{Label: LabelFuelReceipt, Confidence: 0.6}))
		})

		It("recognizes oil change receipts", func() {
			docType, ok := extractor.GuessDocumentType("TROCA DE OLEO")
			Expect(ok).To(BeTrue())
			Expect(docType.Label).To(Equal(LabelOilChangeReceipt))
		})

		It("reports no match", func() {
			docType, ok := extractor.GuessDocumentType("nada aqui")
			Expect(ok).To(BeFalse())
			Expect(docType.Label).To(Equal(LabelOther))
		})
	})
})
