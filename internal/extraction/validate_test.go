package extraction

import (
	"encoding/json"
	"math"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Validators", func() {
	var validators *Validators

	BeforeEach(func() {
		validators = NewValidators(fixedClock{now: testNow}, 1950)
	})

	Describe("Date", func() {
		DescribeTable("valid dates",
			func(raw any, expected string) {
				v, ok := validators.Date(raw)
				Expect(ok).To(BeTrue())
				Expect(v).To(Equal(expected))
			},
			Entry("ISO", "2025-01-15", "2025-01-15"),
			Entry("day first with slashes", "15/01/2025", "2025-01-15"),
			Entry("day first with dashes", "15-01-2025", "2025-01-15"),
			Entry("year first with slashes", "2025/01/15", "2025-01-15"),
			Entry("RFC 3339", "2025-01-15T10:30:00Z", "2025-01-15"),
			Entry("surrounding whitespace", "  2025-01-15 ", "2025-01-15"),
			Entry("today", "2025-06-01", "2025-06-01"),
		)

		DescribeTable("rejected dates",
			func(raw any) {
				v, ok := validators.Date(raw)
				Expect(ok).To(BeFalse())
				Expect(v).To(BeNil())
			},
			Entry("impossible calendar date", "31/02/2025"),
			Entry("month out of range", "2025-13-01"),
			Entry("future date", "2025-06-02"),
			Entry("before the minimum year", "1949-12-31"),
			Entry("free text", "yesterday"),
			Entry("number", 20250115.0),
			Entry("nil", nil),
		)
	})

	Describe("Currency", func() {
		DescribeTable("valid amounts",
			func(raw any, expected float64) {
				v, ok := Currency(raw)
				Expect(ok).To(BeTrue())
				Expect(v).To(Equal(expected))
			},
			Entry("BRL with thousands", "R$ 1.234,56", 1234.56),
			Entry("BRL without prefix", "350,00", 350.0),
			Entry("prefix without space", "R$350", 350.0),
			Entry("dot thousands only", "1.234", 1234.0),
			Entry("dot decimal", "49.90", 49.9),
			Entry("float", 350.0, 350.0),
			Entry("float rounded to cents", 10.005, 10.01),
			Entry("json number", json.Number("89.9"), 89.9),
			Entry("int", 42, 42.0),
		)

		DescribeTable("rejected amounts",
			func(raw any) {
				v, ok := Currency(raw)
				Expect(ok).To(BeFalse())
				Expect(v).To(BeNil())
			},
			Entry("negative", "-50,00"),
			Entry("zero", 0.0),
			Entry("below one cent", 0.004),
			Entry("below one cent as text", "0,004"),
			Entry("NaN", math.NaN()),
			Entry("infinite", math.Inf(1)),
			Entry("text", "cinquenta reais"),
			Entry("two decimal commas", "1,234,56"),
			Entry("empty", ""),
			Entry("bool", true),
		)
	})

	Describe("Quantity", func() {
		It("accepts decimal comma liters", func() {
			v, ok := Quantity("40,5")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(40.5))
		})

		It("rounds to three decimals", func() {
			v, ok := Quantity(40.12345)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(40.123))
		})

		It("rejects implausible volumes", func() {
			_, ok := Quantity(2500.0)
			Expect(ok).To(BeFalse())
		})

		It("rejects non-positive volumes", func() {
			_, ok := Quantity("0")
			Expect(ok).To(BeFalse())
		})

		It("rejects volumes that round to zero", func() {
			v, ok := Quantity("0,0001")
			Expect(ok).To(BeFalse())
			Expect(v).To(BeNil())
		})
	})

	Describe("Integer", func() {
		DescribeTable("valid readings",
			func(raw any, expected int64) {
				v, ok := Integer(raw)
				Expect(ok).To(BeTrue())
				Expect(v).To(Equal(expected))
			},
			Entry("thousands separator", "45.000", int64(45000)),
			Entry("km suffix", "45.000 km", int64(45000)),
			Entry("plain digits", "123456", int64(123456)),
			Entry("whole float", 45000.0, int64(45000)),
			Entry("json number", json.Number("98765"), int64(98765)),
			Entry("zero", 0, int64(0)),
		)

		DescribeTable("rejected readings",
			func(raw any) {
				_, ok := Integer(raw)
				Expect(ok).To(BeFalse())
			},
			Entry("negative", -1.0),
			Entry("fractional", 12.5),
			Entry("too large", 5_000_000.0),
			Entry("malformed grouping", "45.00"),
			Entry("text", "quarenta mil"),
			Entry("nil", nil),
		)
	})

	Describe("Plate", func() {
		DescribeTable("plates",
			func(raw any, expected string, valid bool) {
				v, ok := Plate(raw)
				Expect(ok).To(Equal(valid))
				if valid {
					Expect(v).To(Equal(expected))
				} else {
					Expect(v).To(BeNil())
				}
			},
			Entry("legacy lowercase", "abc1234", "ABC1234", true),
			Entry("Mercosul lowercase", "abc1d23", "ABC1D23", true),
			Entry("legacy with dash", "ABC-1234", "ABC1234", true),
			Entry("malformed", "ab12cd", "", false),
			Entry("too long", "ABCD1234", "", false),
			Entry("number", 1234.0, "", false),
		)
	})

	Describe("Text", func() {
		It("collapses whitespace", func() {
			v, ok := Text("  Auto   Center\nSilva ")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal("Auto Center Silva"))
		})

		It("rejects blank strings", func() {
			_, ok := Text("   ")
			Expect(ok).To(BeFalse())
		})

		It("truncates long values", func() {
			v, ok := Text(strings.Repeat("á", 600))
			Expect(ok).To(BeTrue())
			Expect([]rune(v.(string))).To(HaveLen(500))
		})
	})

	Describe("StringList", func() {
		It("keeps string items of an array", func() {
			v, ok := StringList([]any{"troca de óleo", " filtro ", 3.0, ""})
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal([]string{"troca de óleo", "filtro"}))
		})

		It("splits a delimited string", func() {
			v, ok := StringList("óleo; filtro de ar\nalinhamento")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal([]string{"óleo", "filtro de ar", "alinhamento"}))
		})

		It("rejects empty lists", func() {
			_, ok := StringList([]any{})
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Enum", func() {
		rule := Enum(MaintenanceTypes)

		It("matches ignoring case and separators", func() {
			v, ok := rule("Oil_Service")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(TypeOilService))

			v, ok = rule("OIL-SERVICE")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(TypeOilService))
		})

		It("rejects labels outside the set", func() {
			v, ok := rule("paint")
			Expect(ok).To(BeFalse())
			Expect(v).To(BeNil())
		})
	})

	Describe("Rules", func() {
		It("covers every maintenance field and the document type", func() {
			rules := validators.Rules(KindMaintenance)
			for _, f := range KindMaintenance.Fields() {
				Expect(rules).To(HaveKey(f))
				Expect(rules[f]).NotTo(BeNil())
			}
			Expect(rules).To(HaveKey(FieldDocumentType))
			Expect(rules).NotTo(HaveKey(FieldLiters))
		})

		It("covers every fuel field", func() {
			rules := validators.Rules(KindFuel)
			for _, f := range KindFuel.Fields() {
				Expect(rules[f]).NotTo(BeNil())
			}
			Expect(rules).NotTo(HaveKey(FieldWorkshop))
		})

		It("is idempotent for every accepted value", func() {
			inputs := map[string][]any{
				FieldDate:        {"15/01/2025", "2025-01-15T08:00:00Z"},
				FieldTotalValue:  {"R$ 1.234,56", 10.005, json.Number("7"), 0.005},
				FieldLiters:      {"40,123", 12.5, 0.0005},
				FieldOdometer:    {"45.000 km", 1200.0},
				FieldPlate:       {"abc-1d23"},
				FieldType:        {"Oil Service"},
				FieldDescription: {"  troca   de óleo "},
				FieldServiceList: {"óleo, filtro"},
				FieldCategory:    {"DIESEL"},
			}
			rules := validators.Rules(KindMaintenance)
			for k, v := range validators.Rules(KindFuel) {
				rules[k] = v
			}

			for field, values := range inputs {
				for _, raw := range values {
					once, ok := rules[field](raw)
					Expect(ok).To(BeTrue(), "%s %v", field, raw)
					twice, ok := rules[field](once)
					Expect(ok).To(BeTrue(), "%s %v", field, raw)
					Expect(twice).To(Equal(once), "%s %v", field, raw)
				}
			}
		})
	})
})
