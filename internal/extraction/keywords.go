package extraction

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold lowercases s and strips diacritics so "Troca de Óleo" matches
// "troca de oleo". OCR output drops accents often enough that every keyword
// and label comparison goes through here.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// labelKey reduces a label to a comparable form: folded, with '_' and '-'
// treated as spaces and runs of whitespace collapsed.
func labelKey(s string) string {
	s = fold(s)
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// KeywordRule pairs a predicate over folded text with the label it assigns.
type KeywordRule struct {
	Label string
	Match func(folded string) bool
}

// containsAny matches when any keyword is a substring of the folded text.
func containsAny(keywords ...string) func(string) bool {
	folded := make([]string, len(keywords))
	for i, k := range keywords {
		folded[i] = fold(k)
	}
	return func(text string) bool {
		for _, k := range folded {
			if strings.Contains(text, k) {
				return true
			}
		}
		return false
	}
}

// matchKeywords evaluates rules in order; the first match wins.
func matchKeywords(rules []KeywordRule, text string) (string, bool) {
	folded := fold(text)
	for _, r := range rules {
		if r.Match(folded) {
			return r.Label, true
		}
	}
	return "", false
}

// MaintenanceKeywords maps maintenance receipts to a maintenance type.
var MaintenanceKeywords = []KeywordRule{
	{TypeOilService, containsAny("troca de óleo", "óleo", "lubrificante", "filtro de óleo")},
	{TypeTires, containsAny("pneu", "alinhamento", "balanceamento", "calibragem")},
	{TypeElectrical, containsAny("bateria", "alternador", "motor de arranque", "elétrica")},
	{TypeBrakes, containsAny("freio", "pastilha")},
	{TypeSuspension, containsAny("amortecedor", "suspensão", "bandeja", "pivô")},
	{TypeCooling, containsAny("radiador", "arrefecimento", "bomba d'água", "ventoinha")},
	{TypeInspection, containsAny("revisão", "inspeção", "vistoria")},
}

// FuelKeywords maps fuel receipts to a fuel category.
var FuelKeywords = []KeywordRule{
	{FuelDiesel, containsAny("diesel", "s10", "s500")},
	{FuelCNG, containsAny("gnv", "gás natural")},
	{FuelEthanol, containsAny("etanol", "álcool")},
	{FuelGasoline, containsAny("gasolina")},
}

// DocumentKeywords guesses the document type from recognized text when no
// classification is available.
var DocumentKeywords = []KeywordRule{
	{string(LabelOilChangeReceipt), containsAny("troca de óleo")},
	{string(LabelFuelReceipt), containsAny("combustível", "abastecimento", "gasolina", "etanol", "diesel", "litros")},
	{string(LabelQuote), containsAny("orçamento")},
	{string(LabelServiceOrder), containsAny("ordem de serviço", "o.s.")},
	{string(LabelSimpleReceipt), containsAny("recibo", "cupom")},
}
