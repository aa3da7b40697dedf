package extraction

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	dateRe = regexp.MustCompile(`\b(?:(\d{1,2})[/-](\d{1,2})[/-](\d{4})|(\d{4})[/-](\d{1,2})[/-](\d{1,2}))\b`)

	// amountRe matches "1.234,56", "350,00" and, after an R$ prefix, plain
	// integers or dot-decimal amounts. Bare numbers without a decimal comma
	// or a prefix are dates, quantities or codes and are discarded later. A
	// minus sign before or after the prefix is captured so refunds and
	// discounts are rejected instead of read as positive.
	amountRe = regexp.MustCompile(`(?i)(-)?(R\$\s*)?(-)?(\d{1,3}(?:\.\d{3})+(?:,\d{1,2})?|\d+,\d{2}|\d+(?:\.\d{2})?)\b`)

	plateRe = regexp.MustCompile(`(?i)\b([a-z]{3})[ \t-]?(\d[a-z0-9]\d{2})\b`)

	// Odometer and liters patterns run over folded text.
	odometerLabelRe  = regexp.MustCompile(`\b(?:km|quilometragem|kilometragem|hodometro|odometro)\b[\s:.]*(\d{1,3}(?:[.,\s]\d{3})+|\d+)\b`)
	odometerSuffixRe = regexp.MustCompile(`\b(\d{1,3}(?:\.\d{3})+|\d{3,7})\s*km\b`)
	litersRe         = regexp.MustCompile(`\b(\d+(?:[.,]\d{1,3})?)\s*(?:l|lt|lts|litros?)\b`)
)

const totalLabelWindow = 30

var totalLabels = []string{"total", "a pagar"}

// RegexExtractor finds field candidates in recognized text with patterns and
// keyword tables. It makes no network calls and keeps no state between
// calls.
type RegexExtractor struct {
	params Params
	clock  TimeSource
}

// NewRegexExtractor creates a RegexExtractor. A nil clock uses the system
// clock.
func NewRegexExtractor(params Params, clock TimeSource) *RegexExtractor {
	if clock == nil {
		clock = systemClock{}
	}
	return &RegexExtractor{params: params.normalize(), clock: clock}
}

// Extract returns a raw candidate for the kind's schema. Every detector runs
// independently; fields nothing matched are (nil, 0).
func (r *RegexExtractor) Extract(text string, kind Kind) ExtractionResult {
	fields := kind.Fields()
	res := newResult(fields)
	if strings.TrimSpace(text) == "" {
		return res
	}

	folded := fold(text)
	c := r.params.Regex
	set := func(field string, value any, conf float64) {
		if !slices.Contains(fields, field) || value == nil {
			return
		}
		res[field] = FieldResult{Value: value, Confidence: min(conf, r.params.RegexCeiling)}
	}

	if d, ok := r.findDate(text); ok {
		set(FieldDate, d, c.Date)
	}
	if amount, labelled, ok := findAmount(text); ok {
		conf := c.Currency
		if labelled {
			conf = c.LabelledCurrency
		}
		set(FieldTotalValue, amount, conf)
	}
	if p, ok := findPlate(text); ok {
		set(FieldPlate, p, c.Plate)
	}
	if km, ok := findOdometer(folded); ok {
		set(FieldOdometer, km, c.Odometer)
	}
	if l, ok := findLiters(folded); ok {
		set(FieldLiters, l, c.Liters)
	}

	switch kind {
	case KindFuel:
		if label, ok := matchKeywords(FuelKeywords, text); ok {
			set(FieldCategory, label, c.Keyword)
		} else {
			set(FieldCategory, FuelOther, 0)
		}
	default:
		if label, ok := matchKeywords(MaintenanceKeywords, text); ok {
			set(FieldType, label, c.Keyword)
		} else {
			set(FieldType, TypeOther, 0)
		}
	}

	return res
}

// GuessDocumentType maps text to a document label by keyword. It reports
// false when no keyword matched.
func (r *RegexExtractor) GuessDocumentType(text string) (DocumentType, bool) {
	label, ok := matchKeywords(DocumentKeywords, text)
	if !ok {
		return DocumentType{Label: LabelOther}, false
	}
	return DocumentType{Label: DocumentLabel(label), Confidence: min(r.params.Regex.Keyword, r.params.RegexCeiling)}, true
}

// findDate returns the first match that is a real calendar date with a year
// inside [MinYear, current year + 1].
func (r *RegexExtractor) findDate(text string) (string, bool) {
	maxYear := r.clock.Now().Year() + 1
	for _, m := range dateRe.FindAllStringSubmatch(text, -1) {
		var y, mo, d string
		if m[3] != "" {
			d, mo, y = m[1], m[2], m[3]
		} else {
			y, mo, d = m[4], m[5], m[6]
		}
		year, _ := strconv.Atoi(y)
		month, _ := strconv.Atoi(mo)
		day, _ := strconv.Atoi(d)
		if year < r.params.MinYear || year > maxYear {
			continue
		}
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if t.Year() != year || int(t.Month()) != month || t.Day() != day {
			continue
		}
		return t.Format(isoDate), true
	}
	return "", false
}

// findAmount prefers amounts labelled as a total; among equals the largest
// wins.
func findAmount(text string) (float64, bool, bool) {
	var best, bestLabelled float64
	var found, foundLabelled bool

	for _, idx := range amountRe.FindAllStringSubmatchIndex(text, -1) {
		negative := idx[2] >= 0 || idx[6] >= 0
		prefixed := idx[4] >= 0
		num := text[idx[8]:idx[9]]
		if !prefixed && !strings.Contains(num, ",") {
			continue
		}
		if negative {
			num = "-" + num
		}
		v, ok := Currency(num)
		if !ok {
			continue
		}
		amount := v.(float64)

		if totalLabelled(text, idx[0]) {
			if !foundLabelled || amount > bestLabelled {
				bestLabelled, foundLabelled = amount, true
			}
		}
		if !found || amount > best {
			best, found = amount, true
		}
	}

	if foundLabelled {
		return bestLabelled, true, true
	}
	return best, false, found
}

// totalLabelled reports whether a total label appears shortly before pos on
// the same line.
func totalLabelled(text string, pos int) bool {
	start := max(0, pos-totalLabelWindow)
	window := text[start:pos]
	if i := strings.LastIndexByte(window, '\n'); i >= 0 {
		window = window[i+1:]
	}
	window = fold(window)
	for _, l := range totalLabels {
		if strings.Contains(window, l) {
			return true
		}
	}
	return false
}

func findPlate(text string) (string, bool) {
	for _, m := range plateRe.FindAllStringSubmatch(text, -1) {
		if p, ok := Plate(m[1] + m[2]); ok {
			return p.(string), true
		}
	}
	return "", false
}

// findOdometer prefers a labelled reading ("km: 45.000") over a bare
// "45.000 km".
func findOdometer(folded string) (int64, bool) {
	for _, re := range []*regexp.Regexp{odometerLabelRe, odometerSuffixRe} {
		for _, m := range re.FindAllStringSubmatch(folded, -1) {
			if v, ok := Integer(m[1]); ok {
				return v.(int64), true
			}
		}
	}
	return 0, false
}

func findLiters(folded string) (float64, bool) {
	for _, m := range litersRe.FindAllStringSubmatch(folded, -1) {
		s := m[1]
		// A lone dot is a decimal separator here; pumps print "40.123 L".
		if !strings.Contains(s, ",") {
			s = strings.Replace(s, ".", ",", 1)
		}
		if v, ok := Quantity(s); ok {
			return v.(float64), true
		}
	}
	return 0, false
}
