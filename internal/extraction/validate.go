package extraction

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Rule validates and normalizes one raw field value. Rules are total: any
// input, including nil and unexpected types, yields either a normalized
// value and true, or nil and false.
type Rule func(raw any) (any, bool)

const (
	maxTextRunes = 500
	maxAmount    = 10_000_000
	maxLiters    = 2000
	maxOdometer  = 3_000_000
	isoDate      = "2006-01-02"
)

var (
	platePattern     = regexp.MustCompile(`^[A-Z]{3}[0-9][A-Z0-9][0-9]{2}$`)
	thousandsPattern = regexp.MustCompile(`^-?\d{1,3}(\.\d{3})+$`)
	integerPattern   = regexp.MustCompile(`^\d{1,3}([.,\s]\d{3})+$|^\d+$`)
	listSeparators   = regexp.MustCompile(`[,;\n]+`)
)

// dateLayouts are tried in order. Day-first comes before month-first is
// ever considered: Brazilian documents are DD/MM/YYYY.
var dateLayouts = []string{
	isoDate,
	"02/01/2006",
	"02-01-2006",
	"2006/01/02",
	time.RFC3339,
}

// Validators holds the rules that depend on configuration: the date rule
// needs the current time and the earliest accepted year.
type Validators struct {
	clock   TimeSource
	minYear int
}

// NewValidators creates Validators. A nil clock uses the system clock.
func NewValidators(clock TimeSource, minYear int) *Validators {
	if clock == nil {
		clock = systemClock{}
	}
	if minYear <= 0 {
		minYear = DefaultParams().MinYear
	}
	return &Validators{clock: clock, minYear: minYear}
}

// Date accepts YYYY-MM-DD, DD/MM/YYYY, DD-MM-YYYY, YYYY/MM/DD and RFC 3339
// strings. The date must exist on the calendar, fall on or after MinYear and
// not be in the future. It normalizes to YYYY-MM-DD.
func (v *Validators) Date(raw any) (any, bool) {
	s, ok := raw.(string)
	if !ok {
		return nil, false
	}
	t, ok := parseDate(s)
	if !ok || t.Year() < v.minYear {
		return nil, false
	}
	now := v.clock.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if t.After(today) {
		return nil, false
	}
	return t.Format(isoDate), true
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// Currency accepts numbers and BRL-formatted strings ("R$ 1.234,56") and
// normalizes to a positive float64 rounded to cents.
func Currency(raw any) (any, bool) {
	d, ok := parseDecimal(raw)
	if !ok {
		return nil, false
	}
	// Sub-cent amounts round to zero and are rejected with it.
	d = d.Round(2)
	if !d.IsPositive() || d.GreaterThan(decimal.NewFromInt(maxAmount)) {
		return nil, false
	}
	f, _ := d.Float64()
	return f, true
}

// Quantity accepts a positive volume in liters, rounded to three decimals.
func Quantity(raw any) (any, bool) {
	d, ok := parseDecimal(raw)
	if !ok {
		return nil, false
	}
	d = d.Round(3)
	if !d.IsPositive() || d.GreaterThan(decimal.NewFromInt(maxLiters)) {
		return nil, false
	}
	f, _ := d.Float64()
	return f, true
}

// parseDecimal handles float64, json.Number, ints and strings. Strings may
// carry an R$ prefix, '.' thousands separators and a ',' decimal separator.
func parseDecimal(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case json.Number:
		return parseAmountString(string(v))
	case string:
		return parseAmountString(v)
	default:
		return decimal.Zero, false
	}
}

func parseAmountString(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "R$"), "r$")
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == ' ' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.Zero, false
	}

	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		if strings.Count(s, ",") > 1 {
			return decimal.Zero, false
		}
		s = strings.Replace(s, ",", ".", 1)
	case thousandsPattern.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Integer accepts a non-negative whole number of kilometers. Strings may use
// '.', ',' or spaces as thousands separators and may carry a "km" suffix.
func Integer(raw any) (any, bool) {
	var n int64
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || math.Abs(v) > maxOdometer {
			return nil, false
		}
		n = int64(v)
	case int:
		n = int64(v)
	case int64:
		n = v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			n = i
		} else if f, err := v.Float64(); err == nil {
			return Integer(f)
		} else {
			return nil, false
		}
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(v)), "km"))
		if !integerPattern.MatchString(s) {
			return nil, false
		}
		s = strings.NewReplacer(".", "", ",", "", " ", "").Replace(s)
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, false
		}
		n = i
	default:
		return nil, false
	}
	if n < 0 || n > maxOdometer {
		return nil, false
	}
	return n, true
}

// Plate accepts legacy (AAA9999) and Mercosul (AAA9A99) plates and
// normalizes to uppercase without separators.
func Plate(raw any) (any, bool) {
	s, ok := raw.(string)
	if !ok {
		return nil, false
	}
	p := normalizePlate(s)
	if !platePattern.MatchString(p) {
		return nil, false
	}
	return p, true
}

func normalizePlate(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", " ", "", ".", "").Replace(s)
}

// Text trims and collapses whitespace and truncates to a sane length.
func Text(raw any) (any, bool) {
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case json.Number:
		s = string(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return nil, false
	}
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return nil, false
	}
	if utf8.RuneCountInString(s) > maxTextRunes {
		s = strings.TrimSpace(string([]rune(s)[:maxTextRunes]))
	}
	return s, true
}

// StringList accepts an array of strings, or a single string separated by
// commas, semicolons or newlines. Empty items are dropped; an empty list is
// rejected.
func StringList(raw any) (any, bool) {
	var items []string
	switch v := raw.(type) {
	case []string:
		items = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				items = append(items, s)
			}
		}
	case string:
		items = listSeparators.Split(v, -1)
	default:
		return nil, false
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := Text(item); ok {
			out = append(out, s.(string))
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// Enum accepts a member of labels, compared without regard to case,
// accents or the choice of '_', '-' or ' ' between words. It normalizes to
// the canonical label.
func Enum(labels []string) Rule {
	canonical := make(map[string]string, len(labels))
	for _, l := range labels {
		canonical[labelKey(l)] = l
	}
	return func(raw any) (any, bool) {
		s, ok := raw.(string)
		if !ok {
			return nil, false
		}
		label, ok := canonical[labelKey(s)]
		if !ok {
			return nil, false
		}
		return label, true
	}
}

func documentLabelStrings() []string {
	out := make([]string, len(DocumentLabels))
	for i, l := range DocumentLabels {
		out[i] = string(l)
	}
	return out
}

// Rules returns the validation rule for every field of the kind's schema
// plus FieldDocumentType.
func (v *Validators) Rules(kind Kind) map[string]Rule {
	all := map[string]Rule{
		FieldType:            Enum(MaintenanceTypes),
		FieldDate:            v.Date,
		FieldDescription:     Text,
		FieldTotalValue:      Currency,
		FieldWorkshop:        Text,
		FieldOdometer:        Integer,
		FieldServiceList:     StringList,
		FieldNextServiceHint: Text,
		FieldPlate:           Plate,
		FieldCategory:        Enum(FuelCategories),
		FieldLiters:          Quantity,
	}

	rules := make(map[string]Rule, len(all)+1)
	for _, f := range kind.Fields() {
		rules[f] = all[f]
	}
	rules[FieldDocumentType] = Enum(documentLabelStrings())
	return rules
}
