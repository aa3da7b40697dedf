// Package extraction turns a photographed fuel or maintenance receipt into a
// set of pre-fill candidates. Each candidate field carries a confidence score
// the caller compares against its own threshold before auto-filling a form.
//
// The flow is classify → structured extraction → (regex fallback) → normalize.
// Nothing in this package returns an error to the caller: the worst outcome
// is a result in which every field is null with zero confidence.
package extraction

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Kind selects the field schema used for a document.
type Kind string

const (
	KindMaintenance Kind = "maintenance"
	KindFuel        Kind = "fuel"
)

// ParseKind converts user input into a Kind. Empty input selects maintenance.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindMaintenance:
		return KindMaintenance, nil
	case KindFuel:
		return KindFuel, nil
	default:
		return "", fmt.Errorf("unknown document kind %q", s)
	}
}

// Field names shared by both schemas.
const (
	FieldType            = "type"
	FieldDate            = "date"
	FieldDescription     = "description"
	FieldTotalValue      = "total_value"
	FieldWorkshop        = "workshop"
	FieldOdometer        = "odometer"
	FieldServiceList     = "service_list"
	FieldNextServiceHint = "next_service_hint"
	FieldPlate           = "plate"
	FieldCategory        = "category"
	FieldLiters          = "liters"

	// FieldDocumentType is reserved for the classification result.
	FieldDocumentType = "document_type"
)

var maintenanceFields = []string{
	FieldType,
	FieldDate,
	FieldDescription,
	FieldTotalValue,
	FieldWorkshop,
	FieldOdometer,
	FieldServiceList,
	FieldNextServiceHint,
	FieldPlate,
}

var fuelFields = []string{
	FieldDate,
	FieldTotalValue,
	FieldPlate,
	FieldCategory,
	FieldLiters,
}

// Fields returns the schema keys for the kind, excluding FieldDocumentType.
func (k Kind) Fields() []string {
	if k == KindFuel {
		return slices.Clone(fuelFields)
	}
	return slices.Clone(maintenanceFields)
}

// fieldDescriptions is what the vision model is told about each field.
var fieldDescriptions = map[string]string{
	FieldType:            "kind of maintenance performed, one of: " + strings.Join(MaintenanceTypes, ", "),
	FieldDate:            "date the service was performed or the receipt was issued, formatted YYYY-MM-DD",
	FieldDescription:     "short free-text summary of the work done",
	FieldTotalValue:      "final amount paid in BRL as a number with a dot decimal separator (e.g. 1234.56)",
	FieldWorkshop:        "name of the workshop, garage or fuel station that issued the document",
	FieldOdometer:        "vehicle odometer reading in kilometers as an integer",
	FieldServiceList:     "array of strings, one per service or part listed on the document",
	FieldNextServiceHint: "any recommendation for the next service (date or kilometers), as written",
	FieldPlate:           "Brazilian license plate, formats AAA9999 or AAA9A99",
	FieldCategory:        "fuel type, one of: " + strings.Join(FuelCategories, ", "),
	FieldLiters:          "volume of fuel in liters as a number",
}

// DocumentLabel is a document type recognized by the classifier.
type DocumentLabel string

const (
	LabelQuote            DocumentLabel = "quote"
	LabelServiceOrder     DocumentLabel = "service_order"
	LabelSimpleReceipt    DocumentLabel = "simple_receipt"
	LabelOilChangeReceipt DocumentLabel = "oil_change_receipt"
	LabelFuelReceipt      DocumentLabel = "fuel_receipt"
	LabelOther            DocumentLabel = "other"
)

// DocumentLabels is the closed label set offered to the classifier.
var DocumentLabels = []DocumentLabel{
	LabelQuote,
	LabelServiceOrder,
	LabelSimpleReceipt,
	LabelOilChangeReceipt,
	LabelFuelReceipt,
	LabelOther,
}

// Maintenance type labels used by the maintenance schema's type field.
const (
	TypeOilService = "oil service"
	TypeTires      = "tires"
	TypeElectrical = "electrical"
	TypeBrakes     = "brakes"
	TypeSuspension = "suspension"
	TypeCooling    = "cooling"
	TypeInspection = "inspection"
	TypeOther      = "other"
)

var MaintenanceTypes = []string{
	TypeOilService,
	TypeTires,
	TypeElectrical,
	TypeBrakes,
	TypeSuspension,
	TypeCooling,
	TypeInspection,
	TypeOther,
}

// Fuel category labels used by the fuel schema's category field.
const (
	FuelGasoline = "gasoline"
	FuelEthanol  = "ethanol"
	FuelDiesel   = "diesel"
	FuelCNG      = "cng"
	FuelOther    = "other"
)

var FuelCategories = []string{
	FuelGasoline,
	FuelEthanol,
	FuelDiesel,
	FuelCNG,
	FuelOther,
}

// DocumentType is the outcome of one classification call.
type DocumentType struct {
	Label      DocumentLabel `json:"label"`
	Confidence float64       `json:"confidence"`
}

// FieldResult is a single extracted value. A zero confidence means the field
// was not extracted, whatever Value holds.
type FieldResult struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Extracted reports whether the caller may use the value.
func (f FieldResult) Extracted() bool {
	return f.Value != nil && f.Confidence > 0
}

// ExtractionResult maps field names to their results. Results are built once
// and handed to the caller; stages construct new maps instead of patching.
type ExtractionResult map[string]FieldResult

// newResult returns a result with every field set to (nil, 0).
func newResult(fields []string) ExtractionResult {
	res := make(ExtractionResult, len(fields)+1)
	for _, f := range fields {
		res[f] = FieldResult{}
	}
	return res
}

// Extracted returns the names of the fields the caller may use, sorted.
func (r ExtractionResult) Extracted() []string {
	names := make([]string, 0, len(r))
	for name, f := range r {
		if f.Extracted() {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// MarshalJSON writes fields in sorted order so responses are stable.
func (r ExtractionResult) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		field, err := json.Marshal(r[k])
		if err != nil {
			return nil, fmt.Errorf("marshaling field %s: %w", k, err)
		}
		b.Write(name)
		b.WriteByte(':')
		b.Write(field)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// Source records which extractor produced the candidate values.
type Source string

const (
	SourceStructured Source = "structured"
	SourceFallback   Source = "fallback"
	SourceEmpty      Source = "empty"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}
