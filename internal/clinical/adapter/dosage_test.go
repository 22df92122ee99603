package adapter

import (
	"encoding/json"
	"testing"

	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

func TestHumanizeDosage(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{
			name: "structured oral twice daily",
			data: `[{"route": {"coding": [{"system": "http://snomed.info/sct", "code": "26643006", "display": "Oral route"}]},
				"timing": {"repeat": {"frequency": 2, "period": 1, "periodUnit": "d"}},
				"doseAndRate": [{"doseQuantity": {"value": 500, "unit": "mg"}}]}]`,
			want: "500 mg by mouth twice daily",
		},
		{
			name: "synthea unitless dose",
			data: `[{"sequence": 1, "asNeededBoolean": false,
				"timing": {"repeat": {"frequency": 1, "period": 1.0, "periodUnit": "d"}},
				"doseAndRate": [{"doseQuantity": {"value": 1.0}}]}]`,
			want: "1 dose once daily",
		},
		{
			name: "every n hours as needed",
			data: `[{"asNeededBoolean": true,
				"timing": {"repeat": {"frequency": 1, "period": 6, "periodUnit": "h"}},
				"doseAndRate": [{"doseQuantity": {"value": 2, "unit": "puff"}}]}]`,
			want: "2 puff every 6 hours as needed",
		},
		{
			name: "24 hour period",
			data: `[{"timing": {"repeat": {"frequency": 3, "period": 24, "periodUnit": "h"}}}]`,
			want: "three times daily",
		},
		{
			name: "weekly",
			data: `[{"timing": {"repeat": {"frequency": 1, "period": 1, "periodUnit": "wk"}}, "doseAndRate": [{"doseQuantity": {"value": 2.5, "unit": "mg"}}]}]`,
			want: "2.5 mg once weekly",
		},
		{
			name: "generic period",
			data: `[{"timing": {"repeat": {"frequency": 2, "period": 3, "periodUnit": "d"}}}]`,
			want: "twice every 3 days",
		},
		{
			name: "timing code",
			data: `[{"timing": {"code": {"coding": [{"system": "http://terminology.hl7.org/CodeSystem/v3-GTSAbbreviation", "code": "BID"}]}},
				"doseAndRate": [{"doseQuantity": {"value": 10, "unit": "mg"}}]}]`,
			want: "10 mg twice daily",
		},
		{
			name: "unknown route",
			data: `[{"route": {"text": "G-tube"}, "doseAndRate": [{"doseQuantity": {"value": 5, "unit": "mL"}}]}]`,
			want: "5 mL via g-tube",
		},
		{
			name: "free text fallback",
			data: `[{"text": "Apply thin layer\n to affected area", "asNeededBoolean": true}]`,
			want: "Apply thin layer to affected area",
		},
		{
			name: "patient instruction fallback",
			data: `[{"patientInstruction": "Use as directed"}]`,
			want: "Use as directed",
		},
		{
			name: "as needed only",
			data: `[{"asNeededCodeableConcept": {"text": "Pain"}}]`,
			want: "as needed for pain",
		},
		{
			name: "nothing",
			data: `[{"sequence": 1}]`,
			want: DosageNotSpecified,
		},
		{
			name: "absent",
			data: `[]`,
			want: DosageNotSpecified,
		},
		{
			name: "several instructions",
			data: `[{"text": "1 tablet in the morning"}, {"text": "2 tablets at night"}]`,
			want: "1 tablet in the morning / 2 tablets at night",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dosages []r4.Dosage
			if err := json.Unmarshal([]byte(tt.data), &dosages); err != nil {
				t.Fatalf("bad test data: %v", err)
			}
			if got := HumanizeDosage(dosages); got != tt.want {
				t.Errorf("HumanizeDosage() = %q, want %q", got, tt.want)
			}
		})
	}
}
