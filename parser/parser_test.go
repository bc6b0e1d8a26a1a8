package parser

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/aluiziolira/go-scrape-parts/models"
)

func approx(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{in: "10 µF", want: 1e-5},
		{in: "10 μF", want: 1e-5},
		{in: "10 uF", want: 1e-5},
		{in: "4.7nF", want: 4.7e-9},
		{in: "100 pF", want: 1e-10},
		{in: "25 mm", want: 0.025},
		{in: "1 m", want: 1},
		{in: "50 V", want: 50},
		{in: "1.5 kV", want: 1500},
		{in: "100 kHz", want: 1e5},
		{in: "2 MHz", want: 2e6},
		{in: "30 mΩ", want: 0.03},
		{in: "30 mOhm", want: 0.03},
		{in: "500 mg", want: 0.5},
		{in: "-55°C", want: -55},
		{in: "200 ppm", want: 200},
		{in: "1,000 h", want: 1000},
		{in: "3 daN", want: 3},
		{in: "42", want: 42},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ToBaseUnits(tt.in)
			if err != nil {
				t.Fatalf("ToBaseUnits(%q): %v", tt.in, err)
			}
			if !approx(got, tt.want) {
				t.Fatalf("ToBaseUnits(%q) = %g, want %g", tt.in, got, tt.want)
			}
		})
	}
}

func TestToBaseUnitsWithoutNumber(t *testing.T) {
	if _, err := ToBaseUnits("Surface Mount"); !errors.Is(err, ErrNoNumber) {
		t.Fatalf("expected ErrNoNumber, got %v", err)
	}
}

func TestParseNumberAndInt(t *testing.T) {
	if got, err := ParseNumber("4.7 µF"); err != nil || got != 4.7 {
		t.Fatalf("ParseNumber = %g, %v", got, err)
	}
	if got, err := ParseInt("16 Pins"); err != nil || got != 16 {
		t.Fatalf("ParseInt = %d, %v", got, err)
	}
	if got, err := ParseInt("2,000 Hours"); err != nil || got != 2000 {
		t.Fatalf("ParseInt thousands = %d, %v", got, err)
	}
	if _, err := ParseInt("1.5 mm"); err == nil {
		t.Fatalf("fractional value should not parse as int")
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in        string
		low, high float64
	}{
		{in: "100 kHz ~ 1 MHz", low: 1e5, high: 1e6},
		{in: "100 ~ 200 kHz", low: 1e5, high: 2e5},
		{in: "120 Hz", low: 120, high: 120},
	}
	for _, tt := range tests {
		low, high, err := ParseRange(tt.in)
		if err != nil {
			t.Fatalf("ParseRange(%q): %v", tt.in, err)
		}
		if !approx(low, tt.low) || !approx(high, tt.high) {
			t.Fatalf("ParseRange(%q) = %g, %g want %g, %g", tt.in, low, high, tt.low, tt.high)
		}
	}
}

const ceramicRecord = `{
  "description": "Cap Ceramic 1uF 50V X7R 10% SMD 0805",
  "part": {
    "mpn": "GRM21BR71H105KA12L",
    "manufacturer": {"name": "Murata"},
    "category": {"id": "6332"},
    "median_price_1000": {"converted_price": 0.02},
    "best_datasheet": {"url": "https://example.com/ds.pdf"},
    "specs": [
      {"attribute": {"shortname": "capacitance"}, "display_value": "1 µF"},
      {"attribute": {"shortname": "voltagerating"}, "display_value": "50 V"},
      {"attribute": {"shortname": "dielectric"}, "display_value": "X7R"},
      {"attribute": {"shortname": "height"}, "display_value": "1.25 mm"},
      {"attribute": {"shortname": "width"}, "display_value": "1.25 mm"},
      {"attribute": {"shortname": "length"}, "display_value": "2 mm"},
      {"attribute": {"shortname": "weight"}, "display_value": "10 mg"},
      {"attribute": {"shortname": "testfrequency"}, "display_value": "1 kHz"}
    ]
  }
}`

func TestFlatten(t *testing.T) {
	part, err := Flatten(json.RawMessage(ceramicRecord), "Ceramic Capacitors")
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if part.MPN != "GRM21BR71H105KA12L" || part.Manufacturer != "Murata" {
		t.Fatalf("unexpected identity %+v", part)
	}
	if part.CategoryID != "6332" {
		t.Fatalf("category id = %q", part.CategoryID)
	}
	if part.Price == nil || *part.Price != 0.02 {
		t.Fatalf("price = %v", part.Price)
	}
	if v, _ := part.Spec("capacitance"); v != "1 \u03bcF" {
		t.Fatalf("capacitance spec not normalized: %q", v)
	}
}

func TestFlattenInvalid(t *testing.T) {
	tests := map[string]string{
		"not json":        `<html>`,
		"no part":         `{"description":"x"}`,
		"no mpn":          `{"part":{"manufacturer":{"name":"Murata"}}}`,
		"no manufacturer": `{"part":{"mpn":"ABC"}}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Flatten(json.RawMessage(raw), "Ceramic Capacitors"); !errors.Is(err, ErrInvalidRecord) {
				t.Fatalf("expected ErrInvalidRecord, got %v", err)
			}
		})
	}
}

func TestDeriveCeramic(t *testing.T) {
	catalog, err := config.DefaultCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	part, err := Flatten(json.RawMessage(ceramicRecord), "Ceramic Capacitors")
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}

	row := Derive(part, catalog, 2024)

	if row.CeramicClass != "C2" || row.Dielectric != "X7R" {
		t.Fatalf("ceramic class = %q dielectric = %q", row.CeramicClass, row.Dielectric)
	}
	checks := []struct {
		name string
		got  *float64
		want float64
	}{
		{name: "capacitance", got: row.Capacitance, want: 1e-6},
		{name: "voltage", got: row.Voltage, want: 50},
		{name: "esr_frequency", got: row.ESRFrequency, want: 1000},
		{name: "volume", got: row.Volume, want: 1.25 * 1.25 * 2},
		{name: "mass", got: row.Mass, want: 10},
		{name: "energy", got: row.Energy, want: 1250},
		{name: "volumetric_energy_density", got: row.VolumetricEnergyDensity, want: 1250 / 3.125},
		{name: "gravimetric_energy_density", got: row.GravimetricEnergyDensity, want: 125},
		{name: "energy_per_cost", got: row.EnergyPerCost, want: 1250 / 0.02},
	}
	for _, c := range checks {
		if c.got == nil {
			t.Fatalf("%s missing", c.name)
		}
		if !approx(*c.got, c.want) {
			t.Fatalf("%s = %g, want %g", c.name, *c.got, c.want)
		}
	}
	if row.Power != nil || row.Current != nil {
		t.Fatalf("power should be empty without a current rating")
	}
	if row.Year != 2024 {
		t.Fatalf("year = %d", row.Year)
	}
}

func TestDeriveCylindricalAndInductor(t *testing.T) {
	part := &models.Part{
		Category:     "Aluminum Electrolytic Capacitors",
		CategoryID:   "6331",
		Manufacturer: "Nichicon",
		MPN:          "UVR1H102MHD",
		Specs: map[string]string{
			"capacitance":   "1000 μF",
			"voltagerating": "50 V",
			"ripplecurrent": "1.2 A",
			"diameter":      "10 mm",
			"height":        "20 mm",
			"dielectric":    "X7R",
			"testfrequency": "100 Hz ~ 1 kHz",
		},
	}
	row := Derive(part, nil, 2024)

	if row.CeramicClass != "" {
		t.Fatalf("ceramic class set outside ceramic category")
	}
	wantVolume := math.Pi * 5 * 5 * 20
	if row.Volume == nil || !approx(*row.Volume, wantVolume) {
		t.Fatalf("volume = %v, want %g", row.Volume, wantVolume)
	}
	if row.Power == nil || !approx(*row.Power, 60) {
		t.Fatalf("power = %v, want 60", row.Power)
	}
	if row.ESRFrequency != nil || row.ESRFrequencyLow == nil || *row.ESRFrequencyLow != 100 || *row.ESRFrequencyHigh != 1000 {
		t.Fatalf("unexpected esr frequency range %v %v %v", row.ESRFrequency, row.ESRFrequencyLow, row.ESRFrequencyHigh)
	}

	inductor := &models.Part{
		Manufacturer: "Coilcraft",
		MPN:          "XAL4020-102",
		Specs: map[string]string{
			"inductance":    "1 μH",
			"currentrating": "2 A",
		},
	}
	row = Derive(inductor, nil, 2024)
	if row.Energy == nil || !approx(*row.Energy, 2) {
		t.Fatalf("inductor energy = %v, want 2 µJ", row.Energy)
	}
	if row.Volume != nil || row.VolumetricEnergyDensity != nil {
		t.Fatalf("volume should be empty without dimensions")
	}
}
