package models

import "time"

// Part is one flattened part record from the raw crawl output.
type Part struct {
	CategoryID   string
	Category     string
	Manufacturer string
	MPN          string
	Description  string
	Price        *float64
	DatasheetURL string
	ImageURL     string
	// Specs maps attribute shortname to display value.
	Specs map[string]string
}

// Spec returns the display value of the first shortname present in the part specs.
func (p *Part) Spec(shortnames ...string) (string, bool) {
	for _, name := range shortnames {
		if v, ok := p.Specs[name]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// Row is one line of the normalized output table. Nil pointers are empty cells.
// Units: capacitance F, voltage V, current A, esr Ω, frequencies Hz, price $,
// volume mm^3, mass mg, energy µJ, power W.
type Row struct {
	Category                 string   `json:"category"`
	Manufacturer             string   `json:"manufacturer"`
	MPN                      string   `json:"mpn"`
	CeramicClass             string   `json:"ceramic_class,omitempty"`
	Dielectric               string   `json:"dielectric,omitempty"`
	Capacitance              *float64 `json:"capacitance,omitempty"`
	Voltage                  *float64 `json:"voltage,omitempty"`
	Current                  *float64 `json:"current,omitempty"`
	ESR                      *float64 `json:"esr,omitempty"`
	ESRFrequency             *float64 `json:"esr_frequency,omitempty"`
	ESRFrequencyLow          *float64 `json:"esr_frequency_low,omitempty"`
	ESRFrequencyHigh         *float64 `json:"esr_frequency_high,omitempty"`
	Price                    *float64 `json:"price,omitempty"`
	Volume                   *float64 `json:"volume,omitempty"`
	Mass                     *float64 `json:"mass,omitempty"`
	Energy                   *float64 `json:"energy,omitempty"`
	Power                    *float64 `json:"power,omitempty"`
	VolumetricEnergyDensity  *float64 `json:"volumetric_energy_density,omitempty"`
	GravimetricEnergyDensity *float64 `json:"gravimetric_energy_density,omitempty"`
	VolumetricPowerDensity   *float64 `json:"volumetric_power_density,omitempty"`
	GravimetricPowerDensity  *float64 `json:"gravimetric_power_density,omitempty"`
	EnergyPerCost            *float64 `json:"energy_per_cost,omitempty"`
	Year                     int      `json:"year"`
}

// Columns is the ordered output column map of the normalized table.
var Columns = []string{
	"category",
	"manufacturer",
	"mpn",
	"ceramic_class",
	"dielectric",
	"capacitance",
	"voltage",
	"current",
	"esr",
	"esr_frequency",
	"esr_frequency_low",
	"esr_frequency_high",
	"price",
	"volume",
	"mass",
	"energy",
	"power",
	"volumetric_energy_density",
	"gravimetric_energy_density",
	"volumetric_power_density",
	"gravimetric_power_density",
	"energy_per_cost",
	"year",
}

// Key identifies a part across pages and runs.
func (r *Row) Key() string {
	return r.Manufacturer + "\x00" + r.MPN
}

// Values renders the row in Columns order; empty strings for missing values.
func (r *Row) Values() []string {
	return []string{
		r.Category,
		r.Manufacturer,
		r.MPN,
		r.CeramicClass,
		r.Dielectric,
		formatFloat(r.Capacitance),
		formatFloat(r.Voltage),
		formatFloat(r.Current),
		formatFloat(r.ESR),
		formatFloat(r.ESRFrequency),
		formatFloat(r.ESRFrequencyLow),
		formatFloat(r.ESRFrequencyHigh),
		formatFloat(r.Price),
		formatFloat(r.Volume),
		formatFloat(r.Mass),
		formatFloat(r.Energy),
		formatFloat(r.Power),
		formatFloat(r.VolumetricEnergyDensity),
		formatFloat(r.GravimetricEnergyDensity),
		formatFloat(r.VolumetricPowerDensity),
		formatFloat(r.GravimetricPowerDensity),
		formatFloat(r.EnergyPerCost),
		formatYear(r.Year),
	}
}

// Cells renders the row in Columns order as typed spreadsheet values: strings, float64
// for numeric columns, and nil for missing values.
func (r *Row) Cells() []any {
	num := func(v *float64) any {
		if v == nil {
			return nil
		}
		return *v
	}
	var year any
	if r.Year != 0 {
		year = r.Year
	}
	return []any{
		r.Category,
		r.Manufacturer,
		r.MPN,
		r.CeramicClass,
		r.Dielectric,
		num(r.Capacitance),
		num(r.Voltage),
		num(r.Current),
		num(r.ESR),
		num(r.ESRFrequency),
		num(r.ESRFrequencyLow),
		num(r.ESRFrequencyHigh),
		num(r.Price),
		num(r.Volume),
		num(r.Mass),
		num(r.Energy),
		num(r.Power),
		num(r.VolumetricEnergyDensity),
		num(r.GravimetricEnergyDensity),
		num(r.VolumetricPowerDensity),
		num(r.GravimetricPowerDensity),
		num(r.EnergyPerCost),
		year,
	}
}

// NormalizeResult holds the overall result of a normalization run.
type NormalizeResult struct {
	Inputs     []string
	OutputPath string
	Records    int
	Rows       int
	Duplicates int
	Invalid    int
}

// LoadResult summarises a CSV load into a database table.
type LoadResult struct {
	Path     string
	Driver   string
	Table    string
	Columns  int
	Rows     int
	Duration time.Duration
}
