package parser

import (
	"math"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/aluiziolira/go-scrape-parts/models"
)

const ceramicCategory = "Ceramic Capacitors"

// Attribute shortnames read for each column, in order of preference.
var (
	capacitanceSpecs  = []string{"capacitance"}
	inductanceSpecs   = []string{"inductance"}
	voltageSpecs      = []string{"voltagerating", "voltagerating_dc_", "voltage"}
	currentSpecs      = []string{"ripplecurrent", "currentrating", "current", "rmscurrent_irms_", "maxdccurrent", "dccurrent"}
	esrSpecs          = []string{"esr_equivalentseriesresistance_", "dcresistance_dcr_", "seriesresistance"}
	esrFrequencySpecs = []string{"testfrequency"}
	heightSpecs       = []string{"height", "height_seated_max_", "thickness"}
	widthSpecs        = []string{"width"}
	lengthSpecs       = []string{"length"}
	diameterSpecs     = []string{"diameter"}
	weightSpecs       = []string{"weight"}
	dielectricSpecs   = []string{"dielectric"}
)

// Derive computes the output row of a part. Quantities whose inputs are missing or
// unparseable are left empty. Units: volume mm^3, mass mg, energy µJ, power W.
func Derive(p *models.Part, catalog *config.Catalog, year int) *models.Row {
	row := &models.Row{
		Category:     p.Category,
		Manufacturer: p.Manufacturer,
		MPN:          p.MPN,
		Year:         year,
	}

	if d, ok := p.Spec(dielectricSpecs...); ok {
		row.Dielectric = d
		if catalog != nil {
			if id, err := catalog.CategoryID(ceramicCategory); err == nil && id == p.CategoryID {
				row.CeramicClass, _ = catalog.CeramicClass(d)
			}
		}
	}

	row.Capacitance = specValue(p, capacitanceSpecs)
	row.Voltage = specValue(p, voltageSpecs)
	row.Current = specValue(p, currentSpecs)
	row.ESR = specValue(p, esrSpecs)
	if v, ok := p.Spec(esrFrequencySpecs...); ok {
		if IsRange(v) {
			if low, high, err := ParseRange(v); err == nil {
				row.ESRFrequencyLow = &low
				row.ESRFrequencyHigh = &high
			}
		} else if f, err := ToBaseUnits(v); err == nil {
			row.ESRFrequency = &f
		}
	}
	if p.Price != nil {
		price := *p.Price
		row.Price = &price
	}

	row.Volume = volume(p)
	if w := specValue(p, weightSpecs); w != nil {
		row.Mass = ptr(*w * 1e3)
	}

	switch {
	case row.Capacitance != nil && row.Voltage != nil:
		row.Energy = ptr(0.5 * *row.Capacitance * *row.Voltage * *row.Voltage * 1e6)
	default:
		if l := specValue(p, inductanceSpecs); l != nil && row.Current != nil {
			row.Energy = ptr(0.5 * *l * *row.Current * *row.Current * 1e6)
		}
	}
	if row.Voltage != nil && row.Current != nil {
		row.Power = ptr(*row.Voltage * *row.Current)
	}

	row.VolumetricEnergyDensity = ratio(row.Energy, row.Volume)
	row.GravimetricEnergyDensity = ratio(row.Energy, row.Mass)
	row.VolumetricPowerDensity = ratio(row.Power, row.Volume)
	row.GravimetricPowerDensity = ratio(row.Power, row.Mass)
	row.EnergyPerCost = ratio(row.Energy, row.Price)
	return row
}

// volume is π(d/2)²h for cylindrical parts and w·l·h otherwise, in mm^3.
func volume(p *models.Part) *float64 {
	h := specValue(p, heightSpecs)
	if h == nil {
		return nil
	}
	if d := specValue(p, diameterSpecs); d != nil {
		r := *d * 1e3 / 2
		return ptr(math.Pi * r * r * *h * 1e3)
	}
	w := specValue(p, widthSpecs)
	l := specValue(p, lengthSpecs)
	if w == nil || l == nil {
		return nil
	}
	return ptr(*w * 1e3 * *l * 1e3 * *h * 1e3)
}

func specValue(p *models.Part, names []string) *float64 {
	v, ok := p.Spec(names...)
	if !ok || IsRange(v) {
		return nil
	}
	f, err := ToBaseUnits(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func ratio(num, den *float64) *float64 {
	if num == nil || den == nil || *den == 0 {
		return nil
	}
	return ptr(*num / *den)
}

func ptr(v float64) *float64 {
	return &v
}
