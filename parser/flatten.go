package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-parts/models"
)

// ErrInvalidRecord is returned for records that cannot identify a part.
var ErrInvalidRecord = errors.New("invalid part record")

type rawResult struct {
	Description string   `json:"description"`
	Part        *rawPart `json:"part"`
}

type rawPart struct {
	MPN          string `json:"mpn"`
	Manufacturer *struct {
		Name string `json:"name"`
	} `json:"manufacturer"`
	Category *struct {
		ID json.Number `json:"id"`
	} `json:"category"`
	MedianPrice *struct {
		ConvertedPrice *float64 `json:"converted_price"`
	} `json:"median_price_1000"`
	BestDatasheet *struct {
		URL string `json:"url"`
	} `json:"best_datasheet"`
	BestImage *struct {
		URL string `json:"url"`
	} `json:"best_image"`
	Descriptions []struct {
		Text string `json:"text"`
	} `json:"descriptions"`
	Specs []struct {
		Attribute struct {
			Shortname string `json:"shortname"`
		} `json:"attribute"`
		DisplayValue string `json:"display_value"`
	} `json:"specs"`
}

// Flatten extracts one part from a raw search result.
func Flatten(raw json.RawMessage, category string) (*models.Part, error) {
	var res rawResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if res.Part == nil {
		return nil, fmt.Errorf("%w: missing part", ErrInvalidRecord)
	}
	p := res.Part

	part := &models.Part{
		Category:    Normalize(category),
		MPN:         Normalize(p.MPN),
		Description: Normalize(res.Description),
		Specs:       make(map[string]string, len(p.Specs)),
	}
	if p.Manufacturer != nil {
		part.Manufacturer = Normalize(p.Manufacturer.Name)
	}
	if p.Category != nil {
		part.CategoryID = p.Category.ID.String()
	}
	if p.MedianPrice != nil && p.MedianPrice.ConvertedPrice != nil {
		price := *p.MedianPrice.ConvertedPrice
		part.Price = &price
	}
	if p.BestDatasheet != nil {
		part.DatasheetURL = strings.TrimSpace(p.BestDatasheet.URL)
	}
	if p.BestImage != nil {
		part.ImageURL = strings.TrimSpace(p.BestImage.URL)
	}
	if part.Description == "" && len(p.Descriptions) > 0 {
		part.Description = Normalize(p.Descriptions[0].Text)
	}
	for _, s := range p.Specs {
		name := strings.TrimSpace(s.Attribute.Shortname)
		if name == "" {
			continue
		}
		part.Specs[name] = Normalize(s.DisplayValue)
	}

	if err := ValidatePart(part); err != nil {
		return nil, err
	}
	return part, nil
}

// ValidatePart ensures the record carries enough to identify the part.
func ValidatePart(p *models.Part) error {
	if p == nil {
		return fmt.Errorf("%w: part is nil", ErrInvalidRecord)
	}
	if p.MPN == "" {
		return fmt.Errorf("%w: missing mpn", ErrInvalidRecord)
	}
	if p.Manufacturer == "" {
		return fmt.Errorf("%w: missing manufacturer for %s", ErrInvalidRecord, p.MPN)
	}
	return nil
}
