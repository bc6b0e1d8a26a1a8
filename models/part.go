// Package models defines data structures shared by the crawler, the normalizer and the loader.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bucket is one discrete value of an attribute as reported by the search API.
type Bucket struct {
	Display string   `json:"display_value"`
	Float   *float64 `json:"float_value"`
	Count   int      `json:"count"`
}

// FilterValue returns the value sent back to the API when filtering on this bucket.
// Numeric buckets filter on their float value, everything else on the display text.
func (b Bucket) FilterValue() string {
	if b.Float != nil {
		return strconv.FormatFloat(*b.Float, 'g', -1, 64)
	}
	return b.Display
}

// AttributeBuckets is the ordered bucket list of one attribute within a category.
type AttributeBuckets struct {
	Attribute string   `json:"attribute"`
	Key       string   `json:"key"`
	Buckets   []Bucket `json:"buckets"`
}

// Position is a tuple of bucket indices, one per enumerated attribute.
type Position []int

// Equal reports whether p and o name the same bucket combination.
func (p Position) Equal(o Position) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// Less reports whether p comes strictly before o in row-major order.
func (p Position) Less(o Position) bool {
	n := len(p)
	if len(o) < n {
		n = len(o)
	}
	for i := 0; i < n; i++ {
		if p[i] != o[i] {
			return p[i] < o[i]
		}
	}
	return len(p) < len(o)
}

// Clone returns an independent copy of p.
func (p Position) Clone() Position {
	if p == nil {
		return nil
	}
	out := make(Position, len(p))
	copy(out, p)
	return out
}

func (p Position) String() string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = strconv.Itoa(v)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// SearchResponse mirrors the {data:{search:{results:[...]}}} document returned by the
// parts query. Results are kept raw so that nothing the API sent is lost on disk.
type SearchResponse struct {
	Data SearchData `json:"data"`
}

// SearchData is the "data" member of SearchResponse.
type SearchData struct {
	Search SearchResults `json:"search"`
}

// SearchResults holds the part records of one or more pages.
type SearchResults struct {
	Hits    int               `json:"hits,omitempty"`
	Results []json.RawMessage `json:"results"`
}

// NewSearchResponse wraps records in the raw output shape.
func NewSearchResponse(records []json.RawMessage) *SearchResponse {
	if records == nil {
		records = []json.RawMessage{}
	}
	return &SearchResponse{Data: SearchData{Search: SearchResults{Results: records}}}
}

// ResumeMarker is the persisted crawl position of an interrupted crawl.
type ResumeMarker struct {
	Version    int       `json:"version"`
	Category   string    `json:"category"`
	Attributes []string  `json:"attributes"`
	Position   Position  `json:"position"`
	Values     []string  `json:"values,omitempty"`
	PageOffset int       `json:"page_offset"`
	Restarting bool      `json:"restarting"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MarkerVersion is the current ResumeMarker format.
const MarkerVersion = 2

// Validate checks the marker against the crawl it is about to resume.
func (m *ResumeMarker) Validate(category string, attributes []string) error {
	if m.Category != "" && m.Category != category {
		return fmt.Errorf("marker belongs to category %q, not %q", m.Category, category)
	}
	if len(m.Position) != len(attributes) {
		return fmt.Errorf("marker has %d dimensions, crawl has %d attributes", len(m.Position), len(attributes))
	}
	if len(m.Attributes) > 0 {
		if len(m.Attributes) != len(attributes) {
			return fmt.Errorf("marker lists %d attributes, crawl has %d", len(m.Attributes), len(attributes))
		}
		for i, a := range attributes {
			if m.Attributes[i] != a {
				return fmt.Errorf("marker attribute %d is %q, crawl uses %q", i, m.Attributes[i], a)
			}
		}
	}
	for _, idx := range m.Position {
		if idx < 0 {
			return fmt.Errorf("marker position %s has a negative index", m.Position)
		}
	}
	if m.PageOffset < 0 {
		return fmt.Errorf("marker page offset cannot be negative")
	}
	return nil
}

// CrawlResult summarises a crawl run.
type CrawlResult struct {
	Category     string
	OutputPath   string
	StartTime    time.Time
	EndTime      time.Time
	Records      int
	Requests     int
	Pages        int
	Combinations int
	Skipped      int
	Capped       int
	Rejected     int
	Blocks       int
	Resumed      bool
}
