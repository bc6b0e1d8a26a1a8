package scraper

import (
	"regexp"
	"sort"
)

// Payload is the GraphQL-style request body accepted by the search endpoint.
type Payload struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Query         string         `json:"query"`
}

var operationNameRe = regexp.MustCompile(`^\s*(?:query|mutation)\s+(\w+)`)

// operationName extracts the operation name from a query document.
func operationName(query string) string {
	m := operationNameRe.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	return m[1]
}

// BucketQuery builds the payload listing the value buckets of one attribute within a category.
func BucketQuery(categoryID, attributeKey string) Payload {
	return Payload{
		OperationName: operationName(attributeBucketQuery),
		Variables: map[string]any{
			"attribute_names": []string{attributeKey},
			"currency":        "USD",
			"filters": map[string][]string{
				"category_id": {categoryID},
			},
			"in_stock_only": false,
		},
		Query: attributeBucketQuery,
	}
}

// Filter restricts a parts search to one bucket value of an attribute.
type Filter struct {
	Key   string
	Value string
}

// PartsQuery builds the payload for one page of parts matching category and filters.
func PartsQuery(categoryID string, filters []Filter, start, limit int) Payload {
	f := map[string][]string{
		"category_id": {categoryID},
	}
	for _, filter := range filters {
		f[filter.Key] = []string{filter.Value}
	}
	return Payload{
		OperationName: operationName(partSearchQuery),
		Variables: map[string]any{
			"country":       "US",
			"currency":      "USD",
			"filters":       f,
			"in_stock_only": false,
			"limit":         limit,
			"start":         start,
		},
		Query: partSearchQuery,
	}
}

// filterKeys renders filters as sorted key=value pairs for logging.
func filterKeys(filters []Filter) []string {
	keys := make([]string, 0, len(filters))
	for _, f := range filters {
		keys = append(keys, f.Key+"="+f.Value)
	}
	sort.Strings(keys)
	return keys
}
