package scraper

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBucketQueryPayload(t *testing.T) {
	p := BucketQuery("6332", "capacitance")
	if p.OperationName != "FilterModalSearch" {
		t.Fatalf("operation = %q", p.OperationName)
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		OperationName string `json:"operationName"`
		Variables     struct {
			AttributeNames []string            `json:"attribute_names"`
			Currency       string              `json:"currency"`
			Filters        map[string][]string `json:"filters"`
			InStockOnly    bool                `json:"in_stock_only"`
		} `json:"variables"`
		Query string `json:"query"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if diff := cmp.Diff([]string{"capacitance"}, decoded.Variables.AttributeNames); diff != "" {
		t.Fatalf("attribute names mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string][]string{"category_id": {"6332"}}, decoded.Variables.Filters); diff != "" {
		t.Fatalf("filters mismatch (-want +got):\n%s", diff)
	}
	if decoded.Variables.Currency != "USD" || decoded.Variables.InStockOnly {
		t.Fatalf("unexpected variables %+v", decoded.Variables)
	}
	if decoded.Query == "" {
		t.Fatalf("query document missing")
	}
}

func TestPartsQueryPayload(t *testing.T) {
	filters := []Filter{
		{Key: "capacitance", Value: "1e-06"},
		{Key: "voltagerating", Value: "50"},
	}
	p := PartsQuery("6332", filters, 200, 100)
	if p.OperationName != "PricesViewSearch" {
		t.Fatalf("operation = %q", p.OperationName)
	}

	want := map[string][]string{
		"category_id":   {"6332"},
		"capacitance":   {"1e-06"},
		"voltagerating": {"50"},
	}
	if diff := cmp.Diff(want, p.Variables["filters"]); diff != "" {
		t.Fatalf("filters mismatch (-want +got):\n%s", diff)
	}
	if p.Variables["start"] != 200 || p.Variables["limit"] != 100 {
		t.Fatalf("paging = start %v limit %v", p.Variables["start"], p.Variables["limit"])
	}
	if p.Variables["country"] != "US" {
		t.Fatalf("country = %v", p.Variables["country"])
	}
}

func TestOperationName(t *testing.T) {
	tests := map[string]string{
		"query Foo($a: Int) { x }": "Foo",
		"  mutation Bar { y }":     "Bar",
		"{ anonymous }":            "",
	}
	for query, want := range tests {
		if got := operationName(query); got != want {
			t.Fatalf("operationName(%q) = %q, want %q", query, got, want)
		}
	}
}

func TestFilterKeysSorted(t *testing.T) {
	got := filterKeys([]Filter{{Key: "b", Value: "2"}, {Key: "a", Value: "1"}})
	if diff := cmp.Diff([]string{"a=1", "b=2"}, got); diff != "" {
		t.Fatalf("filter keys mismatch (-want +got):\n%s", diff)
	}
}
