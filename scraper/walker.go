package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// WalkOutcome is how a walk over one bucket combination ended.
type WalkOutcome int

const (
	// Exhausted means the API ran out of results for the combination.
	Exhausted WalkOutcome = iota
	// Capped means the scroll window limit was reached; later results are unreachable.
	Capped
	// Rejected means the API answered with JSON but no data; the combination is skipped.
	Rejected
)

func (o WalkOutcome) String() string {
	switch o {
	case Exhausted:
		return "exhausted"
	case Capped:
		return "capped"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// PageSink receives each page as soon as it is fetched, along with the offset of the
// page that would follow it.
type PageSink func(records []json.RawMessage, nextOffset int) error

// PageSource pages through the parts matching one bucket combination.
type PageSource interface {
	Walk(ctx context.Context, categoryID string, filters []Filter, start int, sink PageSink) (WalkOutcome, error)
}

// Walker pages through search results with a fixed page size.
type Walker struct {
	client    Poster
	pageSize  int
	maxOffset int
	metrics   *Metrics
}

// NewWalker returns a Walker. pageSize must not exceed what the API serves per page,
// maxOffset is the API scroll-window limit.
func NewWalker(client Poster, pageSize, maxOffset int, metrics *Metrics) *Walker {
	return &Walker{
		client:    client,
		pageSize:  pageSize,
		maxOffset: maxOffset,
		metrics:   metrics,
	}
}

type partsEnvelope struct {
	Data *struct {
		Search *struct {
			Hits    int               `json:"hits"`
			Results []json.RawMessage `json:"results"`
		} `json:"search"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// Walk fetches pages starting at offset start until a page comes back empty or short
// (Exhausted), the next offset reaches the scroll limit (Capped) or the API returns no
// data for the combination (Rejected).
func (w *Walker) Walk(ctx context.Context, categoryID string, filters []Filter, start int, sink PageSink) (WalkOutcome, error) {
	for offset := start; offset < w.maxOffset; offset += w.pageSize {
		if err := ctx.Err(); err != nil {
			return Exhausted, err
		}

		body, err := w.client.Post(ctx, PartsQuery(categoryID, filters, offset, w.pageSize))
		if err != nil {
			return Exhausted, err
		}
		records, rejected, err := decodeParts(body)
		if err != nil {
			return Exhausted, err
		}
		if rejected != "" {
			w.metrics.IncPage("rejected")
			slog.Warn("no results for combination, moving on",
				slog.Any("filters", filterKeys(filters)),
				slog.Int("offset", offset),
				slog.String("reason", rejected),
			)
			return Rejected, nil
		}

		if len(records) == 0 {
			w.metrics.IncPage("empty")
			return Exhausted, nil
		}
		if err := sink(records, offset+w.pageSize); err != nil {
			return Exhausted, fmt.Errorf("store page at offset %d: %w", offset, err)
		}
		if len(records) < w.pageSize {
			w.metrics.IncPage("short")
			return Exhausted, nil
		}
		w.metrics.IncPage("full")
	}

	slog.Debug("scroll window exhausted",
		slog.Any("filters", filterKeys(filters)),
		slog.Int("max_offset", w.maxOffset),
	)
	return Capped, nil
}

// decodeParts extracts the result records of one page. A null result list counts as an
// empty page. JSON without data yields a non-empty rejection reason; JSON of the wrong
// shape is ErrParse and anything that is not JSON is a challenge.
func decodeParts(body []byte) (records []json.RawMessage, rejected string, err error) {
	var env partsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, "", ErrParse{Err: fmt.Errorf("decode parts page: %w", err)}
		}
		return nil, "", ErrAntiBotBlock{Err: fmt.Errorf("decode parts page: %w", err)}
	}
	if env.Data == nil {
		if len(env.Errors) > 0 {
			return nil, env.Errors[0].Message, nil
		}
		return nil, "response has no data", nil
	}
	if env.Data.Search == nil {
		return nil, "", nil
	}
	return env.Data.Search.Results, "", nil
}
