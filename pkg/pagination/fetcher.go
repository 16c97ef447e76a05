package pagination

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamepass_pages_fetched_total",
		Help: "Total upstream pages fetched by resource",
	}, []string{"resource"})

	pageCapHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamepass_page_cap_hits_total",
		Help: "Total walks truncated by the page cap, by resource",
	}, []string{"resource"})

	pageFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamepass_page_failures_total",
		Help: "Total failed page requests by resource and policy",
	}, []string{"resource", "policy"})
)

// Mode selects how pages are addressed.
type Mode int

const (
	// ModeCursor carries the previous page's next cursor forward.
	ModeCursor Mode = iota

	// ModeOffset requests fixed-size windows by start index.
	ModeOffset
)

// ErrorPolicy decides what a failed page request does to the walk.
type ErrorPolicy string

const (
	// PolicyStrict fails the whole fetch.
	PolicyStrict ErrorPolicy = "strict"

	// PolicyLenient stops the walk early and keeps what was accumulated.
	PolicyLenient ErrorPolicy = "lenient"
)

// ParseErrorPolicy converts a configuration string to an ErrorPolicy.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyStrict, "":
		return PolicyStrict, nil
	case PolicyLenient:
		return PolicyLenient, nil
	default:
		return "", fmt.Errorf("unknown error policy %q", s)
	}
}

// Getter fetches the raw body of one page.
type Getter interface {
	GetBody(ctx context.Context, url string) ([]byte, error)
}

// PageRequest addresses one page of a resource.
type PageRequest struct {
	// Cursor is empty for the first page.
	Cursor string

	// Offset is the start index in offset mode.
	Offset int

	// Limit is the page size.
	Limit int
}

// URLBuilder renders the URL of one page of a resource.
type URLBuilder func(resourceID string, req PageRequest) string

// Config holds fetcher configuration.
type Config struct {
	// PageSize is sent as the page limit.
	PageSize int

	// MaxPages bounds the number of requests per walk.
	MaxPages int

	// Mode selects cursor or offset paging.
	Mode Mode

	// Policy decides what a failed page does.
	Policy ErrorPolicy

	// RequireFirstPage reports a failed first page under either policy.
	// A walk that never got a page has nothing partial to keep.
	RequireFirstPage bool
}

// DefaultMaxPages is the page cap per walk.
const DefaultMaxPages = 5

// DefaultConfig returns the cursor-mode configuration used upstream.
func DefaultConfig() Config {
	return Config{
		PageSize: 100,
		MaxPages: DefaultMaxPages,
		Mode:     ModeCursor,
		Policy:   PolicyStrict,
	}
}

// Fetcher walks one paginated resource type.
type Fetcher[T any] struct {
	name   string
	getter Getter
	build  URLBuilder
	parser Parser[T]
	config Config
	logger zerolog.Logger
}

// NewFetcher creates a fetcher. name labels logs and metrics.
func NewFetcher[T any](name string, getter Getter, build URLBuilder, parser Parser[T], config Config) *Fetcher[T] {
	if config.PageSize <= 0 {
		config.PageSize = 100
	}
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultMaxPages
	}
	if config.Policy == "" {
		config.Policy = PolicyStrict
	}

	return &Fetcher[T]{
		name:   name,
		getter: getter,
		build:  build,
		parser: parser,
		config: config,
		logger: log.With().Str("component", "fetcher").Str("resource", name).Logger(),
	}
}

// Config returns the fetcher configuration.
func (f *Fetcher[T]) Config() Config {
	return f.config
}

// Fetch returns the items of resourceID as a lazy sequence, in page order
// then within-page order. Under PolicyStrict a failed page yields one
// (zero, err) pair and ends the sequence.
func (f *Fetcher[T]) Fetch(ctx context.Context, resourceID string) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		cursor := ""

		for page := 0; page < f.config.MaxPages; page++ {
			if err := ctx.Err(); err != nil {
				f.fail(resourceID, page, err, yield)
				return
			}

			url := f.build(resourceID, PageRequest{
				Cursor: cursor,
				Offset: page * f.config.PageSize,
				Limit:  f.config.PageSize,
			})

			result, err := f.fetchPage(ctx, url)
			if err != nil {
				f.fail(resourceID, page, err, yield)
				return
			}
			pagesFetchedTotal.WithLabelValues(f.name).Inc()

			for _, item := range result.Items {
				if !yield(item, nil) {
					return
				}
			}

			switch f.config.Mode {
			case ModeOffset:
				if len(result.Items) < f.config.PageSize {
					return
				}
			default:
				if result.NextCursor == "" {
					return
				}
				cursor = result.NextCursor
			}
		}

		pageCapHitsTotal.WithLabelValues(f.name).Inc()
		f.logger.Debug().
			Str("resource_id", resourceID).
			Int("max_pages", f.config.MaxPages).
			Msg("Page cap reached - truncating walk")
	}
}

// fetchPage requests and parses one page.
func (f *Fetcher[T]) fetchPage(ctx context.Context, url string) (Page[T], error) {
	body, err := f.getter.GetBody(ctx, url)
	if err != nil {
		return Page[T]{}, err
	}

	result, err := f.parser.ParsePage(body)
	if err != nil {
		return Page[T]{}, &ParseError{Resource: f.name, URL: url, Err: err}
	}
	return result, nil
}

// fail applies the error policy. Both policies end the walk; only strict
// reports the error to the consumer.
func (f *Fetcher[T]) fail(resourceID string, page int, err error, yield func(T, error) bool) {
	pageFailuresTotal.WithLabelValues(f.name, string(f.config.Policy)).Inc()

	if f.config.Policy == PolicyLenient && !(page == 0 && f.config.RequireFirstPage) {
		f.logger.Warn().
			Err(err).
			Str("resource_id", resourceID).
			Int("page", page+1).
			Msg("Page fetch failed - keeping partial results")
		return
	}

	f.logger.Error().
		Err(err).
		Str("resource_id", resourceID).
		Int("page", page+1).
		Msg("Page fetch failed")

	var zero T
	yield(zero, fmt.Errorf("fetch %s %s page %d: %w", f.name, resourceID, page+1, err))
}

// Collect drains a sequence. On error the partial result is discarded.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
