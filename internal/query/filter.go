package query

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/zeebo/errs"

	"labcatalog/internal/nestedset"
	"labcatalog/pkg/domain"
)

// Error is the error class for malformed filter input.
var Error = errs.Class("query")

// TagsKey is the reserved filter key matching one tag of an item.
const TagsKey = "tags"

// reserved keys are consumed by pagination and never become filters.
var reserved = map[string]bool{"page": true, "page_size": true}

// Filter is one key=value pair from the caller, in received order.
type Filter struct {
	Key   string
	Value string
}

// Predicate reports whether a row passes a filter.
type Predicate func(*Row) bool

func never(*Row) bool { return false }

// ParseFilters decodes a raw query string keeping parameter order.
// Pagination keys and empty keys are skipped.
func ParseFilters(rawQuery string) ([]Filter, error) {
	var out []Filter
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, Error.New("bad filter key %q: %w", rawKey, err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, Error.New("bad value for %q: %w", key, err)
		}
		if key == "" || reserved[key] {
			continue
		}
		out = append(out, Filter{Key: key, Value: value})
	}
	return out, nil
}

// Applicator compiles filters against a registry and the compound property
// forest captured from the same transaction as the rows.
type Applicator struct {
	registry   *Registry
	properties []domain.CompoundProperty
}

// NewApplicator binds a registry to a property snapshot.
func NewApplicator(registry *Registry, properties []domain.CompoundProperty) *Applicator {
	return &Applicator{registry: registry, properties: properties}
}

// Compile resolves one filter to a predicate. It never fails: keys that
// resolve to nothing produce a predicate that rejects every row.
func (a *Applicator) Compile(f Filter) Predicate {
	if f.Key == TagsKey {
		return tagToken(f.Value)
	}

	entity, field := domain.EntityItem, f.Key
	if prefix, suffix, ok := strings.Cut(f.Key, "_"); ok {
		entity, field = domain.EntityType(prefix), suffix
	}
	if col, ok := a.registry.Lookup(entity, field); ok {
		return col.Matcher(f.Value)
	}

	propertyType := field
	if !a.registry.HasEntity(entity) {
		propertyType = f.Key
	}
	return a.containedIn(propertyType, f.Value)
}

// containedIn matches rows whose compound property lies in the subtree of
// the property (typ, value).
func (a *Applicator) containedIn(typ, value string) Predicate {
	for _, p := range a.properties {
		if p.Type != typ || p.Value != value {
			continue
		}
		outer := nestedset.Bounds{Left: p.Left, Right: p.Right}
		return func(r *Row) bool {
			return nestedset.Contains(outer, r.PropertyBounds())
		}
	}
	return never
}

// tagToken matches rows whose aggregated tag string holds name as a whole
// comma-delimited token. Untagged rows never match.
func tagToken(name string) Predicate {
	if name == "" {
		return never
	}
	re := regexp.MustCompile(`(^|,)` + regexp.QuoteMeta(name) + `(,|$)`)
	return func(r *Row) bool {
		return re.MatchString(r.Tags)
	}
}

// Apply returns the rows passing every filter. Filters conjoin.
func (a *Applicator) Apply(rows []Row, filters []Filter) []Row {
	preds := make([]Predicate, 0, len(filters))
	for _, f := range filters {
		preds = append(preds, a.Compile(f))
	}
	out := make([]Row, 0, len(rows))
next:
	for i := range rows {
		for _, p := range preds {
			if !p(&rows[i]) {
				continue next
			}
		}
		out = append(out, rows[i])
	}
	return out
}

// Select builds the joined view from v and applies filters to it.
func Select(v domain.TransactionView, registry *Registry, filters []Filter) []Row {
	rows := BuildView(v)
	return NewApplicator(registry, v.ListCompoundProperties()).Apply(rows, filters)
}
