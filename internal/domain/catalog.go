package domain

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"

	"example.com/gymlog/internal/events"
	"example.com/gymlog/internal/observability"
)

// NameCache caches the sorted catalog listing between writes.
//
// Names reports the cache generation alongside a miss. StoreNames must drop
// the listing when Invalidate has advanced the generation since that read, so
// a listing read from the store before a concurrent Register commits never
// outlives the invalidation.
type NameCache interface {
	Names(ctx context.Context) (names []string, generation int64, hit bool, err error)
	StoreNames(ctx context.Context, names []string, generation int64) error
	Invalidate(ctx context.Context) error
}

// Catalog maintains the set of known exercise names.
type Catalog struct {
	store Store
	cache NameCache
}

// NewCatalog constructs a Catalog. cache may be nil.
func NewCatalog(store Store, cache NameCache) *Catalog {
	return &Catalog{store: store, cache: cache}
}

// Register adds names to the catalog and returns them normalized and sorted.
// The batch is rejected as a whole if any name already exists.
func (c *Catalog) Register(ctx context.Context, names []string) ([]string, error) {
	normalized := NormalizeExerciseNames(names)
	if len(normalized) == 0 {
		return nil, &ValidationError{Field: "exercises", Message: "at least one exercise name is required"}
	}

	err := c.store.InTx(ctx, func(tx Tx) error {
		existing, err := tx.ExistingExercises(ctx, normalized)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			sort.Strings(existing)
			return &DuplicateExerciseError{Name: existing[0]}
		}
		if err := tx.InsertExercises(ctx, normalized); err != nil {
			return err
		}
		return tx.Emit(ctx, events.NewExercisesRegistered(events.ExercisesRegistered{
			Names:      normalized,
			OccurredAt: time.Now().UTC(),
		}))
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Invalidate(ctx); err != nil {
			observability.RecordCacheError("invalidate")
		}
	}
	observability.RecordExercisesRegistered(len(normalized))
	return normalized, nil
}

// List returns every exercise name in byte order.
func (c *Catalog) List(ctx context.Context) ([]string, error) {
	cacheable := false
	var generation int64
	if c.cache != nil {
		names, gen, ok, err := c.cache.Names(ctx)
		if err != nil {
			observability.RecordCacheError("read")
		} else if ok {
			return names, nil
		} else {
			cacheable, generation = true, gen
		}
	}

	names, err := c.store.ListExercises(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	if cacheable {
		if err := c.cache.StoreNames(ctx, names, generation); err != nil {
			observability.RecordCacheError("write")
		}
	}
	return names, nil
}

// NormalizeExerciseNames normalizes, drops empties, deduplicates and sorts names.
func NormalizeExerciseNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		n := NormalizeExerciseName(name)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// NormalizeExerciseName trims name, collapses internal whitespace and title-cases
// it: a letter is upper-cased when the preceding rune is not a letter.
func NormalizeExerciseName(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		words[i] = titleCase(w)
	}
	return strings.Join(words, " ")
}

func titleCase(word string) string {
	var b strings.Builder
	b.Grow(len(word))
	prevLetter := false
	for _, r := range word {
		if prevLetter {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(unicode.ToTitle(r))
		}
		prevLetter = unicode.IsLetter(r)
	}
	return b.String()
}
