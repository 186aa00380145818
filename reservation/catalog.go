package reservation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reservations/entities"

	"github.com/samber/lo"
)

type CatalogSource interface {
	ListShows(ctx context.Context, from time.Time) ([]entities.Show, error)
	ListPriceOptions(ctx context.Context) ([]entities.PriceOption, error)
}

// Snapshot is a point-in-time read of shows and price options. It is only
// used to build the choices offered to a user; seat mutations always re-read
// the show from the store.
type Snapshot struct {
	Shows    []entities.Show
	Options  []entities.PriceOption
	LoadedAt time.Time
}

// Dates returns the distinct show dates in catalog order.
func (s Snapshot) Dates() []string {
	return lo.Uniq(lo.Map(s.Shows, func(show entities.Show, _ int) string {
		return show.DateKey()
	}))
}

func (s Snapshot) ShowsOn(date string) []entities.Show {
	return lo.Filter(s.Shows, func(show entities.Show, _ int) bool {
		return show.DateKey() == date
	})
}

func (s Snapshot) Show(showID int) (entities.Show, bool) {
	return lo.Find(s.Shows, func(show entities.Show) bool {
		return show.ShowID == showID
	})
}

func (s Snapshot) Option(optionID int) (entities.PriceOption, bool) {
	return lo.Find(s.Options, func(option entities.PriceOption) bool {
		return option.OptionID == optionID
	})
}

// OptionsFitting keeps the options the show still has capacity for.
func OptionsFitting(show entities.Show, options []entities.PriceOption) []entities.PriceOption {
	return lo.Filter(options, func(option entities.PriceOption, _ int) bool {
		return CheckCapacity(show, option)
	})
}

// Catalog caches a Snapshot for at most maxAge. A zero maxAge reloads on
// every call.
type Catalog struct {
	source CatalogSource
	maxAge time.Duration
	now    func() time.Time

	mu       sync.Mutex
	snapshot Snapshot
	loaded   bool
}

func NewCatalog(source CatalogSource, maxAge time.Duration) *Catalog {
	if source == nil {
		panic("catalog source is nil")
	}

	return &Catalog{
		source: source,
		maxAge: maxAge,
		now:    time.Now,
	}
}

func (c *Catalog) Refresh(ctx context.Context) (Snapshot, error) {
	now := c.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	shows, err := c.source.ListShows(ctx, today)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: could not list shows: %w", entities.ErrStoreUnavailable, err)
	}

	options, err := c.source.ListPriceOptions(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: could not list price options: %w", entities.ErrStoreUnavailable, err)
	}

	snapshot := Snapshot{Shows: shows, Options: options, LoadedAt: now}

	c.mu.Lock()
	c.snapshot = snapshot
	c.loaded = true
	c.mu.Unlock()

	return snapshot, nil
}

func (c *Catalog) Snapshot(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	snapshot, loaded := c.snapshot, c.loaded
	c.mu.Unlock()

	if loaded && c.now().Sub(snapshot.LoadedAt) < c.maxAge {
		return snapshot, nil
	}

	return c.Refresh(ctx)
}
