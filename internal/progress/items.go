package progress

import (
	"math"
	"sync"
)

// ItemStatus is the download state of one model resource.
type ItemStatus string

const (
	ItemDownloading ItemStatus = "downloading"
	ItemDone        ItemStatus = "done"
)

// Item is one model file being fetched during model load.
type Item struct {
	ResourceID string     `json:"resourceId"`
	Name       string     `json:"name"`
	Percent    float64    `json:"percent"`
	Loaded     int64      `json:"bytesLoaded"`
	Total      int64      `json:"bytesTotal"`
	Status     ItemStatus `json:"status"`
}

// Items aggregates per-resource download progress, ordered by first sight.
// The zero value is ready to use.
type Items struct {
	mu    sync.Mutex
	order []string
	byID  map[string]*Item
}

// Update records progress for resourceID and returns the updated item. Percent
// never decreases for a resource; a resource at 100% is marked done.
func (i *Items) Update(resourceID, name string, percent float64, loaded, total int64) Item {
	if resourceID == "" {
		resourceID = name
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.byID == nil {
		i.byID = make(map[string]*Item)
	}
	item, ok := i.byID[resourceID]
	if !ok {
		item = &Item{ResourceID: resourceID, Status: ItemDownloading}
		i.byID[resourceID] = item
		i.order = append(i.order, resourceID)
	}
	if name != "" {
		item.Name = name
	}
	if total > 0 {
		item.Total = total
	}
	if loaded > item.Loaded {
		item.Loaded = loaded
	}
	if percent <= 0 && item.Total > 0 {
		percent = float64(item.Loaded) / float64(item.Total) * 100
	}
	item.Percent = math.Max(item.Percent, math.Min(percent, 100))
	if item.Percent >= 100 {
		item.Status = ItemDone
	}
	return *item
}

// Done marks resourceID complete.
func (i *Items) Done(resourceID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if item, ok := i.byID[resourceID]; ok {
		item.Percent = 100
		if item.Total > 0 {
			item.Loaded = item.Total
		}
		item.Status = ItemDone
	}
}

// Snapshot returns a copy of all items in first-seen order.
func (i *Items) Snapshot() []Item {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Item, 0, len(i.order))
	for _, id := range i.order {
		out = append(out, *i.byID[id])
	}
	return out
}

// Overall returns byte-weighted progress across all items, falling back to
// the mean percent when sizes are unknown.
func (i *Items) Overall() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.order) == 0 {
		return 0
	}
	var loaded, total int64
	var sum float64
	for _, id := range i.order {
		item := i.byID[id]
		loaded += item.Loaded
		total += item.Total
		sum += item.Percent
	}
	if total > 0 {
		return math.Min(float64(loaded)/float64(total)*100, 100)
	}
	return sum / float64(len(i.order))
}

// Reset forgets every item.
func (i *Items) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.order = nil
	i.byID = nil
}
