package mirror

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"tg2x_go/models"
)

// openBatch — альбом, который ещё собирается.
type openBatch struct {
	items []models.SourceItem
}

// Aggregator собирает части альбома по GroupID.
// Окно отсчитывается от первого сообщения группы и не продлевается последующими.
// По истечении окна пачка атомарно изымается из набора открытых, сортируется по ID,
// очищается от уже известных сообщений (опубликованных, ждущих решения или
// публикуемых прямо сейчас) и, если не пуста, передаётся в ready.
type Aggregator struct {
	window time.Duration
	tasks  *taskGroup
	ctx    context.Context
	seen   func(id int) bool
	ready  func(groupID int64, items []models.SourceItem)

	mu   sync.Mutex
	open map[int64]*openBatch
}

func newAggregator(ctx context.Context, tasks *taskGroup, window time.Duration, seen func(int) bool, ready func(int64, []models.SourceItem)) *Aggregator {
	return &Aggregator{
		window: window,
		tasks:  tasks,
		ctx:    ctx,
		seen:   seen,
		ready:  ready,
		open:   make(map[int64]*openBatch),
	}
}

// Add добавляет сообщение в открытую пачку группы или открывает новую.
// Возвращает true, если пачка была открыта этим сообщением.
func (a *Aggregator) Add(item models.SourceItem) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if b, ok := a.open[item.GroupID]; ok {
		for _, it := range b.items {
			if it.ID == item.ID {
				return false
			}
		}
		b.items = append(b.items, item)
		return false
	}

	b := &openBatch{items: []models.SourceItem{item}}
	a.open[item.GroupID] = b
	gid := item.GroupID
	a.tasks.Schedule(a.ctx, albumKey(gid), a.window, func(context.Context) {
		a.expire(gid, b)
	})
	return true
}

// Open возвращает число собирающихся альбомов.
func (a *Aggregator) Open() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.open)
}

func (a *Aggregator) expire(gid int64, b *openBatch) {
	a.mu.Lock()
	cur, ok := a.open[gid]
	if !ok || cur != b {
		a.mu.Unlock()
		return
	}
	delete(a.open, gid)
	items := slices.Clone(b.items)
	a.mu.Unlock()

	slices.SortFunc(items, func(x, y models.SourceItem) int { return x.ID - y.ID })
	items = slices.DeleteFunc(items, func(it models.SourceItem) bool { return a.seen(it.ID) })
	if len(items) == 0 {
		return
	}
	a.ready(gid, items)
}

func albumKey(gid int64) string { return fmt.Sprintf("album:%d", gid) }
