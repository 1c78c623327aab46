package mirror

import (
	"context"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"tg2x_go/models"
)

func editKey(id int) string { return fmt.Sprintf("edit:%d", id) }

// HandleEditedItem планирует синхронизацию правки. Эхо собственных публикаций
// отбрасывается, а новая правка того же сообщения заменяет ещё не выполненную.
func (o *Orchestrator) HandleEditedItem(item models.SourceItem) {
	log := o.log.WithField("source_id", item.ID)
	if o.recentlyPublished(item.ID) {
		log.Debug("ignoring echo of our own publish")
		return
	}
	o.tasks.Schedule(o.ctx, editKey(item.ID), o.opts.EditSettle, func(ctx context.Context) {
		o.syncEdit(ctx, item)
	})
}

func (o *Orchestrator) syncEdit(ctx context.Context, item models.SourceItem) {
	log := o.log.WithField("source_id", item.ID)
	oldDest, ok := o.idmap.Get(item.ID)
	if !ok {
		log.Debug("edited message was never published")
		return
	}

	var (
		items []models.SourceItem
		err   error
	)
	if item.Grouped() {
		items, err = o.groupMembers(ctx, item)
	} else {
		items, err = o.src.FetchItems(ctx, []int{item.ID})
	}
	if err != nil {
		log.WithError(err).Warn("re-read edited message")
		return
	}
	if len(items) == 0 {
		log.Info("edited message is gone")
		return
	}

	// после чтения канала задача могла быть заменена, а пост удалён
	if ctx.Err() != nil {
		return
	}
	if cur, ok := o.idmap.Get(item.ID); !ok || cur != oldDest {
		log.Debug("mapping changed while syncing edit")
		return
	}

	o.metrics.IncEditRequested()
	log.WithFields(logrus.Fields{"dest_id": oldDest, "items": len(items)}).Info("edit detected")
	o.submit(o.newRequest(models.ApprovalEdit, items, oldDest))
}

// groupMembers восстанавливает состав альбома по окну ID вокруг item.
func (o *Orchestrator) groupMembers(ctx context.Context, item models.SourceItem) ([]models.SourceItem, error) {
	r := o.opts.GroupSearchRadius
	from := max(item.ID-r, 1)
	window, err := o.src.FetchRange(ctx, from, item.ID+r)
	if err != nil {
		return nil, err
	}
	members := slices.DeleteFunc(window, func(it models.SourceItem) bool { return it.GroupID != item.GroupID })
	if !slices.ContainsFunc(members, func(it models.SourceItem) bool { return it.ID == item.ID }) {
		members = append(members, item)
	}
	slices.SortFunc(members, func(x, y models.SourceItem) int { return x.ID - y.ID })
	return members, nil
}
