package mirror

import (
	"context"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
)

// HandleDeletedItems отменяет ожидающие правки удалённых сообщений и в фоне
// удаляет их посты.
func (o *Orchestrator) HandleDeletedItems(ids []int) {
	ids = slices.Clone(ids)
	for _, id := range ids {
		o.tasks.Cancel(editKey(id))
	}
	o.tasks.Go("delete", func() { o.SyncDeleted(o.ctx, ids) })
}

// SyncDeleted удаляет посты удалённых сообщений и возвращает число удалённых постов.
// Пост, общий для нескольких сообщений, удаляется один раз; записи остальных
// сообщений альбома не трогаются.
func (o *Orchestrator) SyncDeleted(ctx context.Context, ids []int) int {
	confirmed := make(map[string]bool)
	deleted := 0
	for _, id := range ids {
		dest, ok := o.idmap.Get(id)
		if !ok {
			continue
		}
		log := o.log.WithFields(logrus.Fields{"source_id": id, "dest_id": dest})

		done, tried := confirmed[dest]
		if !tried {
			err := o.pub.DeletePost(ctx, dest)
			done = err == nil
			confirmed[dest] = done
			if err != nil {
				log.WithError(err).Warn("delete post")
				o.op.Notify(ctx, LevelWarning, fmt.Sprintf("Could not delete X post %s for deleted message #%d: %v", dest, id, err))
				continue
			}
			deleted++
			o.metrics.IncDeleted()
			log.Info("post deleted")
			o.op.Notify(ctx, LevelInfo, fmt.Sprintf("🗑 Deleted X post %s (source #%d)", dest, id))
		}
		if !done {
			continue
		}
		if err := o.idmap.Delete(id); err != nil {
			log.WithError(err).Error("persist id map")
		}
	}
	return deleted
}
