package mirror

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tg2x_go/models"
	"tg2x_go/pkg/media"
)

var errNoItems = errors.New("nothing to publish")

// ExecuteSinglePost публикует одно сообщение. previousDestID, если задан,
// удаляется перед публикацией; ошибка удаления не мешает публикации.
func (o *Orchestrator) ExecuteSinglePost(ctx context.Context, item models.SourceItem, previousDestID string) (string, error) {
	return o.execute(ctx, []models.SourceItem{item}, item.Text, previousDestID)
}

// ExecuteAlbumPost публикует альбом одним постом. Текст берётся из первого
// сообщения с непустым текстом, все сообщения альбома указывают на один пост.
func (o *Orchestrator) ExecuteAlbumPost(ctx context.Context, items []models.SourceItem, previousDestID string) (string, error) {
	if len(items) == 0 {
		return "", errNoItems
	}
	return o.execute(ctx, items, models.FirstText(items), previousDestID)
}

func (o *Orchestrator) execute(ctx context.Context, items []models.SourceItem, text, previousDestID string) (string, error) {
	ids := models.ItemIDs(items)
	log := o.log.WithFields(logrus.Fields{
		"attempt":    uuid.NewString(),
		"source_ids": ids,
	})

	if previousDestID != "" {
		if err := o.pub.DeletePost(ctx, previousDestID); err != nil {
			log.WithError(err).WithField("dest_id", previousDestID).Warn("delete previous post")
		} else {
			o.metrics.IncDeleted()
			log.WithField("dest_id", previousDestID).Info("previous post deleted")
		}
	}

	quoteID := o.quoteTarget(items)

	var paths []string
	stage, err := media.NewStage(o.opts.StagingDir)
	if err != nil {
		log.WithError(err).Warn("create staging dir, publishing without media")
	} else {
		defer func() {
			if err := stage.Release(); err != nil {
				log.WithError(err).Warn("release staged media")
			}
		}()
		o.stageMedia(ctx, log, stage, items)
		paths = stage.Paths()
	}

	destID, err := o.pub.PostThread(ctx, text, paths, quoteID)
	if err != nil {
		log.WithError(err).Error("publish failed")
		o.metrics.IncPublishFailure()
		o.op.Notify(ctx, LevelError, fmt.Sprintf("Failed to publish source message(s) %s: %v", joinIDs(ids), err))
		return "", err
	}

	o.published.Add(1)
	o.metrics.IncPublished()
	if err := o.idmap.Set(ids, destID); err != nil {
		log.WithError(err).WithField("dest_id", destID).Error("persist id map")
	}
	o.mark(ids)
	log.WithFields(logrus.Fields{"dest_id": destID, "media": len(paths)}).Info("published")
	o.op.Notify(ctx, LevelSuccess, fmt.Sprintf("Published %s: %s", joinIDs(ids), o.opts.PostURL(destID)))
	return destID, nil
}

// stageMedia скачивает вложения; файл, который не удалось скачать, пропускается.
func (o *Orchestrator) stageMedia(ctx context.Context, log *logrus.Entry, stage *media.Stage, items []models.SourceItem) {
	for _, it := range items {
		for _, m := range it.Media {
			if ctx.Err() != nil {
				return
			}
			path, err := o.src.DownloadMedia(ctx, m, stage.Dir())
			if err != nil {
				log.WithError(err).WithFields(logrus.Fields{"source_id": it.ID, "kind": m.Kind}).Warn("download media, skipping")
				continue
			}
			stage.Add(path)
		}
	}
}

// quoteTarget — пост, опубликованный для сообщения, на которое отвечает пачка.
func (o *Orchestrator) quoteTarget(items []models.SourceItem) string {
	for _, it := range items {
		if it.ReplyTo == 0 {
			continue
		}
		if dest, ok := o.idmap.Get(it.ReplyTo); ok {
			return dest
		}
	}
	return ""
}
