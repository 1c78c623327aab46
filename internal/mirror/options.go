package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Options — тайминги и параметры зеркалирования.
type Options struct {
	AlbumWindow       time.Duration // окно сбора альбома от первого сообщения
	EditSettle        time.Duration // пауза перед обработкой правки
	EchoWindow        time.Duration // правки моложе этого после нашей публикации считаются эхом
	ApprovalTTL       time.Duration // 0 — запросы не истекают
	GroupSearchRadius int           // полуширина окна ID при восстановлении состава альбома
	StagingDir        string
	PostURL           func(postID string) string
	Now               func() time.Time
}

// DefaultOptions возвращает значения, с которыми работает бот в проде.
func DefaultOptions() Options {
	return Options{
		AlbumWindow:       5 * time.Second,
		EditSettle:        2 * time.Second,
		EchoWindow:        10 * time.Second,
		GroupSearchRadius: 10,
		StagingDir:        filepath.Join(os.TempDir(), "tg2x"),
	}
}

func (o *Options) normalize() {
	def := DefaultOptions()
	if o.AlbumWindow <= 0 {
		o.AlbumWindow = def.AlbumWindow
	}
	if o.EditSettle < 0 {
		o.EditSettle = 0
	}
	if o.EchoWindow <= 0 {
		o.EchoWindow = def.EchoWindow
	}
	if o.GroupSearchRadius <= 0 {
		o.GroupSearchRadius = def.GroupSearchRadius
	}
	if o.StagingDir == "" {
		o.StagingDir = def.StagingDir
	}
	if o.PostURL == nil {
		o.PostURL = func(id string) string { return fmt.Sprintf("https://x.com/i/web/status/%s", id) }
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}
