package mirror

import (
	"context"
	"errors"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"tg2x_go/models"
)

func TestAlbumCollectedSortedAndPublishedOnce(t *testing.T) {
	items := []models.SourceItem{
		{ID: 101, GroupID: 77, Media: []models.Media{photo("a.jpg")}},
		{ID: 102, GroupID: 77, Media: []models.Media{photo("b.jpg")}},
		{ID: 103, GroupID: 77, Text: "caption here", Media: []models.Media{photo("c.jpg")}},
	}
	env := newTestEnv(t, nil, items...)

	// порядок доставки не гарантирован
	env.o.HandleNewItem(items[2])
	env.o.HandleNewItem(items[0])
	env.o.HandleNewItem(items[1])

	p := env.waitPrompt(t)
	if got := p.Buttons[0].Data; got != "approve_post_album_101" {
		t.Fatalf("токен кнопки: %q", got)
	}
	pending := env.o.Pending()
	if len(pending) != 1 {
		t.Fatalf("ожидался один запрос, получено %d", len(pending))
	}
	if !slices.Equal(pending[0].ItemIDs, []int{101, 102, 103}) {
		t.Fatalf("пачка не отсортирована: %v", pending[0].ItemIDs)
	}
	if pending[0].Preview != "caption here" {
		t.Fatalf("превью: %q", pending[0].Preview)
	}

	out, err := env.o.Resolve(context.Background(), models.ApprovalNew, 101, ActionApprove, p.ID)
	if err != nil || out != OutcomePublished {
		t.Fatalf("решение: %v %v", out, err)
	}
	posts := env.pub.Posts()
	if len(posts) != 1 {
		t.Fatalf("ожидался один пост, получено %d", len(posts))
	}
	if posts[0].Text != "caption here" {
		t.Fatalf("текст поста: %q", posts[0].Text)
	}
	if !slices.Equal(posts[0].Media, []string{"a.jpg", "b.jpg", "c.jpg"}) {
		t.Fatalf("медиа: %v", posts[0].Media)
	}
	for _, id := range []int{101, 102, 103} {
		if dest, ok := env.ids.Get(id); !ok || dest != "P1" {
			t.Fatalf("карта для %d: %q %v", id, dest, ok)
		}
	}
	if st := env.o.Stats(); st.Published != 1 || st.Mapped != 3 || st.PendingPosts != 0 {
		t.Fatalf("статистика: %+v", st)
	}
	entries, err := os.ReadDir(env.stage)
	if err != nil || len(entries) != 0 {
		t.Fatalf("временные файлы не удалены: %v %v", entries, err)
	}
}

func TestSecondResolutionIsNoop(t *testing.T) {
	env := newTestEnv(t, nil, models.SourceItem{ID: 5, Text: "hello"})
	env.o.HandleNewItem(models.SourceItem{ID: 5, Text: "hello"})
	p := env.waitPrompt(t)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []Outcome
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, _ := env.o.Resolve(context.Background(), models.ApprovalNew, 5, ActionApprove, p.ID)
			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
		}()
	}
	wg.Wait()

	slices.Sort(outcomes)
	if !slices.Equal(outcomes, []Outcome{OutcomeExpired, OutcomePublished}) {
		t.Fatalf("исходы: %v", outcomes)
	}
	if n := len(env.pub.Posts()); n != 1 {
		t.Fatalf("пост опубликован %d раз", n)
	}
	if !slices.Contains(env.op.Edits(p.ID), promptExpired) {
		t.Fatalf("повторное решение не отмечено: %v", env.op.Edits(p.ID))
	}
}

func TestRedeliveryDoesNotCreateRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := env.ids.Set([]int{9}, "P0"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	env.o.HandleNewItem(models.SourceItem{ID: 9, Text: "old"})
	env.o.HandleNewItem(models.SourceItem{ID: 9, GroupID: 3, Text: "old"})
	env.noPrompt(t)

	env.o.HandleNewItem(models.SourceItem{ID: 10, Text: "new"})
	env.waitPrompt(t)
	env.o.HandleNewItem(models.SourceItem{ID: 10, Text: "new"})
	env.noPrompt(t)
	if n := len(env.o.Pending()); n != 1 {
		t.Fatalf("ожидался один запрос, получено %d", n)
	}
}

func TestEditRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil, models.SourceItem{ID: 7, Text: "first"})
	ctx := context.Background()

	env.o.HandleNewItem(models.SourceItem{ID: 7, Text: "first"})
	p := env.waitPrompt(t)
	if out, err := env.o.Resolve(ctx, models.ApprovalNew, 7, ActionApprove, p.ID); out != OutcomePublished {
		t.Fatalf("публикация: %v %v", out, err)
	}

	env.clock.Advance(11 * time.Second)
	edited := models.SourceItem{ID: 7, Text: "second"}
	env.src.Put(edited)
	env.o.HandleEditedItem(edited)

	ep := env.waitPrompt(t)
	if !strings.Contains(ep.Text, "Replaces X post: P1") {
		t.Fatalf("текст запроса правки: %q", ep.Text)
	}
	if ep.Buttons[0].Data != "approve_edit_single_7" {
		t.Fatalf("токен: %q", ep.Buttons[0].Data)
	}

	out, err := env.o.Resolve(ctx, models.ApprovalEdit, 7, ActionApprove, ep.ID)
	if err != nil || out != OutcomePublished {
		t.Fatalf("правка: %v %v", out, err)
	}
	if got := env.pub.Deletes(); !slices.Equal(got, []string{"P1"}) {
		t.Fatalf("удаления: %v", got)
	}
	if dest, _ := env.ids.Get(7); dest != "P2" {
		t.Fatalf("карта после правки: %q", dest)
	}
	if posts := env.pub.Posts(); posts[1].Text != "second" {
		t.Fatalf("текст нового поста: %q", posts[1].Text)
	}
}

func TestGhostEditIgnored(t *testing.T) {
	env := newTestEnv(t, nil, models.SourceItem{ID: 7, Text: "first"})
	env.o.HandleNewItem(models.SourceItem{ID: 7, Text: "first"})
	p := env.waitPrompt(t)
	env.o.Resolve(context.Background(), models.ApprovalNew, 7, ActionApprove, p.ID)

	env.clock.Advance(3 * time.Second)
	env.o.HandleEditedItem(models.SourceItem{ID: 7, Text: "first"})
	env.noPrompt(t)
	if n := env.src.Fetches(7); n != 1 {
		t.Fatalf("эхо правки прочитало канал: %d", n)
	}
}

func TestNewestEditReplacesOldest(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.EditSettle = 80 * time.Millisecond },
		models.SourceItem{ID: 7, Text: "v3"})
	env.ids.Set([]int{7}, "P0")

	env.o.HandleEditedItem(models.SourceItem{ID: 7, Text: "v2"})
	env.o.HandleEditedItem(models.SourceItem{ID: 7, Text: "v3"})
	env.waitPrompt(t)
	env.noPrompt(t)

	if n := env.src.Fetches(7); n != 1 {
		t.Fatalf("синхронизация правки выполнена %d раз", n)
	}
}

func TestGroupedEditRebuildsMembership(t *testing.T) {
	env := newTestEnv(t, nil,
		models.SourceItem{ID: 100, Text: "unrelated"},
		models.SourceItem{ID: 101, GroupID: 77},
		models.SourceItem{ID: 102, GroupID: 77, Text: "new caption"},
		models.SourceItem{ID: 103, GroupID: 77},
		models.SourceItem{ID: 104, GroupID: 88},
	)
	env.ids.Set([]int{101, 102, 103}, "P9")

	env.o.HandleEditedItem(models.SourceItem{ID: 102, GroupID: 77, Text: "new caption"})
	first := env.waitPrompt(t)

	pending := env.o.Pending()
	if len(pending) != 1 {
		t.Fatalf("ожидался один запрос, получено %d", len(pending))
	}
	req := pending[0]
	if req.Kind != models.ApprovalEdit || req.Anchor != 101 || !req.Album || req.OldDestID != "P9" {
		t.Fatalf("запрос правки: %+v", req)
	}
	if !slices.Equal(req.ItemIDs, []int{101, 102, 103}) {
		t.Fatalf("состав альбома: %v", req.ItemIDs)
	}

	// правка другой части того же альбома заменяет запрос
	env.o.HandleEditedItem(models.SourceItem{ID: 103, GroupID: 77})
	env.waitPrompt(t)
	if n := len(env.o.Pending()); n != 1 {
		t.Fatalf("запросы правки накопились: %d", n)
	}
	if !slices.Contains(env.op.Edits(first.ID), promptSuperseded) {
		t.Fatalf("старый запрос не помечен: %v", env.op.Edits(first.ID))
	}
}

func TestDeleteSyncSharedPost(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.ids.Set([]int{101, 102, 103}, "P9")

	if n := env.o.SyncDeleted(ctx, []int{101, 500}); n != 1 {
		t.Fatalf("удалено постов: %d", n)
	}
	if got := env.pub.Deletes(); !slices.Equal(got, []string{"P9"}) {
		t.Fatalf("удаления: %v", got)
	}
	if _, ok := env.ids.Get(101); ok {
		t.Fatal("запись удалённого сообщения осталась")
	}
	if dest, ok := env.ids.Get(102); !ok || dest != "P9" {
		t.Fatalf("запись соседа изменена: %q %v", dest, ok)
	}
	if len(env.op.Notes(LevelInfo)) != 1 {
		t.Fatalf("уведомления: %v", env.op.Notes(LevelInfo))
	}
}

func TestDeleteSyncOneCallPerPost(t *testing.T) {
	env := newTestEnv(t, nil)
	env.ids.Set([]int{101, 102, 103}, "P9")

	env.o.SyncDeleted(context.Background(), []int{101, 102, 103})
	if got := env.pub.Deletes(); !slices.Equal(got, []string{"P9"}) {
		t.Fatalf("удаления: %v", got)
	}
	if env.ids.Len() != 0 {
		t.Fatalf("в карте осталось %d записей", env.ids.Len())
	}
}

func TestDeleteFailureKeepsMapping(t *testing.T) {
	env := newTestEnv(t, nil)
	env.pub.deleteErr = errors.New("rate limited")
	env.ids.Set([]int{1, 2}, "P5")

	if n := env.o.SyncDeleted(context.Background(), []int{1, 2}); n != 0 {
		t.Fatalf("удалено постов: %d", n)
	}
	if len(env.pub.Deletes()) != 1 {
		t.Fatalf("повторный вызов удаления: %v", env.pub.Deletes())
	}
	if env.ids.Len() != 2 {
		t.Fatalf("записи удалены без подтверждения: %d", env.ids.Len())
	}
	if len(env.op.Notes(LevelWarning)) != 1 {
		t.Fatalf("предупреждения: %v", env.op.Notes(LevelWarning))
	}
}

func TestDeleteCancelsPendingEdit(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.EditSettle = 200 * time.Millisecond },
		models.SourceItem{ID: 7, Text: "x"})
	env.ids.Set([]int{7}, "P0")

	env.o.HandleEditedItem(models.SourceItem{ID: 7, Text: "x"})
	env.o.HandleDeletedItems([]int{7})
	env.noPrompt(t)

	if got := env.pub.Deletes(); !slices.Equal(got, []string{"P0"}) {
		t.Fatalf("удаления: %v", got)
	}
	if env.src.Fetches(7) != 0 {
		t.Fatal("правка удалённого сообщения всё равно обработана")
	}
}

func TestPublishFailureLeavesMapUntouched(t *testing.T) {
	env := newTestEnv(t, nil, models.SourceItem{ID: 3, Text: "t", Media: []models.Media{photo("p.jpg")}})
	env.pub.postErr = errors.New("403 forbidden")

	env.o.HandleNewItem(models.SourceItem{ID: 3, Text: "t"})
	p := env.waitPrompt(t)
	out, err := env.o.Resolve(context.Background(), models.ApprovalNew, 3, ActionApprove, p.ID)
	if out != OutcomeFailed || err == nil {
		t.Fatalf("ожидалась ошибка публикации: %v %v", out, err)
	}
	if env.ids.Len() != 0 {
		t.Fatal("карта изменена после ошибки")
	}
	if len(env.op.Notes(LevelError)) != 1 {
		t.Fatalf("уведомление об ошибке: %v", env.op.Notes(LevelError))
	}
	if entries, _ := os.ReadDir(env.stage); len(entries) != 0 {
		t.Fatalf("временные файлы не удалены: %v", entries)
	}
}

func TestMediaDownloadFailureSkipsFile(t *testing.T) {
	item := models.SourceItem{ID: 4, Text: "t", Media: []models.Media{photo("ok.jpg"), photo("bad.jpg")}}
	env := newTestEnv(t, nil, item)
	env.src.badMedia["bad.jpg"] = true

	if _, err := env.o.ExecuteSinglePost(context.Background(), item, ""); err != nil {
		t.Fatalf("публикация: %v", err)
	}
	env.src.badMedia["ok.jpg"] = true
	if _, err := env.o.ExecuteSinglePost(context.Background(), item, ""); err != nil {
		t.Fatalf("публикация без медиа: %v", err)
	}

	posts := env.pub.Posts()
	if !slices.Equal(posts[0].Media, []string{"ok.jpg"}) {
		t.Fatalf("медиа первой попытки: %v", posts[0].Media)
	}
	if len(posts[1].Media) != 0 || posts[1].Text != "t" {
		t.Fatalf("ожидался пост только с текстом: %+v", posts[1])
	}
}

func TestPreviousPostDeleteFailureDoesNotAbort(t *testing.T) {
	item := models.SourceItem{ID: 4, Text: "t"}
	env := newTestEnv(t, nil, item)
	env.pub.deleteErr = errors.New("not found")

	dest, err := env.o.ExecuteSinglePost(context.Background(), item, "OLD")
	if err != nil || dest != "P1" {
		t.Fatalf("публикация: %q %v", dest, err)
	}
	if dest, _ := env.ids.Get(4); dest != "P1" {
		t.Fatalf("карта: %q", dest)
	}
}

func TestCancelHasNoSideEffects(t *testing.T) {
	env := newTestEnv(t, nil, models.SourceItem{ID: 8, Text: "t"})
	env.o.HandleNewItem(models.SourceItem{ID: 8, Text: "t"})
	p := env.waitPrompt(t)

	out, err := env.o.Resolve(context.Background(), models.ApprovalNew, 8, ActionCancel, p.ID)
	if err != nil || out != OutcomeCancelled {
		t.Fatalf("отмена: %v %v", out, err)
	}
	if len(env.pub.Posts()) != 0 || env.ids.Len() != 0 {
		t.Fatal("отмена что-то опубликовала")
	}
	if !slices.Contains(env.op.Edits(p.ID), promptCancelled) {
		t.Fatalf("запрос не помечен отменённым: %v", env.op.Edits(p.ID))
	}
}

func TestApproveMissingItems(t *testing.T) {
	env := newTestEnv(t, nil, models.SourceItem{ID: 8, Text: "t"})
	env.o.HandleNewItem(models.SourceItem{ID: 8, Text: "t"})
	p := env.waitPrompt(t)
	env.src.Remove(8)

	out, err := env.o.Resolve(context.Background(), models.ApprovalNew, 8, ActionApprove, p.ID)
	if err != nil || out != OutcomeMissing {
		t.Fatalf("ожидался OutcomeMissing: %v %v", out, err)
	}
	if !slices.Contains(env.op.Edits(p.ID), promptMissing) {
		t.Fatalf("правки запроса: %v", env.op.Edits(p.ID))
	}
}

func TestReplyBecomesQuote(t *testing.T) {
	item := models.SourceItem{ID: 51, Text: "reply", ReplyTo: 50}
	env := newTestEnv(t, nil, item)
	env.ids.Set([]int{50}, "Q1")

	if _, err := env.o.ExecuteSinglePost(context.Background(), item, ""); err != nil {
		t.Fatalf("публикация: %v", err)
	}
	if q := env.pub.Posts()[0].Quote; q != "Q1" {
		t.Fatalf("цитата: %q", q)
	}
}

func TestHandleCallback(t *testing.T) {
	env := newTestEnv(t, nil, models.SourceItem{ID: 12, Text: "t"})

	if err := env.o.HandleCallback(Callback{Data: "publish_now", SenderID: operatorID}); !errors.Is(err, ErrBadCallback) {
		t.Fatalf("ожидалась ErrBadCallback, получено %v", err)
	}
	if err := env.o.HandleCallback(Callback{Data: "approve_post_single_12", SenderID: 1}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("ожидалась ErrUnauthorized, получено %v", err)
	}

	env.o.HandleNewItem(models.SourceItem{ID: 12, Text: "t"})
	p := env.waitPrompt(t)
	if err := env.o.HandleCallback(Callback{Data: p.Buttons[0].Data, SenderID: operatorID, MessageID: p.ID}); err != nil {
		t.Fatalf("нажатие кнопки: %v", err)
	}
	env.o.Wait()
	if len(env.pub.Posts()) != 1 {
		t.Fatal("пост не опубликован")
	}
	if !slices.Contains(env.op.Edits(p.ID), "✅ Published: https://x.com/tester/status/P1") {
		t.Fatalf("правки запроса: %v", env.op.Edits(p.ID))
	}
}

func TestAlbumSkipsPublishedItems(t *testing.T) {
	env := newTestEnv(t, nil)
	env.ids.Set([]int{201}, "P0")

	env.o.HandleNewItem(models.SourceItem{ID: 202, GroupID: 5})
	env.o.albums.Add(models.SourceItem{ID: 201, GroupID: 5})
	env.waitPrompt(t)
	if ids := env.o.Pending()[0].ItemIDs; !slices.Equal(ids, []int{202}) {
		t.Fatalf("состав пачки: %v", ids)
	}

	env.o.albums.Add(models.SourceItem{ID: 201, GroupID: 6})
	env.noPrompt(t)
	if env.o.albums.Open() != 0 {
		t.Fatal("пустая пачка осталась открытой")
	}
}

func TestRedeliveryWhilePublishingIsIgnored(t *testing.T) {
	item := models.SourceItem{ID: 5, Text: "hello"}
	env := newTestEnv(t, nil, item)
	bp := env.blockPublishing()

	env.o.HandleNewItem(item)
	p := env.waitPrompt(t)
	done := env.resolveAsync(5, p.ID)
	bp.waitEntered(t)

	// пост ещё создаётся, в карте ID его нет
	if _, ok := env.ids.Get(5); ok {
		t.Fatal("карта ID заполнена до завершения публикации")
	}
	env.o.HandleNewItem(item)
	env.noPrompt(t)
	if n := len(env.o.Pending()); n != 0 {
		t.Fatalf("повторная доставка создала запрос: %d", n)
	}

	close(bp.release)
	if out := <-done; out != OutcomePublished {
		t.Fatalf("исход: %v", out)
	}
	env.o.HandleNewItem(item)
	env.noPrompt(t)
	if n := len(env.pub.Posts()); n != 1 {
		t.Fatalf("сообщение опубликовано %d раз", n)
	}
}

func TestApproveAlreadyPublishedItems(t *testing.T) {
	env := newTestEnv(t, nil, models.SourceItem{ID: 7, Text: "t"})
	env.o.HandleNewItem(models.SourceItem{ID: 7, Text: "t"})
	p := env.waitPrompt(t)

	// опубликовано другим путём, пока запрос ждал решения
	if err := env.ids.Set([]int{7}, "P0"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	out, err := env.o.Resolve(context.Background(), models.ApprovalNew, 7, ActionApprove, p.ID)
	if err != nil || out != OutcomeExpired {
		t.Fatalf("исход: %v %v", out, err)
	}
	if n := len(env.pub.Posts()); n != 0 {
		t.Fatalf("повторная публикация: %d", n)
	}
	if !slices.Contains(env.op.Edits(p.ID), promptDuplicate) {
		t.Fatalf("правки запроса: %v", env.op.Edits(p.ID))
	}
	if dest, _ := env.ids.Get(7); dest != "P0" {
		t.Fatalf("карта ID изменена: %q", dest)
	}
}

func TestLateAlbumPartDoesNotReopenAnchor(t *testing.T) {
	items := []models.SourceItem{
		{ID: 301, GroupID: 9, Text: "album"},
		{ID: 302, GroupID: 9},
		{ID: 303, GroupID: 9},
	}
	env := newTestEnv(t, nil, items...)
	bp := env.blockPublishing()

	env.o.HandleNewItem(items[0])
	env.o.HandleNewItem(items[1])
	p := env.waitPrompt(t)

	// таймер группы уже сработал, запрос ждёт решения
	env.o.HandleNewItem(items[0])
	env.o.albums.Add(items[1])
	env.noPrompt(t)
	if n := len(env.o.Pending()); n != 1 {
		t.Fatalf("ожидался один запрос, получено %d", n)
	}

	// опоздавшая часть той же группы получает свой anchor
	env.o.HandleNewItem(items[2])
	late := env.waitPrompt(t)
	if got := late.Buttons[0].Data; got != "approve_post_album_303" {
		t.Fatalf("токен опоздавшей части: %q", got)
	}
	pending := env.o.Pending()
	if len(pending) != 2 || pending[0].Anchor != 301 || pending[1].Anchor != 303 {
		t.Fatalf("запросы: %+v", pending)
	}
	if !slices.Equal(pending[0].ItemIDs, []int{301, 302}) {
		t.Fatalf("состав первой пачки: %v", pending[0].ItemIDs)
	}

	// пока альбом публикуется, повторные части не открывают запрос
	done := env.resolveAsync(301, p.ID)
	bp.waitEntered(t)
	env.o.HandleNewItem(items[0])
	env.o.albums.Add(items[1])
	env.noPrompt(t)
	if n := len(env.o.Pending()); n != 1 {
		t.Fatalf("во время публикации появились запросы: %d", n)
	}

	close(bp.release)
	if out := <-done; out != OutcomePublished {
		t.Fatalf("исход: %v", out)
	}
	env.o.HandleNewItem(items[1])
	env.noPrompt(t)
	if n := len(env.pub.Posts()); n != 1 {
		t.Fatalf("альбом опубликован %d раз", n)
	}
	for _, id := range []int{301, 302} {
		if dest, ok := env.ids.Get(id); !ok || dest != "P1" {
			t.Fatalf("карта для %d: %q %v", id, dest, ok)
		}
	}
}

func TestExpireStale(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.ApprovalTTL = time.Minute }, models.SourceItem{ID: 1, Text: "t"})
	ctx := context.Background()
	env.o.HandleNewItem(models.SourceItem{ID: 1, Text: "t"})
	p := env.waitPrompt(t)

	if n := env.o.ExpireStale(ctx, env.clock.Now()); n != 0 {
		t.Fatalf("истекло раньше времени: %d", n)
	}
	env.clock.Advance(2 * time.Minute)
	if n := env.o.ExpireStale(ctx, env.clock.Now()); n != 1 {
		t.Fatalf("истекло запросов: %d", n)
	}
	if !slices.Contains(env.op.Edits(p.ID), promptTimedOut) {
		t.Fatalf("правки запроса: %v", env.op.Edits(p.ID))
	}
	if out, _ := env.o.Resolve(ctx, models.ApprovalNew, 1, ActionApprove, p.ID); out != OutcomeExpired {
		t.Fatalf("решение после истечения: %v", out)
	}
}

func TestExpireStaleDisabledByDefault(t *testing.T) {
	env := newTestEnv(t, nil, models.SourceItem{ID: 1, Text: "t"})
	env.o.HandleNewItem(models.SourceItem{ID: 1, Text: "t"})
	env.waitPrompt(t)
	env.clock.Advance(24 * time.Hour)
	if n := env.o.ExpireStale(context.Background(), env.clock.Now()); n != 0 {
		t.Fatalf("запрос истёк без TTL: %d", n)
	}
}
