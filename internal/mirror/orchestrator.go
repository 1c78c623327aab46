package mirror

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"tg2x_go/internal/metrics"
	"tg2x_go/models"
)

// Outcome — результат решения по запросу подтверждения.
type Outcome string

const (
	OutcomePublished Outcome = "published"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeExpired   Outcome = "expired"
	OutcomeMissing   Outcome = "missing"
	OutcomeTimedOut  Outcome = "timeout"
)

// Deps — внешние зависимости оркестратора.
type Deps struct {
	Source    Source
	Operator  Operator
	Publisher Publisher
	IDMap     IDMap
	Auth      Authorizer
	Metrics   *metrics.Metrics
	Log       *logrus.Logger
}

// Callback — нажатие inline-кнопки.
type Callback struct {
	Data      string
	SenderID  int64
	MessageID int
}

// Stats — срез состояния для /status и админского API.
type Stats struct {
	Published    int64     `json:"published"`
	PendingPosts int       `json:"pending_posts"`
	PendingEdits int       `json:"pending_edits"`
	OpenAlbums   int       `json:"open_albums"`
	Mapped       int       `json:"mapped"`
	StartedAt    time.Time `json:"started_at"`
}

// Orchestrator принимает события канала и решения оператора.
// Таблицы состояния (открытые альбомы, запросы, метки публикаций) защищены
// собственными мьютексами, а всё, что переживает точку ожидания, перепроверяется
// после неё.
type Orchestrator struct {
	src     Source
	op      Operator
	pub     Publisher
	idmap   IDMap
	auth    Authorizer
	metrics *metrics.Metrics
	log     *logrus.Entry
	opts    Options

	ctx    context.Context
	cancel context.CancelFunc
	tasks  *taskGroup
	albums *Aggregator
	book   *approvalBook

	markersMu sync.Mutex
	markers   map[int]time.Time

	published atomic.Int64
	startedAt time.Time
}

// New собирает оркестратор. Фоновые задачи живут до Close.
func New(deps Deps, opts Options) *Orchestrator {
	opts.normalize()
	logger := deps.Log
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		src:       deps.Source,
		op:        deps.Operator,
		pub:       deps.Publisher,
		idmap:     deps.IDMap,
		auth:      deps.Auth,
		metrics:   deps.Metrics,
		log:       logger.WithField("component", "mirror"),
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		book:      newApprovalBook(),
		markers:   make(map[int]time.Time),
		startedAt: opts.Now(),
	}
	o.tasks = newTaskGroup(o.log)
	o.albums = newAggregator(ctx, o.tasks, opts.AlbumWindow, o.known, o.albumReady)
	return o
}

// HandleNewItem принимает новое сообщение канала.
func (o *Orchestrator) HandleNewItem(item models.SourceItem) {
	log := o.log.WithField("source_id", item.ID)
	if o.mapped(item.ID) {
		log.Debug("already published, skipping")
		return
	}
	if o.book.Contains(item.ID) {
		log.Debug("already waiting for approval or being published, skipping")
		return
	}
	if item.Grouped() {
		if o.albums.Add(item) {
			log.WithField("group_id", item.GroupID).Info("collecting album")
		}
		return
	}
	o.submit(o.newRequest(models.ApprovalNew, []models.SourceItem{item}, ""))
}

// HandleCallback проверяет нажатие кнопки и запускает решение в фоне.
func (o *Orchestrator) HandleCallback(cb Callback) error {
	data, err := ParseCallbackData(cb.Data)
	if err != nil {
		return err
	}
	if o.auth == nil || !o.auth.IsAuthorized(cb.SenderID) {
		o.log.WithField("sender_id", cb.SenderID).Warn("callback from unauthorized user")
		return ErrUnauthorized
	}
	o.tasks.Go("resolve:"+cb.Data, func() {
		if _, err := o.Resolve(o.ctx, data.Kind(), data.Anchor, data.Action, cb.MessageID); err != nil {
			o.log.WithError(err).WithField("anchor", data.Anchor).Warn("resolution finished with error")
		}
	})
	return nil
}

// Resolve применяет решение оператора. Запрос изымается из очереди до любых
// внешних действий, поэтому повторное решение по тому же anchor вернёт OutcomeExpired.
// promptMsgID — сообщение с кнопками; 0 — взять из запроса.
func (o *Orchestrator) Resolve(ctx context.Context, kind models.ApprovalKind, anchor int, action string, promptMsgID int) (Outcome, error) {
	if !ValidAction(action) {
		return "", fmt.Errorf("%w: action %q", ErrBadCallback, action)
	}
	log := o.log.WithFields(logrus.Fields{"anchor": anchor, "kind": kind, "action": action})

	req, ok := o.book.Take(kind, anchor)
	if !ok {
		log.Info("approval request not found")
		o.metrics.IncResolution(string(OutcomeExpired))
		o.editPrompt(ctx, promptMsgID, promptExpired)
		return OutcomeExpired, nil
	}
	defer o.book.Release(req.ItemIDs)
	o.syncPending()
	if promptMsgID == 0 {
		promptMsgID = req.PromptMsgID
	}

	if action == ActionCancel {
		log.Info("approval cancelled")
		o.metrics.IncResolution(string(OutcomeCancelled))
		o.editPrompt(ctx, promptMsgID, promptCancelled)
		return OutcomeCancelled, nil
	}

	o.editPrompt(ctx, promptMsgID, promptPublishing)
	items, err := o.src.FetchItems(ctx, req.ItemIDs)
	if err != nil {
		log.WithError(err).Error("fetch source messages")
		o.metrics.IncResolution(string(OutcomeFailed))
		o.editPrompt(ctx, promptMsgID, fmt.Sprintf("❌ Could not read source message(s): %v", err))
		return OutcomeFailed, fmt.Errorf("fetch items %v: %w", req.ItemIDs, err)
	}
	if len(items) == 0 {
		log.Warn("source messages disappeared before approval")
		o.metrics.IncResolution(string(OutcomeMissing))
		o.editPrompt(ctx, promptMsgID, promptMissing)
		return OutcomeMissing, nil
	}
	if req.Kind == models.ApprovalNew {
		// за время ожидания сообщения могли быть опубликованы другим запросом
		items = slices.DeleteFunc(items, func(it models.SourceItem) bool { return o.mapped(it.ID) })
		if len(items) == 0 {
			log.Info("source messages already published")
			o.metrics.IncResolution(string(OutcomeExpired))
			o.editPrompt(ctx, promptMsgID, promptDuplicate)
			return OutcomeExpired, nil
		}
	}

	previous := req.OldDestID
	if req.Kind == models.ApprovalEdit {
		// за время ожидания пост мог быть перепубликован
		if cur, ok := o.idmap.Get(req.Anchor); ok {
			previous = cur
		}
	}

	var destID string
	if req.Album || len(items) > 1 {
		destID, err = o.ExecuteAlbumPost(ctx, items, previous)
	} else {
		destID, err = o.ExecuteSinglePost(ctx, items[0], previous)
	}
	if err != nil {
		o.metrics.IncResolution(string(OutcomeFailed))
		o.editPrompt(ctx, promptMsgID, fmt.Sprintf("❌ Publishing failed: %v", err))
		return OutcomeFailed, err
	}
	o.metrics.IncResolution(string(OutcomePublished))
	o.editPrompt(ctx, promptMsgID, "✅ Published: "+o.opts.PostURL(destID))
	return OutcomePublished, nil
}

// Pending возвращает копии ожидающих запросов.
func (o *Orchestrator) Pending() []models.ApprovalRequest { return o.book.Snapshot() }

// Stats возвращает счётчики состояния.
func (o *Orchestrator) Stats() Stats {
	posts, edits := o.book.Counts()
	mapped := 0
	if o.idmap != nil {
		mapped = o.idmap.Len()
	}
	return Stats{
		Published:    o.published.Load(),
		PendingPosts: posts,
		PendingEdits: edits,
		OpenAlbums:   o.albums.Open(),
		Mapped:       mapped,
		StartedAt:    o.startedAt,
	}
}

// ExpireStale снимает запросы старше ApprovalTTL. При нулевом TTL ничего не делает.
func (o *Orchestrator) ExpireStale(ctx context.Context, now time.Time) int {
	if o.opts.ApprovalTTL <= 0 {
		return 0
	}
	stale := o.book.TakeExpired(now.Add(-o.opts.ApprovalTTL))
	if len(stale) == 0 {
		return 0
	}
	o.syncPending()
	for _, req := range stale {
		o.log.WithFields(logrus.Fields{"anchor": req.Anchor, "kind": req.Kind}).Info("approval request timed out")
		o.metrics.IncResolution(string(OutcomeTimedOut))
		o.editPrompt(ctx, req.PromptMsgID, promptTimedOut)
	}
	return len(stale)
}

// RunJanitor периодически вызывает ExpireStale до отмены ctx.
func (o *Orchestrator) RunJanitor(ctx context.Context) {
	if o.opts.ApprovalTTL <= 0 {
		return
	}
	interval := o.opts.ApprovalTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	o.log.WithField("ttl", o.opts.ApprovalTTL).Info("approval janitor started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.ExpireStale(ctx, o.opts.Now())
		}
	}
}

// Close отменяет отложенные задачи и ждёт завершения фоновых.
func (o *Orchestrator) Close() {
	o.cancel()
	o.tasks.CancelAll()
	o.tasks.Wait()
}

// Wait ждёт завершения запущенных фоновых задач.
func (o *Orchestrator) Wait() { o.tasks.Wait() }

func (o *Orchestrator) albumReady(gid int64, items []models.SourceItem) {
	o.log.WithFields(logrus.Fields{"group_id": gid, "source_ids": models.ItemIDs(items)}).Info("album collected")
	o.submit(o.newRequest(models.ApprovalNew, items, ""))
}

func (o *Orchestrator) newRequest(kind models.ApprovalKind, items []models.SourceItem, oldDestID string) *models.ApprovalRequest {
	grouped := false
	for _, it := range items {
		if it.Grouped() {
			grouped = true
			break
		}
	}
	ids := models.ItemIDs(items)
	return &models.ApprovalRequest{
		Kind:      kind,
		Anchor:    ids[0],
		ItemIDs:   ids,
		Album:     grouped,
		OldDestID: oldDestID,
		Preview:   preview(models.FirstText(items)),
		CreatedAt: o.opts.Now(),
	}
}

// submit ставит запрос в очередь и в фоне отправляет оператору сообщение с кнопками.
func (o *Orchestrator) submit(req *models.ApprovalRequest) {
	log := o.log.WithFields(logrus.Fields{"anchor": req.Anchor, "kind": req.Kind})
	prev, stored := o.book.Offer(req)
	if !stored {
		log.Debug("request for this anchor is already pending")
		return
	}
	o.syncPending()
	log.WithField("source_ids", req.ItemIDs).Info("approval requested")

	o.tasks.Go(fmt.Sprintf("prompt:%s:%d", req.Kind.Category(), req.Anchor), func() {
		if prev != nil {
			o.editPrompt(o.ctx, prev.PromptMsgID, promptSuperseded)
		}
		msgID, err := o.op.SendPrompt(o.ctx, renderPrompt(req), promptButtons(req))
		if err != nil {
			log.WithError(err).Error("send approval prompt")
			return
		}
		if !o.book.SetPrompt(req, msgID) {
			log.Debug("request resolved before its prompt was delivered")
		}
	})
}

func (o *Orchestrator) editPrompt(ctx context.Context, msgID int, text string) {
	if msgID == 0 {
		return
	}
	if err := o.op.EditPrompt(ctx, msgID, text); err != nil {
		o.log.WithError(err).WithField("prompt_id", msgID).Warn("edit approval prompt")
	}
}

func (o *Orchestrator) syncPending() {
	posts, edits := o.book.Counts()
	o.metrics.SetPending(posts, edits)
}

func (o *Orchestrator) mapped(id int) bool {
	_, ok := o.idmap.Get(id)
	return ok
}

// known — сообщение уже опубликовано, ждёт решения или публикуется сейчас.
func (o *Orchestrator) known(id int) bool {
	return o.mapped(id) || o.book.Contains(id)
}

func (o *Orchestrator) mark(ids []int) {
	now := o.opts.Now()
	o.markersMu.Lock()
	for _, id := range ids {
		o.markers[id] = now
	}
	o.markersMu.Unlock()
}

// recentlyPublished — публиковали ли мы id в пределах EchoWindow.
func (o *Orchestrator) recentlyPublished(id int) bool {
	o.markersMu.Lock()
	at, ok := o.markers[id]
	o.markersMu.Unlock()
	return ok && o.opts.Now().Sub(at) < o.opts.EchoWindow
}
