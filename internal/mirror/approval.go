package mirror

import (
	"slices"
	"sync"
	"time"

	"tg2x_go/models"
)

// approvalBook — запросы, ожидающие решения, отдельно для новых постов и правок.
// На каждый anchor приходится не больше одного запроса каждого вида.
// Take изымает запрос до любых внешних действий, поэтому повторное решение
// по тому же anchor не найдёт его и не опубликует пост второй раз.
// Сообщения изъятого запроса остаются "в публикации" до Release: пока пост
// создаётся и ещё не попал в карту ID, повторная доставка не должна открыть новый запрос.
type approvalBook struct {
	mu       sync.Mutex
	posts    map[int]*models.ApprovalRequest
	edits    map[int]*models.ApprovalRequest
	inflight map[int]int
}

func newApprovalBook() *approvalBook {
	return &approvalBook{
		posts:    make(map[int]*models.ApprovalRequest),
		edits:    make(map[int]*models.ApprovalRequest),
		inflight: make(map[int]int),
	}
}

func (b *approvalBook) table(kind models.ApprovalKind) map[int]*models.ApprovalRequest {
	if kind == models.ApprovalEdit {
		return b.edits
	}
	return b.posts
}

// Offer сохраняет запрос.
// Новый пост с уже занятым anchor или с сообщением в публикации отклоняется (stored=false).
// Правка заменяет предыдущую правку того же anchor, которая возвращается в prev.
func (b *approvalBook) Offer(req *models.ApprovalRequest) (prev *models.ApprovalRequest, stored bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if req.Kind == models.ApprovalNew && slices.ContainsFunc(req.ItemIDs, b.publishingLocked) {
		return nil, false
	}
	t := b.table(req.Kind)
	if old, ok := t[req.Anchor]; ok {
		if req.Kind == models.ApprovalNew {
			return nil, false
		}
		prev = old
	}
	t[req.Anchor] = req
	return prev, true
}

// Take атомарно изымает запрос и помечает его сообщения как публикуемые.
// Вызывающий обязан вызвать Release с теми же ID.
func (b *approvalBook) Take(kind models.ApprovalKind, anchor int) (*models.ApprovalRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.table(kind)
	req, ok := t[anchor]
	if ok {
		delete(t, anchor)
		for _, id := range req.ItemIDs {
			b.inflight[id]++
		}
	}
	return req, ok
}

// Release снимает пометку публикации, поставленную Take.
func (b *approvalBook) Release(ids []int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		if b.inflight[id] <= 1 {
			delete(b.inflight, id)
			continue
		}
		b.inflight[id]--
	}
}

// SetPrompt запоминает ID сообщения с кнопками, если запрос всё ещё ждёт решения.
func (b *approvalBook) SetPrompt(req *models.ApprovalRequest, msgID int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.table(req.Kind)[req.Anchor]; !ok || cur != req {
		return false
	}
	req.PromptMsgID = msgID
	return true
}

// Contains сообщает, входит ли сообщение в ожидающий запрос на новый пост
// или в запрос, который сейчас публикуется.
func (b *approvalBook) Contains(id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishingLocked(id) {
		return true
	}
	for _, req := range b.posts {
		if slices.Contains(req.ItemIDs, id) {
			return true
		}
	}
	return false
}

func (b *approvalBook) publishingLocked(id int) bool {
	return b.inflight[id] > 0
}

// Counts возвращает размеры очередей.
func (b *approvalBook) Counts() (posts, edits int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.posts), len(b.edits)
}

// Snapshot возвращает копии запросов, упорядоченные по времени создания.
func (b *approvalBook) Snapshot() []models.ApprovalRequest {
	b.mu.Lock()
	out := make([]models.ApprovalRequest, 0, len(b.posts)+len(b.edits))
	for _, t := range []map[int]*models.ApprovalRequest{b.posts, b.edits} {
		for _, req := range t {
			cp := *req
			cp.ItemIDs = slices.Clone(req.ItemIDs)
			out = append(out, cp)
		}
	}
	b.mu.Unlock()

	slices.SortFunc(out, func(x, y models.ApprovalRequest) int {
		if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
			return c
		}
		return x.Anchor - y.Anchor
	})
	return out
}

// TakeExpired изымает все запросы, созданные раньше before.
func (b *approvalBook) TakeExpired(before time.Time) []*models.ApprovalRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*models.ApprovalRequest
	for _, t := range []map[int]*models.ApprovalRequest{b.posts, b.edits} {
		for anchor, req := range t {
			if req.CreatedAt.Before(before) {
				delete(t, anchor)
				out = append(out, req)
			}
		}
	}
	return out
}
