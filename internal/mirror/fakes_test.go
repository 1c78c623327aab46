package mirror

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"tg2x_go/internal/logging"
	"tg2x_go/models"
	"tg2x_go/pkg/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeSource struct {
	mu        sync.Mutex
	items     map[int]models.SourceItem
	badMedia  map[string]bool
	fetchErr  error
	fetches   map[int]int
	rangeCall [][2]int
}

func newFakeSource(items ...models.SourceItem) *fakeSource {
	s := &fakeSource{
		items:    make(map[int]models.SourceItem),
		badMedia: make(map[string]bool),
		fetches:  make(map[int]int),
	}
	for _, it := range items {
		s.items[it.ID] = it
	}
	return s
}

func (s *fakeSource) Put(it models.SourceItem) {
	s.mu.Lock()
	s.items[it.ID] = it
	s.mu.Unlock()
}

func (s *fakeSource) Remove(id int) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

func (s *fakeSource) Fetches(id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[id]
}

func (s *fakeSource) FetchItems(_ context.Context, ids []int) ([]models.SourceItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []models.SourceItem
	for _, id := range ids {
		s.fetches[id]++
		if it, ok := s.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *fakeSource) FetchRange(_ context.Context, from, to int) ([]models.SourceItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rangeCall = append(s.rangeCall, [2]int{from, to})
	var out []models.SourceItem
	for id := from; id <= to; id++ {
		if it, ok := s.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *fakeSource) DownloadMedia(_ context.Context, m models.Media, dir string) (string, error) {
	s.mu.Lock()
	bad := s.badMedia[m.FileName]
	s.mu.Unlock()
	if bad {
		return "", errors.New("download failed")
	}
	path := filepath.Join(dir, m.FileName)
	if err := os.WriteFile(path, []byte(m.FileName), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type sentPrompt struct {
	ID      int
	Text    string
	Buttons []models.Button
}

type note struct {
	Level Level
	Text  string
}

type fakeOperator struct {
	prompts chan sentPrompt

	mu    sync.Mutex
	next  int
	edits map[int][]string
	notes []note
}

func newFakeOperator() *fakeOperator {
	return &fakeOperator{prompts: make(chan sentPrompt, 32), edits: make(map[int][]string)}
}

func (o *fakeOperator) SendPrompt(_ context.Context, text string, buttons []models.Button) (int, error) {
	o.mu.Lock()
	o.next++
	id := o.next
	o.mu.Unlock()
	o.prompts <- sentPrompt{ID: id, Text: text, Buttons: buttons}
	return id, nil
}

func (o *fakeOperator) EditPrompt(_ context.Context, msgID int, text string) error {
	o.mu.Lock()
	o.edits[msgID] = append(o.edits[msgID], text)
	o.mu.Unlock()
	return nil
}

func (o *fakeOperator) Notify(_ context.Context, level Level, text string) {
	o.mu.Lock()
	o.notes = append(o.notes, note{Level: level, Text: text})
	o.mu.Unlock()
}

func (o *fakeOperator) Edits(msgID int) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.edits[msgID])
}

func (o *fakeOperator) Notes(level Level) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, n := range o.notes {
		if n.Level == level {
			out = append(out, n.Text)
		}
	}
	return out
}

type postCall struct {
	Text  string
	Media []string
	Quote string
}

type fakePublisher struct {
	mu        sync.Mutex
	next      int
	posts     []postCall
	deletes   []string
	postErr   error
	deleteErr error
}

func (p *fakePublisher) PostThread(_ context.Context, text string, paths []string, quoteID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.postErr != nil {
		return "", p.postErr
	}
	names := make([]string, 0, len(paths))
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return "", err
		}
		names = append(names, filepath.Base(path))
	}
	p.next++
	p.posts = append(p.posts, postCall{Text: text, Media: names, Quote: quoteID})
	return "P" + strconv.Itoa(p.next), nil
}

func (p *fakePublisher) DeletePost(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deletes = append(p.deletes, id)
	return p.deleteErr
}

func (p *fakePublisher) Posts() []postCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.posts)
}

func (p *fakePublisher) Deletes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.deletes)
}

type allowList map[int64]bool

func (a allowList) IsAuthorized(id int64) bool { return a[id] }

const operatorID = 42

type testEnv struct {
	o     *Orchestrator
	src   *fakeSource
	op    *fakeOperator
	pub   *fakePublisher
	ids   *storage.FileIDMap
	clock *fakeClock
	stage string
}

func newTestEnv(t *testing.T, tune func(*Options), items ...models.SourceItem) *testEnv {
	t.Helper()
	dir := t.TempDir()
	ids, err := storage.LoadFileIDMap(filepath.Join(dir, "posted_ids.json"))
	if err != nil {
		t.Fatalf("карта ID: %v", err)
	}
	env := &testEnv{
		src:   newFakeSource(items...),
		op:    newFakeOperator(),
		pub:   &fakePublisher{},
		ids:   ids,
		clock: newFakeClock(),
		stage: filepath.Join(dir, "staging"),
	}
	opts := Options{
		AlbumWindow: 60 * time.Millisecond,
		EditSettle:  20 * time.Millisecond,
		EchoWindow:  10 * time.Second,
		StagingDir:  env.stage,
		Now:         env.clock.Now,
		PostURL:     func(id string) string { return "https://x.com/tester/status/" + id },
	}
	if tune != nil {
		tune(&opts)
	}
	env.o = New(Deps{
		Source:    env.src,
		Operator:  env.op,
		Publisher: env.pub,
		IDMap:     ids,
		Auth:      allowList{operatorID: true},
		Log:       logging.Discard(),
	}, opts)
	t.Cleanup(env.o.Close)
	return env
}

// waitPrompt ждёт сообщение с кнопками и завершение его фоновой отправки.
func (e *testEnv) waitPrompt(t *testing.T) sentPrompt {
	t.Helper()
	select {
	case p := <-e.op.prompts:
		e.o.Wait()
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("запрос подтверждения не отправлен")
	}
	return sentPrompt{}
}

func (e *testEnv) noPrompt(t *testing.T) {
	t.Helper()
	e.o.Wait()
	select {
	case p := <-e.op.prompts:
		t.Fatalf("неожиданный запрос подтверждения: %q", p.Text)
	default:
	}
}

func photo(name string) models.Media {
	return models.Media{Kind: models.MediaPhoto, FileName: name}
}

// blockingPublisher задерживает PostThread до закрытия release.
type blockingPublisher struct {
	*fakePublisher
	entered chan struct{}
	release chan struct{}
}

func (p *blockingPublisher) PostThread(ctx context.Context, text string, paths []string, quoteID string) (string, error) {
	p.entered <- struct{}{}
	<-p.release
	return p.fakePublisher.PostThread(ctx, text, paths, quoteID)
}

// blockPublishing подменяет публикатора окружения блокирующим.
func (e *testEnv) blockPublishing() *blockingPublisher {
	bp := &blockingPublisher{fakePublisher: e.pub, entered: make(chan struct{}, 4), release: make(chan struct{})}
	e.o.pub = bp
	return bp
}

func (p *blockingPublisher) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-p.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("публикация не началась")
	}
}

// resolveAsync одобряет запрос в отдельной горутине.
func (e *testEnv) resolveAsync(anchor, promptID int) <-chan Outcome {
	done := make(chan Outcome, 1)
	go func() {
		out, _ := e.o.Resolve(context.Background(), models.ApprovalNew, anchor, ActionApprove, promptID)
		done <- out
	}()
	return done
}
