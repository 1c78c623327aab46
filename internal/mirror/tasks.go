package mirror

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tg2x_go/internal/common"
)

// taskGroup запускает фоновые задачи под присмотром: паника перехватывается и пишется в лог,
// а Wait дожидается завершения всех задач.
// Отложенные задачи адресуются ключом: новая задача с тем же ключом отменяет предыдущую,
// так что на ключ всегда приходится не больше одной задачи.
type taskGroup struct {
	log *logrus.Entry

	mu    sync.Mutex
	next  uint64
	tasks map[string]keyedTask
	wg    sync.WaitGroup
}

type keyedTask struct {
	id     uint64
	cancel context.CancelFunc
}

func newTaskGroup(log *logrus.Entry) *taskGroup {
	return &taskGroup{log: log, tasks: make(map[string]keyedTask)}
}

// Schedule выполняет fn после delay. Если по ключу уже есть задача, она отменяется.
// fn получает контекст, который отменяется при замене задачи, поэтому после каждой
// точки ожидания fn обязана проверять ctx.
func (g *taskGroup) Schedule(parent context.Context, key string, delay time.Duration, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(parent)

	g.mu.Lock()
	if old, ok := g.tasks[key]; ok {
		old.cancel()
	}
	g.next++
	id := g.next
	g.tasks[key] = keyedTask{id: id, cancel: cancel}
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		defer g.release(key, id, cancel)
		defer g.recover(key)

		if err := common.Sleep(ctx, delay); err != nil {
			return
		}
		fn(ctx)
	}()
}

// Go запускает задачу без ключа.
func (g *taskGroup) Go(name string, fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.recover(name)
		fn()
	}()
}

// Cancel отменяет задачу по ключу. false — задачи не было.
func (g *taskGroup) Cancel(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[key]
	if !ok {
		return false
	}
	t.cancel()
	delete(g.tasks, key)
	return true
}

// Scheduled сообщает, есть ли задача по ключу.
func (g *taskGroup) Scheduled(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.tasks[key]
	return ok
}

// CancelAll отменяет все отложенные задачи.
func (g *taskGroup) CancelAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, t := range g.tasks {
		t.cancel()
		delete(g.tasks, key)
	}
}

// Wait ждёт завершения всех запущенных задач.
func (g *taskGroup) Wait() { g.wg.Wait() }

// release удаляет задачу из таблицы, только если её ещё не заменили.
func (g *taskGroup) release(key string, id uint64, cancel context.CancelFunc) {
	g.mu.Lock()
	if t, ok := g.tasks[key]; ok && t.id == id {
		delete(g.tasks, key)
	}
	g.mu.Unlock()
	cancel()
}

func (g *taskGroup) recover(name string) {
	if r := recover(); r != nil {
		g.log.WithFields(logrus.Fields{
			"task":  name,
			"panic": fmt.Sprint(r),
		}).Errorf("background task panicked\n%s", debug.Stack())
	}
}
