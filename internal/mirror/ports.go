// Package mirror зеркалирует посты канала Telegram в X с подтверждением оператора.
//
// Три потока событий (новые сообщения, правки, удаления) приходят независимо и без
// гарантий порядка. Альбомы собираются по grouped_id с окном ожидания, каждая пачка
// проходит через запрос подтверждения, а соответствие ID сообщения → ID поста хранится
// в карте ID, которая переживает перезапуск.
package mirror

import (
	"context"

	"tg2x_go/models"
)

// Source — чтение канала-источника.
type Source interface {
	// FetchItems возвращает найденные сообщения; отсутствующие ID просто пропускаются.
	FetchItems(ctx context.Context, ids []int) ([]models.SourceItem, error)
	// FetchRange возвращает сообщения с ID в диапазоне [from, to].
	FetchRange(ctx context.Context, from, to int) ([]models.SourceItem, error)
	// DownloadMedia скачивает вложение в dir и возвращает путь к файлу.
	DownloadMedia(ctx context.Context, m models.Media, dir string) (string, error)
}

// Level — уровень уведомления оператору.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelSuccess Level = "SUCCESS"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
	LevelStart   Level = "START"
)

// Operator — канал связи с оператором: запросы подтверждения и уведомления.
type Operator interface {
	SendPrompt(ctx context.Context, text string, buttons []models.Button) (int, error)
	EditPrompt(ctx context.Context, msgID int, text string) error
	Notify(ctx context.Context, level Level, text string)
}

// Publisher — клиент X.
type Publisher interface {
	// PostThread публикует текст (при необходимости цепочкой) с медиа и цитатой.
	// Ошибка означает, что пост не создан.
	PostThread(ctx context.Context, text string, mediaPaths []string, quoteID string) (string, error)
	// DeletePost удаляет пост; nil — удаление подтверждено.
	DeletePost(ctx context.Context, postID string) error
}

// IDMap — постоянная карта ID сообщения → ID поста.
// Ошибка Set/Delete означает сбой записи: память уже обновлена и остаётся авторитетной.
type IDMap interface {
	Get(sourceID int) (string, bool)
	Set(sourceIDs []int, destID string) error
	Delete(sourceIDs ...int) error
	Len() int
}

// Authorizer проверяет, может ли пользователь принимать решения по запросам.
type Authorizer interface {
	IsAuthorized(userID int64) bool
}
