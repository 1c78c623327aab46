// Package twitter — клиент X API: публикация цепочек постов, загрузка медиа, удаление.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/sirupsen/logrus"

	"tg2x_go/pkg/textsplit"
)

const (
	DefaultAPIURL    = "https://api.twitter.com/2"
	DefaultUploadURL = "https://upload.twitter.com/1.1/media/upload.json"

	// MaxMediaPerPost — ограничение X на число вложений одного поста.
	MaxMediaPerPost = 4
)

// ErrEmptyPost — нечего публиковать: нет ни текста, ни медиа.
var ErrEmptyPost = errors.New("post has neither text nor media")

// APIError — ответ X с кодом ошибки.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("x api returned status %d: %s", e.StatusCode, e.Body)
}

// Credentials — ключи OAuth 1.0a пользовательского контекста.
type Credentials struct {
	APIKey       string
	APISecret    string
	AccessToken  string
	AccessSecret string
}

type Client struct {
	apiURL    string
	uploadURL string
	client    *http.Client
	log       *logrus.Entry
	limit     int
	pause     time.Duration
	chunkSize int
}

type Option func(*Client)

// NewClient создаёт клиент, подписывающий запросы ключами creds.
func NewClient(creds Credentials, opts ...Option) *Client {
	config := oauth1.NewConfig(creds.APIKey, creds.APISecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessSecret)
	c := &Client{
		apiURL:    DefaultAPIURL,
		uploadURL: DefaultUploadURL,
		client:    config.Client(oauth1.NoContext, token),
		log:       logrus.StandardLogger().WithField("component", "twitter"),
		limit:     textsplit.DefaultLimit,
		pause:     2 * time.Second,
		chunkSize: 4 << 20,
	}
	c.client.Timeout = 2 * time.Minute
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithHTTPClient подменяет HTTP-клиент (тесты, прокси). Подпись запросов остаётся на его совести.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

func WithBaseURLs(apiURL, uploadURL string) Option {
	return func(c *Client) {
		if apiURL != "" {
			c.apiURL = apiURL
		}
		if uploadURL != "" {
			c.uploadURL = uploadURL
		}
	}
}

func WithLogger(log *logrus.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log.WithField("component", "twitter")
		}
	}
}

// WithSplitLimit задаёт длину одной части цепочки.
func WithSplitLimit(limit int) Option {
	return func(c *Client) {
		if limit > 0 {
			c.limit = limit
		}
	}
}

// WithThreadPause задаёт паузу между постами цепочки.
func WithThreadPause(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.pause = d
		}
	}
}

func WithChunkSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// PostURL строит ссылку на пост. Без username используется универсальная ссылка.
func PostURL(username, postID string) string {
	if username == "" {
		return "https://x.com/i/web/status/" + postID
	}
	return fmt.Sprintf("https://x.com/%s/status/%s", username, postID)
}

type tweetRequest struct {
	Text         string      `json:"text,omitempty"`
	Media        *tweetMedia `json:"media,omitempty"`
	Reply        *tweetReply `json:"reply,omitempty"`
	QuoteTweetID string      `json:"quote_tweet_id,omitempty"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *Client) createTweet(ctx context.Context, body tweetRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/tweets", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var out tweetResponse
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("create post: %w", err)
	}
	if out.Data.ID == "" {
		return "", errors.New("create post: empty id in response")
	}
	return out.Data.ID, nil
}

// DeletePost удаляет пост. nil — X подтвердил удаление.
// Удаляется только сам пост: продолжения цепочки, ответившие на него, остаются.
func (c *Client) DeletePost(ctx context.Context, postID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.apiURL+"/tweets/"+postID, nil)
	if err != nil {
		return err
	}
	var out struct {
		Data struct {
			Deleted bool `json:"deleted"`
		} `json:"data"`
	}
	if err := c.do(req, &out); err != nil {
		return fmt.Errorf("delete post %s: %w", postID, err)
	}
	if !out.Data.Deleted {
		return fmt.Errorf("delete post %s: not confirmed", postID)
	}
	return nil
}

// do выполняет запрос и декодирует JSON-ответ в out (если out != nil).
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
