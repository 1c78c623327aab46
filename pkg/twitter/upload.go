package twitter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tg2x_go/internal/common"
)

const maxStatusChecks = 60

type uploadResponse struct {
	MediaIDString  string          `json:"media_id_string"`
	ProcessingInfo *processingInfo `json:"processing_info,omitempty"`
}

type processingInfo struct {
	State          string `json:"state"`
	CheckAfterSecs int    `json:"check_after_secs"`
	Error          *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// uploadAll загружает файлы по очереди. Файл, который не удалось загрузить,
// пропускается, остальные публикуются.
func (c *Client) uploadAll(ctx context.Context, paths []string) []string {
	ids := make([]string, 0, len(paths))
	for _, path := range paths {
		id, err := c.UploadMedia(ctx, path)
		if err != nil {
			c.log.WithError(err).WithField("path", filepath.Base(path)).Warn("media upload failed, skipping")
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// UploadMedia загружает файл и возвращает media_id.
// Картинки идут простой загрузкой, видео и GIF — по частям с ожиданием обработки.
func (c *Client) UploadMedia(ctx context.Context, path string) (string, error) {
	mediaType, category := classify(path)
	if category == "" {
		return c.uploadSimple(ctx, path)
	}
	return c.uploadChunked(ctx, path, mediaType, category)
}

// classify возвращает MIME-тип и категорию для загрузки по частям; пустая категория — простая загрузка.
func classify(path string) (mediaType, category string) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp4", ".m4v":
		return "video/mp4", "tweet_video"
	case ".mov":
		return "video/quicktime", "tweet_video"
	case ".gif":
		return "image/gif", "tweet_gif"
	}
	mediaType = mime.TypeByExtension(ext)
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return mediaType, ""
}

func (c *Client) uploadSimple(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("media", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	out, err := c.postUpload(ctx, &buf, w.FormDataContentType())
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	return out.MediaIDString, nil
}

func (c *Client) uploadChunked(ctx context.Context, path, mediaType, category string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	name := filepath.Base(path)

	started, err := c.postUploadForm(ctx, url.Values{
		"command":        {"INIT"},
		"total_bytes":    {strconv.FormatInt(info.Size(), 10)},
		"media_type":     {mediaType},
		"media_category": {category},
	})
	if err != nil {
		return "", fmt.Errorf("init upload %s: %w", name, err)
	}
	mediaID := started.MediaIDString

	chunk := make([]byte, c.chunkSize)
	for segment := 0; ; segment++ {
		n, readErr := io.ReadFull(f, chunk)
		if n > 0 {
			if err := c.appendChunk(ctx, mediaID, segment, chunk[:n]); err != nil {
				return "", fmt.Errorf("append %s segment %d: %w", name, segment, err)
			}
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("read %s: %w", name, readErr)
		}
	}

	fin, err := c.postUploadForm(ctx, url.Values{"command": {"FINALIZE"}, "media_id": {mediaID}})
	if err != nil {
		return "", fmt.Errorf("finalize %s: %w", name, err)
	}
	if err := c.awaitProcessing(ctx, mediaID, fin.ProcessingInfo); err != nil {
		return "", fmt.Errorf("process %s: %w", name, err)
	}
	return mediaID, nil
}

func (c *Client) appendChunk(ctx context.Context, mediaID string, segment int, data []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("command", "APPEND")
	_ = w.WriteField("media_id", mediaID)
	_ = w.WriteField("segment_index", strconv.Itoa(segment))
	part, err := w.CreateFormFile("media", "chunk")
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req, nil)
}

// awaitProcessing опрашивает STATUS, пока X не закончит обработку видео.
func (c *Client) awaitProcessing(ctx context.Context, mediaID string, info *processingInfo) error {
	for range maxStatusChecks {
		if info == nil || info.State == "succeeded" {
			return nil
		}
		if info.State == "failed" {
			if info.Error != nil {
				return errors.New(info.Error.Message)
			}
			return errors.New("media processing failed")
		}

		wait := time.Duration(max(info.CheckAfterSecs, 1)) * time.Second
		c.log.WithFields(logrus.Fields{"media_id": mediaID, "state": info.State, "wait": wait}).Debug("waiting for media processing")
		if err := common.Sleep(ctx, wait); err != nil {
			return err
		}

		q := url.Values{"command": {"STATUS"}, "media_id": {mediaID}}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.uploadURL+"?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		var out uploadResponse
		if err := c.do(req, &out); err != nil {
			return err
		}
		info = out.ProcessingInfo
	}
	return errors.New("media processing timed out")
}

func (c *Client) postUploadForm(ctx context.Context, form url.Values) (*uploadResponse, error) {
	return c.postUpload(ctx, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

func (c *Client) postUpload(ctx context.Context, body io.Reader, contentType string) (*uploadResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	var out uploadResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if out.MediaIDString == "" {
		return nil, errors.New("empty media id in response")
	}
	return &out, nil
}
