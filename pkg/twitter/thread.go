package twitter

import (
	"context"

	"github.com/sirupsen/logrus"

	"tg2x_go/internal/common"
	"tg2x_go/pkg/textsplit"
)

// PostThread публикует текст цепочкой постов и возвращает ID первого поста.
//
// Медиа прикрепляются к первым постам по MaxMediaPerPost штук; если их больше,
// чем частей текста, лишние уходят в дополнительные посты без текста.
// Цитата ставится на первый пост. X не принимает цитату вместе с медиа,
// поэтому при цитате медиа начинаются со второго поста.
// Если первый пост создан, а продолжение не удалось, возвращается ID первого:
// пост уже существует и должен попасть в карту.
func (c *Client) PostThread(ctx context.Context, text string, mediaPaths []string, quoteID string) (string, error) {
	parts := textsplit.Split(text, c.limit)
	mediaIDs := c.uploadAll(ctx, mediaPaths)
	if len(parts) == 0 && len(mediaIDs) == 0 {
		return "", ErrEmptyPost
	}

	groups := chunkIDs(mediaIDs, MaxMediaPerPost)
	offset := 0
	if quoteID != "" && len(groups) > 0 {
		offset = 1
	}
	total := max(len(parts), len(groups)+offset)

	var rootID, prevID string
	for i := range total {
		body := tweetRequest{}
		if i < len(parts) {
			body.Text = parts[i]
		}
		if g := i - offset; g >= 0 && g < len(groups) {
			body.Media = &tweetMedia{MediaIDs: groups[g]}
		}
		if i == 0 && quoteID != "" {
			body.QuoteTweetID = quoteID
		}
		if prevID != "" {
			body.Reply = &tweetReply{InReplyToTweetID: prevID}
		}

		id, err := c.createTweet(ctx, body)
		if err != nil {
			if rootID == "" {
				return "", err
			}
			c.log.WithError(err).WithFields(logrus.Fields{"root_id": rootID, "part": i + 1, "parts": total}).
				Warn("thread is incomplete")
			return rootID, nil
		}
		if rootID == "" {
			rootID = id
		}
		prevID = id

		if i < total-1 {
			if err := common.Sleep(ctx, c.pause); err != nil {
				c.log.WithField("root_id", rootID).Warn("thread interrupted")
				return rootID, nil
			}
		}
	}
	c.log.WithFields(logrus.Fields{"root_id": rootID, "parts": total, "media": len(mediaIDs)}).Info("thread posted")
	return rootID, nil
}

func chunkIDs(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > 0 {
		n := min(size, len(ids))
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}
