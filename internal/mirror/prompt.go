package mirror

import (
	"fmt"
	"strings"

	"tg2x_go/models"
)

const previewLimit = 100

// Тексты, которыми редактируется сообщение с кнопками после решения.
const (
	promptExpired    = "⚠️ This request has expired or was not found."
	promptCancelled  = "❌ Cancelled. Nothing was posted."
	promptPublishing = "⏳ Approved. Publishing..."
	promptMissing    = "⚠️ Source message(s) not found. They may have been deleted."
	promptSuperseded = "♻️ Superseded by a newer edit."
	promptTimedOut   = "⌛ Expired without a decision."
	promptDuplicate  = "ℹ️ Already published. Nothing was posted again."
)

// renderPrompt формирует текст запроса подтверждения.
func renderPrompt(req *models.ApprovalRequest) string {
	var b strings.Builder
	if req.Kind == models.ApprovalEdit {
		b.WriteString("✏️ Edited post awaiting approval\n\n")
	} else {
		b.WriteString("📝 New post awaiting approval\n\n")
	}
	kind := "single"
	if req.Album {
		kind = "album"
	}
	fmt.Fprintf(&b, "Type: %s\nItems: %d\nSource IDs: %s\n", kind, len(req.ItemIDs), joinIDs(req.ItemIDs))
	if req.OldDestID != "" {
		fmt.Fprintf(&b, "Replaces X post: %s\n", req.OldDestID)
	}
	b.WriteString("\n")
	if req.Preview == "" {
		b.WriteString("(no text)")
	} else {
		b.WriteString(req.Preview)
	}
	return b.String()
}

func promptButtons(req *models.ApprovalRequest) []models.Button {
	return []models.Button{
		{Text: "✅ Approve", Data: callbackFor(req, ActionApprove).String()},
		{Text: "❌ Cancel", Data: callbackFor(req, ActionCancel).String()},
	}
}

// preview обрезает текст до previewLimit символов.
func preview(text string) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) <= previewLimit {
		return string(r)
	}
	return string(r[:previewLimit]) + "…"
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("#%d", id)
	}
	return strings.Join(parts, ", ")
}
