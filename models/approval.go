package models

import "time"

// ApprovalKind — вид запроса на публикацию.
type ApprovalKind string

const (
	ApprovalNew  ApprovalKind = "NEW"
	ApprovalEdit ApprovalKind = "EDIT"
)

// Category возвращает поле category токена кнопки (post|edit).
func (k ApprovalKind) Category() string {
	if k == ApprovalEdit {
		return "edit"
	}
	return "post"
}

// ApprovalRequest — пачка, ожидающая решения оператора.
// Anchor — наименьший ID в пачке, по нему адресуется запрос.
// OldDestID заполнен только для EDIT.
type ApprovalRequest struct {
	Kind        ApprovalKind `json:"kind"`
	Anchor      int          `json:"anchor"`
	ItemIDs     []int        `json:"item_ids"`
	Album       bool         `json:"album"`
	OldDestID   string       `json:"old_dest_id,omitempty"`
	Preview     string       `json:"preview"`
	PromptMsgID int          `json:"prompt_msg_id"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Button — inline-кнопка запроса подтверждения.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}
