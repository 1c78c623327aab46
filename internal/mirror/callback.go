package mirror

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tg2x_go/models"
)

const (
	ActionApprove = "approve"
	ActionCancel  = "cancel"

	CategoryPost = "post"
	CategoryEdit = "edit"

	TypeSingle = "single"
	TypeAlbum  = "album"
)

var (
	ErrBadCallback  = errors.New("malformed callback data")
	ErrUnauthorized = errors.New("sender is not allowed to resolve approvals")
)

// CallbackData — токен кнопки вида action_category_type_anchorId.
type CallbackData struct {
	Action   string
	Category string
	Type     string
	Anchor   int
}

func (c CallbackData) String() string {
	return fmt.Sprintf("%s_%s_%s_%d", c.Action, c.Category, c.Type, c.Anchor)
}

// Kind переводит category в вид запроса.
func (c CallbackData) Kind() models.ApprovalKind {
	if c.Category == CategoryEdit {
		return models.ApprovalEdit
	}
	return models.ApprovalNew
}

// ParseCallbackData разбирает токен кнопки и проверяет каждое поле.
func ParseCallbackData(s string) (CallbackData, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 4 {
		return CallbackData{}, fmt.Errorf("%w: %q", ErrBadCallback, s)
	}
	c := CallbackData{Action: parts[0], Category: parts[1], Type: parts[2]}
	if !ValidAction(c.Action) {
		return CallbackData{}, fmt.Errorf("%w: action %q", ErrBadCallback, c.Action)
	}
	if c.Category != CategoryPost && c.Category != CategoryEdit {
		return CallbackData{}, fmt.Errorf("%w: category %q", ErrBadCallback, c.Category)
	}
	if c.Type != TypeSingle && c.Type != TypeAlbum {
		return CallbackData{}, fmt.Errorf("%w: type %q", ErrBadCallback, c.Type)
	}
	anchor, err := strconv.Atoi(parts[3])
	if err != nil || anchor <= 0 {
		return CallbackData{}, fmt.Errorf("%w: anchor %q", ErrBadCallback, parts[3])
	}
	c.Anchor = anchor
	return c, nil
}

// ValidAction — approve или cancel.
func ValidAction(action string) bool {
	return action == ActionApprove || action == ActionCancel
}

// ParseCategory переводит category из URL или токена в вид запроса.
func ParseCategory(category string) (models.ApprovalKind, bool) {
	switch category {
	case CategoryPost:
		return models.ApprovalNew, true
	case CategoryEdit:
		return models.ApprovalEdit, true
	}
	return "", false
}

func callbackFor(req *models.ApprovalRequest, action string) CallbackData {
	typ := TypeSingle
	if req.Album {
		typ = TypeAlbum
	}
	return CallbackData{Action: action, Category: req.Kind.Category(), Type: typ, Anchor: req.Anchor}
}
