package push

import (
	"github.com/yanun0323/logs"
)

// Presenter surfaces user-facing notifications. Implementations are
// best-effort; callers log failures and move on.
type Presenter interface {
	ShowNotification(title, body string, data map[string]any) error
	ShowMessageNotification(message, chatID, sender string) error
}

// LogPresenter writes notifications to the log. It is the fallback when no
// platform presenter is wired in.
type LogPresenter struct{}

func NewLogPresenter() *LogPresenter {
	return &LogPresenter{}
}

func (p *LogPresenter) ShowNotification(title, body string, data map[string]any) error {
	logs.Infof("notification: %s / %s", title, body)
	return nil
}

func (p *LogPresenter) ShowMessageNotification(message, chatID, sender string) error {
	logs.Infof("message from %s in chat %s: %s", sender, chatID, message)
	return nil
}
