package tools

import (
	"context"
	"encoding/base64"
	"fmt"

	"advisorhub/pkg/googleapi"
	"advisorhub/pkg/logger"
	"advisorhub/pkg/store/mysql/model"

	"google.golang.org/api/gmail/v1"
)

// SendEmail sends a plain-text email from the user's Gmail account.
func SendEmail(ctx context.Context, user *model.User, to, subject, body string) (map[string]interface{}, error) {
	svc, err := googleapi.NewGmailService(ctx, user)
	if err != nil {
		return nil, err
	}

	raw := fmt.Sprintf("To: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s", to, subject, body)
	msg := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(raw)),
	}

	sent, err := svc.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail send failed: %w", err)
	}

	logger.InfoCtx(ctx, "sent email %s to %s for user %d", sent.Id, to, user.ID)
	return map[string]interface{}{
		"message_id": sent.Id,
		"thread_id":  sent.ThreadId,
		"to":         to,
	}, nil
}
