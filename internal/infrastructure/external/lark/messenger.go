package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// CreateMessageFunc sends one IM message
type CreateMessageFunc func(ctx context.Context, req *larkIm.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkIm.CreateMessageResp, error)

// Messenger implements port.MessageSender with Lark text messages
type Messenger struct {
	create        CreateMessageFunc
	receiveIDType string
	recipients    map[string]string
	logger        *zap.Logger
}

// NewMessenger creates a messenger backed by the Lark IM API
func NewMessenger(client *lark.Client, cfg Config, logger *zap.Logger) *Messenger {
	return NewMessengerWithFunc(client.Im.Message.Create, cfg, logger)
}

// NewMessengerWithFunc creates a messenger using create to send messages
func NewMessengerWithFunc(create CreateMessageFunc, cfg Config, logger *zap.Logger) *Messenger {
	idType := cfg.ReceiveIDType
	if idType == "" {
		idType = larkIm.ReceiveIdTypeOpenId
	}
	recipients := make(map[string]string, len(cfg.Recipients))
	for name, id := range cfg.Recipients {
		recipients[strings.ToLower(name)] = id
	}
	return &Messenger{
		create:        create,
		receiveIDType: idType,
		recipients:    recipients,
		logger:        logger,
	}
}

// SendText sends a plain text message to userID
func (m *Messenger) SendText(ctx context.Context, userID string, content string) error {
	if userID == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if content == "" {
		return fmt.Errorf("content cannot be empty")
	}

	receiveID := userID
	if mapped, ok := m.recipients[strings.ToLower(userID)]; ok {
		receiveID = mapped
	}

	text, err := json.Marshal(map[string]string{"text": content})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req := larkIm.NewCreateMessageReqBuilder().
		ReceiveIdType(m.receiveIDType).
		Body(larkIm.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType(larkIm.MsgTypeText).
			Content(string(text)).
			Build()).
		Build()

	resp, err := m.create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message", zap.String("receive_id", receiveID), zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}
	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("receive_id", receiveID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	m.logger.Info("Message sent", zap.String("receive_id", receiveID))
	return nil
}
