package lark

import (
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
)

// Config holds Lark app credentials
type Config struct {
	AppID     string
	AppSecret string
	// ReceiveIDType is how recipients are addressed: open_id, user_id, union_id or email
	ReceiveIDType string
	// Recipients maps submitter names (case-insensitive) to Lark ids. Unmapped names are used as-is.
	Recipients map[string]string
}

// NewSDKClient creates a Lark SDK client with token caching
func NewSDKClient(cfg Config) *lark.Client {
	return lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	)
}
