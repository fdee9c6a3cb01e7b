// Package chatwoot posts composed messages and attachments to a
// Chatwoot-compatible conversation API.
package chatwoot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"mediarelay/internal/domain"
)

const (
	// MessageTypeIncoming attributes a message to the end customer.
	MessageTypeIncoming = "incoming"

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

type Config struct {
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

// Client is stateless; credentials travel with every DeliveryTarget.
type Client struct {
	client *http.Client
	logger *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		client: cfg.Client,
		logger: cfg.Logger.With(slog.String("component", "chatwoot")),
	}
}

type createRequest struct {
	SourceID string        `json:"source_id"`
	InboxID  domain.ID     `json:"inbox_id"`
	Message  createMessage `json:"message"`
}

type createMessage struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
}

type messageRequest struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	Private     bool   `json:"private"`
}

// createResponse accepts a top-level id and, as a fallback, a nested conversation.id.
type createResponse struct {
	ID           domain.ID `json:"id"`
	Conversation *struct {
		ID domain.ID `json:"id"`
	} `json:"conversation"`
}

func (r createResponse) conversationID() domain.ID {
	if r.ID != "" {
		return r.ID
	}
	if r.Conversation != nil {
		return r.Conversation.ID
	}
	return ""
}

// Create opens a conversation whose first message is content.
func (c *Client) Create(ctx context.Context, target domain.DeliveryTarget, content string) (domain.ID, error) {
	payload := createRequest{
		SourceID: target.SourceID,
		InboxID:  target.InboxID,
		Message:  createMessage{Content: content, MessageType: MessageTypeIncoming},
	}

	var out createResponse
	if err := c.postJSON(ctx, "create", target, conversationsURL(target), payload, &out); err != nil {
		return "", err
	}

	id := out.conversationID()
	if id == "" {
		return "", &domain.DeliveryError{Op: "create", Err: fmt.Errorf("conversation id missing in response")}
	}
	c.logger.Info("conversation created", "account_id", target.AccountID, "conversation_id", id)
	return id, nil
}

// Append posts content to an existing conversation.
func (c *Client) Append(ctx context.Context, target domain.DeliveryTarget, conversationID domain.ID, content string) error {
	payload := messageRequest{Content: content, MessageType: MessageTypeIncoming, Private: false}
	if err := c.postJSON(ctx, "append", target, messagesURL(target, conversationID), payload, nil); err != nil {
		return err
	}
	c.logger.Info("message appended", "account_id", target.AccountID, "conversation_id", conversationID)
	return nil
}

// UploadAttachment posts data as an incoming message with one attachment.
func (c *Client) UploadAttachment(ctx context.Context, target domain.DeliveryTarget, conversationID domain.ID, filename string, data []byte, contentType string) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("message_type", MessageTypeIncoming); err != nil {
		return &domain.DeliveryError{Op: "attachment", Err: err}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="attachments[]"; filename=%q`, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return &domain.DeliveryError{Op: "attachment", Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return &domain.DeliveryError{Op: "attachment", Err: err}
	}
	if err := w.Close(); err != nil {
		return &domain.DeliveryError{Op: "attachment", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, messagesURL(target, conversationID), &body)
	if err != nil {
		return &domain.DeliveryError{Op: "attachment", Err: err}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("api_access_token", target.APIToken)

	if err := c.do(req, "attachment", nil); err != nil {
		return err
	}
	c.logger.Info("attachment uploaded",
		"conversation_id", conversationID,
		"filename", filename,
		"bytes", len(data),
	)
	return nil
}

func (c *Client) postJSON(ctx context.Context, op string, target domain.DeliveryTarget, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &domain.DeliveryError{Op: op, Err: fmt.Errorf("marshal: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &domain.DeliveryError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api_access_token", target.APIToken)

	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("chatwoot request failed", "op", op, "error", err)
		return &domain.DeliveryError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("chatwoot rejected request", "op", op, "status", resp.StatusCode)
		return &domain.DeliveryError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.DeliveryError{Op: op, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func accountURL(target domain.DeliveryTarget) string {
	return strings.TrimRight(target.APIURL, "/") + "/api/v1/accounts/" + url.PathEscape(target.AccountID.String())
}

func conversationsURL(target domain.DeliveryTarget) string {
	return accountURL(target) + "/conversations"
}

func messagesURL(target domain.DeliveryTarget, conversationID domain.ID) string {
	return conversationsURL(target) + "/" + url.PathEscape(conversationID.String()) + "/messages"
}
