/*
Package telegram adapts the engine to the Telegram Bot API.

PURPOSE:
  Two thin pieces of I/O plumbing:
  - Client implements bot.Transport over the HTTP Bot API, translating the
    router's logical menus into inline keyboards.
  - Poller (poller.go) long-polls getUpdates and dispatches each update to
    the router.

  Nothing in here makes decisions: every judgment call lives behind the
  router boundary, and this package only ferries bytes.

SEE ALSO:
  - bot/transport.go: The interface Client implements
  - cmd/server: Wires the token and starts the poller
*/
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/nanoavatar/avatar-engine/bot"
	"github.com/nanoavatar/avatar-engine/ledger"
	"github.com/nanoavatar/avatar-engine/payment"
)

const defaultBaseURL = "https://api.telegram.org"

// Client is the outbound Bot API surface. Safe for concurrent use.
type Client struct {
	token   string
	baseURL string
	http    *http.Client

	// providerToken authorizes invoice creation with the payment provider.
	providerToken string
	currency      string
}

// NewClient creates a Bot API client. providerToken may be empty when the
// deployment has payments disabled.
func NewClient(token, providerToken, currency string) *Client {
	return &Client{
		token:         token,
		baseURL:       defaultBaseURL,
		http:          &http.Client{Timeout: 70 * time.Second},
		providerToken: providerToken,
		currency:      currency,
	}
}

// SetBaseURL overrides the API host. Test hook.
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

// =============================================================================
// WIRE TYPES - The subset of the Bot API this bot consumes
// =============================================================================

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type update struct {
	UpdateID         int64             `json:"update_id"`
	Message          *message          `json:"message"`
	CallbackQuery    *callbackQuery    `json:"callback_query"`
	PreCheckoutQuery *preCheckoutQuery `json:"pre_checkout_query"`
}

type message struct {
	MessageID         int64              `json:"message_id"`
	From              *user              `json:"from"`
	Chat              chat               `json:"chat"`
	Text              string             `json:"text"`
	Caption           string             `json:"caption"`
	Photo             []photoSize        `json:"photo"`
	SuccessfulPayment *successfulPayment `json:"successful_payment"`
}

type user struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

type chat struct {
	ID int64 `json:"id"`
}

type photoSize struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size"`
}

type callbackQuery struct {
	ID      string   `json:"id"`
	From    *user    `json:"from"`
	Message *message `json:"message"`
	Data    string   `json:"data"`
}

type preCheckoutQuery struct {
	ID             string `json:"id"`
	From           *user  `json:"from"`
	TotalAmount    int64  `json:"total_amount"`
	InvoicePayload string `json:"invoice_payload"`
}

type successfulPayment struct {
	TotalAmount    int64  `json:"total_amount"`
	InvoicePayload string `json:"invoice_payload"`
}

type file struct {
	FilePath string `json:"file_path"`
}

// displayName flattens a Telegram user into the ledger's display name.
func (u *user) displayName() string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}

// =============================================================================
// TRANSPORT IMPLEMENTATION
// =============================================================================

func (c *Client) SendText(ctx context.Context, chat ledger.Identity, text string, menu *bot.Menu) error {
	payload := map[string]any{"chat_id": int64(chat), "text": text}
	if kb := toInlineKeyboard(menu); kb != nil {
		payload["reply_markup"] = kb
	}
	_, err := c.call(ctx, "sendMessage", payload)
	return err
}

func (c *Client) EditText(ctx context.Context, chat ledger.Identity, messageID int64, text string, menu *bot.Menu) error {
	payload := map[string]any{
		"chat_id":    int64(chat),
		"message_id": messageID,
		"text":       text,
	}
	if kb := toInlineKeyboard(menu); kb != nil {
		payload["reply_markup"] = kb
	}
	_, err := c.call(ctx, "editMessageText", payload)
	return err
}

func (c *Client) SendImage(ctx context.Context, chat ledger.Identity, image []byte, caption string) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", fmt.Sprintf("%d", int64(chat))); err != nil {
		return err
	}
	if caption != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("photo", "result.png")
	if err != nil {
		return err
	}
	if _, err := part.Write(image); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendPhoto", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sendPhoto: %w", err)
	}
	defer resp.Body.Close()
	return decodeAPIError(resp.Body)
}

func (c *Client) SendInvoice(ctx context.Context, inv payment.Invoice) error {
	_, err := c.call(ctx, "sendInvoice", map[string]any{
		"chat_id":        int64(inv.Identity),
		"title":          inv.Title,
		"description":    inv.Description,
		"payload":        inv.Payload,
		"provider_token": c.providerToken,
		"currency":       c.currency,
		"prices": []map[string]any{
			// Bot API amounts are in minor units.
			{"label": inv.Title, "amount": inv.AmountRub * 100},
		},
	})
	return err
}

// =============================================================================
// LOWER-LEVEL CALLS USED BY THE POLLER
// =============================================================================

func (c *Client) answerCallbackQuery(ctx context.Context, id string) error {
	_, err := c.call(ctx, "answerCallbackQuery", map[string]any{"callback_query_id": id})
	return err
}

func (c *Client) answerPreCheckout(ctx context.Context, id string, ok bool, errorMessage string) error {
	payload := map[string]any{"pre_checkout_query_id": id, "ok": ok}
	if errorMessage != "" {
		payload["error_message"] = errorMessage
	}
	_, err := c.call(ctx, "answerPreCheckoutQuery", payload)
	return err
}

func (c *Client) getUpdates(ctx context.Context, offset int64, timeoutSec int) ([]update, error) {
	raw, err := c.call(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         timeoutSec,
		"allowed_updates": []string{"message", "callback_query", "pre_checkout_query"},
	})
	if err != nil {
		return nil, err
	}
	var updates []update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

// downloadPhoto fetches the bytes of the largest size of an inbound photo.
func (c *Client) downloadPhoto(ctx context.Context, sizes []photoSize) ([]byte, error) {
	if len(sizes) == 0 {
		return nil, fmt.Errorf("no photo sizes")
	}
	largest := sizes[0]
	for _, s := range sizes[1:] {
		if s.FileSize > largest.FileSize {
			largest = s
		}
	}

	raw, err := c.call(ctx, "getFile", map[string]any{"file_id": largest.FileID})
	if err != nil {
		return nil, err
	}
	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode file: %w", err)
	}

	url := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, f.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) call(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", method, err)
	}
	if !api.OK {
		return nil, fmt.Errorf("%s: api error: %s", method, api.Description)
	}
	return api.Result, nil
}

func decodeAPIError(r io.Reader) error {
	var api apiResponse
	if err := json.NewDecoder(r).Decode(&api); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !api.OK {
		return fmt.Errorf("api error: %s", api.Description)
	}
	return nil
}

// toInlineKeyboard translates a logical menu into Bot API reply markup.
func toInlineKeyboard(menu *bot.Menu) map[string]any {
	if menu == nil || len(menu.Rows) == 0 {
		return nil
	}
	rows := make([][]map[string]string, 0, len(menu.Rows))
	for _, row := range menu.Rows {
		buttons := make([]map[string]string, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, map[string]string{
				"text":          b.Label,
				"callback_data": b.Data,
			})
		}
		rows = append(rows, buttons)
	}
	return map[string]any{"inline_keyboard": rows}
}
