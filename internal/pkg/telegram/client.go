package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.telegram.org"

// Options 创建 Client 的参数
type Options struct {
	BaseURL           string
	HTTPClient        *http.Client
	RequestsPerSecond float64 // <=0 表示不限速
}

// Client 绑定单个 bot token 的 Bot API 客户端，可被并发使用
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(token string, opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return &Client{baseURL: baseURL, token: token, httpClient: httpClient, limiter: limiter}
}

// SendDocument 以附件形式发送一个分片
func (c *Client) SendDocument(ctx context.Context, chatID, fileName, caption string, data []byte) (*Message, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("chat_id", chatID)
	if caption != "" {
		_ = w.WriteField("caption", caption)
	}
	_ = w.WriteField("disable_notification", "true")
	part, err := w.CreateFormFile("document", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var msg Message
	if err := c.call(ctx, "sendDocument", w.FormDataContentType(), &body, &msg); err != nil {
		return nil, err
	}
	observeBytes("upload", len(data))
	return &msg, nil
}

func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	form := url.Values{"file_id": {fileID}}
	var f File
	if err := c.callForm(ctx, "getFile", form, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// DownloadFile 下载 getFile 返回的 file_path
func (c *Client) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, strings.TrimLeft(filePath, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observeRequest("downloadFile", "network_error")
		return nil, scrubURLError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		observeRequest("downloadFile", strconv.Itoa(resp.StatusCode))
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &APIError{Method: "downloadFile", Code: resp.StatusCode, Description: http.StatusText(resp.StatusCode)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		observeRequest("downloadFile", "network_error")
		return nil, err
	}
	observeRequest("downloadFile", "ok")
	observeBytes("download", len(data))
	return data, nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID string, messageID int64) error {
	form := url.Values{
		"chat_id":    {chatID},
		"message_id": {strconv.FormatInt(messageID, 10)},
	}
	var ok bool
	return c.callForm(ctx, "deleteMessage", form, &ok)
}

// GetUpdates 非阻塞拉取最近的 updates
func (c *Client) GetUpdates(ctx context.Context, offset int64, limit int) ([]Update, error) {
	form := url.Values{
		"limit":           {strconv.Itoa(limit)},
		"timeout":         {"0"},
		"allowed_updates": {`["message","channel_post","edited_channel_post"]`},
	}
	if offset != 0 {
		form.Set("offset", strconv.FormatInt(offset, 10))
	}
	var updates []Update
	if err := c.callForm(ctx, "getUpdates", form, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *Client) callForm(ctx context.Context, method string, form url.Values, out any) error {
	return c.call(ctx, method, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), out)
}

func (c *Client) call(ctx context.Context, method, contentType string, body io.Reader, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return scrubURLError(err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observeRequest(method, "network_error")
		return scrubURLError(err)
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		observeRequest(method, strconv.Itoa(resp.StatusCode))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &APIError{Method: method, Code: resp.StatusCode, Description: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !parsed.OK {
		apiErr := newAPIError(method, &parsed, resp.StatusCode)
		observeRequest(method, strconv.Itoa(apiErr.Code))
		return apiErr
	}
	observeRequest(method, "ok")
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(parsed.Result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

// scrubURLError 去掉错误信息里包含 token 的 URL
func scrubURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("telegram request %s: %w", uerr.Op, uerr.Err)
	}
	return err
}
