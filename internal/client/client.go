// Package client обращается к HTTP API сервера чата от имени одного
// пользователя.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/dudaji/dudaji-chat/internal/handlers/dto"
	"github.com/dudaji/dudaji-chat/internal/models"
	"github.com/dudaji/dudaji-chat/internal/services"
)

// APIError: ответ сервера со статусом 4xx/5xx.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// New создает клиента. httpClient может быть nil.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}, nil
}

func (c *Client) SetToken(token string) { c.token = token }

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Register(ctx context.Context, email, password, displayName string) (*dto.AuthResponse, error) {
	var resp dto.AuthResponse
	req := dto.RegisterRequest{Email: email, Password: password, DisplayName: displayName}
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, &resp); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*dto.AuthResponse, error) {
	var resp dto.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", dto.LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp, nil
}

func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
		return err
	}
	c.token = ""
	return nil
}

// Me возвращает uid, displayName, email и профиль текущего пользователя.
func (c *Client) Me(ctx context.Context) (map[string]any, error) {
	var me map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/v1/me", nil, &me); err != nil {
		return nil, err
	}
	return me, nil
}

func (c *Client) ListRooms(ctx context.Context) ([]services.RoomSummary, error) {
	var rooms []services.RoomSummary
	err := c.do(ctx, http.MethodGet, "/api/v1/rooms", nil, &rooms)
	return rooms, err
}

func (c *Client) CreateRoom(ctx context.Context, name string) (string, error) {
	var resp dto.CreateRoomResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/rooms", dto.CreateRoomRequest{Name: name}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) SearchRooms(ctx context.Context, query string) ([]services.RoomSummary, error) {
	var rooms []services.RoomSummary
	err := c.do(ctx, http.MethodGet, "/api/v1/rooms/search?q="+url.QueryEscape(query), nil, &rooms)
	return rooms, err
}

func (c *Client) RequestJoin(ctx context.Context, roomID, message string) error {
	return c.do(ctx, http.MethodPost, roomURL(roomID, "join-requests"), dto.JoinRequestRequest{Message: message}, nil)
}

func (c *Client) JoinRequests(ctx context.Context, roomID string) ([]models.JoinRequest, error) {
	var requests []models.JoinRequest
	err := c.do(ctx, http.MethodGet, roomURL(roomID, "join-requests"), nil, &requests)
	return requests, err
}

func (c *Client) Approve(ctx context.Context, roomID, uid string) error {
	return c.do(ctx, http.MethodPost, roomURL(roomID, "join-requests", uid, "approve"), nil, nil)
}

func (c *Client) Reject(ctx context.Context, roomID, uid string) error {
	return c.do(ctx, http.MethodDelete, roomURL(roomID, "join-requests", uid), nil, nil)
}

func (c *Client) Members(ctx context.Context, roomID string) ([]models.RoomMember, error) {
	var members []models.RoomMember
	err := c.do(ctx, http.MethodGet, roomURL(roomID, "members"), nil, &members)
	return members, err
}

func (c *Client) State(ctx context.Context, roomID string) (services.Membership, error) {
	var resp dto.MembershipResponse
	if err := c.do(ctx, http.MethodGet, roomURL(roomID, "state"), nil, &resp); err != nil {
		return "", err
	}
	return services.Membership(resp.State), nil
}

func (c *Client) Leave(ctx context.Context, roomID string) error {
	return c.do(ctx, http.MethodDelete, roomURL(roomID, "members", "me"), nil, nil)
}

func (c *Client) SendMessage(ctx context.Context, roomID, text string) (*dto.MessageResponse, error) {
	var msg dto.MessageResponse
	if err := c.do(ctx, http.MethodPost, roomURL(roomID, "messages"), dto.SendMessageRequest{Text: text}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Messages возвращает последние limit сообщений; при limit <= 0 все.
func (c *Client) Messages(ctx context.Context, roomID string, limit int) ([]dto.MessageResponse, error) {
	path := roomURL(roomID, "messages")
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var messages []dto.MessageResponse
	err := c.do(ctx, http.MethodGet, path, nil, &messages)
	return messages, err
}

func (c *Client) SearchMessages(ctx context.Context, roomID, query string) ([]dto.MessageResponse, error) {
	var messages []dto.MessageResponse
	err := c.do(ctx, http.MethodGet, roomURL(roomID, "messages", "search")+"?q="+url.QueryEscape(query), nil, &messages)
	return messages, err
}

// UploadFile отправляет файл сообщением в комнату.
func (c *Client) UploadFile(ctx context.Context, roomID, name string, r io.Reader) (*dto.MessageResponse, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+roomURL(roomID, "files"), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var msg dto.MessageResponse
	if err := c.send(req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func roomURL(roomID string, parts ...string) string {
	segs := append([]string{url.PathEscape(roomID)}, parts...)
	for i := 1; i < len(segs); i++ {
		segs[i] = url.PathEscape(segs[i])
	}
	return "/api/v1/rooms/" + strings.Join(segs, "/")
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
