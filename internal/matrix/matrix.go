// Package matrix delivers operator notifications to a Matrix room through
// the client-server API.
package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/turboflakes/skipper/internal/config"
)

const requestTimeout = 30 * time.Second

// ErrNotAuthenticated is returned by Send before a successful Authenticate.
var ErrNotAuthenticated = errors.New("not authenticated")

// Error wraps every failure of the Matrix sink.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "matrix " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// APIError is an error response from the homeserver.
type APIError struct {
	Status  int
	Code    string `json:"errcode"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s %s", e.Status, e.Code, e.Message)
}

// Client is a Matrix notification sink bound to one room. It is not safe
// for concurrent use; the supervisor drives it from a single goroutine.
type Client struct {
	cfg  config.MatrixConfig
	http *http.Client
	log  *log.Entry

	accessToken string
	roomID      string
}

func New(cfg config.MatrixConfig, logger *log.Entry) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: requestTimeout},
		log:  logger,
	}
}

// Authenticate logs in with the configured password and joins the room.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.cfg.Disabled {
		return nil
	}

	login := map[string]interface{}{
		"type":       "m.login.password",
		"identifier": map[string]string{"type": "m.id.user", "user": c.cfg.User},
		"password":   c.cfg.Password,
	}
	var session struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/_matrix/client/v3/login", "", login, &session); err != nil {
		return &Error{Op: "login", Err: err}
	}
	if session.AccessToken == "" {
		return &Error{Op: "login", Err: errors.New("homeserver returned no access token")}
	}

	var joined struct {
		RoomID string `json:"room_id"`
	}
	path := "/_matrix/client/v3/join/" + url.PathEscape(c.cfg.Room)
	if err := c.do(ctx, http.MethodPost, path, session.AccessToken, struct{}{}, &joined); err != nil {
		return &Error{Op: "join", Err: err}
	}

	c.accessToken = session.AccessToken
	c.roomID = joined.RoomID
	if c.roomID == "" {
		c.roomID = c.cfg.Room
	}
	c.log.Infof("Matrix session open for %s in room %s", session.UserID, c.roomID)
	return nil
}

// Send posts message, with formatted as its HTML rendering.
func (c *Client) Send(ctx context.Context, message, formatted string) error {
	if c.cfg.Disabled {
		return nil
	}
	if c.accessToken == "" {
		return &Error{Op: "send", Err: ErrNotAuthenticated}
	}

	body := map[string]string{
		"msgtype":        "m.text",
		"body":           message,
		"format":         "org.matrix.custom.html",
		"formatted_body": formatted,
	}
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/m.room.message/%s",
		url.PathEscape(c.roomID), uuid.NewString())
	if err := c.do(ctx, http.MethodPut, path, c.accessToken, body, nil); err != nil {
		return &Error{Op: "send", Err: err}
	}
	c.log.Debugf("Matrix message sent: %s", message)
	return nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	endpoint := strings.TrimRight(c.cfg.Homeserver, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		json.Unmarshal(data, apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
