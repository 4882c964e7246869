package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/JaimeStill/warden/internal/verification"
	"github.com/JaimeStill/warden/internal/verifications"
	"github.com/JaimeStill/warden/pkg/handlers"
	"github.com/JaimeStill/warden/pkg/pagination"
)

// apiError is a non-2xx response from the server.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return e.Message
}

type client struct {
	base   string
	token  string
	http   *http.Client
	dialer *websocket.Dialer
}

func newClient(base, token string, timeout time.Duration) *client {
	return &client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
	}
}

func (c *client) open(ctx context.Context) (verification.Snapshot, error) {
	var snap verification.Snapshot
	err := c.do(ctx, http.MethodPost, "/sessions", nil, "", &snap)
	return snap, err
}

func (c *client) submit(ctx context.Context, id uuid.UUID, path string) (verification.Snapshot, error) {
	var snap verification.Snapshot

	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return snap, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return snap, fmt.Errorf("read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return snap, err
	}

	err = c.do(ctx, http.MethodPost, "/sessions/"+id.String()+"/submit", &body, mw.FormDataContentType(), &snap)
	return snap, err
}

func (c *client) close(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+id.String(), nil, "", nil)
}

// stream dials the session's snapshot stream. The first message carries the
// current state.
func (c *client) stream(ctx context.Context, id uuid.UUID) (*websocket.Conn, error) {
	u, err := url.Parse(c.base + "/sessions/" + id.String() + "/stream")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), c.header())
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
		return nil, fmt.Errorf("stream: %w", err)
	}
	return conn, nil
}

// await reads snapshots from conn, calling onUpdate for each, until the
// session reaches results or error.
func await(conn *websocket.Conn, onUpdate func(verification.Snapshot)) (verification.Snapshot, error) {
	for {
		var snap verification.Snapshot
		if err := conn.ReadJSON(&snap); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return snap, errors.New("session closed before verification finished")
			}
			return snap, fmt.Errorf("stream: %w", err)
		}
		if onUpdate != nil {
			onUpdate(snap)
		}
		if snap.Status.Terminal() {
			return snap, nil
		}
	}
}

// download writes a session artifact to dst. An empty dst uses the
// server-suggested filename in the working directory.
func (c *client) download(ctx context.Context, id uuid.UUID, kind verifications.ArtifactKind, dst string) (string, error) {
	req, err := c.request(ctx, http.MethodGet, "/sessions/"+id.String()+"/artifacts/"+string(kind), nil, "")
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", decodeError(resp)
	}

	if dst == "" {
		dst = attachmentName(resp.Header.Get("Content-Disposition"))
		if dst == "" {
			dst = id.String() + "-" + string(kind)
		}
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return "", err
	}
	return dst, out.Close()
}

type historyQuery struct {
	Page     int
	PageSize int
	Search   string
	Status   string
}

func (c *client) history(ctx context.Context, q historyQuery) (pagination.PageResult[verifications.Record], error) {
	var result pagination.PageResult[verifications.Record]

	values := url.Values{}
	if q.Page > 0 {
		values.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		values.Set("page_size", strconv.Itoa(q.PageSize))
	}
	if q.Search != "" {
		values.Set("search", q.Search)
	}
	if q.Status != "" {
		values.Set("status", q.Status)
	}

	path := "/verifications"
	if len(values) > 0 {
		path += "?" + values.Encode()
	}

	err := c.do(ctx, http.MethodGet, path, nil, "", &result)
	return result, err
}

func (c *client) categories(ctx context.Context) ([]verifications.CategoryInfo, error) {
	var out []verifications.CategoryInfo
	err := c.do(ctx, http.MethodGet, "/categories", nil, "", &out)
	return out, err
}

func (c *client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := c.request(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *client) request(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range c.header() {
		req.Header[k] = v
	}
	return req, nil
}

func (c *client) header() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

func decodeError(resp *http.Response) error {
	var body handlers.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return &apiError{Status: resp.StatusCode}
	}
	return &apiError{Status: resp.StatusCode, Message: body.Error}
}

func attachmentName(disposition string) string {
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil || params["filename"] == "" {
		return ""
	}
	return filepath.Base(params["filename"])
}
