package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/habedi/gigsync/auth"
	"github.com/rs/zerolog/log"
)

// ChatURLFor derives the chat socket address from an API base URL.
func ChatURLFor(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws/chat"
	u.RawPath = ""
	u.RawQuery = ""
	return u.String(), nil
}

// ChatConn is an open one-to-one chat socket.
type ChatConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// DialChat opens the chat socket towards receiverID.
// The token travels in the query string, so it is refreshed first when stale. A handshake
// rejected with 401 is retried once after a refresh, like any other request.
func (c *Client) DialChat(ctx context.Context, receiverID string) (*ChatConn, error) {
	if strings.TrimSpace(receiverID) == "" {
		return nil, fmt.Errorf("receiver id cannot be empty")
	}
	chatURL := c.cfg.ChatURL
	if chatURL == "" {
		derived, err := ChatURLFor(c.baseURL.String())
		if err != nil {
			return nil, fmt.Errorf("failed to derive chat URL: %w", err)
		}
		chatURL = derived
	}

	cred, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}
	access := cred.AccessToken
	if c.clock.IsStale(access) {
		if access, err = c.coord.EnsureFreshToken(ctx, access); err != nil {
			return nil, fmt.Errorf("%w: %w", auth.ErrAuthUnavailable, err)
		}
	}

	conn, resp, err := c.dialChat(ctx, chatURL, access, receiverID)
	if err != nil && resp != nil && resp.StatusCode == http.StatusUnauthorized {
		log.Debug().Msg("Chat handshake rejected, refreshing and retrying once")
		fresh, ferr := c.tokenAfterRejection(ctx, access)
		if ferr != nil {
			return nil, fmt.Errorf("%w: %w", auth.ErrAuthUnavailable, ferr)
		}
		conn, resp, err = c.dialChat(ctx, chatURL, fresh, receiverID)
	}
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: "chat handshake failed"}
		}
		return nil, fmt.Errorf("failed to connect to chat: %w", err)
	}
	log.Info().Str("receiver", receiverID).Msg("Chat connected")
	return &ChatConn{conn: conn}, nil
}

func (c *Client) dialChat(ctx context.Context, chatURL, access, receiverID string) (*websocket.Conn, *http.Response, error) {
	u, err := url.Parse(chatURL)
	if err != nil {
		return nil, nil, err
	}
	q := u.Query()
	q.Set("token", access)
	q.Set("receiverId", receiverID)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.RequestTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Send writes a plain text message.
func (cc *ChatConn) Send(text string) error {
	cc.writeMu.Lock()
	defer cc.writeMu.Unlock()
	return cc.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Receive blocks until the next message arrives.
// A normal close from the server is reported as ErrChatClosed.
func (cc *ChatConn) Receive() (ChatMessage, error) {
	for {
		kind, data, err := cc.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ChatMessage{}, ErrChatClosed
			}
			return ChatMessage{}, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		var msg ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Msg("Skipping undecodable chat frame")
			continue
		}
		return msg, nil
	}
}

// ErrChatClosed is returned by Receive once the server has closed the socket.
var ErrChatClosed = errors.New("chat closed")

// Close says goodbye to the server and releases the socket.
func (cc *ChatConn) Close() error {
	var err error
	cc.closeOnce.Do(func() {
		cc.writeMu.Lock()
		_ = cc.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		cc.writeMu.Unlock()
		err = cc.conn.Close()
	})
	return err
}
