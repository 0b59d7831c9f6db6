// Package client is a thin typed websocket client for the quiz protocol,
// used by the terminal frontends and by the end-to-end tests.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"classquiz-backend/api"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

type Client struct {
	conn *websocket.Conn
}

func Dial(ctx context.Context, url string) (*Client, error) {
	conn, res, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if res != nil && res.Body != nil {
		res.Body.Close()
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *Client) CloseNow() error {
	return c.conn.CloseNow()
}

func (c *Client) TryJoin(ctx context.Context, id uuid.UUID) error {
	return c.send(ctx, api.RequestTypeTryJoin, api.TryJoinRequestData{UUID: id})
}

func (c *Client) Join(ctx context.Context, player api.PlayerData) error {
	return c.send(ctx, api.RequestTypeJoin, api.JoinRequestData{Player: player})
}

func (c *Client) Answer(ctx context.Context, id uuid.UUID, index int, answers []string) error {
	return c.send(ctx, api.RequestTypeAnswerSelected, api.AnswerSelectedRequestData{
		PlayerUUID:    id,
		QuestionIndex: index,
		Answers:       answers,
	})
}

func (c *Client) Disconnect(ctx context.Context) error {
	return c.send(ctx, api.RequestTypeDisconnect, api.EmptyRequestData{})
}

// SendRaw writes an arbitrary payload, for exercising protocol violations.
func (c *Client) SendRaw(ctx context.Context, v any) error {
	return wsjson.Write(ctx, c.conn, v)
}

func (c *Client) send(ctx context.Context, typ api.RequestType, data any) error {
	return wsjson.Write(ctx, c.conn, api.Request[any]{Type: typ, Data: data})
}

// ReadEnvelope reads the next server envelope without decoding its payload.
func (c *Client) ReadEnvelope(ctx context.Context) (api.Response[json.RawMessage], error) {
	var res api.Response[json.RawMessage]
	if err := wsjson.Read(ctx, c.conn, &res); err != nil {
		return res, err
	}
	return res, nil
}

// ReadAs reads the next envelope, asserts its type and decodes the payload.
// Sessions deliver messages in engine-emission order, so callers can rely
// on the next envelope being the one they expect.
func ReadAs[T any](ctx context.Context, c *Client, want api.ResponseType) (T, error) {
	var data T
	res, err := c.ReadEnvelope(ctx)
	if err != nil {
		return data, err
	}
	if res.Type != want {
		return data, fmt.Errorf("expected %q envelope, got %q", want, res.Type)
	}
	return api.DecodeJSON[T](res.Data)
}
