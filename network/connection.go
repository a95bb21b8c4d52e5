// network/connection.go
package network

import (
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// MaxFrameSize 单帧上限 256KB
	MaxFrameSize = 256 * 1024
)

type Connection interface {
	Send(msg Message) error
	ReadFrame() (Frame, error)
	Ping() error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
}

type WSConnection struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
	heartbeat time.Duration
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	conn.SetReadLimit(MaxFrameSize)
	return &WSConnection{conn: conn}
}

// Send 写出一条 JSON 消息; gorilla 不支持并发写, 这里串行化
func (c *WSConnection) Send(msg Message) error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// ReadFrame blocks for the next text frame. Binary frames are skipped.
// A frame that is not valid JSON yields an error wrapping ErrMalformedFrame
// and the connection remains usable.
func (c *WSConnection) ReadFrame() (Frame, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return Frame{}, err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.extendDeadline()
		return DecodeFrame(data)
	}
}

// Ping 控制帧可与 WriteJSON 并发, 不经过 sendMutex
func (c *WSConnection) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// SetHeartbeat arms a read deadline of twice the interval; any frame or pong
// pushes it forward.
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.heartbeat = interval
	if interval <= 0 {
		return
	}
	c.extendDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})
}

func (c *WSConnection) extendDeadline() {
	if c.heartbeat > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.heartbeat * 2))
	}
}

func (c *WSConnection) Close() error {
	return c.conn.Close()
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
