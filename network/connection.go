// network/connection.go
package network

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/mafiaserver/logger"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
	// ErrMalformedFrame 帧无法解析，连接本身仍可用
	ErrMalformedFrame = errors.New("malformed frame")
)

type Connection interface {
	Send(event string, payload any) error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	ReadEnvelope() (*Envelope, error)
}

// WSConnection 封装一个 websocket 连接
//
// Send never blocks: frames go through a buffered channel drained by a single
// write pump, which also sends pings when a heartbeat is set.
type WSConnection struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	heartbeat time.Duration
	mutex     sync.Mutex
}

func NewWSConnection(conn *websocket.Conn, readLimit int64) *WSConnection {
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	c := &WSConnection{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *WSConnection) Send(event string, payload any) error {
	frame, err := Encode(event, payload)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		logger.Log.Warnw("send buffer full, dropping frame", "remote", c.RemoteAddr().String(), "event", event)
		return ErrSendBufferFull
	}
}

func (c *WSConnection) ReadEnvelope() (*Envelope, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if hb := c.pingInterval(); hb > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(hb * 2))
	}
	env, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return env, nil
}

// SetHeartbeat arms the read deadline and starts pinging every interval.
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.mutex.Lock()
	c.heartbeat = interval
	c.mutex.Unlock()
	_ = c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	})
}

// Close stops the write pump. Queued frames are flushed before the socket closes.
func (c *WSConnection) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *WSConnection) pingInterval() time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.heartbeat
}

func (c *WSConnection) writePump() {
	ticker := time.NewTicker(time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
		c.conn.Close()
	}()
	lastPing := time.Now()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case now := <-ticker.C:
			interval := c.pingInterval()
			if interval <= 0 || now.Sub(lastPing) < interval {
				continue
			}
			lastPing = now
			_ = c.conn.SetWriteDeadline(now.Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever is still queued, best effort, before the socket goes.
func (c *WSConnection) flush() {
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
