package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// 写超时
	writeWait = 10 * time.Second

	// pong 等待时间，超过视为连接失效
	pongWait = 60 * time.Second

	// ping 周期，必须小于 pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096

	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 跨域校验交给 CORS 中间件
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client 一条 websocket 连接，挂在某个用户房间下
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string

	// 待发送信封
	send chan *Envelope

	presence *Presence
	logger   *zap.Logger
}

// ServeWS 把 HTTP 请求升级为 websocket 并注册到 Hub
// userID 来自认证中间件，连接只接收寻址到该用户的事件
func ServeWS(hub *Hub, presence *Presence, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "unauthorized"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket 升级失败", zap.Error(err))
			return
		}

		client := &Client{
			hub:      hub,
			conn:     conn,
			userID:   userID,
			send:     make(chan *Envelope, sendBufferSize),
			presence: presence,
			logger:   logger,
		}
		hub.register <- client
		if presence != nil {
			presence.Online(c.Request.Context(), userID)
		}

		go client.writePump()
		go client.readPump()
	}
}

// readPump 读循环：客户端不上行业务数据，这里只消费控制帧并刷新在线状态
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		if c.presence != nil {
			c.presence.Offline(nil, c.userID)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if c.presence != nil {
			c.presence.Refresh(nil, c.userID)
		}
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket 异常关闭", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
	}
}

// writePump 写循环：串行发送信封并周期 ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				c.logger.Warn("序列化事件失败", zap.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
