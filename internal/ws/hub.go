package ws

import (
	"context"
	"encoding/json"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/Messenger/utils/dedup"
	"github.com/Gopher0727/Messenger/utils/hashring"
)

// Envelope 实时事件信封
// EventID 用于去重；同一信封可寻址多个用户房间
type Envelope struct {
	EventID string   `json:"event_id"`
	UserIDs []string `json:"user_ids"`
	Event   string   `json:"event"`
	Payload any      `json:"payload"`
}

// Hub 维护活跃客户端连接，把事件投递到 user:{id} 房间
// 投递是尽力而为：用户没有在线会话时事件直接丢弃，
// 正确性由按需查询保证，实时层只是降低延迟
type Hub struct {
	// 注册的客户端
	clients map[*Client]bool

	// 用户房间 userID -> Client 集合
	rooms map[string]map[*Client]bool

	mu sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Envelope

	// 跨节点转发：user:{id} 房间经哈希环固定到节点，
	// 本节点订阅自己的 redis 频道接收其他节点转发的信封
	rdb    *redis.Client
	ring   *hashring.Ring
	nodeID string

	// 事件去重（kafka at-least-once → socket at-most-once）
	seen *dedup.Cache

	logger *zap.Logger
}

// NewHub 创建 Hub
func NewHub(rdb *redis.Client, ring *hashring.Ring, nodeID string, seen *dedup.Cache, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Envelope, 256),
		rdb:        rdb,
		ring:       ring,
		nodeID:     nodeID,
		seen:       seen,
		logger:     logger,
	}
}

// nodeChannel 节点的 redis 频道名
func nodeChannel(nodeID string) string {
	return "gateway:" + nodeID
}

// Run 主循环，处理注册、注销与投递
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			room, ok := h.rooms[client.userID]
			if !ok {
				room = make(map[*Client]bool)
				h.rooms[client.userID] = room
			}
			room[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				if room, ok := h.rooms[client.userID]; ok {
					delete(room, client)
					if len(room) == 0 {
						delete(h.rooms, client.userID)
					}
				}
			}
			h.mu.Unlock()

		case env := <-h.broadcast:
			h.deliverLocal(env)
		}
	}
}

// RunRemote 订阅本节点的 redis 频道，接收其他节点转发的信封
// redis 不可用时直接退出，单节点部署不需要这条链路
func (h *Hub) RunRemote(ctx context.Context) {
	if h.rdb == nil {
		return
	}
	sub := h.rdb.Subscribe(ctx, nodeChannel(h.nodeID))
	defer sub.Close()

	for msg := range sub.Channel() {
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			h.logger.Warn("丢弃无法解析的跨节点信封", zap.Error(err))
			continue
		}
		h.deliverLocal(&env)
	}
}

// Publish 投递信封：本地房间直接发送，归属其他节点的用户经 redis 转发
// fire-and-forget，任何一步失败只记日志
func (h *Hub) Publish(env *Envelope) {
	if env.EventID != "" && h.seen != nil && h.seen.Seen(env.EventID) {
		return
	}

	var remote map[string][]string // nodeID -> userIDs
	if h.ring != nil && h.rdb != nil {
		for _, userID := range env.UserIDs {
			node := h.ring.Get("user:" + userID)
			if node == "" || node == h.nodeID {
				continue
			}
			if remote == nil {
				remote = make(map[string][]string)
			}
			remote[node] = append(remote[node], userID)
		}
	}

	h.deliverLocalUnchecked(env)

	for node, userIDs := range remote {
		fwd := &Envelope{EventID: env.EventID, UserIDs: userIDs, Event: env.Event, Payload: env.Payload}
		data, err := json.Marshal(fwd)
		if err != nil {
			h.logger.Warn("序列化跨节点信封失败", zap.Error(err))
			continue
		}
		if err := h.rdb.Publish(context.Background(), nodeChannel(node), data).Err(); err != nil {
			h.logger.Warn("跨节点转发失败", zap.String("node", node), zap.Error(err))
		}
	}
}

// deliverLocal 带去重的本地投递（跨节点链路入口）
func (h *Hub) deliverLocal(env *Envelope) {
	if env.EventID != "" && h.seen != nil && h.seen.Seen(env.EventID) {
		return
	}
	h.deliverLocalUnchecked(env)
}

func (h *Hub) deliverLocalUnchecked(env *Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, userID := range env.UserIDs {
		room, ok := h.rooms[userID]
		if !ok {
			continue // 没有在线会话，事件丢弃
		}
		for client := range room {
			select {
			case client.send <- env:
			default:
				// 发送缓冲区满：跳过该连接，交由心跳超时触发 unregister 清理
				h.logger.Warn("客户端发送缓冲区满，丢弃事件",
					zap.String("user_id", userID),
					zap.String("event", env.Event))
			}
		}
	}
}

// OnlineUserCount 当前有在线会话的用户数
func (h *Hub) OnlineUserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
