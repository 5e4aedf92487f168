package fanout

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gopher0727/Messenger/internal/utils"
	"github.com/Gopher0727/Messenger/internal/ws"
)

// EventSender 把事件写入消息队列（kafka 生产者实现）
type EventSender interface {
	Send(key string, event interface{}) error
}

// Publisher 把信封投递到在线会话（网关 Hub 实现）
type Publisher interface {
	Publish(env *ws.Envelope)
}

// Notifier 把业务事件推给接收者的在线会话
// fire-and-forget：推送失败不回滚已提交的变更，只记日志
//
// 正常链路走 kafka（消费端投递到网关），kafka 不可用时降级为
// 直接写本地 Hub，保证单节点部署零依赖可用
type Notifier struct {
	producer EventSender // 可以为 nil，表示没有 kafka
	hub      Publisher
	pool     *utils.WorkerPool
	logger   *zap.Logger
}

func NewNotifier(producer EventSender, hub Publisher, pool *utils.WorkerPool, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		producer: producer,
		hub:      hub,
		pool:     pool,
		logger:   logger,
	}
}

// Notify 异步推送事件，调用方不等待也不感知结果
// conversationID 作为 kafka 分区键，同一会话的事件保持写入顺序
func (n *Notifier) Notify(conversationID string, userIDs []string, event string, payload any) {
	if len(userIDs) == 0 || n.hub == nil {
		return
	}

	// 复制一份，调用方可能复用切片
	targets := make([]string, len(userIDs))
	copy(targets, userIDs)

	env := &ws.Envelope{
		EventID: uuid.NewString(),
		UserIDs: targets,
		Event:   event,
		Payload: payload,
	}

	key := conversationID
	if key == "" {
		key = env.EventID
	}
	job := func() { n.dispatch(key, env) }

	if n.pool != nil {
		if !n.pool.TrySubmit(job) {
			n.logger.Warn("推送队列已满，丢弃事件", zap.String("event", env.Event))
		}
		return
	}
	go job()
}

func (n *Notifier) dispatch(key string, env *ws.Envelope) {
	if n.producer != nil {
		err := n.producer.Send(key, env)
		if err == nil {
			return
		}
		n.logger.Warn("写入 kafka 失败，降级为本地直推",
			zap.String("event", env.Event), zap.Error(err))
	}
	n.hub.Publish(env)
}
