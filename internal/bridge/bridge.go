package bridge

import (
	"sync"
	"sync/atomic"

	"rewardwatch/internal/logger"
	"rewardwatch/internal/metrics"
	"rewardwatch/pkg/model"
)

// EventName 捕获事件通道名
const EventName = "apiCaptured"

// Bridge 捕获事件的异步通道：至多一次投递，不确认、不重试、不保证顺序
type Bridge struct {
	capacity int
	log      logger.Logger

	mu     sync.RWMutex
	subs   map[int]chan model.CapturedCall
	nextID int
	closed bool

	dropped atomic.Int64
}

// New 创建通道，capacity 为每个订阅者的缓冲大小
func New(capacity int, l logger.Logger) *Bridge {
	if capacity <= 0 {
		capacity = 1
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Bridge{
		capacity: capacity,
		log:      l.With("channel", EventName),
		subs:     make(map[int]chan model.CapturedCall),
	}
}

// Emit 非阻塞投递给所有订阅者，缓冲已满的订阅者会丢失本次事件
func (b *Bridge) Emit(call model.CapturedCall) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- call:
		default:
			b.dropped.Add(1)
			metrics.IncBridgeDropped()
			b.log.Debug("订阅者缓冲已满，丢弃捕获事件", "subscriber", id, "callID", call.ID)
		}
	}
}

// Subscribe 订阅捕获事件，返回的取消函数会关闭通道
func (b *Bridge) Subscribe() (<-chan model.CapturedCall, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.CapturedCall, b.capacity)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Bridge) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Close 关闭所有订阅通道，之后的 Emit 为空操作
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Dropped 累计丢弃的事件数
func (b *Bridge) Dropped() int64 { return b.dropped.Load() }
