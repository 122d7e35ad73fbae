package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Event 可发布的事件，Kind 决定投递给哪些订阅者
type Event[K comparable] interface {
	Kind() K
}

type Handler[E any] func(ctx context.Context, event E) error

type Bus[K comparable, E Event[K]] struct {
	mutex       sync.RWMutex
	subscribers map[K]map[uint64]Handler[E]
	counter     uint64
}

func NewBus[K comparable, E Event[K]]() *Bus[K, E] {
	return &Bus[K, E]{
		subscribers: make(map[K]map[uint64]Handler[E]),
	}
}

// Subscribe 订阅某类事件，返回取消订阅函数
func (b *Bus[K, E]) Subscribe(kind K, handler Handler[E]) func() {
	if handler == nil {
		return func() {}
	}
	id := atomic.AddUint64(&b.counter, 1)
	b.mutex.Lock()
	if b.subscribers[kind] == nil {
		b.subscribers[kind] = make(map[uint64]Handler[E])
	}
	b.subscribers[kind][id] = handler
	b.mutex.Unlock()
	return func() {
		b.mutex.Lock()
		handlers, ok := b.subscribers[kind]
		if ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(b.subscribers, kind)
			}
		}
		b.mutex.Unlock()
	}
}

// Publish 同步调用全部订阅者，汇总所有错误
func (b *Bus[K, E]) Publish(ctx context.Context, event E) error {
	b.mutex.RLock()
	handlersMap := b.subscribers[event.Kind()]
	handlers := make([]Handler[E], 0, len(handlersMap))
	for _, handler := range handlersMap {
		handlers = append(handlers, handler)
	}
	b.mutex.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
