package workers

import (
	"context"

	"github.com/relation-engine/relation-engine/pkg/cache"
	"github.com/relation-engine/relation-engine/pkg/logger"
	"github.com/relation-engine/relation-engine/pkg/queue"
)

// CounterWorker 消费关系事件，失效对应的计数缓存
// 计数查询下次命中时回源重算；事件丢失最多造成一个 TTL 周期的陈旧计数
type CounterWorker struct {
	consumer *queue.KafkaConsumer
	cache    *cache.RedisClient
	logger   *logger.Logger
}

func NewCounterWorker(consumer *queue.KafkaConsumer, cache *cache.RedisClient, logger *logger.Logger) *CounterWorker {
	return &CounterWorker{
		consumer: consumer,
		cache:    cache,
		logger:   logger,
	}
}

func (w *CounterWorker) Start(ctx context.Context) error {
	w.logger.Info("Counter worker started")
	return w.consumer.Subscribe(ctx, func(msg queue.Message) error {
		return w.handleEvent(ctx, msg.Event)
	})
}

func (w *CounterWorker) Stop() error {
	return w.consumer.Close()
}

func (w *CounterWorker) handleEvent(ctx context.Context, event queue.Event) error {
	keys := []string{cache.KeyEngineStats}
	if event.Data.ActorID != "" {
		keys = append(keys, cache.UserCountsKey(event.Data.ActorID))
	}
	if event.Data.TargetID != "" {
		keys = append(keys, cache.UserCountsKey(event.Data.TargetID))
	}

	if err := w.cache.Delete(ctx, keys...); err != nil {
		w.logger.WithError(err).Error("Failed to invalidate counter caches")
		return err
	}

	w.logger.WithFields(map[string]interface{}{
		"event_type": event.Type,
		"actor_id":   event.Data.ActorID,
		"target_id":  event.Data.TargetID,
	}).Debug("Counter caches invalidated")
	return nil
}
