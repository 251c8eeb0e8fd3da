// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"rag-qa-go/internal/config"
	"rag-qa-go/pkg/log"
	"rag-qa-go/pkg/tasks"
)

const (
	defaultMaxAttempts = 3
	attemptsTTL        = 24 * time.Hour
	defaultBackoff     = time.Second
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ReindexTask) error
}

// TaskProducer 发送重建索引任务。
type TaskProducer interface {
	ProduceReindexTask(ctx context.Context, task tasks.ReindexTask) error
	Close() error
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Producer 是基于 kafka.Writer 的 TaskProducer。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers(cfg)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// ProduceReindexTask 发送一个重建索引任务到 Kafka，以文档 ID 作为消息键。
func (p *Producer) ProduceReindexTask(ctx context.Context, task tasks.ReindexTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", task.DocumentID)),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// messageReader 是消费循环用到的 kafka.Reader 方法子集。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StartConsumer 启动一个 Kafka 消费者来处理重建索引任务，直到 ctx 被取消。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, rdb *redis.Client) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	c := &consumer{reader: r, processor: processor, rdb: rdb, maxAttempts: cfg.MaxAttempts, backoff: defaultBackoff}
	c.run(ctx)
}

type consumer struct {
	reader      messageReader
	processor   TaskProcessor
	rdb         *redis.Client
	maxAttempts int
	// backoff 是第一次重试前的等待时间，之后每次翻倍
	backoff time.Duration
}

func (c *consumer) run(ctx context.Context) {
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				log.Info("Kafka 消费者收到退出信号")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}
		c.handle(ctx, m)
	}
}

// handle 处理单条消息。kafka-go 提交后面的 offset 会连带提交前面的消息，
// 所以失败的任务必须在这里就地重试，直到成功或达到上限后才继续消费下一条。
// 尝试次数记在 Redis 中，进程重启后重新投递的任务会接着计数。
func (c *consumer) handle(ctx context.Context, m kafka.Message) {
	log.Infof("收到 Kafka 消息: offset %d", m.Offset)

	var task tasks.ReindexTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		// 消息格式错误，直接提交，避免阻塞队列
		c.commit(ctx, m)
		return
	}

	maxAttempts := c.maxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	attemptsKey := fmt.Sprintf("kafka:attempts:%d", task.DocumentID)
	wait := c.backoff

	for local := 1; ; local++ {
		log.Infof("开始处理重建索引任务: DocumentID=%d, 第 %d 次", task.DocumentID, local)
		err := c.processor.Process(ctx, task)
		if err == nil {
			log.Infof("重建索引任务处理成功: DocumentID=%d", task.DocumentID)
			_ = c.rdb.Del(ctx, attemptsKey).Err()
			c.commit(ctx, m)
			return
		}
		log.Errorf("处理重建索引任务失败: DocumentID=%d, Error: %v", task.DocumentID, err)

		attempts := int64(local)
		if n, incErr := c.rdb.Incr(ctx, attemptsKey).Result(); incErr == nil {
			attempts = n
			_ = c.rdb.Expire(ctx, attemptsKey, attemptsTTL).Err()
		}
		if attempts >= int64(maxAttempts) {
			log.Errorf("重建索引任务多次失败(>=%d)，提交 offset 终止重试: DocumentID=%d", maxAttempts, task.DocumentID)
			c.commit(ctx, m)
			return
		}

		// 退出时不提交，重启后该消息会被重新投递
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		wait *= 2
	}
}

func (c *consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}
