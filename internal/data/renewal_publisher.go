package data

import (
	"context"
	"encoding/json"

	"panel-service/internal/biz"
	"panel-service/internal/conf"

	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/go-kratos/kratos/v2/log"
)

// DefaultRenewalTopic 续费事件默认主题
const DefaultRenewalTopic = "panel_renewal_queue"

// renewalPublisher 实现 biz.RenewalPublisher 接口
type renewalPublisher struct {
	data  *Data
	topic string
	log   *log.Helper
}

// NewRenewalPublisher 创建续费事件发布器
func NewRenewalPublisher(data *Data, c *conf.Bootstrap, logger log.Logger) biz.RenewalPublisher {
	topic := DefaultRenewalTopic
	if c.Data != nil && c.Data.Rocketmq != nil && c.Data.Rocketmq.Topic != "" {
		topic = c.Data.Rocketmq.Topic
	}
	return &renewalPublisher{
		data:  data,
		topic: topic,
		log:   log.NewHelper(logger),
	}
}

// Enabled MQ 生产者是否可用
func (p *renewalPublisher) Enabled() bool {
	return p.data.mq != nil
}

// PublishRenewal 投递一条续费事件
func (p *renewalPublisher) PublishRenewal(ctx context.Context, event *biz.RenewalEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := primitive.NewMessage(p.topic, msgBytes)
	if _, err := p.data.mq.SendSync(ctx, msg); err != nil {
		return err
	}
	p.log.Debugf("Renewal event published: subscription_id=%s", event.SubscriptionID)
	return nil
}
