package data

import (
	"context"
	"fmt"
	"time"

	"panel-service/internal/biz"
	"panel-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
)

// webhookEventTTL 去重标记的保留时长，覆盖支付网关的重投窗口
const webhookEventTTL = 72 * time.Hour

// webhookDedup 实现 biz.WebhookDedup 接口
// SETNX 占位：第一次投递成功占位，处理失败后释放，让后续重投还有机会处理。
// redis 标记只是快速路径，数据库侧的幂等约束兜底标记丢失的情况
type webhookDedup struct {
	data *Data
	log  *log.Helper
}

// NewWebhookDedup 创建 webhook 去重存储
func NewWebhookDedup(data *Data, logger log.Logger) biz.WebhookDedup {
	return &webhookDedup{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// MarkIfFirst 尝试占位，返回是否为首次投递
func (d *webhookDedup) MarkIfFirst(ctx context.Context, eventID string) (bool, error) {
	key := fmt.Sprintf("%s%s", constants.RedisKeyWebhookEvent, eventID)
	ok, err := d.data.rdb.SetNX(ctx, key, time.Now().Unix(), webhookEventTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Release 释放占位（瞬时失败后调用，等待重投）
func (d *webhookDedup) Release(ctx context.Context, eventID string) error {
	key := fmt.Sprintf("%s%s", constants.RedisKeyWebhookEvent, eventID)
	return d.data.rdb.Del(ctx, key).Err()
}
