package data

import (
	"context"
	"encoding/json"
	"errors"

	"panel-service/internal/biz"
	"panel-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// gameServerRepo 实现 biz.GameServerRepo 接口
type gameServerRepo struct {
	data *Data
	log  *log.Helper
}

// NewGameServerRepo 创建游戏服务器 repo
func NewGameServerRepo(data *Data, logger log.Logger) biz.GameServerRepo {
	return &gameServerRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreateGameServer 创建游戏服务器记录（独立事务，远端调用前提交）
func (r *gameServerRepo) CreateGameServer(ctx context.Context, s *biz.GameServer) error {
	env := ""
	if len(s.Environment) > 0 {
		raw, err := json.Marshal(s.Environment)
		if err == nil {
			env = string(raw)
		}
	}
	m := &model.GameServer{
		ServerID:       s.ID,
		UserID:         s.UserID,
		ExternalID:     s.ExternalID,
		SubscriptionID: s.SubscriptionID,
		Name:           s.Name,
		Description:    s.Description,
		NestID:         s.NestID,
		EggID:          s.EggID,
		DockerImage:    s.DockerImage,
		Startup:        s.Startup,
		Environment:    env,
		MemoryMB:       s.MemoryMB,
		DiskMB:         s.DiskMB,
		CPUPercent:     s.CPUPercent,
		IO:             s.IO,
		SwapMB:         s.SwapMB,
		Status:         s.Status,
	}
	if err := r.data.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	s.CreatedAt = m.CreatedAt
	return nil
}

// GetGameServerByExternalID 守护进程拉取配置的查询路径，不存在时返回 (nil, nil)
func (r *gameServerRepo) GetGameServerByExternalID(ctx context.Context, externalID string) (*biz.GameServer, error) {
	var m model.GameServer
	if err := r.data.db.WithContext(ctx).Where("external_id = ?", externalID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return gameServerToBiz(&m), nil
}

// LinkSubscription 将服务器关联到订阅（单条 UPDATE）
func (r *gameServerRepo) LinkSubscription(ctx context.Context, serverID, subscriptionID string) error {
	return r.data.db.WithContext(ctx).Model(&model.GameServer{}).
		Where("server_id = ?", serverID).
		Update("subscription_id", subscriptionID).Error
}

// UpdateGameServerStatus 更新服务器状态
func (r *gameServerRepo) UpdateGameServerStatus(ctx context.Context, serverID, status string) error {
	return r.data.db.WithContext(ctx).Model(&model.GameServer{}).
		Where("server_id = ?", serverID).
		Update("status", status).Error
}

// ListGameServersBySubscription 列出订阅下的全部服务器
func (r *gameServerRepo) ListGameServersBySubscription(ctx context.Context, subscriptionID string) ([]*biz.GameServer, error) {
	var ms []*model.GameServer
	if err := r.data.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).Find(&ms).Error; err != nil {
		return nil, err
	}
	servers := make([]*biz.GameServer, 0, len(ms))
	for _, m := range ms {
		servers = append(servers, gameServerToBiz(m))
	}
	return servers, nil
}

// DeleteGameServer 删除服务器记录
func (r *gameServerRepo) DeleteGameServer(ctx context.Context, serverID string) error {
	return r.data.db.WithContext(ctx).
		Where("server_id = ?", serverID).
		Delete(&model.GameServer{}).Error
}

func gameServerToBiz(m *model.GameServer) *biz.GameServer {
	var env map[string]string
	if m.Environment != "" {
		_ = json.Unmarshal([]byte(m.Environment), &env)
	}
	return &biz.GameServer{
		ID:             m.ServerID,
		UserID:         m.UserID,
		ExternalID:     m.ExternalID,
		SubscriptionID: m.SubscriptionID,
		Name:           m.Name,
		Description:    m.Description,
		NestID:         m.NestID,
		EggID:          m.EggID,
		DockerImage:    m.DockerImage,
		Startup:        m.Startup,
		Environment:    env,
		MemoryMB:       m.MemoryMB,
		DiskMB:         m.DiskMB,
		CPUPercent:     m.CPUPercent,
		IO:             m.IO,
		SwapMB:         m.SwapMB,
		Status:         m.Status,
		CreatedAt:      m.CreatedAt,
	}
}
