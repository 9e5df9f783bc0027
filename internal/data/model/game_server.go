package model

import (
	"time"
)

// 游戏服务器状态常量
const (
	ServerStatusInstalling    = "installing"
	ServerStatusInstallFailed = "install_failed"
	ServerStatusRunning       = "running"
	ServerStatusSuspended     = "suspended"
)

// GameServer 游戏服务器资源表
type GameServer struct {
	ServerID string `gorm:"primaryKey;type:varchar(36)"`
	UserID   string `gorm:"type:varchar(36);not null;index"`
	// 守护进程侧的标识，daemon 通过它拉取服务器配置
	ExternalID     string  `gorm:"uniqueIndex;type:varchar(36);not null"`
	SubscriptionID *string `gorm:"type:varchar(36);index"`
	Name           string  `gorm:"type:varchar(191);not null"`
	Description    string  `gorm:"type:varchar(191)"`
	NestID         int64   `gorm:"not null"`
	EggID          int64   `gorm:"not null"`
	DockerImage    string  `gorm:"type:varchar(191);not null"`
	Startup        string  `gorm:"type:text"`
	Environment    string  `gorm:"type:json"`
	MemoryMB       int64   `gorm:"not null"`
	DiskMB         int64   `gorm:"not null"`
	CPUPercent     int64   `gorm:"not null;default:100"`
	IO             int64   `gorm:"default:500"`
	SwapMB         int64   `gorm:"default:0"`
	Status         string  `gorm:"type:varchar(24);not null;default:'installing'"`
	NodeID         int64
	AllocationID   int64
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (GameServer) TableName() string {
	return "game_server"
}
