package model

import (
	"time"
)

// VPS 状态常量
const (
	VpsStatusCreating     = "creating"
	VpsStatusCreateFailed = "create_failed"
	VpsStatusRunning      = "running"
	VpsStatusStopped      = "stopped"
	VpsStatusStarting     = "starting"
	VpsStatusStopping     = "stopping"
	VpsStatusRebooting    = "rebooting"
	VpsStatusError        = "error"
	VpsStatusSuspended    = "suspended"
)

// Vps VPS 资源表
type Vps struct {
	VpsID          string  `gorm:"primaryKey;type:varchar(36)"`
	UserID         string  `gorm:"type:varchar(36);not null;index"`
	SubscriptionID *string `gorm:"type:varchar(36);index"`
	Name           string  `gorm:"type:varchar(191);not null"`
	Distribution   string  `gorm:"type:varchar(64);not null"` // 操作系统发行版标识
	MemoryMB       int64   `gorm:"not null"`
	DiskMB         int64   `gorm:"not null"`
	CPUCores       int64   `gorm:"not null;default:1"`
	Status         string  `gorm:"type:varchar(24);not null;default:'creating'"`
	// 虚拟化平台侧的定位信息
	Node        string    `gorm:"type:varchar(64)"`
	Vmid        int64     `gorm:"index"`
	StoragePool string    `gorm:"type:varchar(64)"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Vps) TableName() string {
	return "vps"
}
