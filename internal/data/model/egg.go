package model

import (
	"time"
)

// Nest 游戏服务器模板分类表
type Nest struct {
	NestID      int64     `gorm:"primaryKey;autoIncrement"`
	Name        string    `gorm:"type:varchar(64);not null"`
	Description string    `gorm:"type:varchar(191)"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Nest) TableName() string {
	return "nest"
}

// Egg 游戏服务器模板表
type Egg struct {
	EggID  int64  `gorm:"primaryKey;autoIncrement"`
	NestID int64  `gorm:"not null;index"`
	Name   string `gorm:"type:varchar(64);not null"`
	// 可用容器镜像列表（JSON 数组），第一个为默认镜像
	DockerImages string `gorm:"type:json"`
	Startup      string `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Egg) TableName() string {
	return "egg"
}

// EggVariable 模板启动变量表
type EggVariable struct {
	EggVariableID int64  `gorm:"primaryKey;autoIncrement"`
	EggID         int64  `gorm:"not null;index"`
	EnvVariable   string `gorm:"type:varchar(64);not null"`
	DefaultValue  string `gorm:"type:varchar(191)"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (EggVariable) TableName() string {
	return "egg_variable"
}
