package conf

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration 支持 "5s" / "1m" 格式的配置时长
type Duration time.Duration

// UnmarshalJSON 实现 kratos config Scan 的时长解析
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value) * time.Second)
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
	return nil
}

// AsDuration 转换为 time.Duration
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

// Bootstrap 启动配置
type Bootstrap struct {
	Server  *Server  `json:"server"`
	Data    *Data    `json:"data"`
	Billing *Billing `json:"billing"`
	Stripe  *Stripe  `json:"stripe"`
	Wings   *Wings   `json:"wings"`
	Proxmox *Proxmox `json:"proxmox"`
}

// Server 服务配置
type Server struct {
	Http *HTTP `json:"http"`
}

// HTTP HTTP 服务配置
type HTTP struct {
	Network string   `json:"network"`
	Addr    string   `json:"addr"`
	Timeout Duration `json:"timeout"`
}

// Data 数据层配置
type Data struct {
	Database *Database `json:"database"`
	Redis    *Redis    `json:"redis"`
	Rocketmq *Rocketmq `json:"rocketmq"`
}

// Database 数据库配置
type Database struct {
	Source string `json:"source"`
}

// Redis Redis 配置
type Redis struct {
	Addr         string   `json:"addr"`
	ReadTimeout  Duration `json:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout"`
}

// Rocketmq RocketMQ 配置
type Rocketmq struct {
	Enabled     bool     `json:"enabled"`
	NameServers []string `json:"name_servers"`
	GroupName   string   `json:"group_name"`
	RetryTimes  int32    `json:"retry_times"`
	Topic       string   `json:"topic"`
}

// Billing 计费配置
type Billing struct {
	Currency string `json:"currency"`
	// 自定义规格每 GB 内存的月单价
	CustomRatePerGB float64 `json:"custom_rate_per_gb"`
	// 自定义规格磁盘大小 = 内存 MB * 该倍数
	CustomDiskMultiplier float64 `json:"custom_disk_multiplier"`
	// 按资源类别、按周期的折扣百分比，如 server.year: 20
	IntervalDiscounts map[string]map[string]float64 `json:"interval_discounts"`
	// 信用点余额低阈值（告警用）
	BalanceLowThreshold float64 `json:"balance_low_threshold"`
	// 单次续费处理批大小
	RenewalBatchSize int `json:"renewal_batch_size"`
}

// Stripe 支付网关配置
type Stripe struct {
	SecretKey     string `json:"secret_key"`
	WebhookSecret string `json:"webhook_secret"`
	// webhook 签名时间戳容忍窗口
	Tolerance       Duration `json:"tolerance"`
	SuccessURL      string   `json:"success_url"`
	CancelURL       string   `json:"cancel_url"`
	PortalReturnURL string   `json:"portal_return_url"`
}

// Wings 游戏服务器守护进程配置
type Wings struct {
	Endpoint string   `json:"endpoint"`
	Token    string   `json:"token"`
	Timeout  Duration `json:"timeout"`
}

// Proxmox 虚拟化平台配置
type Proxmox struct {
	Endpoint    string   `json:"endpoint"`
	TokenID     string   `json:"token_id"`
	Secret      string   `json:"secret"`
	Node        string   `json:"node"`
	StoragePool string   `json:"storage_pool"`
	VmidMin     int64    `json:"vmid_min"`
	VmidMax     int64    `json:"vmid_max"`
	Timeout     Duration `json:"timeout"`
}
