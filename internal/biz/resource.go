package biz

import (
	"context"
	"time"

	"panel-service/internal/conf"
	"panel-service/internal/constants"
	panelErrors "panel-service/internal/errors"
	"panel-service/internal/metrics"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// GameServer 游戏服务器领域对象
type GameServer struct {
	ID             string
	UserID         string
	ExternalID     string
	SubscriptionID *string
	Name           string
	Description    string
	NestID         int64
	EggID          int64
	DockerImage    string
	Startup        string
	Environment    map[string]string
	MemoryMB       int64
	DiskMB         int64
	CPUPercent     int64
	IO             int64
	SwapMB         int64
	Status         string
	CreatedAt      time.Time
}

// Vps VPS 领域对象
type Vps struct {
	ID             string
	UserID         string
	SubscriptionID *string
	Name           string
	Distribution   string
	MemoryMB       int64
	DiskMB         int64
	CPUCores       int64
	Status         string
	Node           string
	Vmid           int64
	StoragePool    string
	CreatedAt      time.Time
}

// Egg 游戏服务器模板领域对象
type Egg struct {
	ID           int64
	NestID       int64
	Name         string
	DockerImages []string
	Startup      string
	Variables    []EggVariable
}

// EggVariable 模板启动变量
type EggVariable struct {
	EnvVariable  string
	DefaultValue string
}

// GameServerRepo 游戏服务器数据层接口（定义在 biz 层）
type GameServerRepo interface {
	CreateGameServer(ctx context.Context, s *GameServer) error
	// GetGameServerByExternalID 守护进程拉取配置所走的查询路径，不存在时返回 (nil, nil)
	GetGameServerByExternalID(ctx context.Context, externalID string) (*GameServer, error)
	// LinkSubscription 单条 UPDATE 将资源关联到订阅
	LinkSubscription(ctx context.Context, serverID, subscriptionID string) error
	UpdateGameServerStatus(ctx context.Context, serverID, status string) error
	ListGameServersBySubscription(ctx context.Context, subscriptionID string) ([]*GameServer, error)
	DeleteGameServer(ctx context.Context, serverID string) error
}

// VpsRepo VPS 数据层接口（定义在 biz 层）
type VpsRepo interface {
	CreateVps(ctx context.Context, v *Vps) error
	GetVps(ctx context.Context, vpsID string) (*Vps, error)
	LinkSubscription(ctx context.Context, vpsID, subscriptionID string) error
	UpdateVpsStatus(ctx context.Context, vpsID, status string) error
	ListVpsBySubscription(ctx context.Context, subscriptionID string) ([]*Vps, error)
	DeleteVps(ctx context.Context, vpsID string) error
	// MaxVmid 返回当前已分配的最大 VMID，没有任何记录时返回 0
	MaxVmid(ctx context.Context) (int64, error)
}

// EggRepo 模板数据层接口（定义在 biz 层）
type EggRepo interface {
	// GetEgg 获取分类下的模板（含变量），不存在或分类不匹配时返回 (nil, nil)
	GetEgg(ctx context.Context, nestID, eggID int64) (*Egg, error)
}

// ServerDaemon 游戏服务器守护进程能力接口
type ServerDaemon interface {
	// CreateServer 在守护进程侧创建服务器，节点与端口由守护进程自动分配
	CreateServer(ctx context.Context, s *GameServer) error
	DeleteServer(ctx context.Context, externalID string) error
}

// Hypervisor 虚拟化平台能力接口
type Hypervisor interface {
	CreateVM(ctx context.Context, v *Vps) error
	StartVM(ctx context.Context, node string, vmid int64) error
	DeleteVM(ctx context.Context, node string, vmid int64) error
}

// HypervisorPlacement 虚拟化平台放置配置
type HypervisorPlacement struct {
	Node        string
	StoragePool string
	VmidMin     int64
	VmidMax     int64
}

// NewHypervisorPlacement 从配置创建放置配置
func NewHypervisorPlacement(c *conf.Bootstrap) *HypervisorPlacement {
	placement := &HypervisorPlacement{
		VmidMin: 100,
		VmidMax: 999999999,
	}
	if c.Proxmox != nil {
		placement.Node = c.Proxmox.Node
		placement.StoragePool = c.Proxmox.StoragePool
		if c.Proxmox.VmidMin > 0 {
			placement.VmidMin = c.Proxmox.VmidMin
		}
		if c.Proxmox.VmidMax > 0 {
			placement.VmidMax = c.Proxmox.VmidMax
		}
	}
	return placement
}

// ResourceUseCase 资源创建服务
// 事务契约：先在本地事务中提交资源记录，再调用远端基础设施。
// 远端调用中途失败时留下的是一条状态为 *_failed 的本地一致记录，而不是丢失记录
type ResourceUseCase struct {
	servers    GameServerRepo
	vps        VpsRepo
	daemon     ServerDaemon
	hypervisor Hypervisor
	placement  *HypervisorPlacement
	log        *log.Helper
	metrics    *metrics.PanelMetrics
}

// NewResourceUseCase 创建资源服务
func NewResourceUseCase(
	servers GameServerRepo,
	vps VpsRepo,
	daemon ServerDaemon,
	hypervisor Hypervisor,
	placement *HypervisorPlacement,
	logger log.Logger,
) *ResourceUseCase {
	return &ResourceUseCase{
		servers:    servers,
		vps:        vps,
		daemon:     daemon,
		hypervisor: hypervisor,
		placement:  placement,
		log:        log.NewHelper(logger),
		metrics:    metrics.GetMetrics(),
	}
}

// CreateGameServer 创建游戏服务器
func (uc *ResourceUseCase) CreateGameServer(ctx context.Context, s *GameServer) (*GameServer, error) {
	s.ID = uuid.New().String()
	s.ExternalID = uuid.New().String()
	s.Status = constants.ServerStatusInstalling

	// 本地记录先落库提交，远端失败不回滚它
	if err := uc.servers.CreateGameServer(ctx, s); err != nil {
		return nil, pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeServerCreateFailed)
	}

	if err := uc.daemon.CreateServer(ctx, s); err != nil {
		uc.log.Errorf("Daemon create failed: server_id=%s, external_id=%s, error=%v", s.ID, s.ExternalID, err)
		if updateErr := uc.servers.UpdateGameServerStatus(ctx, s.ID, constants.ServerStatusInstallFailed); updateErr != nil {
			uc.log.Errorf("Failed to mark server install_failed: server_id=%s, error=%v", s.ID, updateErr)
		}
		return nil, pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeDaemonUnavailable)
	}

	return s, nil
}

// CreateVps 创建 VPS
func (uc *ResourceUseCase) CreateVps(ctx context.Context, v *Vps) (*Vps, error) {
	maxVmid, err := uc.vps.MaxVmid(ctx)
	if err != nil {
		return nil, pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeVpsCreateFailed)
	}
	vmid := maxVmid + 1
	if vmid < uc.placement.VmidMin {
		vmid = uc.placement.VmidMin
	}
	if vmid > uc.placement.VmidMax {
		// VMID 段耗尽是数据/容量问题，重试同样的输入不会恢复
		return nil, panelErrors.Permanent(pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeNoVmidAvailable))
	}

	v.ID = uuid.New().String()
	v.Status = constants.VpsStatusCreating
	v.Node = uc.placement.Node
	v.Vmid = vmid
	v.StoragePool = uc.placement.StoragePool

	if err := uc.vps.CreateVps(ctx, v); err != nil {
		return nil, pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeVpsCreateFailed)
	}

	if err := uc.hypervisor.CreateVM(ctx, v); err != nil {
		uc.log.Errorf("Hypervisor create failed: vps_id=%s, vmid=%d, error=%v", v.ID, v.Vmid, err)
		if updateErr := uc.vps.UpdateVpsStatus(ctx, v.ID, constants.VpsStatusCreateFailed); updateErr != nil {
			uc.log.Errorf("Failed to mark vps create_failed: vps_id=%s, error=%v", v.ID, updateErr)
		}
		return nil, pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeHypervisorUnavailable)
	}

	if err := uc.hypervisor.StartVM(ctx, v.Node, v.Vmid); err != nil {
		// 创建成功但启动失败：资源存在，保留 stopped 状态等待用户/管理员操作
		uc.log.Warnf("VM created but start failed: vps_id=%s, vmid=%d, error=%v", v.ID, v.Vmid, err)
		if updateErr := uc.vps.UpdateVpsStatus(ctx, v.ID, constants.VpsStatusStopped); updateErr != nil {
			uc.log.Errorf("Failed to mark vps stopped: vps_id=%s, error=%v", v.ID, updateErr)
		}
		v.Status = constants.VpsStatusStopped
		return v, nil
	}

	if err := uc.vps.UpdateVpsStatus(ctx, v.ID, constants.VpsStatusRunning); err != nil {
		uc.log.Errorf("Failed to mark vps running: vps_id=%s, error=%v", v.ID, err)
	}
	v.Status = constants.VpsStatusRunning
	return v, nil
}

// DeleteGameServer 删除游戏服务器（远端优先，远端失败时不删本地记录）
func (uc *ResourceUseCase) DeleteGameServer(ctx context.Context, s *GameServer) error {
	if err := uc.daemon.DeleteServer(ctx, s.ExternalID); err != nil {
		return pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeResourceDeleteFailed)
	}
	return uc.servers.DeleteGameServer(ctx, s.ID)
}

// DeleteVpsInstance 删除 VPS
func (uc *ResourceUseCase) DeleteVpsInstance(ctx context.Context, v *Vps) error {
	if err := uc.hypervisor.DeleteVM(ctx, v.Node, v.Vmid); err != nil {
		return pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeResourceDeleteFailed)
	}
	return uc.vps.DeleteVps(ctx, v.ID)
}

// HasResourceForSubscription 判断订阅下是否已有任一资源（幂等短路用）
func (uc *ResourceUseCase) HasResourceForSubscription(ctx context.Context, subscriptionID string) (bool, error) {
	servers, err := uc.servers.ListGameServersBySubscription(ctx, subscriptionID)
	if err != nil {
		return false, err
	}
	if len(servers) > 0 {
		return true, nil
	}
	instances, err := uc.vps.ListVpsBySubscription(ctx, subscriptionID)
	if err != nil {
		return false, err
	}
	return len(instances) > 0, nil
}

// DeleteForSubscription 删除订阅下的全部资源
// 逐个尽力而为：单个资源删除失败只记录日志，不阻塞其余资源。返回删除失败的数量
func (uc *ResourceUseCase) DeleteForSubscription(ctx context.Context, subscriptionID string) int {
	failed := 0

	servers, err := uc.servers.ListGameServersBySubscription(ctx, subscriptionID)
	if err != nil {
		uc.log.Errorf("List servers for subscription failed: subscription_id=%s, error=%v", subscriptionID, err)
		failed++
	} else {
		for _, s := range servers {
			if err := uc.DeleteGameServer(ctx, s); err != nil {
				uc.log.Errorf("Delete server failed: server_id=%s, subscription_id=%s, error=%v", s.ID, subscriptionID, err)
				uc.recordCompensation("resource_delete", constants.ResultFailed)
				failed++
				continue
			}
			uc.recordCompensation("resource_delete", constants.ResultSuccess)
		}
	}

	instances, err := uc.vps.ListVpsBySubscription(ctx, subscriptionID)
	if err != nil {
		uc.log.Errorf("List vps for subscription failed: subscription_id=%s, error=%v", subscriptionID, err)
		failed++
	} else {
		for _, v := range instances {
			if err := uc.DeleteVpsInstance(ctx, v); err != nil {
				uc.log.Errorf("Delete vps failed: vps_id=%s, subscription_id=%s, error=%v", v.ID, subscriptionID, err)
				uc.recordCompensation("resource_delete", constants.ResultFailed)
				failed++
				continue
			}
			uc.recordCompensation("resource_delete", constants.ResultSuccess)
		}
	}

	return failed
}

func (uc *ResourceUseCase) recordCompensation(action, result string) {
	if uc.metrics != nil {
		uc.metrics.CompensationTotal.WithLabelValues(action, result).Inc()
	}
}
