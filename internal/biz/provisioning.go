package biz

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"panel-service/internal/constants"
	panelErrors "panel-service/internal/errors"
	"panel-service/internal/metrics"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// 开通请求来源
const (
	SourceStripeCheckout     = "stripe-checkout"
	SourceStripeSubscription = "stripe-subscription"
	SourceInternalCredits    = "internal-credits"
)

// ProvisioningRequest 统一的开通请求
// 三条入口路径（checkout 回执、订阅事件恢复、信用点购买）都先归一化成本对象，
// 校验通过后才进入编排流程
type ProvisioningRequest struct {
	Source       string
	UserID       string
	ResourceType string
	Name         string
	Description  string
	// 订阅外部引用 ID（Stripe subscription id 或 credits_ 前缀的内部 ID）
	ExternalID string
	Interval   string
	// 后续周期金额快照
	BillingAmount  float64
	IsCreditsBased bool

	// 套餐购买时非空；为空表示自定义规格
	PlanID string
	// 自定义规格（按内存计价）
	MemoryMB int64

	// 游戏服务器模板定位
	NestID int64
	EggID  int64
	// VPS 发行版
	Distribution string
}

// BuildProvisioningRequest 从 checkout metadata 构造开通请求
// 字段缺失属于永久性错误：同样的事件重投不会补齐 metadata
func BuildProvisioningRequest(ctx context.Context, source, externalID string, amount float64, meta map[string]string) (*ProvisioningRequest, error) {
	req := &ProvisioningRequest{
		Source:        source,
		UserID:        meta[constants.MetaUserID],
		ResourceType:  meta[constants.MetaResourceType],
		Name:          meta[constants.MetaName],
		Description:   meta[constants.MetaDescription],
		ExternalID:    externalID,
		Interval:      meta[constants.MetaInterval],
		BillingAmount: amount,
		PlanID:        meta[constants.MetaPlanID],
		Distribution:  meta[constants.MetaDistribution],
	}
	if v := meta[constants.MetaMemoryMB]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, panelErrors.Permanent(pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeEventMetadataMissing))
		}
		req.MemoryMB = n
	}
	if v := meta[constants.MetaNestID]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, panelErrors.Permanent(pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeEventMetadataMissing))
		}
		req.NestID = n
	}
	if v := meta[constants.MetaEggID]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, panelErrors.Permanent(pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeEventMetadataMissing))
		}
		req.EggID = n
	}
	if err := req.Validate(ctx); err != nil {
		return nil, err
	}
	return req, nil
}

// Validate 校验请求完整性，缺失字段逐一列出
func (r *ProvisioningRequest) Validate(ctx context.Context) error {
	var missing []string
	if r.UserID == "" {
		missing = append(missing, constants.MetaUserID)
	}
	if r.ResourceType != constants.ResourceTypeServer && r.ResourceType != constants.ResourceTypeVps {
		missing = append(missing, constants.MetaResourceType)
	}
	if r.Name == "" {
		missing = append(missing, constants.MetaName)
	}
	if r.ExternalID == "" {
		missing = append(missing, "external_id")
	}
	if MonthsIn(r.Interval) == 0 {
		missing = append(missing, constants.MetaInterval)
	}
	if r.PlanID == "" && r.MemoryMB <= 0 {
		missing = append(missing, constants.MetaMemoryMB)
	}
	if r.ResourceType == constants.ResourceTypeServer {
		if r.NestID <= 0 {
			missing = append(missing, constants.MetaNestID)
		}
		if r.EggID <= 0 {
			missing = append(missing, constants.MetaEggID)
		}
	}
	if r.ResourceType == constants.ResourceTypeVps && r.Distribution == "" {
		missing = append(missing, constants.MetaDistribution)
	}
	if len(missing) > 0 {
		err := pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeEventMetadataMissing)
		return panelErrors.Permanent(fmt.Errorf("%w: missing fields [%s]", err, strings.Join(missing, ", ")))
	}
	return nil
}

// ProvisioningUseCase 开通编排
// 幂等契约：同一 external_id 的请求重复执行至多开通一份资源。
// 补偿契约：资源创建失败时尽力删除半成品订阅记录，最终向上抛出的是原始失败原因；
// 信用点扣减的退款由执行扣减的购买层负责
type ProvisioningUseCase struct {
	subscriptions SubscriptionRepo
	plans         PlanRepo
	eggs          EggRepo
	resources     *ResourceUseCase
	conf          *BillingConfig
	log           *log.Helper
	metrics       *metrics.PanelMetrics
}

// NewProvisioningUseCase 创建开通编排 UseCase
func NewProvisioningUseCase(
	subscriptions SubscriptionRepo,
	plans PlanRepo,
	eggs EggRepo,
	resources *ResourceUseCase,
	conf *BillingConfig,
	logger log.Logger,
) *ProvisioningUseCase {
	return &ProvisioningUseCase{
		subscriptions: subscriptions,
		plans:         plans,
		eggs:          eggs,
		resources:     resources,
		conf:          conf,
		log:           log.NewHelper(logger),
		metrics:       metrics.GetMetrics(),
	}
}

// Provision 执行开通
func (uc *ProvisioningUseCase) Provision(ctx context.Context, req *ProvisioningRequest) (err error) {
	start := time.Now()
	defer func() {
		if uc.metrics != nil {
			result := constants.ResultSuccess
			if err != nil {
				result = constants.ResultFailed
			}
			uc.metrics.ProvisionTotal.WithLabelValues(req.ResourceType, result).Inc()
			uc.metrics.ProvisionDuration.WithLabelValues(req.ResourceType).Observe(time.Since(start).Seconds())
		}
	}()

	if err = req.Validate(ctx); err != nil {
		return err
	}

	// 幂等创建订阅：并发重复事件靠 external_id 唯一约束收敛到同一条记录
	sub, created, err := uc.ensureSubscription(ctx, req)
	if err != nil {
		return err
	}
	if !created {
		// 订阅已存在：检查是否已有资源，有则本次为重复投递，直接成功返回
		exists, err := uc.resources.HasResourceForSubscription(ctx, sub.ID)
		if err != nil {
			return err
		}
		if exists {
			uc.log.Infof("Provision skipped, resource already exists: external_id=%s, subscription_id=%s", req.ExternalID, sub.ID)
			return nil
		}
		// 订阅在而资源不在：信用点购买先落了订阅，或上次开通中途失败，继续走资源创建补全
		uc.log.Infof("Subscription exists without resource, continuing provision: subscription_id=%s", sub.ID)
	}

	if err = uc.createAndLinkResource(ctx, req, sub); err != nil {
		uc.compensate(ctx, sub)
		return err
	}

	uc.log.Infof("Provision completed: source=%s, user_id=%s, resource_type=%s, subscription_id=%s",
		req.Source, req.UserID, req.ResourceType, sub.ID)
	return nil
}

func (uc *ProvisioningUseCase) ensureSubscription(ctx context.Context, req *ProvisioningRequest) (*Subscription, bool, error) {
	var planID *string
	if req.PlanID != "" {
		planID = &req.PlanID
	}
	var nextBilling *time.Time
	if req.IsCreditsBased {
		next := time.Now().AddDate(0, MonthsIn(req.Interval), 0)
		nextBilling = &next
	}
	sub, created, err := uc.subscriptions.EnsureSubscription(ctx, &Subscription{
		UserID:         req.UserID,
		ExternalID:     req.ExternalID,
		ExternalStatus: constants.SubscriptionStatusActive,
		PlanID:         planID,
		Interval:       req.Interval,
		BillingAmount:  req.BillingAmount,
		IsCreditsBased: req.IsCreditsBased,
		NextBillingAt:  nextBilling,
	})
	if err != nil {
		return nil, false, pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeSubscriptionCreateFailed)
	}
	return sub, created, nil
}

// createAndLinkResource 解析规格与模板，创建资源并关联订阅，最后校验可检索性
func (uc *ProvisioningUseCase) createAndLinkResource(ctx context.Context, req *ProvisioningRequest, sub *Subscription) error {
	memoryMB, diskMB, cpu, io, swap, err := uc.resolveSizing(ctx, req)
	if err != nil {
		return err
	}

	switch req.ResourceType {
	case constants.ResourceTypeServer:
		egg, err := uc.eggs.GetEgg(ctx, req.NestID, req.EggID)
		if err != nil {
			return err
		}
		if egg == nil {
			// 模板在付款后被删除属于数据问题，重试无意义
			return panelErrors.Permanent(pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeEggNotFound))
		}
		if len(egg.DockerImages) == 0 {
			return panelErrors.Permanent(pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeEggNoDockerImage))
		}
		env := make(map[string]string, len(egg.Variables))
		for _, v := range egg.Variables {
			env[v.EnvVariable] = v.DefaultValue
		}

		server, err := uc.resources.CreateGameServer(ctx, &GameServer{
			UserID:      req.UserID,
			Name:        req.Name,
			Description: req.Description,
			NestID:      req.NestID,
			EggID:       req.EggID,
			DockerImage: egg.DockerImages[0],
			Startup:     egg.Startup,
			Environment: env,
			MemoryMB:    memoryMB,
			DiskMB:      diskMB,
			CPUPercent:  cpu,
			IO:          io,
			SwapMB:      swap,
		})
		if err != nil {
			return err
		}
		if err := uc.resources.servers.LinkSubscription(ctx, server.ID, sub.ID); err != nil {
			return pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeProvisionFailed)
		}
		// 校验守护进程拉取路径是否能检索到该资源
		check, err := uc.resources.servers.GetGameServerByExternalID(ctx, server.ExternalID)
		if err != nil || check == nil {
			return pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeResourceVerifyFailed)
		}
		return nil

	case constants.ResourceTypeVps:
		instance, err := uc.resources.CreateVps(ctx, &Vps{
			UserID:       req.UserID,
			Name:         req.Name,
			Distribution: req.Distribution,
			MemoryMB:     memoryMB,
			DiskMB:       diskMB,
			CPUCores:     cpu,
		})
		if err != nil {
			return err
		}
		if err := uc.resources.vps.LinkSubscription(ctx, instance.ID, sub.ID); err != nil {
			return pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeProvisionFailed)
		}
		check, err := uc.resources.vps.GetVps(ctx, instance.ID)
		if err != nil || check == nil {
			return pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeResourceVerifyFailed)
		}
		return nil

	default:
		return panelErrors.Permanent(pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeUnknownResourceType))
	}
}

// resolveSizing 解析资源规格：套餐规格直接取套餐，自定义规格按内存推导
func (uc *ProvisioningUseCase) resolveSizing(ctx context.Context, req *ProvisioningRequest) (memoryMB, diskMB, cpu, io, swap int64, err error) {
	if req.PlanID != "" {
		plan, err := uc.plans.GetPlan(ctx, req.PlanID)
		if err != nil {
			return 0, 0, 0, 0, 0, err
		}
		if plan == nil {
			return 0, 0, 0, 0, 0, panelErrors.Permanent(pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodePlanNotFound))
		}
		return plan.MemoryMB, plan.DiskMB, plan.CPUPercent, plan.IO, plan.SwapMB, nil
	}

	if req.MemoryMB <= 0 {
		return 0, 0, 0, 0, 0, panelErrors.Permanent(pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeInvalidSizing))
	}
	memoryMB = req.MemoryMB
	diskMB = int64(float64(memoryMB) * uc.conf.CustomDiskMultiplier)
	if req.ResourceType == constants.ResourceTypeVps {
		// VPS 的 CPU 按核数：每 2GB 内存 1 核，至少 1 核
		cpu = memoryMB / 2048
		if cpu < 1 {
			cpu = 1
		}
		return memoryMB, diskMB, cpu, 0, 0, nil
	}
	// 游戏服务器默认 100% CPU、io 500、无 swap
	return memoryMB, diskMB, 100, 500, 0, nil
}

// compensate 开通失败补偿：半成品订阅记录尽力删除
// 补偿自身的失败只记录，不覆盖原始错误
func (uc *ProvisioningUseCase) compensate(ctx context.Context, sub *Subscription) {
	if err := uc.subscriptions.DeleteSubscription(ctx, sub.ID); err != nil {
		uc.log.Errorf("Compensation subscription delete failed: subscription_id=%s, error=%v", sub.ID, err)
		uc.recordCompensation("subscription_delete", constants.ResultFailed)
		return
	}
	uc.recordCompensation("subscription_delete", constants.ResultSuccess)
}

func (uc *ProvisioningUseCase) recordCompensation(action, result string) {
	if uc.metrics != nil {
		uc.metrics.CompensationTotal.WithLabelValues(action, result).Inc()
	}
}
