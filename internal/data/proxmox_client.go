package data

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"panel-service/internal/biz"
	"panel-service/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
)

// proxmoxHypervisor 实现 biz.Hypervisor 接口
// 虚拟化平台的 REST 客户端，API token 鉴权
type proxmoxHypervisor struct {
	baseURL    string
	tokenID    string
	secret     string
	httpClient *http.Client
	log        *log.Helper
}

// NewProxmoxHypervisor 创建虚拟化平台客户端
func NewProxmoxHypervisor(c *conf.Bootstrap, logger log.Logger) biz.Hypervisor {
	h := &proxmoxHypervisor{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log.NewHelper(logger),
	}
	if c.Proxmox != nil {
		h.baseURL = c.Proxmox.Endpoint
		h.tokenID = c.Proxmox.TokenID
		h.secret = c.Proxmox.Secret
		if c.Proxmox.Timeout.AsDuration() > 0 {
			h.httpClient.Timeout = c.Proxmox.Timeout.AsDuration()
		}
	}
	return h
}

// CreateVM 创建虚拟机
func (h *proxmoxHypervisor) CreateVM(ctx context.Context, v *biz.Vps) error {
	form := url.Values{}
	form.Set("vmid", fmt.Sprintf("%d", v.Vmid))
	form.Set("name", v.Name)
	form.Set("memory", fmt.Sprintf("%d", v.MemoryMB))
	form.Set("cores", fmt.Sprintf("%d", v.CPUCores))
	form.Set("ostype", "l26")
	form.Set("scsi0", fmt.Sprintf("%s:%d", v.StoragePool, v.DiskMB/1024))
	form.Set("net0", "virtio,bridge=vmbr0")
	// 发行版镜像作为安装介质挂载
	form.Set("ide2", fmt.Sprintf("local:iso/%s.iso,media=cdrom", v.Distribution))

	endpoint := fmt.Sprintf("/api2/json/nodes/%s/qemu", v.Node)
	_, err := h.makeRequest(ctx, http.MethodPost, endpoint, form)
	return err
}

// StartVM 启动虚拟机
func (h *proxmoxHypervisor) StartVM(ctx context.Context, node string, vmid int64) error {
	endpoint := fmt.Sprintf("/api2/json/nodes/%s/qemu/%d/status/start", node, vmid)
	_, err := h.makeRequest(ctx, http.MethodPost, endpoint, nil)
	return err
}

// DeleteVM 删除虚拟机
func (h *proxmoxHypervisor) DeleteVM(ctx context.Context, node string, vmid int64) error {
	endpoint := fmt.Sprintf("/api2/json/nodes/%s/qemu/%d", node, vmid)
	_, err := h.makeRequest(ctx, http.MethodDelete, endpoint, nil)
	return err
}

// makeRequest 发送请求到虚拟化平台（表单编码）
func (h *proxmoxHypervisor) makeRequest(ctx context.Context, method, endpoint string, form url.Values) ([]byte, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("PVEAPIToken=%s=%s", h.tokenID, h.secret))
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("hypervisor request failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
