package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"panel-service/internal/biz"
	"panel-service/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
)

// wingsDaemon 实现 biz.ServerDaemon 接口
// 游戏服务器守护进程的 REST 客户端，token 鉴权
type wingsDaemon struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *log.Helper
}

// NewWingsDaemon 创建守护进程客户端
func NewWingsDaemon(c *conf.Bootstrap, logger log.Logger) biz.ServerDaemon {
	d := &wingsDaemon{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.NewHelper(logger),
	}
	if c.Wings != nil {
		d.baseURL = c.Wings.Endpoint
		d.token = c.Wings.Token
		if c.Wings.Timeout.AsDuration() > 0 {
			d.httpClient.Timeout = c.Wings.Timeout.AsDuration()
		}
	}
	return d
}

// wingsCreateRequest 守护进程创建服务器请求体
// 节点与端口分配由守护进程侧决定，这里只下发规格与启动配置
type wingsCreateRequest struct {
	UUID        string            `json:"uuid"`
	Name        string            `json:"name"`
	DockerImage string            `json:"docker_image"`
	Startup     string            `json:"startup"`
	Environment map[string]string `json:"environment"`
	Limits      wingsLimits       `json:"limits"`
}

type wingsLimits struct {
	MemoryMB   int64 `json:"memory"`
	DiskMB     int64 `json:"disk"`
	CPUPercent int64 `json:"cpu"`
	IO         int64 `json:"io"`
	SwapMB     int64 `json:"swap"`
}

// CreateServer 在守护进程侧创建服务器
func (d *wingsDaemon) CreateServer(ctx context.Context, s *biz.GameServer) error {
	body := &wingsCreateRequest{
		UUID:        s.ExternalID,
		Name:        s.Name,
		DockerImage: s.DockerImage,
		Startup:     s.Startup,
		Environment: s.Environment,
		Limits: wingsLimits{
			MemoryMB:   s.MemoryMB,
			DiskMB:     s.DiskMB,
			CPUPercent: s.CPUPercent,
			IO:         s.IO,
			SwapMB:     s.SwapMB,
		},
	}
	_, err := d.makeRequest(ctx, http.MethodPost, "/api/servers", body)
	return err
}

// DeleteServer 删除守护进程侧的服务器
func (d *wingsDaemon) DeleteServer(ctx context.Context, externalID string) error {
	_, err := d.makeRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/servers/%s", externalID), nil)
	return err
}

// makeRequest 发送请求到守护进程
func (d *wingsDaemon) makeRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("daemon request failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
