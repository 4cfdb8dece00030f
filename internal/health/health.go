package health

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/storage"
)

// checkTimeout 单项检查超时
const checkTimeout = 5 * time.Second

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	checks map[string]healthcheck.Check
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器
//
// 存活检查只包含进程自身状态；就绪检查额外包含存储和控制面可执行文件。
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		checks: make(map[string]healthcheck.Check),
		logger: logger,
	}
	hc.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(10000))
	return hc
}

// AddStore 添加存储后端的就绪检查
func (hc *HealthChecker) AddStore(name string, p storage.Pinger) {
	hc.addReadiness(name, healthcheck.Timeout(PingCheck(p), checkTimeout))
}

// AddBinary 添加可执行文件存在性的就绪检查
func (hc *HealthChecker) AddBinary(name, binary string) {
	hc.addReadiness(name, BinaryCheck(binary))
}

func (hc *HealthChecker) addReadiness(name string, check healthcheck.Check) {
	hc.checks[name] = check
	hc.health.AddReadinessCheck(name, check)
}

// LiveEndpoint 存活检查
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// CheckHealth 执行全部就绪检查并返回可读结果
func (hc *HealthChecker) CheckHealth() map[string]string {
	results := make(map[string]string, len(hc.checks)+1)
	for name, check := range hc.checks {
		if err := check(); err != nil {
			hc.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			results[name] = fmt.Sprintf("ERROR: %v", err)
		} else {
			results[name] = "OK"
		}
	}
	results["timestamp"] = time.Now().Format(time.RFC3339)
	return results
}

// PingCheck 存储连通性检查
func PingCheck(p storage.Pinger) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		return p.Ping(ctx)
	}
}

// BinaryCheck 检查可执行文件是否在 PATH 中
func BinaryCheck(binary string) healthcheck.Check {
	return func() error {
		if _, err := exec.LookPath(binary); err != nil {
			return fmt.Errorf("%s not found: %w", binary, err)
		}
		return nil
	}
}
