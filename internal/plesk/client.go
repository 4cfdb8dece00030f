// Package plesk 封装 `plesk bin mail` 命令行接口
package plesk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/command"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
)

// PasswordEnv 传递邮箱密码的环境变量
const PasswordEnv = "PSA_PASSWORD"

// 控制面错误
var (
	ErrListingUnavailable = errors.New("mailbox listing unavailable")
	ErrListingInvalid     = errors.New("mailbox listing has invalid shape")
)

// 操作名称，用于日志和指标
const (
	OpList   = "list"
	OpInfo   = "info"
	OpCreate = "create"
	OpRemove = "remove"
)

// Observer 接收每次控制面调用的耗时和结果
type Observer interface {
	ObserveCommand(op string, outcome string, d time.Duration)
}

// Config 客户端配置
type Config struct {
	Binary    string  // 控制面可执行文件，默认 "plesk"
	RateLimit float64 // 每秒最多调用次数，0 表示不限制
}

// Client 控制面客户端
type Client struct {
	runner   command.Runner
	binary   string
	limiter  *rate.Limiter
	validate *validator.Validate
	observer Observer
	logger   *zap.Logger
}

// NewClient 创建控制面客户端
func NewClient(runner command.Runner, cfg Config, observer Observer, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	binary := cfg.Binary
	if binary == "" {
		binary = "plesk"
	}
	c := &Client{
		runner:   runner,
		binary:   binary,
		validate: validator.New(),
		observer: observer,
		logger:   logger,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c
}

// Binary 返回控制面可执行文件名
func (c *Client) Binary() string {
	return c.binary
}

// List 列出所有邮件条目
//
// 输出必须是 JSON 数组，且每个元素都带有字符串类型的 type 和 name；
// 任意一个元素不符合要求时整个列表无效。
func (c *Client) List(ctx context.Context) ([]domain.InventoryEntity, error) {
	out, err := c.run(ctx, OpList, c.mailCommand("-l", "-json"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListingUnavailable, err)
	}
	if out == "" {
		return nil, fmt.Errorf("%w: empty output", ErrListingUnavailable)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListingInvalid, err)
	}
	// null 解码为 nil 切片，不是合法的空列表
	if raw == nil {
		return nil, fmt.Errorf("%w: not a JSON array", ErrListingInvalid)
	}

	entities := make([]domain.InventoryEntity, 0, len(raw))
	for i, item := range raw {
		var e domain.InventoryEntity
		if !bytes.HasPrefix(bytes.TrimSpace(item), []byte("{")) {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrListingInvalid, i)
		}
		if err := json.Unmarshal(item, &e); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrListingInvalid, i, err)
		}
		if err := c.validate.Struct(e); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrListingInvalid, i, err)
		}
		e.Details = nil
		entities = append(entities, e)
	}
	return entities, nil
}

// Info 获取单个条目的详细信息
//
// 命令失败或输出中没有 SUCCESS 行时返回 false。
func (c *Client) Info(ctx context.Context, address string) (*domain.MailboxDetails, bool) {
	out, err := c.run(ctx, OpInfo, c.mailCommand("-i", address))
	if err != nil {
		return nil, false
	}
	return ParseDetails(out)
}

// Create 创建受管邮箱
func (c *Client) Create(ctx context.Context, req domain.ProvisionRequest) (command.Outcome, error) {
	cmd, err := c.CreateCommand(req)
	if err != nil {
		return command.Outcome{Kind: command.OutcomeAbsent, Err: err}, err
	}
	return command.Interpret(c.run(ctx, OpCreate, cmd)), nil
}

// Remove 删除邮箱
func (c *Client) Remove(ctx context.Context, address string) command.Outcome {
	return command.Interpret(c.run(ctx, OpRemove, c.mailCommand("-r", address)))
}

// CreateCommand 根据邮箱类型组装创建命令
//
// 密码通过 PSA_PASSWORD 环境变量传递，"-passwd ''" 让控制面从环境变量读取。
func (c *Client) CreateCommand(req domain.ProvisionRequest) (command.Command, error) {
	args := []string{"--create", req.Address, "-passwd", ""}
	switch req.Identity.Kind {
	case domain.MailboxKindForwarding:
		args = append(args,
			"-mailbox", "false",
			"-forwarding", "true",
			"-forwarding-addresses", "add:"+req.Identity.TargetEmail,
		)
	case domain.MailboxKindMailbox:
		args = append(args, "-mailbox", "true")
	default:
		return command.Command{}, fmt.Errorf("%w: %q", domain.ErrUnknownKind, req.Identity.Kind)
	}
	args = append(args, "-description", domain.GovernedDescription(req.Identity.Description))

	cmd := c.mailCommand(args...)
	cmd.Env = map[string]string{PasswordEnv: req.Password}
	return cmd, nil
}

func (c *Client) mailCommand(args ...string) command.Command {
	return command.Command{
		Name: c.binary,
		Args: append([]string{"bin", "mail"}, args...),
	}
}

// run 执行命令并记录耗时
func (c *Client) run(ctx context.Context, op string, cmd command.Command) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	start := time.Now()
	out, err := c.runner.Run(ctx, cmd)
	elapsed := time.Since(start)

	outcome := command.Interpret(out, err).Kind.String()
	if op == OpList || op == OpInfo {
		// 查询类命令的输出不以 SUCCESS 开头
		if err == nil {
			outcome = "ok"
		}
	}
	if c.observer != nil {
		c.observer.ObserveCommand(op, outcome, elapsed)
	}
	c.logger.Debug("control plane call",
		zap.String("op", op),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", elapsed),
	)
	return out, err
}
