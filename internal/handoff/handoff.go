// Package handoff 读写期望身份交接文件
//
// 文件是一个 JSON 数组，每个元素为
// {id, firstName, lastName, type, targetEmail, description}，type 为两个标签之一。
package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
)

// DefaultPath 默认交接文件名
const DefaultPath = "inputDataForCronJob.json"

var (
	// ErrNoInput 文件缺失、格式错误或为空
	ErrNoInput = errors.New("no input data")
	// ErrConflictingTags 同时带有两个邮箱标签
	ErrConflictingTags = errors.New("both mailbox tags present")
	// ErrNoTag 没有任何邮箱标签
	ErrNoTag = errors.New("no mailbox tag present")
)

// Record 交接文件中的一条记录
type Record struct {
	ID          domain.IdentityID `json:"id"`
	Type        string            `json:"type" validate:"required"`
	FirstName   string            `json:"firstName" validate:"required"`
	LastName    string            `json:"lastName" validate:"required"`
	TargetEmail string            `json:"targetEmail" validate:"required,email"`
	Description string            `json:"description"`
}

// TagSet 两个邮箱标签
type TagSet struct {
	Mailbox    string `mapstructure:"mailbox"`
	Forwarding string `mapstructure:"forwarding_mailbox"`
}

// Kind 将标签映射为邮箱类型，不区分大小写
func (t TagSet) Kind(tag string) (domain.MailboxKind, bool) {
	switch {
	case t.Forwarding != "" && strings.EqualFold(tag, t.Forwarding):
		return domain.MailboxKindForwarding, true
	case t.Mailbox != "" && strings.EqualFold(tag, t.Mailbox):
		return domain.MailboxKindMailbox, true
	default:
		return "", false
	}
}

// Tag 返回邮箱类型对应的标签
func (t TagSet) Tag(kind domain.MailboxKind) string {
	if kind == domain.MailboxKindForwarding {
		return t.Forwarding
	}
	return t.Mailbox
}

// KindFromTags 根据人员的全部标签确定邮箱类型
//
// 同时带有两个标签视为无效。
func (t TagSet) KindFromTags(tags []string) (domain.MailboxKind, error) {
	var found []domain.MailboxKind
	for _, tag := range tags {
		if kind, ok := t.Kind(tag); ok {
			found = append(found, kind)
		}
	}
	if len(found) == 0 {
		return "", ErrNoTag
	}
	for _, k := range found[1:] {
		if k != found[0] {
			return "", ErrConflictingTags
		}
	}
	return found[0], nil
}

// Person 生成交接记录所需的人员数据
type Person struct {
	ID        domain.IdentityID `json:"id"`
	FirstName string            `json:"firstName"`
	LastName  string            `json:"lastName"`
	Email     string            `json:"email"`
	Tags      []string          `json:"tags"`
}

// NewRecord 根据人员数据生成交接记录
//
// 名字只保留字母、数字和连字符；描述使用原始的 "First Last"。
func (t TagSet) NewRecord(p Person) (Record, error) {
	kind, err := t.KindFromTags(p.Tags)
	if err != nil {
		return Record{}, fmt.Errorf("person %s (%s %s): %w", p.ID, p.FirstName, p.LastName, err)
	}
	return Record{
		ID:          p.ID,
		Type:        t.Tag(kind),
		FirstName:   domain.SanitizeName(p.FirstName),
		LastName:    domain.SanitizeName(p.LastName),
		TargetEmail: p.Email,
		Description: p.FirstName + " " + p.LastName,
	}, nil
}

// Reader 读取交接文件
type Reader struct {
	path     string
	tags     TagSet
	validate *validator.Validate
	logger   *zap.Logger
}

// NewReader 创建交接文件读取器
func NewReader(path string, tags TagSet, logger *zap.Logger) *Reader {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{path: path, tags: tags, validate: validator.New(), logger: logger}
}

// Path 返回文件路径
func (r *Reader) Path() string {
	return r.path
}

// Load 读取期望身份
//
// 文件缺失、JSON 无效或数组为空时返回 ErrNoInput。type 不匹配任何标签或缺少名字的记录
// 被跳过。targetEmail 的格式不在这里检查，由对账记为问题。
func (r *Reader) Load(_ context.Context) ([]domain.DesiredIdentity, error) {
	r.logger.Info("reading input data", zap.String("path", r.path))

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Info("input file does not exist", zap.String("path", r.path))
		} else {
			r.logger.Error("could not read input file", zap.String("path", r.path), zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %v", ErrNoInput, err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		r.logger.Error("input file does not contain valid JSON, please check the file",
			zap.String("path", r.path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrNoInput, err)
	}
	r.logger.Info("input data loaded", zap.Int("entries", len(records)))

	identities := make([]domain.DesiredIdentity, 0, len(records))
	for i, rec := range records {
		kind, ok := r.tags.Kind(rec.Type)
		if !ok {
			r.logger.Warn("skipping entry with unknown type",
				zap.Int("index", i),
				zap.String("id", string(rec.ID)),
				zap.String("type", rec.Type),
			)
			continue
		}
		if err := r.validate.StructExcept(rec, "TargetEmail"); err != nil {
			r.logger.Warn("skipping invalid entry",
				zap.Int("index", i),
				zap.String("id", string(rec.ID)),
				zap.Error(err),
			)
			continue
		}
		identities = append(identities, domain.DesiredIdentity{
			ID:          rec.ID,
			FirstName:   rec.FirstName,
			LastName:    rec.LastName,
			Kind:        kind,
			TargetEmail: rec.TargetEmail,
			Description: rec.Description,
		})
	}
	if len(identities) == 0 {
		return nil, ErrNoInput
	}
	return identities, nil
}

// Writer 写入交接文件
type Writer struct {
	validate *validator.Validate
}

// NewWriter 创建交接文件写入器
func NewWriter() *Writer {
	return &Writer{validate: validator.New()}
}

// Write 校验记录后以 4 空格缩进原子写入文件
func (w *Writer) Write(path string, records []Record) error {
	for i, rec := range records {
		if err := w.validate.Struct(rec); err != nil {
			return fmt.Errorf("record %d (id %s): %w", i, rec.ID, err)
		}
	}
	if records == nil {
		records = []Record{}
	}

	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".handoff-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
