package httptransport

import (
	"errors"
	"net/http"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/service"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/storage"
)

// 通用错误消息
const (
	MsgInvalidRequest  = "invalid request"
	MsgInvalidLimit    = "limit must be a positive integer"
	MsgInvalidAddress  = "address must be a valid e-mail address"
	MsgRunNotFound     = "run not found"
	MsgRunInProgress   = "a reconciliation run is already in progress"
	MsgRunFailed       = "reconciliation run failed"
	MsgNotGoverned     = "mailbox is not governed"
	MsgInventoryFailed = "control plane inventory unavailable"
	MsgRemoveFailed    = "mailbox removal failed"
	MsgInternalError   = "internal server error"
)

// errorStatus 业务错误到 HTTP 状态码和消息的映射，按顺序匹配
var errorStatus = []struct {
	err    error
	status int
	msg    string
}{
	{storage.ErrRunNotFound, http.StatusNotFound, MsgRunNotFound},
	{storage.ErrLocked, http.StatusConflict, MsgRunInProgress},
	{service.ErrNotGoverned, http.StatusNotFound, MsgNotGoverned},
	{service.ErrInventoryInvalid, http.StatusBadGateway, MsgInventoryFailed},
	{service.ErrInventoryUnavailable, http.StatusBadGateway, MsgInventoryFailed},
	{service.ErrProvisionFailed, http.StatusBadGateway, MsgRemoveFailed},
}

// mapError 返回错误对应的状态码和消息
func mapError(err error) (int, string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.msg
		}
	}
	return http.StatusInternalServerError, MsgInternalError
}
