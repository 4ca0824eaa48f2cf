// Package auth 管理操作的权限校验
package auth

import (
	"context"
	"fmt"

	"github.com/wyfcoding/basketfund/internal/basket/domain"
	"github.com/wyfcoding/basketfund/pkg/contextx"
)

// StaticAccessControl 固定管理员名单；调用方身份取自 context
type StaticAccessControl struct {
	admins map[string]struct{}
}

// NewStaticAccessControl 创建权限校验器
func NewStaticAccessControl(admins []string) *StaticAccessControl {
	m := make(map[string]struct{}, len(admins))
	for _, a := range admins {
		if a != "" {
			m[a] = struct{}{}
		}
	}
	return &StaticAccessControl{admins: m}
}

// Authorize 实现 domain.AccessController
func (a *StaticAccessControl) Authorize(ctx context.Context, fund *domain.Fund, action domain.Action) error {
	caller := contextx.Caller(ctx)
	if caller == "" {
		return fmt.Errorf("%w: anonymous caller for %s", domain.ErrUnauthorized, action)
	}
	if _, ok := a.admins[caller]; !ok {
		return fmt.Errorf("%w: %s cannot %s on %s", domain.ErrUnauthorized, caller, action, fund.FundID)
	}
	return nil
}
