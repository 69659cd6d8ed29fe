package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/flowshare/allocation_backend/config"
	"github.com/bsm/redislock"
)

// TenantLock obtains a short redis lock for the tenant and releases it when
// the returned func is called. Best-effort serialization at the request
// boundary; the durable guarantee is the MySQL advisory lock inside the
// reconciliation transaction.
func TenantLock(ctx context.Context, tenantId string, lockType string, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		// Avoid nil-pointer panics when Redis lock isn't initialized yet.
		config.LogError(logger, moduleName, functionName, "Redis lock not initialized", tenantId, errors.New("redis lock is nil"))
		return nil, errors.New("service not ready (redis lock not initialized)")
	}
	lockKey := fmt.Sprintf("%s:%s", lockType, tenantId)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for tenantId", tenantId, err)
		return nil, errors.New("could not obtain lock for tenantId")
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for tenantId", tenantId, err)
		return nil, err
	}
	release := func() {
		_ = lock.Release(ctx)
	}
	return release, nil
}
