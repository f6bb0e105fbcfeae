package config

import (
	TCC "TCCTransaction"
	"TCCTransaction/internel"
	"TCCTransaction/pkg"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tcc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func Test_load_defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, RepositoryMemory, cfg.Repository.Type)
	assert.Equal(t, "tcc:", cfg.Repository.Redis.Prefix)
	assert.Equal(t, 10*time.Second, cfg.Recovery.MonitorTick)
	assert.Equal(t, 30, cfg.Recovery.MaxRetryCount)
	assert.Equal(t, int64(16), cfg.Async.Workers)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 10*time.Second, cfg.Transport.Timeout)
	assert.Len(t, cfg.TransportOptions(), 2)
	assert.Len(t, cfg.ManagerOptions(), 1)
}

func Test_load_file(t *testing.T) {
	path := writeConfig(t, `
repository:
  type: redis
  redis:
    address: 10.0.0.1:6379
    prefix: "order:"
    read_timeout: 500ms
recovery:
  monitor_tick: 3s
  max_retry_count: 5
log:
  level: debug
  json: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, RepositoryRedis, cfg.Repository.Type)
	assert.Equal(t, "10.0.0.1:6379", cfg.Repository.Redis.Address)
	assert.Equal(t, "order:", cfg.Repository.Redis.Prefix)
	assert.Equal(t, 500*time.Millisecond, cfg.Repository.Redis.ReadTimeout)
	assert.Equal(t, 3*time.Second, cfg.Repository.Redis.DialTimeout)
	assert.Equal(t, 3*time.Second, cfg.Recovery.MonitorTick)
	assert.Equal(t, 5, cfg.Recovery.MaxRetryCount)
	// 未配置的项保持默认值
	assert.Equal(t, 30*time.Second, cfg.Recovery.RecoverDuration)

	opts := cfg.Log.Options()
	assert.Equal(t, "debug", opts.Level)
	assert.True(t, opts.JSON)
}

func Test_env_overrides_file(t *testing.T) {
	path := writeConfig(t, `
recovery:
  max_retry_count: 5
`)
	t.Setenv("TCC_RECOVERY_MAX_RETRY_COUNT", "9")
	t.Setenv("TCC_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Recovery.MaxRetryCount)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func Test_validate(t *testing.T) {
	t.Setenv("TCC_REPOSITORY_TYPE", "mysql")
	_, err := Load("")
	assert.ErrorContains(t, err, "dsn")

	t.Setenv("TCC_REPOSITORY_TYPE", "etcd")
	_, err = Load("")
	assert.ErrorContains(t, err, "unknown repository type")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func Test_open_memory_resources(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	res, err := cfg.OpenResources(context.Background())
	require.NoError(t, err)
	defer res.Close()
	assert.Nil(t, res.RedisClient)
	assert.IsType(t, &internel.MemoryTXStore{}, res.Repository)

	tm := TCC.NewTransactionManager(res.Repository, cfg.ManagerOptions()...)
	defer tm.Close()
	assert.Same(t, res.Repository, tm.Repository())

	r := cfg.NewRecovery(res, tm)
	require.NotNil(t, r)
	require.NoError(t, r.StartRecover(context.Background()))

	cfg.Recovery.Enabled = false
	assert.Nil(t, cfg.NewRecovery(res, tm))
}

func Test_open_redis_resources(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("TCC_REPOSITORY_TYPE", "redis")
	t.Setenv("TCC_REPOSITORY_REDIS_ADDRESS", mr.Addr())
	t.Setenv("TCC_RECOVERY_REDIS_LOCK", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	res, err := cfg.OpenResources(context.Background())
	require.NoError(t, err)
	defer res.Close()
	require.NotNil(t, res.RedisClient)

	ctx := context.Background()
	tx := pkg.NewRootTransaction()
	require.NoError(t, res.Repository.Create(ctx, tx))
	found, err := res.Repository.FindByXid(ctx, tx.Xid)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, tx.Xid, found.Xid)

	// 开启redis锁后多出一个WithLocker
	assert.Len(t, cfg.RecoveryOptions(res.RedisClient), 5)
	assert.Len(t, cfg.RecoveryOptions(nil), 4)
}

func Test_open_unreachable_redis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	t.Setenv("TCC_REPOSITORY_TYPE", "redis")
	t.Setenv("TCC_REPOSITORY_REDIS_ADDRESS", addr)
	cfg, err := Load("")
	require.NoError(t, err)

	_, err = cfg.OpenResources(context.Background())
	assert.ErrorContains(t, err, "connect redis")
}
