package main

import (
	"TCCTransaction/internel"
	"TCCTransaction/pkg"
	"TCCTransaction/third_party"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeRootCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

type redisEnv struct {
	addr  string
	store *internel.RedisTXStore
}

func newRedisEnv(t *testing.T) *redisEnv {
	mr := miniredis.RunT(t)
	client := third_party.NewClient("tcp", mr.Addr(), "")
	t.Cleanup(func() { _ = client.Close() })
	return &redisEnv{addr: mr.Addr(), store: internel.NewRedisTXStore(client, "tcc:")}
}

func (e *redisEnv) run(t *testing.T, args ...string) (string, error) {
	return executeRootCommand(t, append(args, "--repository", "redis", "--redis-address", e.addr, "--log-level", "error")...)
}

func (e *redisEnv) seed(t *testing.T, retried int) *pkg.Transaction {
	tx := pkg.NewRootTransaction()
	tx.RetriedCount = retried
	confirm := pkg.NewInvocationContext("stock", "ConfirmDeduct", []string{"string"}, []json.RawMessage{[]byte(`"sku-1"`)})
	cancel := pkg.NewInvocationContext("stock", "CancelDeduct", []string{"string"}, []json.RawMessage{[]byte(`"sku-1"`)})
	require.NoError(t, tx.Enlist(pkg.NewParticipant(pkg.NewBranchXid(tx.Xid.GlobalTransactionID), confirm, cancel, "default")))
	require.NoError(t, e.store.Create(context.Background(), tx))
	return tx
}

func Test_list_and_show(t *testing.T) {
	env := newRedisEnv(t)
	tx := env.seed(t, 0)

	out, err := env.run(t, "list", "-o", "json")
	require.NoError(t, err)
	var views []transactionView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, tx.Xid.String(), views[0].Xid)
	assert.Equal(t, "ROOT", views[0].Role)
	assert.Equal(t, "TRYING", views[0].Status)

	out, err = env.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "PARTICIPANTS")
	assert.Contains(t, out, tx.Xid.String())

	// 刚写入的记录不会出现在更早的时间窗口里
	out, err = env.run(t, "list", "--older-than", "1h", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	out, err = env.run(t, "show", tx.Xid.String())
	require.NoError(t, err)
	var view transactionView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Len(t, view.Participants, 1)
	assert.Equal(t, "stock", view.Participants[0].Target)
	assert.Equal(t, "ConfirmDeduct", view.Participants[0].ConfirmMethod)
	assert.Equal(t, "CancelDeduct", view.Participants[0].CancelMethod)
}

func Test_show_missing(t *testing.T) {
	env := newRedisEnv(t)
	_, err := env.run(t, "show", pkg.NewRootXid().String())
	assert.ErrorIs(t, err, pkg.ErrNoExistedTransaction)

	_, err = env.run(t, "show", "not-a-xid")
	assert.ErrorIs(t, err, pkg.ErrSystem)
}

func Test_reset(t *testing.T) {
	env := newRedisEnv(t)
	tx := env.seed(t, 31)

	out, err := env.run(t, "reset", tx.Xid.String())
	require.NoError(t, err)
	assert.Contains(t, out, "reset")

	found, err := env.store.FindByXid(context.Background(), tx.Xid)
	require.NoError(t, err)
	assert.Equal(t, 0, found.RetriedCount)
}

func Test_abandon(t *testing.T) {
	env := newRedisEnv(t)
	tx := env.seed(t, 0)

	_, err := env.run(t, "abandon", tx.Xid.String())
	assert.ErrorContains(t, err, "--yes")

	out, err := env.run(t, "abandon", tx.Xid.String(), "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "abandoned")

	found, err := env.store.FindByXid(context.Background(), tx.Xid)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func Test_migrate_requires_mysql(t *testing.T) {
	_, err := executeRootCommand(t, "migrate", "--log-level", "error")
	assert.ErrorContains(t, err, "mysql")
}
