package third_party

// 删除对应的分布式锁, 但删除前会去取得该锁，取锁失败会直接返回
const LuaCheckAndDeleteDistributionLock = `
	local localKey = KEYS[1]
	local targetToken = ARGV[1]
	local getToken = redis.call("get", localKey)
	if (not getToken or getToken ~= targetToken) then
		return 0
	else
		return redis.call("del", localKey)
	end
`

// 刷新分布式锁的过期时间，但删除前会去取得该锁，取锁失败会直接返回
const LuaCheckAndExpireDistributionLock = `
	local localKey = KEYS[1]
	local targetToken = ARGV[1]
	local expire = ARGV[2]
	local getToken = redis.call("get", localKey)
	if (not getToken or getToken ~= targetToken) then
		return 0
	else
		return redis.call("expire", localKey, expire)
	end
`

// 创建事务记录，记录已存在则返回0
// KEYS[1] 事务key, KEYS[2] 更新时间索引
// ARGV: global, branch, status, role, retried_count, version, create_time, last_update_time, content, index_score
const LuaCreateTransaction = `
	local txKey = KEYS[1]
	local indexKey = KEYS[2]
	if redis.call("exists", txKey) == 1 then
		return 0
	end
	redis.call("hset", txKey,
		"global_tx_id", ARGV[1],
		"branch_qualifier", ARGV[2],
		"status", ARGV[3],
		"role", ARGV[4],
		"retried_count", ARGV[5],
		"version", ARGV[6],
		"create_time", ARGV[7],
		"last_update_time", ARGV[8],
		"content", ARGV[9])
	redis.call("zadd", indexKey, ARGV[10], txKey)
	return 1
`

// 按版本号乐观更新事务记录，版本不一致或记录不存在则返回0
// ARGV: expect_version, status, retried_count, new_version, last_update_time, content, index_score
const LuaUpdateTransaction = `
	local txKey = KEYS[1]
	local indexKey = KEYS[2]
	local version = redis.call("hget", txKey, "version")
	if (not version or version ~= ARGV[1]) then
		return 0
	end
	redis.call("hset", txKey,
		"status", ARGV[2],
		"retried_count", ARGV[3],
		"version", ARGV[4],
		"last_update_time", ARGV[5],
		"content", ARGV[6])
	redis.call("zadd", indexKey, ARGV[7], txKey)
	return 1
`

// 删除事务记录及其索引
const LuaDeleteTransaction = `
	redis.call("zrem", KEYS[2], KEYS[1])
	return redis.call("del", KEYS[1])
`
