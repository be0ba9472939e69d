package ledger

import "github.com/redis/go-redis/v9"

// Lua scripts executed atomically by Redis.  Every script receives the
// caller's clock reading in milliseconds; none of them reads server time.
// Expiries are compared at millisecond granularity: stored expiries are
// rounded up and now is truncated, so a hold never lapses before its ttl.
//
// Seat hash fields: status, holder, until (unix ms), price, row, number,
// ticket.  Members of the buyer index and the expiry set are
// "<event>|<seat>".

// reserveScript
// KEYS: seat hash, buyer index, expiry set
// ARGV: buyer, now_ms, until_ms, member, key prefix
var reserveScript = redis.NewScript(`
local seat = KEYS[1]
if redis.call('EXISTS', seat) == 0 then
  return {'notfound'}
end
local st = redis.call('HMGET', seat, 'status', 'holder', 'until')
local status, holder, untilms = st[1], st[2], tonumber(st[3])
local buyer = ARGV[1]
local now = tonumber(ARGV[2])
local cause = 'reserve'
local previous = ''

if status == 'sold' then
  return {'conflict'}
end
if status == 'reserved' then
  if holder == buyer then
    cause = 'refresh'
  elseif untilms ~= nil and untilms > now then
    return {'conflict'}
  else
    cause = 'reclaim'
    previous = holder or ''
    if holder then
      redis.call('ZREM', ARGV[5] .. ':buyer:' .. holder, ARGV[4])
    end
  end
end

redis.call('HSET', seat, 'status', 'reserved', 'holder', buyer, 'until', ARGV[3])
redis.call('ZADD', KEYS[2], 'NX', ARGV[2], ARGV[4])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[4])
return {'ok', cause, previous}
`)

// confirmScript
// KEYS: seat hash, buyer index, expiry set
// ARGV: buyer, now_ms, ticket id, member
var confirmScript = redis.NewScript(`
local seat = KEYS[1]
if redis.call('EXISTS', seat) == 0 then
  return {'notfound'}
end
local st = redis.call('HMGET', seat, 'status', 'holder', 'until', 'ticket')
local status, holder, untilms, ticket = st[1], st[2], tonumber(st[3]), st[4]
local buyer = ARGV[1]
local now = tonumber(ARGV[2])

if status == 'sold' then
  if holder == buyer then
    return {'ok', 'idempotent', ticket or ''}
  end
  return {'conflict'}
end
if status ~= 'reserved' or holder ~= buyer then
  return {'conflict'}
end

redis.call('ZREM', KEYS[2], ARGV[4])
redis.call('ZREM', KEYS[3], ARGV[4])
if untilms == nil or untilms <= now then
  redis.call('HSET', seat, 'status', 'available')
  redis.call('HDEL', seat, 'holder', 'until')
  return {'expired'}
end
redis.call('HSET', seat, 'status', 'sold', 'ticket', ARGV[3])
redis.call('HDEL', seat, 'until')
return {'ok', 'confirm', ARGV[3]}
`)

// releaseScript
// KEYS: seat hash, buyer index, expiry set
// ARGV: buyer, member
var releaseScript = redis.NewScript(`
local seat = KEYS[1]
if redis.call('EXISTS', seat) == 0 then
  return {'notfound'}
end
local st = redis.call('HMGET', seat, 'status', 'holder')
if st[1] ~= 'reserved' or st[2] ~= ARGV[1] then
  return {'conflict'}
end
redis.call('HSET', seat, 'status', 'available')
redis.call('HDEL', seat, 'holder', 'until')
redis.call('ZREM', KEYS[2], ARGV[2])
redis.call('ZREM', KEYS[3], ARGV[2])
return {'ok'}
`)

// voidScript
// KEYS: seat hash, buyer index, expiry set
// ARGV: buyer, ticket id, now_ms, restore_until_ms, member
var voidScript = redis.NewScript(`
local seat = KEYS[1]
if redis.call('EXISTS', seat) == 0 then
  return {'notfound'}
end
local st = redis.call('HMGET', seat, 'status', 'holder', 'ticket')
if st[1] ~= 'sold' or st[2] ~= ARGV[1] or st[3] ~= ARGV[2] then
  return {'conflict'}
end
redis.call('HDEL', seat, 'ticket')
if tonumber(ARGV[4]) > tonumber(ARGV[3]) then
  redis.call('HSET', seat, 'status', 'reserved', 'until', ARGV[4])
  redis.call('ZADD', KEYS[2], 'NX', ARGV[3], ARGV[5])
  redis.call('ZADD', KEYS[3], ARGV[4], ARGV[5])
  return {'ok', 'reserved'}
end
redis.call('HSET', seat, 'status', 'available')
redis.call('HDEL', seat, 'holder', 'until')
return {'ok', 'available'}
`)

// sweepScript reclaims up to limit lapsed holds.  It returns the number of
// expiry entries scanned followed by member/holder pairs for every seat
// actually reclaimed.
// KEYS: expiry set
// ARGV: now_ms, limit, key prefix
var sweepScript = redis.NewScript(`
local members = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
local now = tonumber(ARGV[1])
local out = {tostring(#members)}
for _, m in ipairs(members) do
  redis.call('ZREM', KEYS[1], m)
  local sep = string.find(m, '|', 1, true)
  if sep then
    local key = ARGV[3] .. ':seat:' .. string.sub(m, 1, sep - 1) .. ':' .. string.sub(m, sep + 1)
    local st = redis.call('HMGET', key, 'status', 'holder', 'until')
    local untilms = tonumber(st[3])
    if st[1] == 'reserved' and untilms ~= nil and untilms <= now then
      redis.call('HSET', key, 'status', 'available')
      redis.call('HDEL', key, 'holder', 'until')
      if st[2] then
        redis.call('ZREM', ARGV[3] .. ':buyer:' .. st[2], m)
      end
      table.insert(out, m)
      table.insert(out, st[2] or '')
    end
  end
end
return out
`)

// seedScript creates a seat hash unless it already exists.
// KEYS: seat hash, event seat list
// ARGV: seat id, status, holder, price, row, number, ticket
var seedScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'price', ARGV[4], 'row', ARGV[5], 'number', ARGV[6])
if ARGV[3] ~= '' then
  redis.call('HSET', KEYS[1], 'holder', ARGV[3])
end
if ARGV[7] ~= '' then
  redis.call('HSET', KEYS[1], 'ticket', ARGV[7])
end
redis.call('RPUSH', KEYS[2], ARGV[1])
return 1
`)
