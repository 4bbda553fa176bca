package session

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/internal"
)

const chainKeySize = 32

// rotateFamilyLua is the per-family compare-and-swap.
//
// KEYS[1] = family hash
// KEYS[2] = presented session row
// KEYS[3] = new session row
// KEYS[4] = family member set
// ARGV[1] = presented session id
// ARGV[2] = presented sequence
// ARGV[3] = presented secret hash (hex)
// ARGV[4] = successor secret hash (hex)
// ARGV[5] = new session id
// ARGV[6] = now, unix ms
// ARGV[7] = refresh TTL ms
// ARGV[8] = race grace ms, 0 disables the idempotent replay path
// ARGV[9] = session row key prefix
//
// Replies {status, account, session id, sequence, expires ms} where status is
// rotated, replayed or reuse; error replies: invalid, revoked, expired.
var rotateFamilyLua = redis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'acct', 'cur', 'seq', 'rev', 'abs')
if not f[1] then
  return {err='invalid'}
end
local acct, cur, seq, abs = f[1], f[2], tonumber(f[3]), tonumber(f[5])

local s = redis.call('HMGET', KEYS[2], 'h', 'seq', 'by', 'rot', 'exp')
if not s[1] or s[1] ~= ARGV[3] or tonumber(s[2]) ~= tonumber(ARGV[2]) then
  return {err='invalid'}
end
if f[4] == '1' then
  return {err='revoked'}
end

local now = tonumber(ARGV[6])
if now >= abs then
  return {err='expired'}
end

local pseq = tonumber(ARGV[2])
if pseq == seq and cur == ARGV[1] then
  if now >= tonumber(s[5]) then
    return {err='expired'}
  end
  local nseq = seq + 1
  local nexp = math.min(now + tonumber(ARGV[7]), abs)
  redis.call('HSET', KEYS[3], 'seq', nseq, 'h', ARGV[4], 'iat', now, 'exp', nexp, 'by', '', 'rot', 0, 'rev', 0)
  redis.call('PEXPIREAT', KEYS[3], nexp)
  redis.call('HSET', KEYS[2], 'by', ARGV[5], 'rot', now)
  redis.call('HSET', KEYS[1], 'cur', ARGV[5], 'seq', nseq)
  redis.call('SADD', KEYS[4], ARGV[5])
  return {'rotated', acct, ARGV[5], nseq, nexp}
end

local grace = tonumber(ARGV[8])
if grace > 0 and pseq == seq - 1 and s[3] == cur and (now - tonumber(s[4])) <= grace then
  local c = redis.call('HMGET', ARGV[9] .. cur, 'h', 'exp')
  if c[1] and c[1] == ARGV[4] then
    return {'replayed', acct, cur, seq, tonumber(c[2])}
  end
end

redis.call('HSET', KEYS[1], 'rev', 1)
for _, sid in ipairs(redis.call('SMEMBERS', KEYS[4])) do
  local k = ARGV[9] .. sid
  if redis.call('EXISTS', k) == 1 then
    redis.call('HSET', k, 'rev', 1)
  end
end
return {'reuse', acct, '', 0, 0}
`)

// revokeFamilyLua marks a family and its rows revoked. When ARGV[2] is set the
// caller must present the secret hash of one of the family's rows.
//
// KEYS[1] = family hash, KEYS[2] = member set
// ARGV[1] = session row key prefix, ARGV[2] = session id, ARGV[3] = secret hash
//
// Replies the account id, or '' when the family no longer exists.
var revokeFamilyLua = redis.NewScript(`
local acct = redis.call('HGET', KEYS[1], 'acct')
if not acct then
  if ARGV[2] ~= '' then
    return {err='invalid'}
  end
  return ''
end
if ARGV[2] ~= '' then
  local h = redis.call('HGET', ARGV[1] .. ARGV[2], 'h')
  if not h or h ~= ARGV[3] then
    return {err='invalid'}
  end
end
redis.call('HSET', KEYS[1], 'rev', 1)
for _, sid in ipairs(redis.call('SMEMBERS', KEYS[2])) do
  local k = ARGV[1] .. sid
  if redis.call('EXISTS', k) == 1 then
    redis.call('HSET', k, 'rev', 1)
  end
end
return acct
`)

// Store persists refresh families in Redis, one hash slot per family.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	cfg    Config
	now    func() time.Time
}

// NewStore validates cfg and binds the store to client. An empty prefix
// defaults to "rs".
func NewStore(client redis.UniversalClient, prefix string, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "rs"
	}
	return &Store{redis: client, prefix: prefix, cfg: cfg, now: time.Now}, nil
}

func (s *Store) familyKey(fid string) string  { return s.prefix + ":{" + fid + "}:f" }
func (s *Store) memberKey(fid string) string  { return s.prefix + ":{" + fid + "}:m" }
func (s *Store) rowPrefix(fid string) string  { return s.prefix + ":{" + fid + "}:s:" }
func (s *Store) accountKey(aid string) string { return s.prefix + ":a:" + aid }

func hashHex(secret [32]byte) string {
	h := internal.HashRefreshSecret(secret)
	return hex.EncodeToString(h[:])
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Create starts a new family at sequence 0.
func (s *Store) Create(ctx context.Context, accountID, deviceID string) (Issued, error) {
	if accountID == "" {
		return Issued{}, errors.New("session: account id is required")
	}

	fidRaw, err := internal.NewID16()
	if err != nil {
		return Issued{}, err
	}
	sidRaw, err := internal.NewID16()
	if err != nil {
		return Issued{}, err
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return Issued{}, err
	}
	chainKey, err := internal.NewKey(chainKeySize)
	if err != nil {
		return Issued{}, err
	}
	fid, sid := fidRaw.String(), sidRaw.String()

	now := s.now()
	abs := now.Add(s.cfg.AbsoluteLifetime)
	exp := now.Add(s.cfg.RefreshTTL)

	famKey, rowKey, memKey := s.familyKey(fid), s.rowPrefix(fid)+sid, s.memberKey(fid)
	_, err = s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, famKey,
			"acct", accountID,
			"dev", deviceID,
			"cur", sid,
			"seq", 0,
			"rev", 0,
			"k", string(chainKey),
			"iat", now.UnixMilli(),
			"abs", abs.UnixMilli(),
		)
		p.PExpireAt(ctx, famKey, abs)
		p.HSet(ctx, rowKey,
			"seq", 0,
			"h", hashHex(secret),
			"iat", now.UnixMilli(),
			"exp", exp.UnixMilli(),
			"by", "",
			"rot", 0,
			"rev", 0,
		)
		p.PExpireAt(ctx, rowKey, exp)
		p.SAdd(ctx, memKey, sid)
		p.PExpireAt(ctx, memKey, abs)
		return nil
	})
	if err != nil {
		return Issued{}, unavailable(err)
	}

	// The account index lives outside the family hash slot.
	acctKey := s.accountKey(accountID)
	if _, err := s.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, acctKey, fid)
		p.PExpire(ctx, acctKey, s.cfg.AbsoluteLifetime)
		return nil
	}); err != nil {
		return Issued{}, unavailable(err)
	}

	token, err := internal.EncodeRefreshToken(internal.RefreshToken{FamilyID: fid, SessionID: sid, Sequence: 0, Secret: secret})
	if err != nil {
		return Issued{}, err
	}
	return Issued{
		AccountID: accountID,
		FamilyID:  fid,
		SessionID: sid,
		Sequence:  0,
		Token:     token,
		ExpiresAt: time.UnixMilli(exp.UnixMilli()),
	}, nil
}

// Rotate exchanges a current refresh token for its successor. It is never
// retried internally: a transport error after the script ran must not cause a
// second rotation.
func (s *Store) Rotate(ctx context.Context, token string) (Issued, error) {
	tok, err := internal.DecodeRefreshToken(token)
	if err != nil {
		return Issued{}, ErrInvalid
	}

	chainKey, err := s.redis.HGet(ctx, s.familyKey(tok.FamilyID), "k").Bytes()
	if errors.Is(err, redis.Nil) {
		return Issued{}, ErrInvalid
	}
	if err != nil {
		return Issued{}, unavailable(err)
	}

	next := internal.NextRefreshSecret(chainKey, tok.Secret)
	newSidRaw, err := internal.NewID16()
	if err != nil {
		return Issued{}, err
	}
	newSid := newSidRaw.String()
	rows := s.rowPrefix(tok.FamilyID)

	res, err := rotateFamilyLua.Run(ctx, s.redis,
		[]string{s.familyKey(tok.FamilyID), rows + tok.SessionID, rows + newSid, s.memberKey(tok.FamilyID)},
		tok.SessionID,
		tok.Sequence,
		hashHex(tok.Secret),
		hashHex(next),
		newSid,
		s.now().UnixMilli(),
		s.cfg.RefreshTTL.Milliseconds(),
		s.cfg.RaceGrace.Milliseconds(),
		rows,
	).Slice()
	if err != nil {
		switch err.Error() {
		case "invalid":
			return Issued{}, ErrInvalid
		case "revoked":
			return Issued{}, ErrRevoked
		case "expired":
			return Issued{}, ErrExpired
		default:
			return Issued{}, unavailable(err)
		}
	}

	reply, err := parseRotateReply(res)
	if err != nil {
		return Issued{}, unavailable(err)
	}

	switch reply.status {
	case "reuse":
		return Issued{}, &ReuseError{AccountID: reply.account, FamilyID: tok.FamilyID}
	case "rotated", "replayed":
		out, err := internal.EncodeRefreshToken(internal.RefreshToken{
			FamilyID:  tok.FamilyID,
			SessionID: reply.session,
			Sequence:  reply.seq,
			Secret:    next,
		})
		if err != nil {
			return Issued{}, err
		}
		return Issued{
			AccountID: reply.account,
			FamilyID:  tok.FamilyID,
			SessionID: reply.session,
			Sequence:  reply.seq,
			Token:     out,
			ExpiresAt: time.UnixMilli(reply.exp),
			Replayed:  reply.status == "replayed",
		}, nil
	default:
		return Issued{}, unavailable(fmt.Errorf("unknown rotate status %q", reply.status))
	}
}

type rotateReply struct {
	status  string
	account string
	session string
	seq     uint64
	exp     int64
}

func parseRotateReply(res []any) (rotateReply, error) {
	if len(res) != 5 {
		return rotateReply{}, fmt.Errorf("unexpected rotate reply length %d", len(res))
	}
	var r rotateReply
	var ok bool
	if r.status, ok = res[0].(string); !ok {
		return r, errors.New("rotate reply: status")
	}
	if r.account, ok = res[1].(string); !ok {
		return r, errors.New("rotate reply: account")
	}
	if r.session, ok = res[2].(string); !ok {
		return r, errors.New("rotate reply: session")
	}
	seq, ok := res[3].(int64)
	if !ok || seq < 0 {
		return r, errors.New("rotate reply: sequence")
	}
	r.seq = uint64(seq)
	if r.exp, ok = res[4].(int64); !ok {
		return r, errors.New("rotate reply: expiry")
	}
	return r, nil
}

// Revoke marks every session of the family revoked. Unknown or already
// revoked families are not an error.
func (s *Store) Revoke(ctx context.Context, familyID string) error {
	acct, err := s.revoke(ctx, familyID, "", "")
	if err != nil {
		return err
	}
	if acct != "" {
		if err := s.redis.SRem(ctx, s.accountKey(acct), familyID).Err(); err != nil {
			return unavailable(err)
		}
	}
	return nil
}

// RevokeByToken revokes the family a refresh token belongs to. The token
// must carry the secret of one of the family's rows, current or rotated.
// Revoking an already revoked family succeeds.
func (s *Store) RevokeByToken(ctx context.Context, token string) (Family, error) {
	tok, err := internal.DecodeRefreshToken(token)
	if err != nil {
		return Family{}, ErrInvalid
	}

	acct, err := s.revoke(ctx, tok.FamilyID, tok.SessionID, hashHex(tok.Secret))
	if err != nil {
		return Family{}, err
	}
	if err := s.redis.SRem(ctx, s.accountKey(acct), tok.FamilyID).Err(); err != nil {
		return Family{}, unavailable(err)
	}
	return Family{ID: tok.FamilyID, AccountID: acct, SessionID: tok.SessionID, Revoked: true}, nil
}

func (s *Store) revoke(ctx context.Context, familyID, sessionID, hash string) (string, error) {
	res, err := revokeFamilyLua.Run(ctx, s.redis,
		[]string{s.familyKey(familyID), s.memberKey(familyID)},
		s.rowPrefix(familyID),
		sessionID,
		hash,
	).Text()
	if err != nil {
		if err.Error() == "invalid" {
			return "", ErrInvalid
		}
		return "", unavailable(err)
	}
	return res, nil
}

// RevokeAll revokes every family indexed for the account and returns how
// many were live. Families are revoked one script at a time; a failure part
// way leaves the remaining families untouched and is reported.
func (s *Store) RevokeAll(ctx context.Context, accountID string) (int, error) {
	key := s.accountKey(accountID)
	fids, err := s.redis.SMembers(ctx, key).Result()
	if err != nil {
		return 0, unavailable(err)
	}

	revoked := 0
	for _, fid := range fids {
		acct, err := s.revoke(ctx, fid, "", "")
		if err != nil {
			return revoked, err
		}
		if acct != "" {
			revoked++
		}
		if err := s.redis.SRem(ctx, key, fid).Err(); err != nil {
			return revoked, unavailable(err)
		}
	}
	return revoked, nil
}

// Get returns the family record. Revoked families are returned with Revoked set.
func (s *Store) Get(ctx context.Context, familyID string) (Family, error) {
	vals, err := s.redis.HMGet(ctx, s.familyKey(familyID), "acct", "dev", "cur", "seq", "rev", "iat", "abs").Result()
	if err != nil {
		return Family{}, unavailable(err)
	}
	if vals[0] == nil {
		return Family{}, ErrInvalid
	}

	str := func(v any) string {
		if v == nil {
			return ""
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	num := func(v any) int64 {
		n, _ := strconv.ParseInt(str(v), 10, 64)
		return n
	}

	return Family{
		ID:        familyID,
		AccountID: str(vals[0]),
		DeviceID:  str(vals[1]),
		SessionID: str(vals[2]),
		Sequence:  uint64(num(vals[3])),
		Revoked:   str(vals[4]) == "1",
		CreatedAt: time.UnixMilli(num(vals[5])),
		ExpiresAt: time.UnixMilli(num(vals[6])),
	}, nil
}

// Verify reports whether token's secret matches a session row of its
// family without changing any state. A rotated predecessor still matches;
// Rotate decides what presenting it means.
func (s *Store) Verify(ctx context.Context, token string) error {
	tok, err := internal.DecodeRefreshToken(token)
	if err != nil {
		return ErrInvalid
	}
	vals, err := s.redis.HMGet(ctx, s.rowPrefix(tok.FamilyID)+tok.SessionID, "h", "seq").Result()
	if err != nil {
		return unavailable(err)
	}
	h, _ := vals[0].(string)
	seq, _ := vals[1].(string)
	if h == "" || seq != strconv.FormatUint(tok.Sequence, 10) {
		return ErrInvalid
	}
	if subtle.ConstantTimeCompare([]byte(h), []byte(hashHex(tok.Secret))) != 1 {
		return ErrInvalid
	}
	return nil
}

// ListFamilies returns the account's live families and prunes index entries
// whose family has expired.
func (s *Store) ListFamilies(ctx context.Context, accountID string) ([]Family, error) {
	key := s.accountKey(accountID)
	fids, err := s.redis.SMembers(ctx, key).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	out := make([]Family, 0, len(fids))
	for _, fid := range fids {
		fam, err := s.Get(ctx, fid)
		if errors.Is(err, ErrInvalid) {
			if err := s.redis.SRem(ctx, key, fid).Err(); err != nil {
				return nil, unavailable(err)
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		if fam.Revoked || fam.AccountID != accountID {
			continue
		}
		out = append(out, fam)
	}
	return out, nil
}
