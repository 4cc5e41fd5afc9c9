package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/store"
)

// ─── OTP ───
// Cada OTP es un HASH; attempts se incrementa con HINCRBY.

func (a *Adapter) UpsertOTP(ctx context.Context, o domain.OtpSession) (*domain.OtpSession, error) {
	o, err := store.PrepareOTP(o, a.now())
	if err != nil {
		return nil, err
	}
	k := a.otpKey(o.TenantID, o.Identifier, string(o.Purpose))
	_, err = a.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, k)
		p.HSet(ctx, k,
			"id", o.ID,
			"tenantId", o.TenantID,
			"identifier", o.Identifier,
			"purpose", string(o.Purpose),
			"channel", string(o.Channel),
			"code", o.Code,
			"expiresAt", o.ExpiresAt.Format(time.RFC3339Nano),
			"attempts", 0,
			"createdAt", o.CreatedAt.Format(time.RFC3339Nano),
		)
		p.PExpireAt(ctx, k, o.ExpiresAt.Add(expiryGrace))
		p.ZAdd(ctx, a.otpsExpKey(), redis.Z{Score: float64(o.ExpiresAt.UnixMilli()), Member: k})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis: upsert otp: %w", err)
	}
	return &o, nil
}

func decodeOTP(m map[string]string) (*domain.OtpSession, error) {
	o := domain.OtpSession{
		ID:         m["id"],
		TenantID:   m["tenantId"],
		Identifier: m["identifier"],
		Purpose:    domain.OTPPurpose(m["purpose"]),
		Channel:    domain.OTPChannel(m["channel"]),
		Code:       m["code"],
	}
	var err error
	if o.ExpiresAt, err = time.Parse(time.RFC3339Nano, m["expiresAt"]); err != nil {
		return nil, fmt.Errorf("%w: otp expiresAt: %v", store.ErrInvalidRecord, err)
	}
	if o.CreatedAt, err = time.Parse(time.RFC3339Nano, m["createdAt"]); err != nil {
		return nil, fmt.Errorf("%w: otp createdAt: %v", store.ErrInvalidRecord, err)
	}
	if o.Attempts, err = strconv.Atoi(m["attempts"]); err != nil {
		return nil, fmt.Errorf("%w: otp attempts: %v", store.ErrInvalidRecord, err)
	}
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}
	return &o, nil
}

func (a *Adapter) GetOTP(ctx context.Context, tenantID, identifier string, purpose domain.OTPPurpose) (*domain.OtpSession, error) {
	m, err := a.rdb.HGetAll(ctx, a.otpKey(tenantID, identifier, string(purpose))).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get otp: %w", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return decodeOTP(m)
}

func (a *Adapter) IncrementOTPAttempts(ctx context.Context, tenantID, identifier string, purpose domain.OTPPurpose) (int, error) {
	n, err := incrOTPLua.Run(ctx, a.rdb, []string{a.otpKey(tenantID, identifier, string(purpose))}).Int()
	if err != nil {
		return 0, fmt.Errorf("redis: increment otp attempts: %w", err)
	}
	return n, nil
}

func (a *Adapter) DeleteOTP(ctx context.Context, tenantID, identifier string, purpose domain.OTPPurpose) error {
	k := a.otpKey(tenantID, identifier, string(purpose))
	_, err := a.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, k)
		p.ZRem(ctx, a.otpsExpKey(), k)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: delete otp: %w", err)
	}
	return nil
}

func (a *Adapter) ReserveOTPAttempt(ctx context.Context, tenantID, identifier string, purpose domain.OTPPurpose, id string, maxAttempts int, now time.Time) (*domain.OtpSession, store.OTPAttempt, error) {
	k := a.otpKey(tenantID, identifier, string(purpose))
	res, err := reserveOTPLua.Run(ctx, a.rdb, []string{k, a.otpsExpKey()}, id, maxAttempts, now.UnixMilli()).Slice()
	if err != nil {
		return nil, store.OTPAttemptMissing, fmt.Errorf("redis: reserve otp attempt: %w", err)
	}
	if len(res) == 0 {
		return nil, store.OTPAttemptMissing, fmt.Errorf("redis: reserve otp attempt: empty reply")
	}
	switch st, _ := res[0].(int64); st {
	case 0:
		return nil, store.OTPAttemptMissing, nil
	case 2:
		return nil, store.OTPAttemptExpired, nil
	case 3:
		return nil, store.OTPAttemptExhausted, nil
	}
	if len(res) < 2 {
		return nil, store.OTPAttemptMissing, fmt.Errorf("redis: reserve otp attempt: short reply")
	}
	flat, _ := res[1].([]interface{})
	m := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		f, _ := flat[i].(string)
		v, _ := flat[i+1].(string)
		m[f] = v
	}
	o, err := decodeOTP(m)
	if err != nil {
		return nil, store.OTPAttemptMissing, err
	}
	return o, store.OTPAttemptGranted, nil
}

func (a *Adapter) ConsumeOTP(ctx context.Context, tenantID, identifier string, purpose domain.OTPPurpose, id string) (bool, error) {
	k := a.otpKey(tenantID, identifier, string(purpose))
	n, err := consumeOTPLua.Run(ctx, a.rdb, []string{k, a.otpsExpKey()}, id).Int()
	if err != nil {
		return false, fmt.Errorf("redis: consume otp: %w", err)
	}
	return n == 1, nil
}
