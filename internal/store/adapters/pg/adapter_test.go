package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/store"
	"github.com/dropDatabas3/authcore/internal/store/storetest"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Adapter) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	a := New(mock, store.AdapterConfig{
		Hasher: storetest.Hasher,
		Clock:  func() time.Time { return fixedNow },
	})
	return mock, a
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestCreateUser_UniqueViolationMapping(t *testing.T) {
	tests := []struct {
		name       string
		constraint string
		want       error
	}{
		{"email", constraintEmail, store.ErrEmailInUse},
		{"username", constraintUsername, store.ErrUsernameInUse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, a := newMock(t)
			mock.ExpectExec(`INSERT INTO auth_user`).
				WithArgs(anyArgs(15)...).
				WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: tt.constraint})

			u, err := a.CreateUser(context.Background(), "acme", domain.NewUser{Email: "Ana@Acme.com", Username: "ana"})
			assert.Nil(t, u)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateUser_OtherErrorsAreWrapped(t *testing.T) {
	mock, a := newMock(t)
	mock.ExpectExec(`INSERT INTO auth_user`).
		WithArgs(anyArgs(15)...).
		WillReturnError(errors.New("connection refused"))

	_, err := a.CreateUser(context.Background(), "acme", domain.NewUser{Email: "ana@acme.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pg: create user")
	assert.NotErrorIs(t, err, store.ErrEmailInUse)
}

func TestCreateUser_NormalizesEmail(t *testing.T) {
	mock, a := newMock(t)
	mock.ExpectExec(`INSERT INTO auth_user`).
		WithArgs(pgxmock.AnyArg(), "acme", "ana@acme.com",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			false, pgxmock.AnyArg(), true, false, []byte("{}"), fixedNow, fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	u, err := a.CreateUser(context.Background(), "acme", domain.NewUser{Email: "  Ana@ACME.com "})
	require.NoError(t, err)
	assert.Equal(t, "ana@acme.com", u.Email)
	assert.Nil(t, u.PasswordHash)
}

func TestInvalidIDsSkipTheDatabase(t *testing.T) {
	_, a := newMock(t)
	ctx := context.Background()

	u, err := a.GetUser(ctx, "acme", "not-a-uuid")
	assert.NoError(t, err)
	assert.Nil(t, u)

	u, err = a.UpdateUser(ctx, "acme", "not-a-uuid", domain.UserPatch{})
	assert.NoError(t, err)
	assert.Nil(t, u)

	assert.NoError(t, a.DeleteUser(ctx, "acme", "not-a-uuid"))

	n, err := a.DeleteUserSessions(ctx, "acme", "nope")
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetUserByEmail_NoRows(t *testing.T) {
	mock, a := newMock(t)
	mock.ExpectQuery(`FROM auth_user WHERE tenant_id = \$1 AND lower\(email\) = \$2`).
		WithArgs("acme", "ana@acme.com").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	u, err := a.GetUserByEmail(context.Background(), "acme", "ANA@acme.com")
	assert.NoError(t, err)
	assert.Nil(t, u)
}

func TestGetOTP_Scans(t *testing.T) {
	mock, a := newMock(t)
	exp := fixedNow.Add(5 * time.Minute)
	rows := pgxmock.NewRows([]string{"id", "tenant_id", "identifier", "purpose", "channel", "code", "expires_at", "attempts", "created_at"}).
		AddRow("0b5c0c6e-6d6f-4e0e-9a55-3f0f6b1f6d10", "acme", "ana@acme.com", "login", "email", "123456", exp, 2, fixedNow)
	mock.ExpectQuery(`FROM auth_otp WHERE tenant_id = \$1`).
		WithArgs("acme", "ana@acme.com", "login").
		WillReturnRows(rows)

	o, err := a.GetOTP(context.Background(), "acme", "ana@acme.com", domain.PurposeLogin)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, "123456", o.Code)
	assert.Equal(t, 2, o.Attempts)
	assert.Equal(t, domain.ChannelEmail, o.Channel)
	assert.True(t, o.ExpiresAt.Equal(exp))
}

func TestIncrementOTPAttempts(t *testing.T) {
	t.Run("returns the new count", func(t *testing.T) {
		mock, a := newMock(t)
		mock.ExpectQuery(`UPDATE auth_otp SET attempts = attempts \+ 1`).
			WithArgs("acme", "ana@acme.com", "login").
			WillReturnRows(pgxmock.NewRows([]string{"attempts"}).AddRow(3))

		n, err := a.IncrementOTPAttempts(context.Background(), "acme", "ana@acme.com", domain.PurposeLogin)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("missing otp is zero", func(t *testing.T) {
		mock, a := newMock(t)
		mock.ExpectQuery(`UPDATE auth_otp SET attempts = attempts \+ 1`).
			WithArgs("acme", "ana@acme.com", "login").
			WillReturnRows(pgxmock.NewRows([]string{"attempts"}))

		n, err := a.IncrementOTPAttempts(context.Background(), "acme", "ana@acme.com", domain.PurposeLogin)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestUpsertOTP_ResetsAttempts(t *testing.T) {
	mock, a := newMock(t)
	mock.ExpectExec(`INSERT INTO auth_otp .* ON CONFLICT ON CONSTRAINT auth_otp_key_uq DO UPDATE`).
		WithArgs(pgxmock.AnyArg(), "acme", "ana@acme.com", "login", "email", "654321",
			fixedNow.Add(time.Minute), fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	o, err := a.UpsertOTP(context.Background(), domain.OtpSession{
		TenantID:   "acme",
		Identifier: "ana@acme.com",
		Code:       "654321",
		Purpose:    domain.PurposeLogin,
		Channel:    domain.ChannelEmail,
		ExpiresAt:  fixedNow.Add(time.Minute),
		Attempts:   7,
	})
	require.NoError(t, err)
	assert.Zero(t, o.Attempts)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, fixedNow, o.CreatedAt)
}

const otpID = "0b5c0c6e-6d6f-4e0e-9a55-3f0f6b1f6d10"

func otpRows(attempts int, exp time.Time) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "tenant_id", "identifier", "purpose", "channel", "code", "expires_at", "attempts", "created_at"}).
		AddRow(otpID, "acme", "ana@acme.com", "login", "sms", "123456", exp, attempts, fixedNow)
}

func TestReserveOTPAttempt(t *testing.T) {
	ctx := context.Background()
	exp := fixedNow.Add(5 * time.Minute)
	lock := `SELECT .* FROM auth_otp\s+WHERE tenant_id = \$1 AND identifier = \$2 AND purpose = \$3 AND id = \$4 FOR UPDATE`

	t.Run("granted counts the attempt in the same tx", func(t *testing.T) {
		mock, a := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lock).
			WithArgs("acme", "ana@acme.com", "login", otpID).
			WillReturnRows(otpRows(1, exp))
		mock.ExpectExec(`UPDATE auth_otp SET attempts = attempts \+ 1 WHERE id = \$1`).
			WithArgs(otpID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		o, st, err := a.ReserveOTPAttempt(ctx, "acme", "ana@acme.com", domain.PurposeLogin, otpID, 3, fixedNow)
		require.NoError(t, err)
		assert.Equal(t, store.OTPAttemptGranted, st)
		assert.Equal(t, 2, o.Attempts)
		assert.Equal(t, domain.ChannelSMS, o.Channel)
	})

	t.Run("exhausted deletes", func(t *testing.T) {
		mock, a := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lock).
			WithArgs("acme", "ana@acme.com", "login", otpID).
			WillReturnRows(otpRows(3, exp))
		mock.ExpectExec(`DELETE FROM auth_otp WHERE id = \$1`).
			WithArgs(otpID).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectCommit()

		o, st, err := a.ReserveOTPAttempt(ctx, "acme", "ana@acme.com", domain.PurposeLogin, otpID, 3, fixedNow)
		require.NoError(t, err)
		assert.Equal(t, store.OTPAttemptExhausted, st)
		assert.Nil(t, o)
	})

	t.Run("expired deletes", func(t *testing.T) {
		mock, a := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lock).
			WithArgs("acme", "ana@acme.com", "login", otpID).
			WillReturnRows(otpRows(0, fixedNow.Add(-time.Second)))
		mock.ExpectExec(`DELETE FROM auth_otp WHERE id = \$1`).
			WithArgs(otpID).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectCommit()

		_, st, err := a.ReserveOTPAttempt(ctx, "acme", "ana@acme.com", domain.PurposeLogin, otpID, 3, fixedNow)
		require.NoError(t, err)
		assert.Equal(t, store.OTPAttemptExpired, st)
	})

	t.Run("replaced or consumed is missing", func(t *testing.T) {
		mock, a := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lock).
			WithArgs("acme", "ana@acme.com", "login", otpID).
			WillReturnRows(pgxmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		o, st, err := a.ReserveOTPAttempt(ctx, "acme", "ana@acme.com", domain.PurposeLogin, otpID, 3, fixedNow)
		require.NoError(t, err)
		assert.Equal(t, store.OTPAttemptMissing, st)
		assert.Nil(t, o)
	})
}

func TestConsumeOTP_OnlyTheDeleterWins(t *testing.T) {
	mock, a := newMock(t)
	q := `DELETE FROM auth_otp WHERE tenant_id = \$1 AND identifier = \$2 AND purpose = \$3 AND id = \$4`
	mock.ExpectExec(q).
		WithArgs("acme", "ana@acme.com", "login", otpID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(q).
		WithArgs("acme", "ana@acme.com", "login", otpID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	ok, err := a.ConsumeOTP(context.Background(), "acme", "ana@acme.com", domain.PurposeLogin, otpID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.ConsumeOTP(context.Background(), "acme", "ana@acme.com", domain.PurposeLogin, otpID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteUserSessions_RowsAffected(t *testing.T) {
	mock, a := newMock(t)
	uid := "0b5c0c6e-6d6f-4e0e-9a55-3f0f6b1f6d10"
	mock.ExpectExec(`DELETE FROM auth_session WHERE tenant_id = \$1 AND user_id = \$2`).
		WithArgs("acme", uid).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := a.DeleteUserSessions(context.Background(), "acme", uid)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCreateSession_RejectsUnknownUser(t *testing.T) {
	mock, a := newMock(t)
	mock.ExpectExec(`INSERT INTO auth_session`).
		WithArgs(anyArgs(9)...).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, Message: "violates foreign key"})

	_, err := a.CreateSession(context.Background(), domain.Session{
		UserID:    "0b5c0c6e-6d6f-4e0e-9a55-3f0f6b1f6d10",
		TenantID:  "acme",
		Token:     "acme.abc",
		ExpiresAt: fixedNow.Add(time.Hour),
	})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestPurgeExpired(t *testing.T) {
	mock, a := newMock(t)
	mock.ExpectExec(`DELETE FROM auth_session WHERE expires_at < \$1`).
		WithArgs(fixedNow).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec(`DELETE FROM auth_otp WHERE expires_at < \$1`).
		WithArgs(fixedNow).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	st, err := a.PurgeExpired(context.Background(), fixedNow)
	require.NoError(t, err)
	assert.Equal(t, store.PurgeStats{Sessions: 4, OTPs: 1}, st)
}

func TestPurgeExpired_StopsOnError(t *testing.T) {
	mock, a := newMock(t)
	mock.ExpectExec(`DELETE FROM auth_session`).
		WithArgs(fixedNow).
		WillReturnError(errors.New("boom"))

	_, err := a.PurgeExpired(context.Background(), fixedNow)
	assert.ErrorContains(t, err, "purge sessions")
}

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/db":    "pgx5://u:p@localhost:5432/db",
		"postgresql://u:p@localhost/db":       "pgx5://u:p@localhost/db",
		"pgx5://already":                      "pgx5://already",
		"host=localhost user=u dbname=authdb": "host=localhost user=u dbname=authdb",
	}
	for in, want := range tests {
		assert.Equal(t, want, MigrateURL(in), in)
	}
}
