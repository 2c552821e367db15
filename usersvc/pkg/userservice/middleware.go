package userservice

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/usersvc"
)

type Middleware func(Service) Service

func LoggingMiddleware(logger log.Logger) Middleware {
	return func(next Service) Service {
		return loggingMiddleware{logger, next}
	}
}

type loggingMiddleware struct {
	logger log.Logger
	next   Service
}

func (mw loggingMiddleware) Accounts(ctx context.Context, a authsvc.Auth) (accounts []usersvc.Account, err error) {
	defer func() {
		mw.logger.Log("method", "Accounts", "account_id", a.AccountID, "count", len(accounts), "err", err)
	}()
	return mw.next.Accounts(ctx, a)
}

func (mw loggingMiddleware) Account(ctx context.Context, a authsvc.Auth, id uint64) (account usersvc.Account, err error) {
	defer func() {
		mw.logger.Log("method", "Account", "account_id", a.AccountID, "id", id, "err", err)
	}()
	return mw.next.Account(ctx, a, id)
}

func (mw loggingMiddleware) CreateAccount(ctx context.Context, a authsvc.Auth, in usersvc.AccountInput) (account usersvc.Account, err error) {
	defer func() {
		mw.logger.Log(
			"method", "CreateAccount",
			"account_id", a.AccountID,
			"email", in.Email,
			"role", in.Role,
			"id", account.ID,
			"err", err,
		)
	}()
	return mw.next.CreateAccount(ctx, a, in)
}

func (mw loggingMiddleware) UpdateAccount(ctx context.Context, a authsvc.Auth, id uint64, p usersvc.AccountPatch) (account usersvc.Account, err error) {
	defer func() {
		mw.logger.Log(
			"method", "UpdateAccount",
			"account_id", a.AccountID,
			"id", id,
			"password_changed", p.Password != nil,
			"err", err,
		)
	}()
	return mw.next.UpdateAccount(ctx, a, id, p)
}

func (mw loggingMiddleware) ToggleActive(ctx context.Context, a authsvc.Auth, id uint64) (account usersvc.Account, err error) {
	defer func() {
		mw.logger.Log("method", "ToggleActive", "account_id", a.AccountID, "id", id, "active", account.Active, "err", err)
	}()
	return mw.next.ToggleActive(ctx, a, id)
}

func (mw loggingMiddleware) DeleteAccount(ctx context.Context, a authsvc.Auth, id uint64) (result bool, err error) {
	defer func() {
		mw.logger.Log("method", "DeleteAccount", "account_id", a.AccountID, "id", id, "result", result, "err", err)
	}()
	return mw.next.DeleteAccount(ctx, a, id)
}

func InstrumentingMiddleware(counter metrics.Counter, latency metrics.Histogram) Middleware {
	return func(next Service) Service {
		return instrumentingMiddleware{counter, latency, next}
	}
}

type instrumentingMiddleware struct {
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
	next           Service
}

func (mw instrumentingMiddleware) Accounts(ctx context.Context, a authsvc.Auth) ([]usersvc.Account, error) {
	defer func(begin time.Time) {
		mw.requestCount.With("method", "accounts").Add(1)
		mw.requestLatency.With("method", "accounts").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mw.next.Accounts(ctx, a)
}

func (mw instrumentingMiddleware) Account(ctx context.Context, a authsvc.Auth, id uint64) (usersvc.Account, error) {
	defer func(begin time.Time) {
		mw.requestCount.With("method", "account").Add(1)
		mw.requestLatency.With("method", "account").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mw.next.Account(ctx, a, id)
}

func (mw instrumentingMiddleware) CreateAccount(ctx context.Context, a authsvc.Auth, in usersvc.AccountInput) (usersvc.Account, error) {
	defer func(begin time.Time) {
		mw.requestCount.With("method", "create_account").Add(1)
		mw.requestLatency.With("method", "create_account").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mw.next.CreateAccount(ctx, a, in)
}

func (mw instrumentingMiddleware) UpdateAccount(ctx context.Context, a authsvc.Auth, id uint64, p usersvc.AccountPatch) (usersvc.Account, error) {
	defer func(begin time.Time) {
		mw.requestCount.With("method", "update_account").Add(1)
		mw.requestLatency.With("method", "update_account").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mw.next.UpdateAccount(ctx, a, id, p)
}

func (mw instrumentingMiddleware) ToggleActive(ctx context.Context, a authsvc.Auth, id uint64) (usersvc.Account, error) {
	defer func(begin time.Time) {
		mw.requestCount.With("method", "toggle_active").Add(1)
		mw.requestLatency.With("method", "toggle_active").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mw.next.ToggleActive(ctx, a, id)
}

func (mw instrumentingMiddleware) DeleteAccount(ctx context.Context, a authsvc.Auth, id uint64) (bool, error) {
	defer func(begin time.Time) {
		mw.requestCount.With("method", "delete_account").Add(1)
		mw.requestLatency.With("method", "delete_account").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mw.next.DeleteAccount(ctx, a, id)
}
