package authservice

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

func (mw loggingMiddleware) Login(ctx context.Context, email, password string) (s Session, err error) {
	defer func() {
		mw.logger.Log("method", "Login", "email", email, "account_id", s.Account.ID, "err", err)
	}()
	return mw.next.Login(ctx, email, password)
}

func (mw loggingMiddleware) Refresh(ctx context.Context, refreshToken string) (s Session, err error) {
	defer func() {
		mw.logger.Log("method", "Refresh", "account_id", s.Account.ID, "err", err)
	}()
	return mw.next.Refresh(ctx, refreshToken)
}

func (mw loggingMiddleware) Logout(ctx context.Context, a authsvc.Auth, refreshToken string) (ok bool, err error) {
	defer func() {
		mw.logger.Log("method", "Logout", "account_id", a.AccountID, "access_uuid", a.AccessUUID, "err", err)
	}()
	return mw.next.Logout(ctx, a, refreshToken)
}

func (mw loggingMiddleware) ChangePassword(ctx context.Context, a authsvc.Auth, current, next string) (ok bool, err error) {
	defer func() {
		mw.logger.Log("method", "ChangePassword", "account_id", a.AccountID, "err", err)
	}()
	return mw.next.ChangePassword(ctx, a, current, next)
}

func (mw loggingMiddleware) Profile(ctx context.Context, a authsvc.Auth) (account usersvc.Account, err error) {
	defer func() {
		mw.logger.Log("method", "Profile", "account_id", a.AccountID, "err", err)
	}()
	return mw.next.Profile(ctx, a)
}

func InstrumentingMiddleware(requestCount metrics.Counter, requestLatency metrics.Histogram) Middleware {
	return func(next Service) Service {
		return instrumentingMiddleware{requestCount, requestLatency, next}
	}
}

type instrumentingMiddleware struct {
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
	next           Service
}

func (mw instrumentingMiddleware) Login(ctx context.Context, email, password string) (Session, error) {
	defer func(begin time.Time) {
		mw.requestCount.With("method", "Login").Add(1)
		mw.requestLatency.With("method", "Login").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mw.next.Login(ctx, email, password)
}

func (mw instrumentingMiddleware) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	defer func(begin time.Time) {
		mw.requestCount.With("method", "Refresh").Add(1)
		mw.requestLatency.With("method", "Refresh").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mw.next.Refresh(ctx, refreshToken)
}

func (mw instrumentingMiddleware) Logout(ctx context.Context, a authsvc.Auth, refreshToken string) (bool, error) {
	defer func(begin time.Time) {
		mw.requestCount.With("method", "Logout").Add(1)
		mw.requestLatency.With("method", "Logout").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mw.next.Logout(ctx, a, refreshToken)
}

func (mw instrumentingMiddleware) ChangePassword(ctx context.Context, a authsvc.Auth, current, next string) (bool, error) {
	defer func(begin time.Time) {
		mw.requestCount.With("method", "ChangePassword").Add(1)
		mw.requestLatency.With("method", "ChangePassword").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mw.next.ChangePassword(ctx, a, current, next)
}

func (mw instrumentingMiddleware) Profile(ctx context.Context, a authsvc.Auth) (usersvc.Account, error) {
	defer func(begin time.Time) {
		mw.requestCount.With("method", "Profile").Add(1)
		mw.requestLatency.With("method", "Profile").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mw.next.Profile(ctx, a)
}
