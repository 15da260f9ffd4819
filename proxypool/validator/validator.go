package validator

import (
	"context"
	"fmt"
	"time"

	herrors "proxyharvest/internal/shared/errors"
	"proxyharvest/internal/shared/logger"
	"proxyharvest/proxypool/model"
)

// DefaultProbeURL answers 204 to any client that reaches it.
const DefaultProbeURL = "http://www.google.com/generate_204"

// Prober issues a GET for target through the proxy at proxyAddr and reports
// the final status code. fetcher.Fetcher implements it.
type Prober interface {
	Probe(ctx context.Context, target, proxyAddr string) (int, error)
}

// Result is the outcome of checking one proxy.
type Result struct {
	Live       bool
	StatusCode int
	Latency    time.Duration
	Err        error
}

// Validator 通过代理请求探测地址, 以状态码判断代理是否存活。
type Validator struct {
	prober   Prober
	probeURL string
}

// NewValidator creates a Validator; an empty probeURL means DefaultProbeURL.
func NewValidator(prober Prober, probeURL string) *Validator {
	if probeURL == "" {
		probeURL = DefaultProbeURL
	}
	return &Validator{prober: prober, probeURL: probeURL}
}

// Check probes rec and reports the detail. It never panics; a failure of the
// prober is returned in Result.Err.
func (v *Validator) Check(ctx context.Context, rec model.ProxyRecord) (res Result) {
	l := logger.WithComponent("ProxyPool/Validator")
	proxyAddr := rec.URL()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: herrors.Network("probe via ", proxyAddr, " panicked: ", fmt.Sprint(r))}
		}
		res.Latency = time.Since(start)
		if res.Live {
			l.Debug().Str("proxy", proxyAddr).Int("status_code", res.StatusCode).Dur("latency", res.Latency).Msg("Proxy is live.")
		} else {
			l.Debug().Str("proxy", proxyAddr).Int("status_code", res.StatusCode).Err(res.Err).Msg("Proxy check failed.")
		}
	}()

	status, err := v.prober.Probe(ctx, v.probeURL, proxyAddr)
	if err != nil {
		return Result{Err: err}
	}
	return Result{
		Live:       status >= 200 && status < 300,
		StatusCode: status,
	}
}

// IsLive reports whether a probe through rec returns a 2xx status.
// Transport failures, timeouts and non-2xx statuses are all false.
func (v *Validator) IsLive(ctx context.Context, rec model.ProxyRecord) bool {
	return v.Check(ctx, rec).Live
}
