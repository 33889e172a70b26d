package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ImageValidator 检查图片 URL 是否可访问
// 返回 (true, nil) 表示可访问；(false, nil) 表示服务端返回非 2xx；err 表示请求未能完成。
type ImageValidator interface {
	Validate(ctx context.Context, url string) (bool, error)
}

// NewImageHTTPClient 创建出站 HTTP 客户端，整个进程共享一个实例以复用连接
func NewImageHTTPClient(timeout time.Duration, maxIdlePerHost int, idleConnTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   maxIdlePerHost,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// httpImageValidator 通过 HEAD 请求校验图片 URL
type httpImageValidator struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewHTTPImageValidator 创建基于 HEAD 请求的校验器，timeout 为单个 URL 的检查上限
func NewHTTPImageValidator(client *http.Client, timeout time.Duration, logger *zap.Logger) ImageValidator {
	return &httpImageValidator{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
}

// Validate 发送 HEAD 请求，2xx 视为可访问，不检查 Content-Type
func (v *httpImageValidator) Validate(ctx context.Context, url string) (bool, error) {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok {
		v.logger.Debug("image url not accessible",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
	}
	return ok, nil
}
