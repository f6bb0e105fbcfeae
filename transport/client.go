// Package transport 通过HTTP/JSON在服务之间调用可补偿方法，事务上下文随参数传递
package transport

import (
	"TCCTransaction/log"
	"TCCTransaction/model"
	"TCCTransaction/pkg"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// ErrUnknownOutcome 请求结果未知(网络错误、超时、5xx)，对端的try可能已经执行
var ErrUnknownOutcome = errors.New("transport: unknown outcome")

// RemoteError 对端明确返回的失败
type RemoteError struct {
	Target     string
	Method     string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s.%s failed with %d: %s", e.Target, e.Method, e.StatusCode, e.Message)
}

type invokeRequest struct {
	Target string            `json:"target"`
	Method string            `json:"method"`
	Args   []json.RawMessage `json:"args"`
}

type invokeResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Client 远程目标的调用桩，实现model.RemoteTarget
type Client struct {
	ClientOptions
	baseURL string
	target  string
	methods map[string]model.RemoteMethod
	http    *retryablehttp.Client
}

func NewClient(baseURL, target string, methods map[string]model.RemoteMethod, opts ...ClientOption) *Client {
	c := &Client{
		ClientOptions: ClientOptions{retryMax: -1},
		baseURL:       strings.TrimRight(baseURL, "/"),
		target:        target,
		methods:       methods,
	}
	for _, opt := range opts {
		opt(&c.ClientOptions)
	}

	repairClientOpt(&c.ClientOptions)

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = c.timeout

	c.http = retryablehttp.NewClient()
	c.http.HTTPClient = httpClient
	c.http.RetryMax = c.retryMax
	c.http.RetryWaitMin = c.retryWaitMin
	c.http.RetryWaitMax = c.retryWaitMax
	c.http.Logger = leveledLogger{}
	return c
}

func (c *Client) Methods() map[string]model.RemoteMethod {
	return c.methods
}

func (c *Client) Dispatch(ctx context.Context, method string, args []any) (any, error) {
	sig, ok := c.methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: remote method %s.%s not declared", pkg.ErrSystem, c.target, method)
	}
	encoded, err := pkg.EncodeArguments(args)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(invokeRequest{Target: c.target, Method: method, Args: encoded})
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+InvokePath, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrUnknownOutcome, c.target, method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: read body: %v", ErrUnknownOutcome, c.target, method, err)
	}
	var out invokeResponse
	_ = json.Unmarshal(data, &out)

	switch {
	case resp.StatusCode == http.StatusOK:
		return decodeResult(out.Result, sig.ReturnType)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: %s.%s: status %d: %s", ErrUnknownOutcome, c.target, method, resp.StatusCode, out.Error)
	default:
		return nil, &RemoteError{Target: c.target, Method: method, StatusCode: resp.StatusCode, Message: out.Error}
	}
}

func decodeResult(raw json.RawMessage, typ reflect.Type) (any, error) {
	if typ == nil {
		return nil, nil
	}
	ptr := reflect.New(typ)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("%w: decode result: %v", pkg.ErrSystem, err)
		}
	}
	return ptr.Elem().Interface(), nil
}

// retryablehttp.LeveledLogger
type leveledLogger struct{}

func (leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	log.Errorf("transport: %s %v", msg, keysAndValues)
}

func (leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debugf("transport: %s %v", msg, keysAndValues)
}

func (leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	log.Debugf("transport: %s %v", msg, keysAndValues)
}

func (leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	log.Warnf("transport: %s %v", msg, keysAndValues)
}
