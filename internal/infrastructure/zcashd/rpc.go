package zcashd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/shielded-exchange/withdrawd/pkg/circuitbreaker"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"
)

// rpcInvalidAddressOrKey is returned by gettransaction for unknown txids.
const rpcInvalidAddressOrKey = -5

// RPCError is an error response of the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// rpcClient speaks the JSON-RPC 1.0 dialect of zcashd. Every call goes
// through the request rate limiter and the circuit breaker. RPC error
// responses do not count as breaker failures, only transport failures do.
type rpcClient struct {
	endpoint   string
	user       string
	password   string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	limiter    ratelimit.Limiter
	nextID     uint64
}

func newRPCClient(
	endpoint string, timeout time.Duration, requestsPerSecond int,
	logger *log.Entry,
) (*rpcClient, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid rpc endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid rpc endpoint: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid rpc endpoint: missing host")
	}

	user := u.User.Username()
	password, _ := u.User.Password()
	u.User = nil

	limiter := ratelimit.NewUnlimited()
	if requestsPerSecond > 0 {
		limiter = ratelimit.New(requestsPerSecond)
	}

	return &rpcClient{
		endpoint:   u.String(),
		user:       user,
		password:   password,
		httpClient: &http.Client{Timeout: timeout},
		cb:         circuitbreaker.NewCircuitBreaker("zcashd", logger),
		limiter:    limiter,
	}, nil
}

// call invokes method and decodes its result into out, if not nil.
func (c *rpcClient) call(
	ctx context.Context, method string, params []interface{}, out interface{},
) error {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "1.0",
		ID:      atomic.AddUint64(&c.nextID, 1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	c.limiter.Take()
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.do(ctx, body)
	})
	if err != nil {
		return err
	}

	resp := res.(*rpcResponse)
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func (c *rpcClient) do(ctx context.Context, body []byte) (*rpcResponse, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.endpoint, bytes.NewReader(body),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/plain")
	if c.user != "" || c.password != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	// zcashd answers RPC errors with a 500 and a JSON body.
	resp := &rpcResponse{}
	if err := json.Unmarshal(payload, resp); err != nil {
		return nil, fmt.Errorf(
			"unexpected response from node (status %d): %s",
			httpResp.StatusCode, bytes.TrimSpace(payload),
		)
	}
	if resp.Error == nil && httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected response status %d", httpResp.StatusCode)
	}
	return resp, nil
}

// nothingMoved returns whether err proves that the node did not act on the
// request, either because it never got it or because it refused it.
func nothingMoved(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
