package zcashd_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shielded-exchange/withdrawd/internal/core/ports"
	"github.com/shielded-exchange/withdrawd/internal/infrastructure/zcashd"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

type rpcCall struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode answers JSON-RPC calls with the handler registered for the
// method and records the calls it got.
type fakeNode struct {
	t        *testing.T
	lock     sync.Mutex
	calls    []rpcCall
	handlers map[string]func(params []json.RawMessage) (interface{}, *zcashd.RPCError)
}

func newFakeNode(t *testing.T) (*fakeNode, *httptest.Server) {
	node := &fakeNode{
		t:        t,
		handlers: make(map[string]func([]json.RawMessage) (interface{}, *zcashd.RPCError)),
	}
	server := httptest.NewServer(node)
	t.Cleanup(server.Close)
	return node, server
}

func (n *fakeNode) handle(
	method string, h func(params []json.RawMessage) (interface{}, *zcashd.RPCError),
) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.handlers[method] = h
}

func (n *fakeNode) callsOf(method string) []rpcCall {
	n.lock.Lock()
	defer n.lock.Unlock()
	calls := make([]rpcCall, 0)
	for _, c := range n.calls {
		if c.Method == method {
			calls = append(calls, c)
		}
	}
	return calls
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != "rpcuser" || pass != "rpcpass" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var call rpcCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	n.lock.Lock()
	n.calls = append(n.calls, call)
	h, ok := n.handlers[call.Method]
	n.lock.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": nil,
			"error":  zcashd.RPCError{Code: -32601, Message: "Method not found"},
		})
		return
	}

	result, rpcErr := h(call.Params)
	if rpcErr != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"result": result,
		"error":  rpcErr,
	})
}

func newWallet(t *testing.T, server *httptest.Server) *zcashd.Wallet {
	endpoint := strings.Replace(server.URL, "http://", "http://rpcuser:rpcpass@", 1)
	wallet, err := zcashd.NewWallet(zcashd.Config{
		Endpoint:     endpoint,
		Timeout:      time.Second,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	return wallet
}

func newRequest() domain.WithdrawalRequest {
	return domain.WithdrawalRequest{
		UserID:      "alice",
		FromAddress: "zs1from",
		ToAddress:   "zs1to",
		Amount:      decimal.NewFromFloat(1.5),
		Memo:        []byte("hi"),
		RequestID:   "req-1",
	}
}

func TestNewWallet(t *testing.T) {
	for _, endpoint := range []string{"", "localhost:8232", "ftp://host:21", "http://"} {
		_, err := zcashd.NewWallet(zcashd.Config{Endpoint: endpoint})
		require.Error(t, err, endpoint)
	}
}

func TestSubmit(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		node, server := newFakeNode(t)
		polls := 0
		node.handle("z_sendmany", func([]json.RawMessage) (interface{}, *zcashd.RPCError) {
			return "opid-1", nil
		})
		node.handle("z_getoperationresult", func([]json.RawMessage) (interface{}, *zcashd.RPCError) {
			polls++
			if polls < 3 {
				return []interface{}{}, nil
			}
			return []map[string]interface{}{{
				"id":     "opid-1",
				"status": "success",
				"result": map[string]string{"txid": "tx-1"},
				"params": map[string]interface{}{"fee": 0.0001},
			}}, nil
		})

		result, err := newWallet(t, server).Submit(ctx, newRequest(), ports.FullPrivacy)
		require.NoError(t, err)
		require.True(t, result.Success)
		require.Equal(t, "tx-1", result.TransactionID)
		require.Equal(t, "opid-1", result.OperationID)
		require.Equal(t, "0.0001", result.Fee.String())
		require.Equal(t, 3, polls)

		calls := node.callsOf("z_sendmany")
		require.Len(t, calls, 1)
		require.Len(t, calls[0].Params, 5)
		require.JSONEq(t, `"zs1from"`, string(calls[0].Params[0]))
		require.JSONEq(
			t, `[{"address":"zs1to","amount":1.5,"memo":"6869"}]`,
			string(calls[0].Params[1]),
		)
		require.JSONEq(t, `"FullPrivacy"`, string(calls[0].Params[4]))
	})

	t.Run("rejected by node", func(t *testing.T) {
		node, server := newFakeNode(t)
		node.handle("z_sendmany", func([]json.RawMessage) (interface{}, *zcashd.RPCError) {
			return nil, &zcashd.RPCError{Code: -6, Message: "Insufficient funds"}
		})

		_, err := newWallet(t, server).Submit(ctx, newRequest(), ports.FullPrivacy)
		require.Error(t, err)
		require.NotErrorIs(t, err, domain.ErrUnknownOutcome)

		var rpcErr *zcashd.RPCError
		require.ErrorAs(t, err, &rpcErr)
		require.Equal(t, -6, rpcErr.Code)
	})

	t.Run("operation failed", func(t *testing.T) {
		node, server := newFakeNode(t)
		node.handle("z_sendmany", func([]json.RawMessage) (interface{}, *zcashd.RPCError) {
			return "opid-1", nil
		})
		node.handle("z_getoperationresult", func([]json.RawMessage) (interface{}, *zcashd.RPCError) {
			return []map[string]interface{}{{
				"id":     "opid-1",
				"status": "failed",
				"error":  map[string]interface{}{"code": -6, "message": "tx unpaid action limit exceeded"},
			}}, nil
		})

		result, err := newWallet(t, server).Submit(ctx, newRequest(), ports.FullPrivacy)
		require.NoError(t, err)
		require.False(t, result.Success)
		require.Equal(t, "tx unpaid action limit exceeded", result.Error)
	})

	t.Run("operation never completes", func(t *testing.T) {
		node, server := newFakeNode(t)
		node.handle("z_sendmany", func([]json.RawMessage) (interface{}, *zcashd.RPCError) {
			return "opid-1", nil
		})
		node.handle("z_getoperationresult", func([]json.RawMessage) (interface{}, *zcashd.RPCError) {
			return []interface{}{}, nil
		})

		submitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		_, err := newWallet(t, server).Submit(submitCtx, newRequest(), ports.FullPrivacy)
		require.ErrorIs(t, err, domain.ErrUnknownOutcome)

		var unknownErr *domain.UnknownOutcomeError
		require.ErrorAs(t, err, &unknownErr)
		require.Equal(t, "opid-1", unknownErr.OperationID)
	})

	t.Run("node unreachable", func(t *testing.T) {
		_, server := newFakeNode(t)
		wallet := newWallet(t, server)
		server.Close()

		_, err := wallet.Submit(ctx, newRequest(), ports.FullPrivacy)
		require.Error(t, err)
		require.NotErrorIs(t, err, domain.ErrUnknownOutcome)
	})
}

func TestGetStatus(t *testing.T) {
	node, server := newFakeNode(t)
	node.handle("gettransaction", func(params []json.RawMessage) (interface{}, *zcashd.RPCError) {
		var txID string
		json.Unmarshal(params[0], &txID)
		switch txID {
		case "tx-confirmed":
			return map[string]interface{}{"confirmations": 6}, nil
		case "tx-mempool":
			return map[string]interface{}{"confirmations": 0}, nil
		default:
			return nil, &zcashd.RPCError{
				Code: -5, Message: "Invalid or non-wallet transaction id",
			}
		}
	})
	wallet := newWallet(t, server)

	status, err := wallet.GetStatus(ctx, "tx-confirmed")
	require.NoError(t, err)
	require.Equal(t, ports.TxStatus{State: ports.TxStateConfirmed, Confirmations: 6}, status)

	status, err = wallet.GetStatus(ctx, "tx-mempool")
	require.NoError(t, err)
	require.Equal(t, ports.TxStatePending, status.State)

	status, err = wallet.GetStatus(ctx, "tx-unknown")
	require.NoError(t, err)
	require.Equal(t, ports.TxStateUnknown, status.State)
}

func TestExportViewingKey(t *testing.T) {
	node, server := newFakeNode(t)
	node.handle("z_exportviewingkey", func(params []json.RawMessage) (interface{}, *zcashd.RPCError) {
		return "zxviews1key", nil
	})

	key, err := newWallet(t, server).ExportViewingKey(ctx, "zs1addr")
	require.NoError(t, err)
	require.Equal(t, "zxviews1key", key)

	calls := node.callsOf("z_exportviewingkey")
	require.Len(t, calls, 1)
	require.JSONEq(t, `"zs1addr"`, string(calls[0].Params[0]))
}

func TestDevWallet(t *testing.T) {
	wallet := zcashd.NewDevWallet(time.Hour)

	result, err := wallet.Submit(ctx, newRequest(), ports.FullPrivacy)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.TransactionID, 64)
	require.Equal(t, "0.0001", result.Fee.String())

	status, err := wallet.GetStatus(ctx, result.TransactionID)
	require.NoError(t, err)
	require.Equal(t, ports.TxStatePending, status.State)

	status, err = wallet.GetStatus(ctx, "unknown")
	require.NoError(t, err)
	require.Equal(t, ports.TxStateUnknown, status.State)

	key, err := wallet.ExportViewingKey(ctx, "zs1addr")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(key, "zxviews1"))
}
