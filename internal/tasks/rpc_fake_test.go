package tasks

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeRPCRequest struct {
	Method string            `json:"method"`
	ID     json.RawMessage   `json:"id"`
	Params []json.RawMessage `json:"params"`
}

// fakeChainServer answers just enough JSON-RPC methods (eth_gasPrice,
// eth_sendRawTransaction) for the task tests to exercise a real
// rpcclient.Client end-to-end without a live node, recording every raw
// transaction it is asked to broadcast.
type fakeChainServer struct {
	*httptest.Server
	raws     []string
	sendFail string // non-empty rejects eth_sendRawTransaction with this message
	// sendFailTimes caps how many sends sendFail applies to; 0 means every
	// send is rejected for as long as sendFail is set, matching the
	// original zero-value behavior.
	sendFailTimes int
}

func newFakeChainServer(t *testing.T) *fakeChainServer {
	t.Helper()
	s := &fakeChainServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req fakeRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode rpc request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "eth_gasPrice":
			json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "0x3b9aca00"})
		case "eth_sendRawTransaction":
			var raw string
			if len(req.Params) > 0 {
				json.Unmarshal(req.Params[0], &raw)
			}
			s.raws = append(s.raws, strings.TrimPrefix(raw, "0x"))
			reject := s.sendFail != "" && (s.sendFailTimes <= 0 || len(s.raws) <= s.sendFailTimes)
			if reject {
				json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": -32000, "message": s.sendFail}})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "0x" + strings.Repeat("ab", 32)})
		default:
			json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": -32601, "message": "method not found: " + req.Method}})
		}
	}))
	return s
}
