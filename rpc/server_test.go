package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"powledger/core"
	"powledger/crypto"
	"powledger/logger"
)

const easyDifficulty = "0x00ffffffffffffffffffffffffffffff"

func TestMain(m *testing.M) {
	logger.SetLevel(logger.ERROR)
	os.Exit(m.Run())
}

type blockBody struct {
	Index         uint64 `json:"index"`
	Hash          string `json:"hash"`
	PrevBlockHash string `json:"prevBlockHash"`
	Nonce         uint64 `json:"nonce"`
	Payload       string `json:"payload"`
	Difficulty    string `json:"difficulty"`
}

func newTestServer(t *testing.T, blocks int) (*Server, *core.Miner) {
	t.Helper()
	d, err := core.ParseDifficulty(easyDifficulty)
	if err != nil {
		t.Fatal(err)
	}
	var ts uint64
	bc := core.NewBlockchain(&core.Config{Clock: func() uint64 { ts++; return ts }})
	for i := 0; i < blocks; i++ {
		if _, err := bc.AddBlock([]byte{'a' + byte(i)}, d); err != nil {
			t.Fatal(err)
		}
	}
	miner := core.NewMiner(bc, 4)
	miner.Start()
	srv := NewServer(&Config{Host: "127.0.0.1", Port: 0, Difficulty: d, SubmitTimeout: 10 * time.Second}, miner)
	t.Cleanup(func() {
		srv.Stop()
		miner.Stop()
	})
	return srv, miner
}

func do(t *testing.T, srv *Server, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	rec := do(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestListAndGetBlocks(t *testing.T) {
	srv, _ := newTestServer(t, 3)

	rec := do(t, srv, http.MethodGet, "/api/blocks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/blocks = %d", rec.Code)
	}
	var blocks []blockBody
	if err := json.Unmarshal(rec.Body.Bytes(), &blocks); err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 3 || blocks[1].PrevBlockHash != blocks[0].Hash {
		t.Fatalf("unexpected blocks %+v", blocks)
	}
	if blocks[2].Payload != "c" || blocks[2].Difficulty != easyDifficulty {
		t.Fatalf("block 2 = %+v", blocks[2])
	}

	rec = do(t, srv, http.MethodGet, "/api/blocks/1", "")
	var one blockBody
	if err := json.Unmarshal(rec.Body.Bytes(), &one); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || one.Hash != blocks[1].Hash {
		t.Fatalf("GET /api/blocks/1 = %d %+v", rec.Code, one)
	}

	if rec := do(t, srv, http.MethodGet, "/api/blocks/7", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing block = %d, want 404", rec.Code)
	}
}

func TestGetBlockByHashUsesCache(t *testing.T) {
	srv, _ := newTestServer(t, 2)

	var blocks []blockBody
	json.Unmarshal(do(t, srv, http.MethodGet, "/api/blocks", "").Body.Bytes(), &blocks)

	for i := 0; i < 2; i++ {
		rec := do(t, srv, http.MethodGet, "/api/blocks/hash/"+blocks[1].Hash, "")
		var got blockBody
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if rec.Code != http.StatusOK || got.Index != 1 {
			t.Fatalf("lookup %d = %d %+v", i, rec.Code, got)
		}
	}
	if _, ok := srv.hashIndex.Get(blocks[1].Hash); !ok {
		t.Fatal("hash index not cached")
	}

	if rec := do(t, srv, http.MethodGet, "/api/blocks/hash/0x1234", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("short hash = %d, want 400", rec.Code)
	}
	unknown := crypto.Hex([32]byte{1})
	if rec := do(t, srv, http.MethodGet, "/api/blocks/hash/"+unknown, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown hash = %d, want 404", rec.Code)
	}
}

func TestSubmitBlock(t *testing.T) {
	srv, miner := newTestServer(t, 1)

	rec := do(t, srv, http.MethodPost, "/api/blocks", `{"payload":"hello"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/blocks = %d %s", rec.Code, rec.Body.String())
	}
	var res struct {
		Block blockBody `json:"block"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Block.Index != 1 || res.Block.Payload != "hello" {
		t.Fatalf("submitted block = %+v", res.Block)
	}

	var valid bool
	miner.View(func(bc *core.Blockchain) { valid = bc.Verify() })
	if !valid {
		t.Fatal("chain invalid after submit")
	}
}

func TestSubmitExhausted(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	rec := do(t, srv, http.MethodPost, "/api/blocks", `{"payload":"x","difficulty":"0"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("zero difficulty = %d, want 422", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/api/verify", "")
	var v verifyResult
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	if v.Valid || v.Length != 1 || v.Error == "" {
		t.Fatalf("verify after exhaustion = %+v", v)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	if rec := do(t, srv, http.MethodPost, "/api/blocks", `{`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json = %d", rec.Code)
	}
	big := `{"payload":"x","difficulty":"0x100000000000000000000000000000000"}`
	if rec := do(t, srv, http.MethodPost, "/api/blocks", big); rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized difficulty = %d", rec.Code)
	}
}

func TestSubmitMinerStopped(t *testing.T) {
	srv, miner := newTestServer(t, 0)
	miner.Stop()
	if rec := do(t, srv, http.MethodPost, "/api/blocks", `{"payload":"x"}`); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("stopped miner = %d, want 503", rec.Code)
	}
}

func TestVerifyAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, 2)

	var v verifyResult
	json.Unmarshal(do(t, srv, http.MethodGet, "/api/verify", "").Body.Bytes(), &v)
	if !v.Valid || v.Length != 2 {
		t.Fatalf("verify = %+v", v)
	}

	var m map[string]interface{}
	rec := do(t, srv, http.MethodGet, "/api/metrics", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatal(err)
	}
	if m["chain_length"].(float64) != 2 || m["miner_running"] != true {
		t.Fatalf("metrics = %v", m)
	}
}

func rpcCall(t *testing.T, srv *Server, method string, params ...interface{}) JSONRPCResponse {
	t.Helper()
	body, _ := json.Marshal(JSONRPCRequest{ID: 1, Method: method, Params: params, Version: "2.0"})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var res JSONRPCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	return res
}

func TestJSONRPC(t *testing.T) {
	srv, _ := newTestServer(t, 3)

	if res := rpcCall(t, srv, "ledger_blockNumber"); res.Result != "0x2" {
		t.Fatalf("ledger_blockNumber = %v", res.Result)
	}

	res := rpcCall(t, srv, "ledger_getBlockByNumber", "0x1")
	block, ok := res.Result.(map[string]interface{})
	if !ok || block["payload"] != "b" {
		t.Fatalf("ledger_getBlockByNumber = %+v", res)
	}

	res = rpcCall(t, srv, "ledger_getBlockByHash", block["hash"])
	if got, ok := res.Result.(map[string]interface{}); !ok || got["index"].(float64) != 1 {
		t.Fatalf("ledger_getBlockByHash = %+v", res)
	}

	res = rpcCall(t, srv, "ledger_verify")
	if got, ok := res.Result.(map[string]interface{}); !ok || got["valid"] != true {
		t.Fatalf("ledger_verify = %+v", res)
	}

	if res := rpcCall(t, srv, "ledger_getBlockByNumber", 5); res.Error == nil || res.Error.Code != codeInvalidParams {
		t.Fatalf("invalid params = %+v", res)
	}
	if res := rpcCall(t, srv, "eth_chainId"); res.Error == nil || res.Error.Code != codeMethodNotFound {
		t.Fatalf("unknown method = %+v", res)
	}
}

func TestSubmitTimesOut(t *testing.T) {
	d, _ := core.ParseDifficulty(easyDifficulty)
	miner := core.NewMiner(core.NewBlockchain(nil), 1)
	miner.Start()
	srv := NewServer(&Config{Difficulty: d, SubmitTimeout: 50 * time.Millisecond}, miner)
	defer func() {
		srv.Stop()
		miner.Stop()
	}()

	start := time.Now()
	rec := do(t, srv, http.MethodPost, "/api/blocks", `{"payload":"x","difficulty":"1"}`)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("hard submit = %d, want 504", rec.Code)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("submit took %v despite a 50ms timeout", elapsed)
	}

	var v verifyResult
	json.Unmarshal(do(t, srv, http.MethodGet, "/api/verify", "").Body.Bytes(), &v)
	if v.Length != 0 {
		t.Fatalf("timed out submit appended a block: %+v", v)
	}
}
