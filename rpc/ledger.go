package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"powledger/cache"
	"powledger/core"
	"powledger/crypto"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
)

var errInvalidParams = errors.New("invalid params")

// LedgerAPI serves read-only views of the chain.
type LedgerAPI struct {
	miner     *core.Miner
	hashIndex *cache.Cache[string, uint64]
	ttl       time.Duration
}

func NewLedgerAPI(miner *core.Miner, hashIndex *cache.Cache[string, uint64], ttl time.Duration) *LedgerAPI {
	return &LedgerAPI{miner: miner, hashIndex: hashIndex, ttl: ttl}
}

type verifyResult struct {
	Valid  bool   `json:"valid"`
	Length int    `json:"length"`
	Error  string `json:"error,omitempty"`
}

func (api *LedgerAPI) BlocksHandler(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "GET, POST, OPTIONS")
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var blocks []core.Block
	api.miner.View(func(bc *core.Blockchain) { blocks = bc.Blocks() })

	out := make([]*core.Block, len(blocks))
	for i := range blocks {
		out[i] = &blocks[i]
	}
	writeJSON(w, http.StatusOK, out)
}

func (api *LedgerAPI) BlockByIndexHandler(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "GET, OPTIONS")
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	index, err := strconv.ParseUint(mux.Vars(r)["index"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid block index")
		return
	}
	block, ok := api.byIndex(index)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("block %d not found", index))
		return
	}
	writeJSON(w, http.StatusOK, &block)
}

func (api *LedgerAPI) BlockByHashHandler(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "GET, OPTIONS")
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	hash, err := crypto.ParseHash(mux.Vars(r)["hash"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	block, ok := api.byHash(hash)
	if !ok {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	writeJSON(w, http.StatusOK, &block)
}

func (api *LedgerAPI) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "GET, OPTIONS")
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, api.verify())
}

func (api *LedgerAPI) byIndex(index uint64) (block core.Block, ok bool) {
	api.miner.View(func(bc *core.Blockchain) { block, ok = bc.GetBlockByIndex(index) })
	return block, ok
}

// byHash resolves through the hash→index cache. Stored blocks never change,
// so a cached index stays correct for the life of the chain.
func (api *LedgerAPI) byHash(hash [32]byte) (core.Block, bool) {
	key := crypto.Hex(hash)
	if index, found := api.hashIndex.Get(key); found {
		if block, ok := api.byIndex(index); ok && block.Hash == hash {
			return block, true
		}
		api.hashIndex.Delete(key)
	}

	var (
		block core.Block
		ok    bool
	)
	api.miner.View(func(bc *core.Blockchain) { block, ok = bc.GetBlockByHash(hash) })
	if ok {
		api.hashIndex.Set(key, block.Index, api.ttl)
	}
	return block, ok
}

func (api *LedgerAPI) verify() verifyResult {
	var (
		err    error
		length int
	)
	api.miner.View(func(bc *core.Blockchain) {
		err = bc.Validate()
		length = bc.Len()
	})
	res := verifyResult{Valid: err == nil, Length: length}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func (api *LedgerAPI) blockNumber() (interface{}, error) {
	var (
		block core.Block
		ok    bool
	)
	api.miner.View(func(bc *core.Blockchain) { block, ok = bc.CurrentBlock() })
	if !ok {
		return nil, nil
	}
	return hexutil.EncodeUint64(block.Index), nil
}

func (api *LedgerAPI) getBlockByNumber(params []interface{}) (interface{}, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("%w: missing block number", errInvalidParams)
	}
	arg, ok := params[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: block number must be a string", errInvalidParams)
	}

	var (
		block core.Block
		found bool
	)
	if strings.EqualFold(arg, "latest") {
		api.miner.View(func(bc *core.Blockchain) { block, found = bc.CurrentBlock() })
	} else {
		index, err := hexutil.DecodeUint64(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errInvalidParams, err)
		}
		block, found = api.byIndex(index)
	}
	if !found {
		return nil, nil
	}
	return &block, nil
}

func (api *LedgerAPI) getBlockByHash(params []interface{}) (interface{}, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("%w: missing block hash", errInvalidParams)
	}
	arg, ok := params[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: block hash must be a string", errInvalidParams)
	}
	hash, err := crypto.ParseHash(arg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	block, found := api.byHash(hash)
	if !found {
		return nil, nil
	}
	return &block, nil
}
