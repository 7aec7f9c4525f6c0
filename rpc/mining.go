package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"powledger/core"
	"powledger/logger"
	"powledger/metrics"

	"github.com/holiman/uint256"
)

type MiningAPI struct {
	miner      *core.Miner
	difficulty uint256.Int
	timeout    time.Duration
}

type submitRequest struct {
	Payload    string `json:"payload"`
	Difficulty string `json:"difficulty,omitempty"`
}

type submitResponse struct {
	Block *core.Block `json:"block"`
	Error string      `json:"error,omitempty"`
}

// NewMiningAPI serves block submissions. Requests that omit a difficulty use
// defaultDifficulty; a zero timeout waits for as long as the client does.
func NewMiningAPI(miner *core.Miner, defaultDifficulty uint256.Int, timeout time.Duration) *MiningAPI {
	return &MiningAPI{
		miner:      miner,
		difficulty: defaultDifficulty,
		timeout:    timeout,
	}
}

func (api *MiningAPI) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "GET, POST, OPTIONS")

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	difficulty := api.difficulty
	if req.Difficulty != "" {
		d, err := core.ParseDifficulty(req.Difficulty)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		difficulty = d
	}

	ctx := r.Context()
	if api.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, api.timeout)
		defer cancel()
	}

	block, err := api.miner.Submit(ctx, []byte(req.Payload), difficulty)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, submitResponse{Block: &block})
	case errors.Is(err, core.ErrNonceSpaceExhausted):
		writeJSON(w, http.StatusUnprocessableEntity, submitResponse{Block: &block, Error: err.Error()})
	case errors.Is(err, core.ErrMinerStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, core.ErrDifficultyTooLarge):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		logger.Warningf("RPC: block submission failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (api *MiningAPI) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "GET, OPTIONS")
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	stats := metrics.GetMetrics().ToMap()
	var length int
	api.miner.View(func(bc *core.Blockchain) { length = bc.Len() })
	stats["chain_length"] = length
	stats["miner_running"] = api.miner.IsRunning()
	stats["difficulty"] = core.FormatDifficulty(&api.difficulty)
	writeJSON(w, http.StatusOK, stats)
}
