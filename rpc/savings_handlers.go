package rpc

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"stashbox/crypto"
	nativecommon "stashbox/native/common"
	"stashbox/native/liquidity"
	"stashbox/native/savings"
)

type savingsCreateJarParams struct {
	Owner        string `json:"owner"`
	Name         string `json:"name"`
	TargetAmount string `json:"targetAmount,omitempty"`
}

type savingsAmountParams struct {
	Owner  string `json:"owner"`
	JarID  uint64 `json:"jarId"`
	Amount string `json:"amount"`
}

type savingsJarRefParams struct {
	Owner string `json:"owner"`
	JarID uint64 `json:"jarId"`
}

type savingsRebalanceParams struct {
	Caller   string `json:"caller"`
	NewLower int32  `json:"newLower"`
	NewUpper int32  `json:"newUpper"`
}

type savingsJarResult struct {
	Owner              string `json:"owner"`
	JarID              uint64 `json:"jarId"`
	Name               string `json:"name"`
	TargetAmount       string `json:"targetAmount"`
	Shares             string `json:"shares"`
	PrincipalDeposited string `json:"principalDeposited"`
	PendingYield       string `json:"pendingYield,omitempty"`
	Active             bool   `json:"active"`
}

type savingsDepositResult struct {
	JarID        uint64 `json:"jarId"`
	SharesMinted string `json:"sharesMinted"`
}

type savingsAmountResult struct {
	Amount string `json:"amount"`
}

type savingsPositionResult struct {
	LowerBound int32  `json:"lowerBound"`
	UpperBound int32  `json:"upperBound"`
	Liquidity  string `json:"liquidity"`
}

type savingsPoolResult struct {
	TotalShares         string                 `json:"totalShares"`
	TotalPrincipal      string                 `json:"totalPrincipal"`
	AccYieldPerShare    string                 `json:"accYieldPerShare"`
	TotalYieldCollected string                 `json:"totalYieldCollected"`
	UndistributedYield  string                 `json:"undistributedYield"`
	Admin               string                 `json:"admin"`
	Position            *savingsPositionResult `json:"position,omitempty"`
}

func (s *Server) handleSavingsCreateJar(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input savingsCreateJarParams
	if !decodeSingleParam(w, req, &input) {
		return
	}
	owner, err := decodeBech32(input.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
		return
	}
	target := big.NewInt(0)
	if strings.TrimSpace(input.TargetAmount) != "" {
		target, err = parseAmount(input.TargetAmount)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid targetAmount", err.Error())
			return
		}
	}
	jar, err := s.engine.CreateJar(savings.CallContext{Caller: owner}, input.Name, target)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, jarToResult(jar, nil))
}

func (s *Server) handleSavingsDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	owner, id, amount, ok := decodeAmountParams(w, req)
	if !ok {
		return
	}
	minted, err := s.engine.Deposit(savings.CallContext{Caller: owner}, owner, id, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, savingsDepositResult{JarID: id, SharesMinted: minted.String()})
}

func (s *Server) handleSavingsWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	owner, id, amount, ok := decodeAmountParams(w, req)
	if !ok {
		return
	}
	if err := s.engine.Withdraw(savings.CallContext{Caller: owner}, owner, id, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, savingsAmountResult{Amount: amount.String()})
}

func (s *Server) handleSavingsClaimYield(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	owner, id, ok := decodeJarRefParams(w, req)
	if !ok {
		return
	}
	claimed, err := s.engine.ClaimYield(savings.CallContext{Caller: owner}, owner, id)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, savingsAmountResult{Amount: claimed.String()})
}

func (s *Server) handleSavingsEmergencyWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	owner, id, ok := decodeJarRefParams(w, req)
	if !ok {
		return
	}
	exited, err := s.engine.EmergencyWithdraw(savings.CallContext{Caller: owner}, owner, id)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, savingsAmountResult{Amount: exited.String()})
}

func (s *Server) handleSavingsRebalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input savingsRebalanceParams
	if !decodeSingleParam(w, req, &input) {
		return
	}
	caller, err := decodeBech32(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	if err := s.engine.Rebalance(savings.CallContext{Caller: caller}, input.NewLower, input.NewUpper); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	pos, err := s.engine.Position()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, positionToResult(pos))
}

func (s *Server) handleSavingsGetJar(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	owner, id, ok := decodeJarRefParams(w, req)
	if !ok {
		return
	}
	jar, err := s.engine.Jar(owner, id)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	pending, err := s.engine.PendingYield(owner, id)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, jarToResult(jar, pending))
}

func (s *Server) handleSavingsListJars(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input struct {
		Owner string `json:"owner"`
	}
	if !decodeSingleParam(w, req, &input) {
		return
	}
	owner, err := decodeBech32(input.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
		return
	}
	jars, err := s.engine.Jars(owner)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	results := make([]savingsJarResult, 0, len(jars))
	for _, jar := range jars {
		results = append(results, jarToResult(jar, nil))
	}
	writeResult(w, req.ID, results)
}

func (s *Server) handleSavingsPendingYield(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	owner, id, ok := decodeJarRefParams(w, req)
	if !ok {
		return
	}
	pending, err := s.engine.PendingYield(owner, id)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, savingsAmountResult{Amount: pending.String()})
}

func (s *Server) handleSavingsGetPool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	pool, err := s.engine.PoolState()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	pos, err := s.engine.Position()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	result := savingsPoolResult{
		TotalShares:         pool.TotalShares.String(),
		TotalPrincipal:      pool.TotalPrincipal.String(),
		AccYieldPerShare:    pool.AccYieldPerShare.String(),
		TotalYieldCollected: pool.TotalYieldCollected.String(),
		UndistributedYield:  pool.UndistributedYield.String(),
		Admin:               pool.Admin.String(),
	}
	if pos != nil {
		result.Position = positionToResult(pos)
	}
	writeResult(w, req.ID, result)
}

func decodeSingleParam(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}

func decodeAmountParams(w http.ResponseWriter, req *RPCRequest) (crypto.Address, uint64, *big.Int, bool) {
	var input savingsAmountParams
	if !decodeSingleParam(w, req, &input) {
		return crypto.Address{}, 0, nil, false
	}
	owner, err := decodeBech32(input.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
		return crypto.Address{}, 0, nil, false
	}
	amount, err := parseAmount(input.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return crypto.Address{}, 0, nil, false
	}
	return owner, input.JarID, amount, true
}

func decodeJarRefParams(w http.ResponseWriter, req *RPCRequest) (crypto.Address, uint64, bool) {
	var input savingsJarRefParams
	if !decodeSingleParam(w, req, &input) {
		return crypto.Address{}, 0, false
	}
	owner, err := decodeBech32(input.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
		return crypto.Address{}, 0, false
	}
	return owner, input.JarID, true
}

func decodeBech32(value string) (crypto.Address, error) {
	return crypto.DecodeAddress(strings.TrimSpace(value))
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, errors.New("amount must be a base-10 integer")
	}
	if amount.Sign() < 0 {
		return nil, errors.New("amount must not be negative")
	}
	return amount, nil
}

func jarToResult(jar *savings.Jar, pending *big.Int) savingsJarResult {
	result := savingsJarResult{
		Owner:              jar.Owner.String(),
		JarID:              jar.ID,
		Name:               jar.Name,
		TargetAmount:       jar.TargetAmount.String(),
		Shares:             jar.Shares.String(),
		PrincipalDeposited: jar.PrincipalDeposited.String(),
		Active:             jar.Active,
	}
	if pending != nil {
		result.PendingYield = pending.String()
	}
	return result
}

func positionToResult(pos *liquidity.Position) *savingsPositionResult {
	return &savingsPositionResult{
		LowerBound: pos.LowerBound,
		UpperBound: pos.UpperBound,
		Liquidity:  pos.Liquidity.String(),
	}
}

// writeEngineError translates engine failures into JSON-RPC error responses.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, savings.ErrJarNotFound):
		writeError(w, http.StatusNotFound, id, codeServerError, err.Error(), nil)
	case errors.Is(err, savings.ErrUnauthorized), errors.Is(err, savings.ErrNotAdmin):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, savings.ErrInvalidAmount),
		errors.Is(err, savings.ErrAmountTooSmall),
		errors.Is(err, savings.ErrInvalidName),
		errors.Is(err, savings.ErrInvalidTarget),
		errors.Is(err, savings.ErrInvalidBounds):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, savings.ErrJarInactive),
		errors.Is(err, savings.ErrInsufficientFunds),
		errors.Is(err, savings.ErrInsufficientBalance),
		errors.Is(err, savings.ErrNoPendingYield),
		errors.Is(err, savings.ErrNothingToExit),
		errors.Is(err, liquidity.ErrExceedsLiquidity):
		writeError(w, http.StatusConflict, id, codeServerError, err.Error(), nil)
	case errors.Is(err, nativecommon.ErrModulePaused):
		writeError(w, http.StatusServiceUnavailable, id, codeServerError, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, err.Error(), nil)
	}
}
