// Package httpapi exposes the ledger's read model and report intake over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/yourorg/carbledger/pkg/access"
	"github.com/yourorg/carbledger/pkg/allowance"
	"github.com/yourorg/carbledger/pkg/certificate"
	"github.com/yourorg/carbledger/pkg/ranking"
	"github.com/yourorg/carbledger/pkg/registry"
	"github.com/yourorg/carbledger/pkg/token"
)

// Server wires the HTTP handlers to the ledger components. All mutating
// routes act as the configured operator identity; the HTTP surface is a
// trusted-operator front, not a wallet-auth gateway.
type Server struct {
	ledger   *allowance.Ledger
	reg      *registry.Registry
	tok      *token.Token
	certs    *certificate.Store
	operator common.Address
	log      zerolog.Logger

	engine *ranking.Engine
	admin  common.Address
}

func NewServer(ledger *allowance.Ledger, reg *registry.Registry, tok *token.Token, certs *certificate.Store, operator common.Address, log zerolog.Logger) *Server {
	return &Server{ledger: ledger, reg: reg, tok: tok, certs: certs, operator: operator, log: log}
}

// WithRanking mounts the round administration routes. Round operations run
// under the admin identity; the operator must hold the round submission role
// for the data route.
func (s *Server) WithRanking(engine *ranking.Engine, admin common.Address) *Server {
	s.engine = engine
	s.admin = admin
	return s
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods("GET")
	r.HandleFunc("/api/v1/companies/{wallet}", s.companyStats).Methods("GET")
	r.HandleFunc("/api/v1/devices/{id}", s.deviceData).Methods("GET")
	r.HandleFunc("/api/v1/vehicles/{id}", s.vehicleData).Methods("GET")
	r.HandleFunc("/api/v1/balances/{wallet}", s.balance).Methods("GET")
	r.HandleFunc("/api/v1/certificates/{wallet}", s.certificates).Methods("GET")
	r.HandleFunc("/api/v1/reports", s.submitReport).Methods("POST")
	r.HandleFunc("/api/v1/companies/{wallet}/settlement", s.settle).Methods("POST")

	if s.engine != nil {
		r.HandleFunc("/api/v1/rounds", s.openRound).Methods("POST")
		r.HandleFunc("/api/v1/rounds", s.resetRound).Methods("DELETE")
		r.HandleFunc("/api/v1/rounds/data", s.roundData).Methods("POST")
		r.HandleFunc("/api/v1/rounds/savings", s.roundSavings).Methods("POST")
	}

	return r
}

// Listen returns a ready-to-run HTTP server with the usual timeouts.
func (s *Server) Listen(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

/* ---------------- handlers ---------------- */

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) companyStats(w http.ResponseWriter, r *http.Request) {
	wallet := common.HexToAddress(mux.Vars(r)["wallet"])
	stats, err := s.ledger.CompanyStats(wallet)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) deviceData(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, allowance.ErrInvalidAmount)
		return
	}
	dev, err := s.reg.DeviceData(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func (s *Server) vehicleData(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, allowance.ErrInvalidAmount)
		return
	}
	v, err := s.reg.VehicleData(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	wallet := common.HexToAddress(mux.Vars(r)["wallet"])
	writeJSON(w, http.StatusOK, map[string]string{
		"wallet":  wallet.Hex(),
		"balance": s.tok.BalanceOf(wallet).String(),
	})
}

func (s *Server) certificates(w http.ResponseWriter, r *http.Request) {
	wallet := common.HexToAddress(mux.Vars(r)["wallet"])
	ids := s.certs.TokensOfOwner(wallet)
	out := make([]certPayload, 0, len(ids))
	for _, id := range ids {
		data, err := s.certs.GetData(id)
		if err != nil {
			continue
		}
		out = append(out, certPayload{TokenID: id, Payload: data})
	}
	writeJSON(w, http.StatusOK, out)
}

type certPayload struct {
	TokenID uint64              `json:"tokenId"`
	Payload certificate.Payload `json:"payload"`
}

type reportRequest struct {
	DeviceID   uint64 `json:"deviceId"`
	Company    string `json:"company"`
	TrackedCO2 string `json:"trackedCo2"`
}

func (s *Server) submitReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	co2, ok := new(big.Int).SetString(req.TrackedCO2, 10)
	if !ok {
		http.Error(w, "trackedCo2 must be a decimal integer", http.StatusBadRequest)
		return
	}
	company := common.HexToAddress(req.Company)
	if err := s.ledger.EmissionReport(s.operator, req.DeviceID, company, co2); err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info().Uint64("device", req.DeviceID).Str("company", company.Hex()).Msg("report staged")
	writeJSON(w, http.StatusAccepted, map[string]any{
		"deviceId": req.DeviceID,
		"company":  company.Hex(),
		"staged":   true,
	})
}

func (s *Server) settle(w http.ResponseWriter, r *http.Request) {
	wallet := common.HexToAddress(mux.Vars(r)["wallet"])
	res, err := s.ledger.CheckAllowance(s.operator, wallet)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"company": res.Company.Hex(),
		"savings": res.Savings.String(),
		"deficit": res.Deficit.String(),
		"success": res.Success,
	})
}

/* ---------------- rounds ---------------- */

func (s *Server) openRound(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TotalCompanies int `json:"totalCompanies"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	if err := s.engine.SetTotalCompanies(s.admin, req.TotalCompanies); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"totalCompanies": req.TotalCompanies})
}

func (s *Server) resetRound(w http.ResponseWriter, _ *http.Request) {
	if err := s.engine.ResetRound(s.admin); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"round": "reset"})
}

func (s *Server) roundData(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Company  string `json:"company"`
		CO2      string `json:"co2"`
		Distance string `json:"distance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	co2, ok1 := new(big.Int).SetString(req.CO2, 10)
	dist, ok2 := new(big.Int).SetString(req.Distance, 10)
	if !ok1 || !ok2 {
		http.Error(w, "co2 and distance must be decimal integers", http.StatusBadRequest)
		return
	}
	last, err := s.engine.ReceiveData(s.operator, common.HexToAddress(req.Company), co2, dist)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"lastCompany": last,
		"reports":     s.engine.ReportCount(),
	})
}

func (s *Server) roundSavings(w http.ResponseWriter, _ *http.Request) {
	if _, err := s.engine.CalculateRanking(s.admin); err != nil {
		s.writeError(w, err)
		return
	}
	out, err := s.engine.CalcCO2Savings(s.admin)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := make([]map[string]any, 0, len(out))
	for _, sv := range out {
		resp = append(resp, map[string]any{
			"company": sv.Company.Hex(),
			"savings": sv.Amount.String(),
			"minted":  sv.Minted,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"avgCo2PerKm": s.engine.AvgCO2PerKm().String(),
		"companies":   resp,
	})
}

/* ---------------- plumbing ---------------- */

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the component sentinels onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, access.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, allowance.ErrUnknownEntity), errors.Is(err, registry.ErrUnknownEntity), errors.Is(err, certificate.ErrUnknownEntity):
		status = http.StatusNotFound
	case errors.Is(err, allowance.ErrDuplicateEntity), errors.Is(err, registry.ErrDuplicateEntity):
		status = http.StatusConflict
	case errors.Is(err, allowance.ErrNoPendingReport), errors.Is(err, token.ErrInsufficientBalance):
		status = http.StatusConflict
	case errors.Is(err, allowance.ErrOwnershipMismatch):
		status = http.StatusForbidden
	case errors.Is(err, allowance.ErrInvalidAmount), errors.Is(err, ranking.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, ranking.ErrDuplicateSubmission):
		status = http.StatusConflict
	case errors.Is(err, ranking.ErrRoundClosed), errors.Is(err, ranking.ErrRoundNotClosed),
		errors.Is(err, ranking.ErrRoundConsumed), errors.Is(err, ranking.ErrRoundInProgress):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
