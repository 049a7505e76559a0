// Package httpapi is the Executor's HTTP receiver: the Discoverer posts the
// planted-farmers notification here, bearer-token authenticated, built on
// julienschmidt/httprouter with rs/cors wrapping the mux.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/klaytn/kale-pool/internal/log"
)

var logger = log.NewModuleLogger(log.HTTPAPI)

// PlantedFarmer is one entry of the notification payload. It omits the
// custodial secret key; the Executor reloads and decrypts it from storage.
type PlantedFarmer struct {
	FarmerID        string `json:"farmerId"`
	CustodialWallet string `json:"custodialWallet"`
	StakeAmount     string `json:"stakeAmount"`
	PlantingTime    string `json:"plantingTime"`
}

// PlantedFarmersNotification is the full request body.
type PlantedFarmersNotification struct {
	BlockIndex     int64           `json:"blockIndex"`
	Entropy        string          `json:"entropy"`
	BlockTimestamp int64           `json:"blockTimestamp"`
	PlantedFarmers []PlantedFarmer `json:"plantedFarmers"`
}

// Handler is implemented by the Executor to accept a validated
// notification; it returns the count scheduled.
type Handler interface {
	HandlePlantedFarmers(n PlantedFarmersNotification) (scheduled int, err error)
}

// Server wraps an httprouter.Router with bearer auth and CORS.
type Server struct {
	router      *httprouter.Router
	corsHandler http.Handler
	bearerToken string
}

// New builds a Server that dispatches validated notifications to handler.
func New(handler Handler, bearerToken string) *Server {
	s := &Server{router: httprouter.New(), bearerToken: bearerToken}
	s.router.POST("/backend/planted-farmers", s.authenticated(s.handlePlantedFarmers(handler)))
	s.corsHandler = cors.Default().Handler(s.router)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.corsHandler.ServeHTTP(w, r)
}

func (s *Server) authenticated(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) || strings.TrimPrefix(auth, prefix) != s.bearerToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, ps)
	}
}

func (s *Server) handlePlantedFarmers(handler Handler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var n PlantedFarmersNotification
		if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
			writeError(w, http.StatusBadRequest, "malformed body")
			return
		}
		if n.BlockIndex <= 0 || len(n.PlantedFarmers) == 0 {
			writeError(w, http.StatusBadRequest, "missing blockIndex or plantedFarmers")
			return
		}

		scheduled, err := handler.HandlePlantedFarmers(n)
		if err != nil {
			logger.Error("failed to handle planted-farmers notification", "block", n.BlockIndex, "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":          true,
			"farmersScheduled": scheduled,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ListenAndServe runs the server with sane timeouts, blocking until the
// listener errors or is closed.
func ListenAndServe(addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
