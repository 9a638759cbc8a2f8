package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/synnergy-network/zkbob-cloud/internal/config"
	"github.com/synnergy-network/zkbob-cloud/internal/coordinator"
)

// Server is the HTTP control surface: a mux router with a logging
// middleware on everything and bearer-token auth on the admin
// subrouter.
type Server struct {
	coord *coordinator.Coordinator
	cfg   *config.Config
	log   *logrus.Entry
	http  *http.Server
}

func New(coord *coordinator.Coordinator, cfg *config.Config, log *logrus.Entry) *Server {
	s := &Server{coord: coord, cfg: cfg, log: log}

	r := mux.NewRouter()
	r.Use(loggingMiddleware(log))

	admin := r.NewRoute().Subrouter()
	admin.Use(adminAuth(cfg.AdminToken))
	admin.HandleFunc("/signup", s.signup).Methods(http.MethodPost)
	admin.HandleFunc("/import", s.importAccounts).Methods(http.MethodPost)
	admin.HandleFunc("/deleteAccount", s.deleteAccount).Methods(http.MethodPost)
	admin.HandleFunc("/accounts", s.listAccounts).Methods(http.MethodGet)
	admin.HandleFunc("/transactionTrace", s.transactionTrace).Methods(http.MethodGet)
	admin.HandleFunc("/export", s.exportKey).Methods(http.MethodGet)
	admin.HandleFunc("/generateReport", s.generateReport).Methods(http.MethodPost)
	admin.HandleFunc("/report", s.report).Methods(http.MethodGet)
	admin.HandleFunc("/cleanReports", s.cleanReports).Methods(http.MethodPost)

	r.HandleFunc("/account", s.account).Methods(http.MethodGet)
	r.HandleFunc("/generateAddress", s.generateAddress).Methods(http.MethodGet)
	r.HandleFunc("/history", s.history).Methods(http.MethodGet)
	r.HandleFunc("/transfer", s.transfer).Methods(http.MethodPost)
	r.HandleFunc("/transactionStatus", s.transactionStatus).Methods(http.MethodGet)
	r.HandleFunc("/calculateFee", s.calculateFee).Methods(http.MethodGet)
	r.HandleFunc("/version", s.version).Methods(http.MethodGet)
	r.HandleFunc("/", s.root).Methods(http.MethodGet)

	s.http = &http.Server{Addr: cfg.Host + ":" + strconv.Itoa(cfg.Port), Handler: r}
	return s
}

// ListenAndServe blocks serving HTTP until the server errors or ctx is
// cancelled, mirroring walletserver/main.go's http.ListenAndServe call.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.http.Shutdown(context.Background())
	}
}
