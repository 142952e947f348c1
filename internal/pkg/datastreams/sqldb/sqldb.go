// Package sqldb records completed simulation results in MySQL.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/unplab/unp_core/internal/pkg/msg"
	"github.com/unplab/unp_core/internal/pkg/simulator"
)

type Handler struct {
	mux    *sync.Mutex
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config config
	stop   chan bool
}

type config struct {
	Server   string `json:"Server"`
	Port     int    `json:"Port"`
	Username string `json:"Username"`
	Password string `json:"Password"`
	Database string `json:"Database"`
}

// New subscribes a handler to the system's result stream.
func New(configPath string, system msg.Publisher) (Handler, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Handler{}, err
	}
	cfg := config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Handler{}, err
	}

	pid, err := uuid.NewUUID()
	if err != nil {
		return Handler{}, err
	}

	inbox, err := system.Subscribe(pid, msg.Result)
	if err != nil {
		return Handler{}, err
	}

	return Handler{
		mux:    &sync.Mutex{},
		inbox:  inbox,
		pid:    pid,
		config: cfg,
		stop:   make(chan bool, 1),
	}, nil
}

// PID returns the handler's PID.
func (h Handler) PID() uuid.UUID { return h.pid }

// Stop terminates the Process loop. The stop channel is buffered, so
// stopping a handler whose Process already exited does not block.
func (h *Handler) Stop() {
	h.stop <- true
}

// DB opens the configured MySQL database.
func (h Handler) DB() (*sql.DB, error) {
	uri := fmt.Sprintf("%v:%v@tcp(%v:%v)/%v",
		h.config.Username, h.config.Password, h.config.Server, h.config.Port, h.config.Database)
	return sql.Open("mysql", uri)
}

// Process drains the result stream into the results table.
func (h Handler) Process() {
	db, err := h.DB()
	if err != nil {
		log.Println("[SQL] open:", err)
		return
	}
	defer db.Close()

	if err := initTables(db); err != nil {
		log.Println("[SQL] init:", err)
		return
	}

loop:
	for {
		select {
		case m, ok := <-h.inbox:
			if !ok {
				break loop
			}
			res, ok := m.Payload().(simulator.Result)
			if !ok {
				continue
			}
			h.insert(db, res)
		case <-h.stop:
			break loop
		}
	}
	log.Println("[SQL] Process Shutdown")
}

func (h Handler) insert(db *sql.DB, res simulator.Result) {
	payload, err := json.Marshal(res)
	if err != nil {
		log.Println("[SQL] marshal:", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = db.ExecContext(ctx,
		`INSERT INTO simulation_results (fingerprint, scenario, mode, success, payload)
		 VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE scenario=VALUES(scenario), mode=VALUES(mode),
		 success=VALUES(success), payload=VALUES(payload)`,
		res.Fingerprint, res.Scenario, string(res.Mode), res.Success, payload)
	if err != nil {
		log.Println("[SQL] insert:", err)
	}
}

func initTables(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS simulation_results(
		fingerprint VARCHAR(64) PRIMARY KEY,
		scenario VARCHAR(255),
		mode VARCHAR(16),
		success BOOL,
		payload JSON,
		created TIMESTAMP DEFAULT CURRENT_TIMESTAMP)`)
	return err
}
