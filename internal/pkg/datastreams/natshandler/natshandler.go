// Package natshandler forwards completed simulation results to a NATS
// subject per scenario.
package natshandler

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	nats "github.com/nats-io/nats.go"

	"github.com/unplab/unp_core/internal/pkg/msg"
	"github.com/unplab/unp_core/internal/pkg/simulator"
)

const subjectPrefix = "unp.result."

type Handler struct {
	mux    *sync.Mutex
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config config
	stop   chan bool
}

type config struct {
	Server string `json:"Server"`
}

// New subscribes a handler to the system's result stream.
func New(configPath string, system msg.Publisher) (Handler, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Handler{}, err
	}
	cfg := config{Server: nats.DefaultURL}
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

// Process publishes each result as JSON on unp.result.<scenario>.
func (h Handler) Process() {
	log.Println("[NATS client] Process Started")
	nc, err := nats.Connect(h.config.Server)
	if err != nil {
		log.Println("[NATS client] connect:", err)
		return
	}
	defer nc.Close()

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
			data, err := json.Marshal(res)
			if err != nil {
				continue
			}
			if err := nc.Publish(subjectPrefix+sanitize(res.Scenario), data); err != nil {
				log.Printf("[NATS client] unable to publish: %v", err)
			}
		case <-h.stop:
			break loop
		}
	}
	log.Println("[NATS client] Process Shutdown")
}

// sanitize maps a scenario name onto valid NATS subject tokens.
func sanitize(name string) string {
	r := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_")
	return r.Replace(name)
}
