// Package mqtthandler forwards completed simulation results to an MQTT
// broker.
package mqtthandler

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/unplab/unp_core/internal/pkg/msg"
	"github.com/unplab/unp_core/internal/pkg/simulator"
)

const topicPrefix = "unp/results/"

type Handler struct {
	mux    *sync.Mutex
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config config
	stop   chan bool
}

type config struct {
	Broker   string `json:"Broker"`
	ClientID string `json:"ClientID"`
}

// New subscribes a handler to the system's result stream.
func New(configPath string, system msg.Publisher) (Handler, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Handler{}, err
	}
	cfg := config{ClientID: "unp_core"}
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

// Process publishes each result as JSON on unp/results/<scenario>.
func (h Handler) Process() {
	opts := mqtt.NewClientOptions().AddBroker(h.config.Broker).SetClientID(h.config.ClientID)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Println("[MQTT client] connect:", token.Error())
		return
	}
	defer client.Disconnect(250)

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
			topic := topicPrefix + strings.ReplaceAll(res.Scenario, " ", "_")
			if token := client.Publish(topic, 0, false, data); token.Wait() && token.Error() != nil {
				log.Println("[MQTT client] publish:", token.Error())
			}
		case <-h.stop:
			break loop
		}
	}
	log.Println("[MQTT client] Process Shutdown")
}
