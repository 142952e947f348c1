// Package mongodb persists completed simulation results to MongoDB, upserted
// by scenario fingerprint.
package mongodb

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

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
	URI        string `json:"URI"`
	Database   string `json:"Database"`
	Collection string `json:"Collection"`
}

// New subscribes a handler to the system's result stream.
func New(configPath string, system msg.Publisher) (Handler, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Handler{}, err
	}
	cfg := config{Collection: "simulationResults"}
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

// StopProcess terminates the Process loop. The stop channel is buffered, so
// stopping a handler whose Process already exited does not block.
func (h *Handler) StopProcess() {
	h.stop <- true
}

// Process drains the result stream into the configured collection.
func (h Handler) Process() {
	ctx := context.TODO()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(h.config.URI))
	if err != nil {
		log.Println("[Mongo] connect:", err)
		return
	}
	defer client.Disconnect(ctx)

	coll := client.Database(h.config.Database).Collection(h.config.Collection)
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
			opts := options.Update().SetUpsert(true)
			_, err := coll.UpdateOne(ctx,
				bson.M{"fingerprint": res.Fingerprint},
				resultToBSON(res),
				opts,
			)
			if err != nil {
				log.Println("[Mongo] upsert:", err)
			}
		case <-h.stop:
			break loop
		}
	}
	log.Println("[Mongo] Process Shutdown")
}

func resultToBSON(res simulator.Result) bson.D {
	return bson.D{
		{Key: "$set", Value: bson.M{
			"fingerprint": res.Fingerprint,
			"scenario":    res.Scenario,
			"type":        string(res.Type),
			"mode":        string(res.Mode),
			"success":     res.Success,
			"indicators":  res.Indicators,
			"metadata":    res.Metadata,
			"error":       res.Error,
			"warnings":    res.Warnings,
			"runtime_s":   res.ExecutionTimeS,
		}},
	}
}
