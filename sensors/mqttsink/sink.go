package mqttsink

import (
	"encoding/json"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/studysensors/sensors"
)

// Publisher is the part of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

const queueSize = 64

type message struct {
	topic   string
	payload []byte
}

// Sink publishes every event as retained JSON on <Prefix>/<kind>. Events are
// queued and sent from the sink's own goroutine; when the broker falls
// behind and the queue is full, new events are dropped.
type Sink struct {
	Prefix  string
	Timeout time.Duration

	client    Publisher
	queue     chan message
	done      chan struct{}
	closeOnce sync.Once
}

func New(client Publisher, prefix string) *Sink {
	s := &Sink{
		Prefix:  prefix,
		Timeout: 5 * time.Second,
		client:  client,
		queue:   make(chan message, queueSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Connect dials the broker and waits for the connection to be up.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "failed to connect to MQTT broker %s", broker)
	}
	log.Printf("connected to MQTT broker at %s as %s", broker, clientID)
	return client, nil
}

func (s *Sink) Topic(kind sensors.EventKind) string {
	return s.Prefix + "/" + string(kind)
}

// Publish queues ev without waiting for the broker.
func (s *Sink) Publish(ev sensors.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	select {
	case s.queue <- message{topic: s.Topic(ev.Kind), payload: payload}:
		return nil
	default:
		return errors.Errorf("mqtt queue full, dropping %s event", ev.Kind)
	}
}

// Close sends what is still queued and stops the sink. Publish must not be
// called after Close.
func (s *Sink) Close() {
	s.closeOnce.Do(func() { close(s.queue) })
	<-s.done
}

func (s *Sink) run() {
	defer close(s.done)
	for m := range s.queue {
		if err := s.send(m); err != nil {
			log.Errorf("mqtt: %s", err)
		}
	}
}

func (s *Sink) send(m message) error {
	token := s.client.Publish(m.topic, 0, true, m.payload)
	if !token.WaitTimeout(s.Timeout) {
		return errors.Errorf("timed out publishing to %s", m.topic)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "failed to publish to %s", m.topic)
	}
	log.Debugf("published to %s", m.topic)
	return nil
}
