// Package notify publishes acquisition run summaries to an MQTT broker so
// downstream automation can react when a run finishes.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/allape/gogger"
	"github.com/allape/opencam/cam/sink"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var l = gogger.New("notify")

type Options struct {
	// Broker address, e.g. "tcp://127.0.0.1:1883".
	Broker   string
	ClientID string
	Topic    string

	Username string
	Password string
}

type runMessage struct {
	RunID      string  `json:"runId"`
	Frames     int64   `json:"frames"`
	DurationMs float64 `json:"durationMs"`
	Error      string  `json:"error,omitempty"`
	FinishedAt string  `json:"finishedAt"`
}

// Notifier forwards run summaries as JSON messages on a single topic.
type Notifier struct {
	client mqtt.Client
	topic  string
}

func New(options Options) (*Notifier, error) {
	if options.Broker == "" {
		return nil, fmt.Errorf("notify: broker is required")
	}
	if options.ClientID == "" {
		options.ClientID = "opencam"
	}
	if options.Topic == "" {
		options.Topic = "opencam/runs"
	}

	opts := mqtt.NewClientOptions().AddBroker(options.Broker).SetClientID(options.ClientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	if options.Username != "" {
		opts.SetUsername(options.Username)
		opts.SetPassword(options.Password)
	}

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("notify: connect: %w", token.Error())
	}

	l.Info().Println("connected to", options.Broker)

	return &Notifier{client: c, topic: options.Topic}, nil
}

func (n *Notifier) Close() {
	n.client.Disconnect(250)
}

// RunFinished publishes a run summary. Suitable as a sink's finished hook.
func (n *Notifier) RunFinished(summary sink.Summary) {
	msg := runMessage{
		RunID:      summary.RunID,
		Frames:     summary.Frames,
		DurationMs: float64(summary.Duration) / float64(time.Millisecond),
		FinishedAt: time.Now().Format(time.RFC3339),
	}
	if summary.Err != nil {
		msg.Error = summary.Err.Error()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		l.Error().Println("marshal run summary:", err)
		return
	}

	if token := n.client.Publish(n.topic, 1, false, payload); token.Wait() && token.Error() != nil {
		l.Error().Println("publish run summary:", token.Error())
	}
}
