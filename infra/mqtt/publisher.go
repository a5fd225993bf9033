package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremon "github.com/kilianp07/groundsched/core/monitoring"
	"github.com/kilianp07/groundsched/core/schedule"
	"github.com/kilianp07/groundsched/core/timerange"
	"github.com/kilianp07/groundsched/infra/logger"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"

	defaultPublishTimeout = 5 * time.Second
)

// ErrPublishTimeout is returned when the broker does not acknowledge a
// publish in time, typically while the client is still reconnecting.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// ScheduleMessage is the retained payload on the schedule topic.
type ScheduleMessage struct {
	MessageID string                `json:"message_id"`
	Version   uint64                `json:"version"`
	Time      time.Time             `json:"time"`
	Schedule  []timerange.TimeRange `json:"schedule"`
}

// ChangesMessage is published once per mutation on the changes topic.
type ChangesMessage struct {
	MessageID       string                    `json:"message_id"`
	Version         uint64                    `json:"version"`
	Operation       schedule.Operation        `json:"operation"`
	Time            time.Time                 `json:"time"`
	Added           []string                  `json:"added,omitempty"`
	Removed         []string                  `json:"removed,omitempty"`
	Classifications []schedule.Classification `json:"classifications"`
	Messages        []string                  `json:"messages"`
}

// SchedulePublisher publishes every schedule mutation to the broker.
type SchedulePublisher struct {
	cli        pahoClient
	cfg        Config
	log        logger.Logger
	monitor    coremon.Monitor
	maxRetries int
	backoff    time.Duration
	timeout    time.Duration
}

// NewSchedulePublisher connects to the broker and announces the station online.
func NewSchedulePublisher(cfg Config) (*SchedulePublisher, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	p := &SchedulePublisher{
		cfg:        cfg,
		log:        logger.New("mqtt_publisher"),
		monitor:    coremon.NopMonitor{},
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		timeout:    time.Duration(cfg.PublishTimeoutMS) * time.Millisecond,
	}
	if p.maxRetries <= 0 {
		p.maxRetries = 3
	}
	if p.backoff <= 0 {
		p.backoff = 100 * time.Millisecond
	}
	if p.timeout <= 0 {
		p.timeout = defaultPublishTimeout
	}

	opts.OnConnect = func(c paho.Client) {
		p.log.Infof("MQTT connected")
		token := c.Publish(cfg.StatusTopic(), cfg.QoS, true, statusOnline)
		if !token.WaitTimeout(p.timeout) {
			p.log.Warnf("status publish not acknowledged within %s", p.timeout)
		} else if err := token.Error(); err != nil {
			p.log.Errorf("status publish error: %v", err)
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		p.log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		p.log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		p.log.Warnf("broker %s not reachable yet, retrying in background", cfg.Broker)
	} else if err := token.Error(); err != nil {
		return nil, err
	}
	p.cli = c
	return p, nil
}

// SetMonitor configures where publish failures are reported.
func (p *SchedulePublisher) SetMonitor(m coremon.Monitor) {
	if m == nil {
		m = coremon.NopMonitor{}
	}
	p.monitor = m
}

// PublishSnapshot sends the retained full schedule.
func (p *SchedulePublisher) PublishSnapshot(version uint64, sched []timerange.TimeRange, at time.Time) error {
	if sched == nil {
		sched = []timerange.TimeRange{}
	}
	payload, err := json.Marshal(ScheduleMessage{
		MessageID: uuid.NewString(),
		Version:   version,
		Time:      at,
		Schedule:  sched,
	})
	if err != nil {
		return err
	}
	return p.publish(p.cfg.ScheduleTopic(), true, payload)
}

// PublishMutation sends the retained schedule snapshot, then the change record.
func (p *SchedulePublisher) PublishMutation(m schedule.Mutation) error {
	rec := schedule.NewDiagnosticRecord(m)
	changes, err := json.Marshal(ChangesMessage{
		MessageID:       uuid.NewString(),
		Version:         m.Version,
		Operation:       m.Operation,
		Time:            m.Time,
		Added:           m.Added,
		Removed:         m.Removed,
		Classifications: rec.Classifications,
		Messages:        rec.Messages,
	})
	if err != nil {
		return err
	}
	if err := p.PublishSnapshot(m.Version, m.Schedule, m.Time); err != nil {
		p.capture(err, m)
		return err
	}
	if err := p.publish(p.cfg.ChangesTopic(), false, changes); err != nil {
		p.capture(err, m)
		return err
	}
	p.log.Debugw("schedule published", logger.Fields{"version": m.Version, "fragments": len(m.Schedule)})
	return nil
}

// Run publishes every mutation received on sub until ctx is done or sub is closed.
func (p *SchedulePublisher) Run(ctx context.Context, sub <-chan schedule.Mutation) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub:
			if !ok {
				return
			}
			if err := p.PublishMutation(m); err != nil {
				p.log.Errorf("publish version %d: %v", m.Version, err)
			}
		}
	}
}

func (p *SchedulePublisher) publish(topic string, retained bool, payload []byte) error {
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, p.cfg.QoS, retained, payload)
		if token.WaitTimeout(p.timeout) {
			err = token.Error()
		} else {
			err = fmt.Errorf("%w after %s", ErrPublishTimeout, p.timeout)
		}
		if err == nil {
			return nil
		}
		p.log.Errorf("publish attempt %d on %s failed: %v", attempt+1, topic, err)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	return fmt.Errorf("publish %s: %w", topic, err)
}

func (p *SchedulePublisher) capture(err error, m schedule.Mutation) {
	p.monitor.CaptureException(err, map[string]string{
		"module":    "mqtt",
		"operation": string(m.Operation),
		"version":   fmt.Sprint(m.Version),
	})
}

// Disconnect marks the station offline and closes the connection.
func (p *SchedulePublisher) Disconnect() {
	if p.cli == nil || !p.cli.IsConnected() {
		return
	}
	token := p.cli.Publish(p.cfg.StatusTopic(), p.cfg.QoS, true, statusOffline)
	token.WaitTimeout(time.Second)
	p.cli.Disconnect(250)
}
