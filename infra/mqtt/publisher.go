package mqtt

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/pvbess/core/factory"
	coremetrics "github.com/kilianp07/pvbess/core/metrics"
	"github.com/kilianp07/pvbess/core/model"
	"github.com/kilianp07/pvbess/infra/logger"
)

func init() {
	_ = coremetrics.RegisterMetricsSink("mqtt", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewPublisher(c)
	})
}

// StepMessage is the payload published for every committed step.
type StepMessage struct {
	MessageID string           `json:"message_id"`
	RunID     string           `json:"run_id"`
	Scenario  model.Scenario   `json:"scenario"`
	Record    model.StepRecord `json:"record"`
}

// SummaryMessage is the payload published at the end of a run.
type SummaryMessage struct {
	MessageID  string            `json:"message_id"`
	RunID      string            `json:"run_id"`
	Scenario   model.Scenario    `json:"scenario"`
	Solver     string            `json:"solver"`
	Steps      int               `json:"steps"`
	Fallbacks  int               `json:"fallbacks"`
	Clamped    int               `json:"clamped"`
	CostGBP    float64           `json:"cost_gbp"`
	Final      model.SystemState `json:"final"`
	DurationMS int64             `json:"duration_ms"`
}

// Publisher streams committed steps to an MQTT broker. Steps go to
// <prefix>/<scenario>/step and run summaries to <prefix>/<scenario>/summary.
type Publisher struct {
	cfg        Config
	cli        pahoClient
	log        logger.Logger
	maxRetries int
	backoff    time.Duration
}

// NewPublisher connects to the configured broker.
func NewPublisher(cfg Config) (*Publisher, error) {
	log := logger.New("mqtt_publisher")
	cli, err := connect(cfg, log)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		cfg:        cfg,
		cli:        cli,
		log:        log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	if p.maxRetries <= 0 {
		p.maxRetries = 3
	}
	if p.backoff <= 0 {
		p.backoff = 100 * time.Millisecond
	}
	return p, nil
}

// StepTopic returns the topic steps of scenario s are published on.
func (p *Publisher) StepTopic(s model.Scenario) string { return p.cfg.topic(s.String(), "step") }

// SummaryTopic returns the topic run summaries of scenario s are published on.
func (p *Publisher) SummaryTopic(s model.Scenario) string {
	return p.cfg.topic(s.String(), "summary")
}

// RecordStep publishes rec as JSON.
func (p *Publisher) RecordStep(run coremetrics.RunInfo, rec model.StepRecord) error {
	return p.publish(p.StepTopic(run.Scenario), StepMessage{
		MessageID: uuid.NewString(),
		RunID:     run.RunID,
		Scenario:  run.Scenario,
		Record:    rec,
	})
}

// RecordRunSummary publishes the totals of a completed run.
func (p *Publisher) RecordRunSummary(run coremetrics.RunInfo, s coremetrics.RunSummary) error {
	return p.publish(p.SummaryTopic(run.Scenario), SummaryMessage{
		MessageID:  uuid.NewString(),
		RunID:      run.RunID,
		Scenario:   run.Scenario,
		Solver:     run.Solver,
		Steps:      s.Steps,
		Fallbacks:  s.Fallbacks,
		Clamped:    s.Clamped,
		CostGBP:    s.CostGBP,
		Final:      s.Final,
		DurationMS: s.Duration.Milliseconds(),
	})
}

func (p *Publisher) publish(topic string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		p.log.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	return publishErr
}

// Close gracefully closes the MQTT connection.
func (p *Publisher) Close() error {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Publish(p.cfg.topic("status"), p.cfg.QoS, true, "offline").Wait()
		p.cli.Disconnect(250)
	}
	return nil
}
