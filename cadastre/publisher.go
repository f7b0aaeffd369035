package cadastre

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ReportPublisher publishes run reports and task maps to MQTT.
type ReportPublisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
}

// NewReportPublisher creates a publisher. If client is nil, publishing is
// disabled and every call fails.
func NewReportPublisher(client mqtt.Client, prefix string) *ReportPublisher {
	if prefix == "" {
		prefix = "cadmesh"
	}
	return &ReportPublisher{
		client:        client,
		publishPrefix: prefix,
		qos:           1,
		retain:        true,
	}
}

// NewReportPublisherFromConfig creates a publisher with the prefix, QoS and
// retain flag of cfg.
func NewReportPublisherFromConfig(client mqtt.Client, cfg MQTTConfig) *ReportPublisher {
	p := NewReportPublisher(client, cfg.PublishPrefix)
	if cfg.QoS >= 0 {
		p.SetQoS(byte(cfg.QoS))
	}
	p.SetRetain(cfg.Retain)
	return p
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *ReportPublisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *ReportPublisher) SetRetain(retain bool) {
	p.retain = retain
}

// PublishReport publishes the report to <prefix>/report and
// <prefix>/report/<runId>.
func (p *ReportPublisher) PublishReport(r *Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := p.publish(p.publishPrefix+"/report", payload); err != nil {
		return err
	}
	return p.publish(fmt.Sprintf("%s/report/%s", p.publishPrefix, r.RunID), payload)
}

// PublishTasks publishes the parcel rename map of a run to <prefix>/tasks.
func (p *ReportPublisher) PublishTasks(runID string, tasks map[string]string) error {
	message := map[string]interface{}{
		"runId":     runID,
		"tasks":     tasks,
		"timestamp": time.Now().Unix(),
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshaling tasks: %w", err)
	}
	return p.publish(p.publishPrefix+"/tasks", payload)
}

func (p *ReportPublisher) publish(topic string, payload []byte) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}
