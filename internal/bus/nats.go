// Package bus carries the provisioning step feed over NATS: one subject
// per organization, append-only, consumed by progress listeners.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/nexushq/nexus/internal/config"
	"github.com/nexushq/nexus/internal/domain"
)

const stepSubjectPrefix = "provisioning.steps."

type Bus struct {
	nc  *nats.Conn
	log zerolog.Logger
}

func Connect(cfg config.Config, log zerolog.Logger) (*Bus, error) {
	nc, err := nats.Connect(cfg.NATSURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Bus{nc: nc, log: log}, nil
}

func (b *Bus) Close() { b.nc.Close() }

// PublishStep announces one freshly inserted audit row.
func (b *Bus) PublishStep(step domain.ProvisioningStep) error {
	data, err := json.Marshal(step)
	if err != nil {
		return err
	}
	return b.nc.Publish(stepSubjectPrefix+step.OrganizationID, data)
}

// SubscribeSteps delivers every step row published for one organization.
// Rows that fail to decode are dropped with a log line.
func (b *Bus) SubscribeSteps(orgID string, fn func(domain.ProvisioningStep)) (func() error, error) {
	sub, err := b.nc.Subscribe(stepSubjectPrefix+orgID, func(m *nats.Msg) {
		var step domain.ProvisioningStep
		if err := json.Unmarshal(m.Data, &step); err != nil {
			b.log.Error().Err(err).Str("subject", m.Subject).Msg("bad step payload")
			return
		}
		fn(step)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe steps: %w", err)
	}
	return sub.Unsubscribe, nil
}
