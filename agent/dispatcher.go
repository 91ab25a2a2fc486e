package agent

import (
	"context"

	"device-agent/models"
	"device-agent/mqtt"
)

// dispatch routes one inbound envelope by topic identity. The device
// subscribes to exactly two topics, so this is a closed two-way table;
// anything else is ignored.
func (a *Agent) dispatch(ctx context.Context, msg mqtt.Message) {
	kind, ok := models.KindOf(msg.Topic, a.identity.DeviceID)
	if !ok {
		a.logger.Debugf("Ignoring message on unknown topic %s", msg.Topic)
		return
	}

	switch kind {
	case models.TopicCommands:
		cmd, err := a.codec.DecodeCommand(msg.Payload)
		if err != nil {
			a.logger.Errorf("Dropping command envelope: %v", err)
			return
		}
		a.handler.Handle(cmd)

	case models.TopicOTA:
		req, err := a.codec.DecodeUpdateRequest(msg.Payload)
		if err != nil {
			a.logger.Errorf("Dropping update envelope: %v", err)
			return
		}
		a.orchestrator.HandleRequest(ctx, req)

	default:
		a.logger.Debugf("Ignoring message on publish-only topic %s", msg.Topic)
	}
}
