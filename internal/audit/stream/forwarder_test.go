package stream

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhub/internal/audit/models"
	"taskhub/internal/platform/kafka/producer"
	id "taskhub/pkg/domain"
)

type capturingProducer struct {
	messages []*producer.Message
}

func (c *capturingProducer) ProduceAsync(_ context.Context, msg *producer.Message) error {
	c.messages = append(c.messages, msg)
	return nil
}

func TestForwardKeysByTenant(t *testing.T) {
	p := &capturingProducer{}
	f := NewForwarder(p, "taskhub.audit")
	tenantID := id.NewTenantID()

	entry := models.Entry{
		ID:       id.NewAuditEntryID(),
		TenantID: models.TenantRef(tenantID),
		Action:   models.ActionDataRead,
	}
	require.NoError(t, f.Forward(context.Background(), entry))
	require.NoError(t, f.Forward(context.Background(), models.Entry{Action: models.ActionAuthFailure}))

	require.Len(t, p.messages, 2)
	assert.Equal(t, "taskhub.audit", p.messages[0].Topic)
	assert.Equal(t, tenantID.String(), string(p.messages[0].Key))
	assert.Equal(t, "DATA_READ", p.messages[0].Headers["action"])
	assert.Equal(t, "platform", string(p.messages[1].Key))

	var decoded models.Entry
	require.NoError(t, json.Unmarshal(p.messages[0].Value, &decoded))
	assert.Equal(t, models.ActionDataRead, decoded.Action)
	require.NotNil(t, decoded.TenantID)
	assert.Equal(t, tenantID, *decoded.TenantID)
}
