package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "taskhub/pkg/domain-errors"
)

func TestParseTenantID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseTenantID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseTenantID("acme")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("nil uuid parses but reports IsNil", func(t *testing.T) {
		id, err := ParseTenantID(uuid.Nil.String())
		require.NoError(t, err)
		assert.True(t, id.IsNil())
	})

	t.Run("round trips", func(t *testing.T) {
		raw := uuid.New()
		id, err := ParseTenantID(raw.String())
		require.NoError(t, err)
		assert.Equal(t, raw.String(), id.String())
	})
}

func TestParseMemberID(t *testing.T) {
	id := NewMemberID()
	parsed, err := ParseMemberID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestSubjectID(t *testing.T) {
	assert.True(t, SubjectID("").IsNil())
	assert.Equal(t, "f1c2", SubjectID("f1c2").String())
}

func TestIDsEncodeAsStrings(t *testing.T) {
	type payload struct {
		Tenant TenantID  `json:"tenant"`
		Member *MemberID `json:"member"`
	}
	tenantID := NewTenantID()
	memberID := NewMemberID()

	raw, err := json.Marshal(payload{Tenant: tenantID, Member: &memberID})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tenant":"`+tenantID.String()+`","member":"`+memberID.String()+`"}`, string(raw))

	var back payload
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, tenantID, back.Tenant)
	require.NotNil(t, back.Member)
	assert.Equal(t, memberID, *back.Member)
}
