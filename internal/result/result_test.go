package result

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSuccess(t *testing.T) {
	res := Normalize(func() (any, error) {
		return map[string]any{"count": 3}, nil
	})
	require.True(t, res.OK)
	assert.Empty(t, res.ErrorKind)
	assert.Empty(t, res.Message)
	assert.Equal(t, map[string]any{"count": 3}, res.Data)
}

func TestNormalizeRecoversPanic(t *testing.T) {
	res := Normalize(func() (any, error) {
		var m map[string]string
		m["boom"] = "x" // nil map write
		return nil, nil
	})
	require.False(t, res.OK)
	assert.Equal(t, KindInternal, res.ErrorKind)
	assert.Contains(t, res.Message, "unexpected fault")
}

func TestFromErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"unknown tool", &UnknownToolError{Tool: "nope"}, KindUnknownTool},
		{"permission denied", &PermissionDeniedError{Tool: "t", ActualRole: "stakeholder"}, KindPermissionDenied},
		{"unknown action", &UnknownActionError{Tool: "t", Action: "x"}, KindUnknownAction},
		{"missing parameter", &MissingParameterError{Tool: "t", Action: "threshold", Parameter: "operator"}, KindMissingParameter},
		{"invalid argument", &InvalidArgumentError{Tool: "t", Reason: "bad type"}, KindInvalidArgument},
		{"authentication", &AuthenticationError{Instance: "dev", Reason: "no credential"}, KindAuthentication},
		{"upstream", &UpstreamError{Status: 503, Detail: "maintenance"}, KindUpstream},
		{"plain error", errors.New("disk on fire"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := FromError(tt.err)
			require.False(t, res.OK)
			assert.Equal(t, tt.kind, res.ErrorKind)
			assert.Equal(t, tt.err.Error(), res.Message)
		})
	}
}

func TestFromErrorWrappedStillMatches(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), &UpstreamError{Status: 500})
	res := FromError(wrapped)
	assert.Equal(t, KindUpstream, res.ErrorKind)
}

func TestFromErrorDetails(t *testing.T) {
	res := FromError(&MissingParameterError{Tool: "pa_create", Action: "threshold", Parameter: "operator"})
	assert.Equal(t, map[string]any{"action": "threshold", "parameter": "operator"}, res.Details)

	res = FromError(&PermissionDeniedError{
		Tool:          "snow_create_incident",
		RequiredRoles: []string{"developer", "admin"},
		ActualRole:    "stakeholder",
	})
	assert.Equal(t, "snow_create_incident", res.Details["tool"])
	assert.Equal(t, "stakeholder", res.Details["actualRole"])
}

func TestJSONShape(t *testing.T) {
	t.Run("success omits error fields", func(t *testing.T) {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(Success("payload").JSON(), &doc))
		assert.Equal(t, true, doc["ok"])
		assert.Equal(t, "payload", doc["data"])
		assert.NotContains(t, doc, "errorKind")
		assert.NotContains(t, doc, "message")
	})

	t.Run("failure omits data", func(t *testing.T) {
		var doc map[string]any
		raw := Failure(KindUpstream, "upstream returned status 503", map[string]any{"status": 503}).JSON()
		require.NoError(t, json.Unmarshal(raw, &doc))
		assert.Equal(t, false, doc["ok"])
		assert.Equal(t, "upstream", doc["errorKind"])
		assert.NotContains(t, doc, "data")
	})
}

func TestJSONUnmarshalableDataDegrades(t *testing.T) {
	var doc map[string]any
	raw := Success(make(chan int)).JSON()
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, false, doc["ok"])
	assert.Equal(t, "internal", doc["errorKind"])
}
