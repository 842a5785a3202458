package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope_ActionKeyedFrames(t *testing.T) {
	// Personal and live-lesson clients name the operation with "action";
	// ParseEnvelope folds it into Type so channels dispatch on one field.
	tests := []struct {
		name     string
		frame    string
		wantType string
		check    func(t *testing.T, env Envelope)
	}{
		{
			name:     "mark read",
			frame:    `{"action":"mark_read","notification_id":"n-1"}`,
			wantType: "mark_read",
			check: func(t *testing.T, env Envelope) {
				assert.Equal(t, "n-1", env.NotificationID)
			},
		},
		{
			name:     "mark all read",
			frame:    `{"action":"mark_all_read"}`,
			wantType: "mark_all_read",
		},
		{
			name:     "question",
			frame:    `{"action":"question","text":"will this be on the exam?"}`,
			wantType: "question",
			check: func(t *testing.T, env Envelope) {
				assert.Equal(t, "will this be on the exam?", env.Text)
			},
		},
		{
			name:     "poll response",
			frame:    `{"action":"poll_response","poll_id":"p-1","option_id":"o-2"}`,
			wantType: "poll_response",
			check: func(t *testing.T, env Envelope) {
				assert.Equal(t, "p-1", env.PollID)
				assert.Equal(t, "o-2", env.OptionID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, env.Type)
			if tt.check != nil {
				tt.check(t, env)
			}
		})
	}
}

func TestParseEnvelope_TypeKeyedFrames(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type":"message","content":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "message", env.Type)
	assert.Equal(t, "hi", env.Content)
}

func TestParseEnvelope_TypeWinsWhenBothPresent(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type":"ping","action":"mark_all_read"}`))
	require.NoError(t, err)
	assert.Equal(t, "ping", env.Type)
}

func TestParseEnvelope_RejectsFrameWithoutDiscriminator(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"content":"hi"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no type or action")
}

func TestParseEnvelope_RejectsMalformedJSON(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"type":`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}
