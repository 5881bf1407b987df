package notify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	body, err := Render(Submission{
		UserName:        "alice",
		PlanID:          42,
		PlanVersion:     7,
		PlanName:        "My Plan",
		LegislativeBody: "State Senate",
		Fields: map[string]string{
			"county": "Santa Clara",
			"agree":  "yes",
		},
	})
	require.NoError(t, err)
	assert.Contains(t, body, "User: alice")
	assert.Contains(t, body, "Plan: 42 (version 7)")
	assert.Contains(t, body, "Name: My Plan")
	assert.Contains(t, body, "Legislative body: State Senate")
	// 键值按键名排序
	assert.Less(t, strings.Index(body, "agree: yes"), strings.Index(body, "county: Santa Clara"))
}

func TestRenderEmptyFields(t *testing.T) {
	body, err := Render(Submission{UserName: "bob", PlanID: 1, PlanName: "p"})
	require.NoError(t, err)
	assert.Contains(t, body, "User: bob")
	assert.NotContains(t, body, "<no value>")
}

func TestSendWithoutSMTPLogsOnly(t *testing.T) {
	t.Setenv("SMTP_HOST", "")
	err := Send(Submission{UserName: "carol", PlanID: 2, PlanName: "p2"})
	assert.NoError(t, err)
}
