package diagram

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/autoflow/internal/store"
	"github.com/rendis/autoflow/pkg/schema"
)

func scheduledWorkflow() *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		ID:            "wf-report",
		Name:          "Daily Report",
		TriggerType:   schema.TriggerScheduled,
		TriggerConfig: schema.TriggerConfig{Cron: "0 9 * * *"},
		Steps: []schema.StepSpec{
			{Type: "http_request"},
			{Type: "jq_transform"},
			{Type: "expr_eval"},
		},
	}
}

func emailWorkflow() *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		ID:          "wf-inbox",
		TriggerType: schema.TriggerEmailReceived,
		TriggerConfig: schema.TriggerConfig{
			Mailbox: map[string]any{"folder": "INBOX"},
			Filter:  `email.subject.contains("invoice")`,
		},
		Steps: []schema.StepSpec{{Type: "http_request"}},
	}
}

func TestBuild_Linear(t *testing.T) {
	model, err := Build(scheduledWorkflow(), nil)
	require.NoError(t, err)

	assert.Equal(t, "Daily Report", model.Title)
	require.Len(t, model.Nodes, 5)
	assert.Equal(t, NodeKindTrigger, model.Nodes[0].Kind)
	assert.Equal(t, "0 9 * * *", model.Nodes[0].Detail)
	assert.Equal(t, "0: http_request", model.Nodes[1].Label)
	assert.Equal(t, NodeKindEnd, model.Nodes[4].Kind)

	require.Len(t, model.Edges, 4)
	assert.Equal(t, Edge{From: "trigger", To: "step_0"}, model.Edges[0])
	assert.Equal(t, Edge{From: "step_2", To: "end"}, model.Edges[3])
}

func TestBuild_EmailFilterNode(t *testing.T) {
	model, err := Build(emailWorkflow(), nil)
	require.NoError(t, err)

	assert.Equal(t, "wf-inbox", model.Title)
	require.Len(t, model.Nodes, 4)
	assert.Equal(t, "INBOX", model.Nodes[0].Detail)
	assert.Equal(t, NodeKindFilter, model.Nodes[1].Kind)
	assert.Equal(t, Edge{From: "filter", To: "step_0", Label: "match"}, model.Edges[1])
}

func TestBuild_StatusOverlay(t *testing.T) {
	steps := []*store.RunStep{
		{StepNumber: 0, Status: schema.StepStatusCompleted, DurationMs: 120},
		{StepNumber: 1, Status: schema.StepStatusFailed, Error: "jq: no output"},
	}
	model, err := Build(scheduledWorkflow(), steps)
	require.NoError(t, err)

	require.NotNil(t, model.Nodes[1].Status)
	assert.Equal(t, "completed", model.Nodes[1].Status.Status)
	assert.Equal(t, int64(120), model.Nodes[1].Status.DurationMs)
	require.NotNil(t, model.Nodes[2].Status)
	assert.Equal(t, "jq: no output", model.Nodes[2].Status.Error)
	assert.Nil(t, model.Nodes[3].Status, "step after the failure was never reached")
}

func TestBuild_Nil(t *testing.T) {
	_, err := Build(nil, nil)
	assert.Error(t, err)
}

func TestRenderASCII(t *testing.T) {
	steps := []*store.RunStep{
		{StepNumber: 0, Status: schema.StepStatusCompleted, DurationMs: 100},
		{StepNumber: 1, Status: schema.StepStatusFailed, Error: "boom"},
	}
	model, err := Build(scheduledWorkflow(), steps)
	require.NoError(t, err)

	out := RenderASCII(model)
	assert.Contains(t, out, "=== Daily Report ===")
	assert.Contains(t, out, "┌")
	assert.Contains(t, out, "▼")
	assert.Contains(t, out, "0: http_request")
	assert.Contains(t, out, "[OK] 100ms")
	assert.Contains(t, out, "[FAIL]")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "End")
}

func TestRenderASCII_EdgeLabel(t *testing.T) {
	model, err := Build(emailWorkflow(), nil)
	require.NoError(t, err)
	assert.Contains(t, RenderASCII(model), "│ match")
}

func TestRenderMermaid(t *testing.T) {
	steps := []*store.RunStep{{StepNumber: 0, Status: schema.StepStatusCompleted}}
	model, err := Build(emailWorkflow(), steps)
	require.NoError(t, err)

	out := RenderMermaid(model)
	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, "trigger([")
	assert.Contains(t, out, "filter{")
	assert.Contains(t, out, "#quot;invoice#quot;")
	assert.Contains(t, out, "step_0[")
	assert.Contains(t, out, "end((")
	assert.Contains(t, out, "filter -->|match| step_0")
	assert.Contains(t, out, "class step_0 completed")
}

func TestRender_UnknownFormat(t *testing.T) {
	model, err := Build(scheduledWorkflow(), nil)
	require.NoError(t, err)

	_, err = Render(context.Background(), model, "svg")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestRender_Text(t *testing.T) {
	model, err := Build(scheduledWorkflow(), nil)
	require.NoError(t, err)

	out, err := Render(context.Background(), model, "")
	require.NoError(t, err)
	assert.Contains(t, string(out), "graph TD")

	out, err = Render(context.Background(), model, FormatASCII)
	require.NoError(t, err)
	assert.Contains(t, string(out), "Daily Report")

	assert.Equal(t, "image/png", ContentType(FormatPNG))
	assert.Equal(t, "text/plain; charset=utf-8", ContentType(FormatASCII))
}

func TestRenderImage(t *testing.T) {
	model, err := Build(scheduledWorkflow(), []*store.RunStep{
		{StepNumber: 0, Status: schema.StepStatusCompleted},
	})
	require.NoError(t, err)

	png, err := RenderImage(context.Background(), model)
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}
