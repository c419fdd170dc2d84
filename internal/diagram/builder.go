package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/autoflow/internal/store"
	"github.com/rendis/autoflow/pkg/schema"
)

const (
	triggerNodeID = "trigger"
	filterNodeID  = "filter"
	endNodeID     = "end"
)

// Build constructs a DiagramModel from a workflow and, optionally, the step
// records of one of its runs. Steps without a record (not reached) carry no
// status.
func Build(def *schema.WorkflowDefinition, steps []*store.RunStep) (*DiagramModel, error) {
	if def == nil {
		return nil, fmt.Errorf("diagram: nil workflow")
	}

	byNumber := make(map[int]*store.RunStep, len(steps))
	for _, s := range steps {
		byNumber[s.StepNumber] = s
	}

	nodes := make([]*Node, 0, len(def.Steps)+3)
	nodes = append(nodes, &Node{
		ID:     triggerNodeID,
		Label:  triggerLabel(def.TriggerType),
		Detail: triggerDetail(def),
		Kind:   NodeKindTrigger,
	})
	if def.TriggerType == schema.TriggerEmailReceived && def.TriggerConfig.Filter != "" {
		nodes = append(nodes, &Node{
			ID:     filterNodeID,
			Label:  "filter",
			Detail: def.TriggerConfig.Filter,
			Kind:   NodeKindFilter,
		})
	}

	for i, step := range def.Steps {
		node := &Node{
			ID:    stepNodeID(i),
			Label: fmt.Sprintf("%d: %s", i, step.Type),
			Kind:  NodeKindStep,
		}
		if rec, ok := byNumber[i]; ok {
			node.Status = &StatusOverlay{
				Status:     string(rec.Status),
				DurationMs: rec.DurationMs,
				Error:      rec.Error,
			}
		}
		nodes = append(nodes, node)
	}
	nodes = append(nodes, &Node{ID: endNodeID, Label: "End", Kind: NodeKindEnd})

	edges := make([]Edge, 0, len(nodes)-1)
	for i := 1; i < len(nodes); i++ {
		e := Edge{From: nodes[i-1].ID, To: nodes[i].ID}
		if nodes[i-1].Kind == NodeKindFilter {
			e.Label = "match"
		}
		edges = append(edges, e)
	}

	return &DiagramModel{
		Title: titleFromDef(def),
		Nodes: nodes,
		Edges: edges,
	}, nil
}

func stepNodeID(i int) string {
	return fmt.Sprintf("step_%d", i)
}

func triggerLabel(t schema.TriggerType) string {
	switch t {
	case schema.TriggerScheduled:
		return "schedule"
	case schema.TriggerEmailReceived:
		return "email"
	case schema.TriggerManual:
		return "manual"
	default:
		return "trigger"
	}
}

func triggerDetail(def *schema.WorkflowDefinition) string {
	switch def.TriggerType {
	case schema.TriggerScheduled:
		return def.TriggerConfig.Cron
	case schema.TriggerEmailReceived:
		if folder, ok := def.TriggerConfig.Mailbox["folder"].(string); ok {
			return folder
		}
	}
	return ""
}

// titleFromDef returns the workflow name, falling back to its id.
func titleFromDef(def *schema.WorkflowDefinition) string {
	if name := strings.TrimSpace(def.Name); name != "" {
		return name
	}
	if def.ID != "" {
		return def.ID
	}
	return "Workflow"
}
