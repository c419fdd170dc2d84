package actions

import (
	"sort"
	"strings"
	"sync"

	"github.com/rendis/autoflow/pkg/schema"
)

// Registry is the concrete thread-safe ActionRegistry implementation.
type Registry struct {
	mu           sync.RWMutex
	integrations map[string]*entry
}

type entry struct {
	integration Integration
	actions     map[string]Action
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		integrations: make(map[string]*entry),
	}
}

// Register adds an integration and its actions. Returns error on duplicate
// integration name or duplicate action names within the integration.
func (r *Registry) Register(integration Integration) error {
	if integration == nil {
		return schema.NewError(schema.ErrCodeValidation, "integration is nil")
	}
	name := integration.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "integration name is empty")
	}

	e := &entry{integration: integration, actions: make(map[string]Action)}
	for _, a := range integration.Actions() {
		if a == nil || a.Name() == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "integration %q has an unnamed action", name)
		}
		if _, exists := e.actions[a.Name()]; exists {
			return schema.NewErrorf(schema.ErrCodeConflict, "integration %q declares action %q twice", name, a.Name())
		}
		e.actions[a.Name()] = a
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.integrations[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "integration %q already registered", name)
	}
	r.integrations[name] = e
	return nil
}

// Resolve maps a "<integration>_<action>" step type to its action. The
// integration is the longest registered name followed by "_", so
// "google_sheets_read_rows" resolves to google_sheets/read_rows even when an
// integration named "google" also exists.
func (r *Registry) Resolve(stepType string) (Integration, Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *entry
	for name, e := range r.integrations {
		if !strings.HasPrefix(stepType, name+"_") {
			continue
		}
		if best == nil || len(name) > len(best.integration.Name()) {
			best = e
		}
	}

	if best == nil {
		integrationKey, _ := SplitStepTypeLegacy(stepType)
		if e, ok := r.integrations[integrationKey]; ok {
			// Registered integration but no action suffix ("slack" or "slack_").
			return nil, nil, schema.NewErrorf(schema.ErrCodeUnknownAction,
				"step type %q does not name an action of integration %q", stepType, e.integration.Name()).
				WithDetails(map[string]any{"step_type": stepType, "integration": integrationKey})
		}
		return nil, nil, schema.NewErrorf(schema.ErrCodeUnknownIntegration,
			"unknown integration %q for step type %q", integrationKey, stepType).
			WithDetails(map[string]any{"step_type": stepType, "integration": integrationKey})
	}

	name := best.integration.Name()
	actionKey := strings.TrimPrefix(stepType, name+"_")
	action, ok := best.actions[actionKey]
	if !ok {
		return nil, nil, schema.NewErrorf(schema.ErrCodeUnknownAction,
			"unknown action %q for integration %q", actionKey, name).
			WithDetails(map[string]any{"step_type": stepType, "integration": name, "action": actionKey})
	}
	return best.integration, action, nil
}

// List returns info for all registered integrations, sorted by name.
func (r *Registry) List() []IntegrationInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]IntegrationInfo, 0, len(r.integrations))
	for name, e := range r.integrations {
		acts := make([]string, 0, len(e.actions))
		for a := range e.actions {
			acts = append(acts, a)
		}
		sort.Strings(acts)
		infos = append(infos, IntegrationInfo{
			Name:                name,
			RequiresCredentials: e.integration.RequiresCredentials(),
			Actions:             acts,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Has checks if an integration is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.integrations[name]
	return ok
}

// Count returns the number of registered integrations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.integrations)
}

// SplitStepTypeLegacy splits a step type at its first underscore. This is
// the historical resolution rule; it misparses integration names that
// contain an underscore ("google_sheets_read_rows" -> "google",
// "sheets_read_rows") and is only used to name unknown integrations.
func SplitStepTypeLegacy(stepType string) (integration, action string) {
	integration, action, _ = strings.Cut(stepType, "_")
	return integration, action
}
