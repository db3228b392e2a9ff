package config

import (
	"strings"

	"gopkg.in/yaml.v3"

	appLog "calgrid/internal/log"
	"calgrid/internal/view"
)

// Views maps available views to their grid shape. In YAML it is either a
// list of view names or a map of name to {cols, rows}.
type Views map[view.ID]view.Spec

func (v *Views) UnmarshalYAML(node *yaml.Node) error {
	out := make(Views)
	switch node.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			appLog.Warn("config: invalid views list, using defaults", "error", err)
			break
		}
		for _, name := range names {
			if id, ok := viewID(name); ok {
				out[id] = view.DefaultSpecs[id]
			}
		}
	case yaml.MappingNode:
		var shapes map[string]*view.Spec
		if err := node.Decode(&shapes); err != nil {
			appLog.Warn("config: invalid views map, using defaults", "error", err)
			break
		}
		for name, s := range shapes {
			id, ok := viewID(name)
			if !ok {
				continue
			}
			spec := view.DefaultSpecs[id]
			if s != nil && s.Cols > 0 {
				spec.Cols = s.Cols
			}
			if s != nil && s.Rows > 0 {
				spec.Rows = s.Rows
			}
			out[id] = spec
		}
	default:
		appLog.Warn("config: views must be a list or a map, using defaults", "line", node.Line)
	}
	*v = out
	return nil
}

func viewID(name string) (view.ID, bool) {
	id := view.ID(strings.ToLower(strings.TrimSpace(name)))
	if !id.Valid() {
		appLog.Warn("config: unknown view ignored", "view", name)
		return "", false
	}
	return id, true
}

// EditableEvents toggles the editing gestures. In YAML it is either a single
// bool or a map of flags; flags missing from the map stay enabled.
type EditableEvents struct {
	Create bool `yaml:"create" json:"create"`
	Drag   bool `yaml:"drag" json:"drag"`
	Resize bool `yaml:"resize" json:"resize"`
	Delete bool `yaml:"delete" json:"delete"`
}

type editableFlags EditableEvents

func (e *EditableEvents) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var all bool
		if err := node.Decode(&all); err != nil {
			appLog.Warn("config: editable_events must be a bool or a map", "value", node.Value)
			return nil
		}
		*e = EditableEvents{Create: all, Drag: all, Resize: all, Delete: all}
		return nil
	}

	flags := editableFlags{Create: true, Drag: true, Resize: true, Delete: true}
	if err := node.Decode(&flags); err != nil {
		appLog.Warn("config: invalid editable_events map", "error", err)
		return nil
	}
	*e = EditableEvents(flags)
	return nil
}

// MarshalYAML writes a bool when every flag agrees.
func (e EditableEvents) MarshalYAML() (any, error) {
	if e.Create == e.Drag && e.Drag == e.Resize && e.Resize == e.Delete {
		return e.Create, nil
	}
	return editableFlags(e), nil
}
