package vertexflow

import "encoding/json"

// FlowPayload is the wire form of a flow definition, as produced by the
// authoring layer. It is the input to BuildGraph and to session.Fingerprint.
type FlowPayload struct {
	Nodes []NodePayload `json:"nodes"`
	Edges []EdgePayload `json:"edges"`

	// Outputs optionally names the vertex ids whose outputs form the final
	// result of a run. When empty, every sink vertex (no outgoing edges)
	// is treated as an output.
	Outputs []string `json:"outputs,omitempty"`
}

// NodePayload describes one vertex in a flow definition.
type NodePayload struct {
	ID     string         `json:"id"`
	Slug   string         `json:"slug"`
	Kind   string         `json:"component_kind"`
	Params map[string]any `json:"params,omitempty"`
}

// EdgePayload describes one declared dependency in a flow definition.
type EdgePayload struct {
	SourceID     string `json:"source_id"`
	SourceOutput string `json:"source_output"`
	TargetID     string `json:"target_id"`
	TargetParam  string `json:"target_param"`
}

// ParsePayload decodes a JSON flow document.
func ParsePayload(data []byte) (FlowPayload, error) {
	var p FlowPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return FlowPayload{}, err
	}
	return p, nil
}
