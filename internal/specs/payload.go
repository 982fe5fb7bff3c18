package specs

import (
	"encoding/json"
	"fmt"
)

// DownloadResponse is the envelope returned by the rule download endpoint.
//
// The three catalog sections are kept as raw messages so the store can
// enforce "must be a JSON array" and abort the rotation on the first spec
// that fails to parse, without partially decoding the rest.
type DownloadResponse struct {
	HasUpdates     bool                `json:"has_updates"`
	Time           int64               `json:"time"`
	FeatureGates   json.RawMessage     `json:"feature_gates"`
	DynamicConfigs json.RawMessage     `json:"dynamic_configs"`
	LayerConfigs   json.RawMessage     `json:"layer_configs"`
	Layers         map[string][]string `json:"layers"`
	Diagnostics    map[string]any      `json:"diagnostics"`
}

// ParseDownloadResponse decodes the envelope. It does not parse the
// individual specs; see ParseSpecList.
func ParseDownloadResponse(payload []byte) (*DownloadResponse, error) {
	var response DownloadResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return nil, fmt.Errorf("malformed rule payload: %w", err)
	}
	return &response, nil
}

// ParseSpecList decodes one catalog section into a name-keyed map.
// The section must be a JSON array; anything else (including a missing
// section) rejects the whole payload.
func ParseSpecList(section json.RawMessage, sectionName string) (map[string]*Spec, error) {
	var raws []json.RawMessage
	if section == nil {
		return nil, fmt.Errorf("rule payload is missing %s", sectionName)
	}
	if string(section) == "null" {
		return nil, fmt.Errorf("%s is not an array: null", sectionName)
	}
	if err := json.Unmarshal(section, &raws); err != nil {
		return nil, fmt.Errorf("%s is not an array: %w", sectionName, err)
	}

	parsed := make(map[string]*Spec, len(raws))
	for i, raw := range raws {
		spec, err := Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", sectionName, i, err)
		}
		parsed[spec.Name] = spec
	}

	return parsed, nil
}

// InvertLayers turns the payload's layer → experiments mapping into the
// experiment → layer index the evaluator needs for shared parameters.
func InvertLayers(layers map[string][]string) map[string]string {
	inverted := make(map[string]string, len(layers))
	for layerName, experiments := range layers {
		for _, experimentName := range experiments {
			inverted[experimentName] = layerName
		}
	}
	return inverted
}
