package plan

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// FromJSON decodes and validates an execution plan.
func FromJSON(data []byte) (ExecutionPlan, error) {
	var p ExecutionPlan
	if err := json.Unmarshal(data, &p); err != nil {
		return ExecutionPlan{}, errors.Wrap(err, "failed to decode plan")
	}
	if err := p.Validate(); err != nil {
		return ExecutionPlan{}, errors.Wrap(err, "invalid plan")
	}
	return p, nil
}

// FromFile loads a plan from a JSON file.
func FromFile(path string) (ExecutionPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ExecutionPlan{}, errors.Wrapf(err, "failed to read plan file %s", path)
	}
	return FromJSON(data)
}

// FromJSONAllowing decodes a plan and additionally rejects node types
// outside the allow-set. Sub-plans run with a narrower permission set
// than top-level plans.
func FromJSONAllowing(data []byte, allowed ...NodeType) (ExecutionPlan, error) {
	p, err := FromJSON(data)
	if err != nil {
		return ExecutionPlan{}, err
	}
	allow := make(map[NodeType]struct{}, len(allowed))
	for _, t := range allowed {
		allow[t] = struct{}{}
	}
	for _, n := range p.Nodes {
		if _, ok := allow[n.NodeType]; !ok {
			return ExecutionPlan{}, errors.Wrapf(ErrNodeTypeNotAllowed, "node %q has type %q", n.NodeName, n.NodeType)
		}
	}
	return p, nil
}
