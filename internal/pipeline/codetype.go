package pipeline

import (
	"strings"

	"github.com/ziadkadry99/paper2code/internal/artifact"
)

// Variant describes what a code type's generation must produce.
type Variant struct {
	Type     artifact.CodeType
	Label    string
	Required []string // auxiliary keys that must be present
	Optional []string
	Hint     string // retrieval hint appended to the code type query
	Schema   string // JSON shape requested from the model
}

// AuxKeys returns all auxiliary keys of the variant, required first.
func (v Variant) AuxKeys() []string {
	return append(append([]string{}, v.Required...), v.Optional...)
}

// Requirements returns the analysis' implementation notes for this variant.
func (v Variant) Requirements(impl artifact.Implementation) string {
	switch v.Type {
	case artifact.CodeNS3:
		return impl.NS3Requirements
	case artifact.CodeP4:
		return impl.P4Requirements
	default:
		return impl.PythonRequirements
	}
}

var variants = map[artifact.CodeType]Variant{
	artifact.CodePython: {
		Type:     artifact.CodePython,
		Label:    "Python",
		Optional: []string{artifact.AuxRequirements, artifact.AuxUsageExample},
		Hint:     "python implementation simulation algorithm",
		Schema: `{
  "title": "short name of the implementation",
  "implementation": {"code": "complete runnable Python module"},
  "requirements": "pip requirements, one per line",
  "usage_example": "how to run the code"
}`,
	},
	artifact.CodeNS3: {
		Type:     artifact.CodeNS3,
		Label:    "ns-3",
		Required: []string{artifact.AuxSkeletonCode},
		Optional: []string{artifact.AuxSkeletonNotes, artifact.AuxBuildInstructions},
		Hint:     "ns-3 simulation module C++ helper",
		Schema: `{
  "title": "short name of the simulation",
  "skeleton": {"code": "class and function skeleton of the ns-3 module", "notes": "implementation notes"},
  "implementation": {"code": "complete ns-3 C++ implementation"},
  "build_instructions": "how to build and run with ./ns3"
}`,
	},
	artifact.CodeP4: {
		Type:     artifact.CodeP4,
		Label:    "P4",
		Required: []string{artifact.AuxSkeletonCode},
		Optional: []string{artifact.AuxControlPlane, artifact.AuxDeploymentInstructions},
		Hint:     "P4_16 data plane tables actions registers v1model",
		Schema: `{
  "title": "short name of the program",
  "skeleton": {"code": "P4 skeleton with the main tables and actions"},
  "implementation": {"code": "complete P4_16 program"},
  "control_plane": "control-plane requirements and code, if needed",
  "deployment_instructions": "how to compile, deploy and test"
}`,
	},
}

// ParseCodeType validates s against the closed set of code types.
func ParseCodeType(s string) (artifact.CodeType, error) {
	ct := artifact.CodeType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := variants[ct]; !ok {
		return "", NewError(KindValidation, StageGeneration, ErrUnknownCodeType,
			"unknown code type %q (expected python, ns3 or p4)", s)
	}
	return ct, nil
}

// VariantOf returns the variant for a known code type.
func VariantOf(ct artifact.CodeType) (Variant, bool) {
	v, ok := variants[ct]
	return v, ok
}
