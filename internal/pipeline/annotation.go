package pipeline

import "encoding/json"

// Annotation tree fan-out caps: roots per turn, branches per root, leaves
// per branch.
const (
	maxRoots    = 3
	maxBranches = 5
	maxLeaves   = 5
)

// AnnotationRoot is the top level of the three-level annotation tree the
// generator produces each turn. The tree is consumed read-only by the
// rendering collaborator.
type AnnotationRoot struct {
	Label    string             `json:"label"`
	Mood     Mood               `json:"mood"`
	Branches []AnnotationBranch `json:"branches,omitempty"`
}

type AnnotationBranch struct {
	Label  string           `json:"label"`
	Mood   Mood             `json:"mood"`
	Leaves []AnnotationLeaf `json:"leaves,omitempty"`
}

// UnmarshalJSON tolerates branches labeled with "text" instead of "label".
func (b *AnnotationBranch) UnmarshalJSON(data []byte) error {
	type branchAlias AnnotationBranch
	var alias struct {
		branchAlias
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*b = AnnotationBranch(alias.branchAlias)
	if b.Label == "" {
		b.Label = alias.Text
	}
	return nil
}

type AnnotationLeaf struct {
	Text string `json:"text"`
	Mood Mood   `json:"mood"`
}

// UnmarshalJSON accepts either a {"text","mood"} object or a bare string;
// the completion backend emits both shapes.
func (l *AnnotationLeaf) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		l.Text = s
		l.Mood = ""
		return nil
	}

	type leafAlias AnnotationLeaf
	var alias leafAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*l = AnnotationLeaf(alias)
	return nil
}

// sanitizeRoots enforces the structural invariants (fan-out 3/5/5) and runs
// every node mood through the sanitizer; the global mood is sanitized at
// the call site.
func sanitizeRoots(roots []AnnotationRoot) []AnnotationRoot {
	if len(roots) > maxRoots {
		roots = roots[:maxRoots]
	}
	for i := range roots {
		roots[i].Mood = SanitizeMood(string(roots[i].Mood))
		if len(roots[i].Branches) > maxBranches {
			roots[i].Branches = roots[i].Branches[:maxBranches]
		}
		for j := range roots[i].Branches {
			branch := &roots[i].Branches[j]
			branch.Mood = SanitizeMood(string(branch.Mood))
			if len(branch.Leaves) > maxLeaves {
				branch.Leaves = branch.Leaves[:maxLeaves]
			}
			for k := range branch.Leaves {
				branch.Leaves[k].Mood = SanitizeMood(string(branch.Leaves[k].Mood))
			}
		}
	}
	return roots
}
