package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// AnswerKind tags the shape carried by an Answer.
type AnswerKind uint8

const (
	// AnswerNone means no answer was given.
	AnswerNone AnswerKind = iota
	// AnswerScalar carries a single choice id, a "true"/"false" literal or free text.
	AnswerScalar
	// AnswerSet carries a set of choice ids.
	AnswerSet
)

func (k AnswerKind) String() string {
	switch k {
	case AnswerScalar:
		return "scalar"
	case AnswerSet:
		return "set"
	default:
		return "none"
	}
}

// Answer is the value stored for one question, both as a submitted answer
// and as a question's correct answer. Which kind is valid depends on the
// question type: scalar for singleChoice, trueFalse and openEnded, set for
// multipleChoice.
//
// On the wire a scalar is a JSON string (booleans and numbers are accepted
// and stringified) and a set is a JSON array of strings.
type Answer struct {
	kind   AnswerKind
	scalar string
	set    []string
}

// ScalarAnswer builds a single-value answer.
func ScalarAnswer(v string) Answer {
	return Answer{kind: AnswerScalar, scalar: v}
}

// SetAnswer builds a set answer. Duplicate ids are collapsed.
func SetAnswer(ids ...string) Answer {
	seen := make(map[string]struct{}, len(ids))
	set := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		set = append(set, id)
	}
	return Answer{kind: AnswerSet, set: set}
}

// IsBlank reports an answer that carries nothing: no value, an empty set
// or an empty scalar.
func (a Answer) IsBlank() bool {
	switch a.kind {
	case AnswerScalar:
		return a.scalar == ""
	case AnswerSet:
		return len(a.set) == 0
	default:
		return true
	}
}

// Kind returns the shape tag.
func (a Answer) Kind() AnswerKind { return a.kind }

// IsZero reports whether no answer is present.
func (a Answer) IsZero() bool { return a.kind == AnswerNone }

// Scalar returns the single value when the answer is scalar.
func (a Answer) Scalar() (string, bool) {
	if a.kind != AnswerScalar {
		return "", false
	}
	return a.scalar, true
}

// Set returns a copy of the ids when the answer is a set.
func (a Answer) Set() ([]string, bool) {
	if a.kind != AnswerSet {
		return nil, false
	}
	out := make([]string, len(a.set))
	copy(out, a.set)
	return out, true
}

// Equal compares two answers by kind and value; sets compare as sets.
func (a Answer) Equal(b Answer) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case AnswerScalar:
		return a.scalar == b.scalar
	case AnswerSet:
		return equalSets(a.set, b.set)
	default:
		return true
	}
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	m := make(map[string]struct{}, len(a))
	for _, v := range a {
		m[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := m[v]; !ok {
			return false
		}
	}
	return true
}

func (a Answer) String() string {
	switch a.kind {
	case AnswerScalar:
		return a.scalar
	case AnswerSet:
		s := append([]string(nil), a.set...)
		sort.Strings(s)
		return fmt.Sprint(s)
	default:
		return ""
	}
}

// MarshalJSON encodes a scalar as a string, a set as an array and no answer as null.
func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case AnswerScalar:
		return json.Marshal(a.scalar)
	case AnswerSet:
		if a.set == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.set)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, string, bool, number or an array of strings.
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Answer{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = ScalarAnswer(s)
	case '[':
		var ids []string
		if err := json.Unmarshal(data, &ids); err != nil {
			return fmt.Errorf("answer set must contain strings: %w", err)
		}
		*a = SetAnswer(ids...)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*a = ScalarAnswer(strconv.FormatBool(b))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("unsupported answer value %s", string(data))
		}
		*a = ScalarAnswer(n.String())
	}
	return nil
}

// MarshalYAML mirrors MarshalJSON for quiz documents authored as YAML.
func (a Answer) MarshalYAML() (interface{}, error) {
	switch a.kind {
	case AnswerScalar:
		return a.scalar, nil
	case AnswerSet:
		return a.set, nil
	default:
		return nil, nil
	}
}

// UnmarshalYAML accepts a scalar node or a sequence of scalars.
func (a *Answer) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*a = Answer{}
			return nil
		}
		*a = ScalarAnswer(node.Value)
	case yaml.SequenceNode:
		var ids []string
		if err := node.Decode(&ids); err != nil {
			return fmt.Errorf("answer set must contain strings: %w", err)
		}
		*a = SetAnswer(ids...)
	default:
		return fmt.Errorf("line %d: unsupported answer node", node.Line)
	}
	return nil
}
