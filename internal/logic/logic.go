// Package logic evaluates boolean condition trees against a form's data.
//
// A tree is built from two node kinds: Condition, a leaf comparing one field
// with a value, and Group, which combines child nodes with and/or/not.
// Evaluation never fails. Malformed or unknown nodes degrade to fixed
// defaults (see Evaluate).
package logic

import (
	"strings"

	"github.com/GyroZepelix/mithril-forms/internal/datapath"
	"github.com/GyroZepelix/mithril-forms/internal/jsonvalue"
)

// Operator is a leaf comparison operator.
type Operator string

// Supported leaf operators.
const (
	OpEqual        Operator = "==="
	OpNotEqual     Operator = "!=="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpStartsWith   Operator = "startsWith"
	OpEndsWith     Operator = "endsWith"
	OpContains     Operator = "contains"
	OpIn           Operator = "in"
	OpEmpty        Operator = "empty"
)

var knownOperators = map[Operator]bool{
	OpEqual: true, OpNotEqual: true,
	OpGreater: true, OpLess: true, OpGreaterEqual: true, OpLessEqual: true,
	OpStartsWith: true, OpEndsWith: true,
	OpContains: true, OpIn: true, OpEmpty: true,
}

// GroupOperator combines the children of a Group.
type GroupOperator string

// Supported group operators.
const (
	And GroupOperator = "and"
	Or  GroupOperator = "or"
	Not GroupOperator = "not"
)

// Known reports whether op is a supported leaf operator.
func (op Operator) Known() bool { return knownOperators[op] }

// Known reports whether op is a supported group operator.
func (op GroupOperator) Known() bool { return op == And || op == Or || op == Not }

// Node is a condition tree node: either a Condition or a Group.
type Node interface {
	logicNode()
}

// Condition compares the value stored under Field with Value.
type Condition struct {
	Field    string   `yaml:"field" json:"field"`
	Operator Operator `yaml:"operator" json:"operator"`
	Value    any      `yaml:"value,omitempty" json:"value,omitempty"`
}

// Group combines child nodes.
type Group struct {
	Operator   GroupOperator `yaml:"operator" json:"operator"`
	Conditions []Node        `yaml:"conditions" json:"conditions"`
}

func (Condition) logicNode() {}
func (Group) logicNode()     {}

// Evaluate reports whether node holds for data.
//
// Leaf comparisons are type-strict: numeric operators need numbers on both
// sides and string operators need strings on both sides, otherwise they are
// false. An unknown leaf operator is false.
//
// In a group, "and" needs every child, "or" needs any child, and "not"
// negates only its first child; further children are ignored. An unknown
// group operator evaluates to true. A nil node is true.
func Evaluate(node Node, data map[string]any) bool {
	switch n := node.(type) {
	case nil:
		return true
	case Condition:
		return evalCondition(n, data)
	case *Condition:
		if n == nil {
			return true
		}
		return evalCondition(*n, data)
	case Group:
		return evalGroup(n, data)
	case *Group:
		if n == nil {
			return true
		}
		return evalGroup(*n, data)
	default:
		return false
	}
}

func evalGroup(g Group, data map[string]any) bool {
	switch g.Operator {
	case And:
		for _, c := range g.Conditions {
			if !Evaluate(c, data) {
				return false
			}
		}
		return true
	case Or:
		for _, c := range g.Conditions {
			if Evaluate(c, data) {
				return true
			}
		}
		return false
	case Not:
		if len(g.Conditions) == 0 {
			return true
		}
		return !Evaluate(g.Conditions[0], data)
	default:
		return true
	}
}

func evalCondition(c Condition, data map[string]any) bool {
	actual, _ := datapath.Get(data, c.Field)
	expected := c.Value

	switch c.Operator {
	case OpEqual:
		return jsonvalue.StrictEqual(actual, expected)
	case OpNotEqual:
		return !jsonvalue.StrictEqual(actual, expected)
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		a, ok := jsonvalue.Number(actual)
		if !ok {
			return false
		}
		b, ok := jsonvalue.Number(expected)
		if !ok {
			return false
		}
		switch c.Operator {
		case OpGreater:
			return a > b
		case OpLess:
			return a < b
		case OpGreaterEqual:
			return a >= b
		default:
			return a <= b
		}
	case OpStartsWith, OpEndsWith:
		s, ok := actual.(string)
		if !ok {
			return false
		}
		affix, ok := expected.(string)
		if !ok {
			return false
		}
		if c.Operator == OpStartsWith {
			return strings.HasPrefix(s, affix)
		}
		return strings.HasSuffix(s, affix)
	case OpContains:
		list, ok := actual.([]any)
		if !ok {
			return false
		}
		return jsonvalue.Contains(list, expected)
	case OpIn:
		list, ok := expected.([]any)
		if !ok {
			return false
		}
		return jsonvalue.Contains(list, actual)
	case OpEmpty:
		return jsonvalue.IsEmpty(actual)
	default:
		return false
	}
}

// Walk calls fn for node and every descendant, depth first.
func Walk(node Node, fn func(Node)) {
	if node == nil {
		return
	}
	fn(node)
	switch n := node.(type) {
	case Group:
		for _, c := range n.Conditions {
			Walk(c, fn)
		}
	case *Group:
		if n != nil {
			for _, c := range n.Conditions {
				Walk(c, fn)
			}
		}
	}
}
