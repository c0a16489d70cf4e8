// Package validation evaluates validation rule trees against a single field
// value and produces a user-facing error message.
//
// A tree is built from Rule leaves and Group branches. Evaluation never
// fails: a value that does not satisfy a rule, or a rule that cannot be
// checked, yields a message.
package validation

import (
	"regexp"
	"strings"

	"github.com/GyroZepelix/mithril-forms/internal/jsonvalue"
)

// Type is a leaf rule type.
type Type string

// Supported rule types.
const (
	TypeRequired   Type = "required"
	TypeRegex      Type = "regex"
	TypeMin        Type = "min"
	TypeMax        Type = "max"
	TypeIn         Type = "in"
	TypeContains   Type = "contains"
	TypeStartsWith Type = "startsWith"
	TypeEndsWith   Type = "endsWith"
)

// GroupOperator combines the rules of a Group.
type GroupOperator string

// Supported group operators.
const (
	And GroupOperator = "and"
	Or  GroupOperator = "or"
	Not GroupOperator = "not"
)

// Fixed messages produced by groups and by rules without a default.
const (
	MsgInvalid    = "Invalid value"
	MsgNoneMet    = "None of the required conditions were met"
	MsgDisallowed = "This value is specifically disallowed"
	MsgRequired   = "This field is required"
)

// defaultMessages holds the message used when a failing rule carries no
// errorMessage of its own.
var defaultMessages = map[Type]string{
	TypeRequired:   MsgRequired,
	TypeRegex:      "Invalid format",
	TypeMin:        "Value is too small",
	TypeMax:        "Value is too large",
	TypeIn:         "Value is not one of the allowed options",
	TypeContains:   "Value does not contain the required item",
	TypeStartsWith: "Value does not start with the required prefix",
	TypeEndsWith:   "Value does not end with the required suffix",
}

// Known reports whether t is a supported rule type.
func (t Type) Known() bool {
	_, ok := defaultMessages[t]
	return ok
}

// Known reports whether op is a supported group operator.
func (op GroupOperator) Known() bool { return op == And || op == Or || op == Not }

// Node is a validation tree node: either a Rule or a Group.
type Node interface {
	validationNode()
}

// Rule is a single check against the field value.
type Rule struct {
	Type         Type   `yaml:"type" json:"type"`
	Value        any    `yaml:"value,omitempty" json:"value,omitempty"`
	ErrorMessage string `yaml:"errorMessage,omitempty" json:"errorMessage,omitempty"`
}

// Group combines child rules.
type Group struct {
	Operator GroupOperator `yaml:"operator" json:"operator"`
	Rules    []Node        `yaml:"rules" json:"rules"`
}

func (Rule) validationNode()  {}
func (Group) validationNode() {}

// Evaluate returns the error message for value, or nil when value is valid.
//
// "and" reports the first failing rule. "or" passes when any rule passes and
// otherwise reports the first rule's error. "not" looks only at its first
// rule and fails with MsgDisallowed when that rule passes. Unknown group
// operators and nil nodes are valid.
func Evaluate(node Node, value any) *string {
	msg, failed := Message(node, value)
	if !failed {
		return nil
	}
	return &msg
}

// Message is Evaluate with a comma-ok result: failed is true when value does
// not satisfy node.
func Message(node Node, value any) (msg string, failed bool) {
	switch n := node.(type) {
	case nil:
		return "", false
	case Rule:
		return evalRule(n, value)
	case *Rule:
		if n == nil {
			return "", false
		}
		return evalRule(*n, value)
	case Group:
		return evalGroup(n, value)
	case *Group:
		if n == nil {
			return "", false
		}
		return evalGroup(*n, value)
	default:
		return "", false
	}
}

func evalGroup(g Group, value any) (string, bool) {
	switch g.Operator {
	case And:
		for _, r := range g.Rules {
			if msg, failed := Message(r, value); failed {
				return msg, true
			}
		}
		return "", false
	case Or:
		first, hasFirst := "", false
		for _, r := range g.Rules {
			msg, failed := Message(r, value)
			if !failed {
				return "", false
			}
			if !hasFirst {
				first, hasFirst = msg, true
			}
		}
		if hasFirst {
			return first, true
		}
		return MsgNoneMet, true
	case Not:
		if len(g.Rules) == 0 {
			return "", false
		}
		if _, failed := Message(g.Rules[0], value); failed {
			return "", false
		}
		return MsgDisallowed, true
	default:
		return "", false
	}
}

func evalRule(r Rule, value any) (string, bool) {
	if check(r, value) {
		return "", false
	}
	return messageFor(r), true
}

// messageFor picks the rule's own message, then the type default, then
// MsgInvalid.
func messageFor(r Rule) string {
	if r.ErrorMessage != "" {
		return r.ErrorMessage
	}
	if msg, ok := defaultMessages[r.Type]; ok {
		return msg
	}
	return MsgInvalid
}

// check reports whether value satisfies r.
func check(r Rule, value any) bool {
	switch r.Type {
	case TypeRequired:
		if value == nil {
			return false
		}
		s, isString := value.(string)
		return !isString || s != ""

	case TypeRegex:
		s, ok := value.(string)
		if !ok {
			return false
		}
		pattern, ok := r.Value.(string)
		if !ok {
			return false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(s)

	case TypeMin, TypeMax:
		v, ok := jsonvalue.Number(value)
		if !ok {
			return false
		}
		limit, ok := jsonvalue.Number(r.Value)
		if !ok {
			return false
		}
		if r.Type == TypeMin {
			return v >= limit
		}
		return v <= limit

	case TypeIn:
		list, ok := r.Value.([]any)
		if !ok {
			return false
		}
		return jsonvalue.Contains(list, value)

	case TypeContains:
		switch v := value.(type) {
		case []any:
			return jsonvalue.Contains(v, r.Value)
		case string:
			sub, ok := r.Value.(string)
			return ok && strings.Contains(v, sub)
		}
		return false

	case TypeStartsWith, TypeEndsWith:
		s, ok := value.(string)
		if !ok {
			return false
		}
		affix, ok := r.Value.(string)
		if !ok {
			return false
		}
		if r.Type == TypeStartsWith {
			return strings.HasPrefix(s, affix)
		}
		return strings.HasSuffix(s, affix)
	}
	return false
}

// HasRequired reports whether the tree contains a required rule anywhere,
// searching depth first.
func HasRequired(node Node) bool {
	found := false
	Walk(node, func(n Node) {
		switch r := n.(type) {
		case Rule:
			found = found || r.Type == TypeRequired
		case *Rule:
			found = found || (r != nil && r.Type == TypeRequired)
		}
	})
	return found
}

// Walk calls fn for node and every descendant, depth first.
func Walk(node Node, fn func(Node)) {
	if node == nil {
		return
	}
	fn(node)
	var rules []Node
	switch g := node.(type) {
	case Group:
		rules = g.Rules
	case *Group:
		if g != nil {
			rules = g.Rules
		}
	}
	for _, r := range rules {
		Walk(r, fn)
	}
}
