// Package classify assigns a technology category to a repository from its
// merged dependencies.
//
// Classification is an ordered decision list: rules are evaluated in order and
// the first match decides. The order is the priority contract, so a repository
// declaring both @angular/core and react is "angular" under [DefaultRules].
//
//	res := classify.Classify(set)
//	if res.Status == classify.StatusBlacklisted {
//	    // excluded from analysis
//	}
package classify

import (
	"fmt"

	"github.com/matzehuels/packscan/pkg/deps"
)

// Category is a technology label.
type Category string

const (
	CategoryNone       Category = ""
	CategoryAngular    Category = "angular"
	CategoryReact      Category = "react"
	CategoryVue        Category = "vue"
	CategoryExpress    Category = "express"
	CategoryNestJS     Category = "nestjs"
	CategoryNext       Category = "next"
	CategoryNative     Category = "native"
	CategoryNotWebpack Category = "not_webpack"
	CategoryOther      Category = "other"
)

// Categories lists every assignable category.
var Categories = []Category{
	CategoryAngular, CategoryReact, CategoryVue, CategoryExpress, CategoryNestJS,
	CategoryNext, CategoryNative, CategoryNotWebpack, CategoryOther,
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return CategoryNone, fmt.Errorf("unknown category %q", s)
}

// Status is the lifecycle state of a repository record.
type Status string

const (
	StatusUncategorized Status = "uncategorized"
	StatusCategorized   Status = "categorized"
	StatusBlacklisted   Status = "blacklisted"
	StatusAnalyzed      Status = "analyzed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusUncategorized, StatusCategorized, StatusBlacklisted, StatusAnalyzed}

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// CanTransition reports whether a record may move from one status to another
// outside of an explicit reset.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusUncategorized:
		return to == StatusCategorized || to == StatusBlacklisted
	case StatusCategorized, StatusBlacklisted:
		return to == StatusCategorized || to == StatusBlacklisted || (from == StatusCategorized && to == StatusAnalyzed)
	case StatusAnalyzed:
		return to == StatusAnalyzed
	}
	return false
}

// Result is the outcome of classification.
type Result struct {
	Category Category
	Status   Status
	Rule     string // Name of the rule that matched
}

// Rule pairs a predicate with the result it produces.
type Rule struct {
	Name     string
	Category Category
	Status   Status
	Match    func(*deps.Set) bool
}

// Classifier evaluates an ordered rule list.
type Classifier struct {
	rules []Rule
}

// New creates a Classifier over rules, evaluated in the given order.
// When no rule matches, the result is [CategoryOther] / [StatusCategorized].
func New(rules ...Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Rules returns the rule list in evaluation order.
func (c *Classifier) Rules() []Rule {
	return c.rules
}

// Classify returns the result of the first matching rule. It is a pure function
// of set; a nil set is treated as empty.
func (c *Classifier) Classify(set *deps.Set) Result {
	for _, r := range c.rules {
		if r.Match(set) {
			return Result{Category: r.Category, Status: r.Status, Rule: r.Name}
		}
	}
	return Result{Category: CategoryOther, Status: StatusCategorized}
}

// Classify applies [DefaultRules].
func Classify(set *deps.Set) Result {
	return defaultClassifier.Classify(set)
}

var defaultClassifier = New(DefaultRules...)
