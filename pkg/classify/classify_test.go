package classify

import (
	"testing"

	"github.com/matzehuels/packscan/pkg/deps"
)

func setOf(production map[string]string) *deps.Set {
	s := deps.NewSet()
	s.Merge(&deps.Manifest{Sections: map[deps.Section]map[string]string{deps.SectionProduction: production}})
	return s
}

func devSetOf(dev map[string]string) *deps.Set {
	s := deps.NewSet()
	s.Merge(&deps.Manifest{Sections: map[deps.Section]map[string]string{deps.SectionDev: dev}})
	return s
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		set      *deps.Set
		category Category
		status   Status
	}{
		{"empty", deps.NewSet(), CategoryNotWebpack, StatusBlacklisted},
		{"nil", nil, CategoryNotWebpack, StatusBlacklisted},
		{"react without webpack", setOf(map[string]string{"react": "18.0.0"}), CategoryNotWebpack, StatusBlacklisted},
		{"express without webpack", setOf(map[string]string{"express": "4"}), CategoryNotWebpack, StatusBlacklisted},
		{"angular implies webpack", setOf(map[string]string{"@angular/core": "17"}), CategoryAngular, StatusCategorized},
		{"vue implies webpack", setOf(map[string]string{"vue": "3"}), CategoryVue, StatusCategorized},
		{"webpack and react", setOf(map[string]string{"webpack": "5.0.0", "react": "18.0.0"}), CategoryReact, StatusCategorized},
		{"angular beats react", setOf(map[string]string{"webpack": "5", "@angular/core": "17", "react": "18"}), CategoryAngular, StatusCategorized},
		{"react beats vue", setOf(map[string]string{"webpack": "5", "vue": "3", "react": "18"}), CategoryReact, StatusCategorized},
		{"vue cli implies webpack", setOf(map[string]string{"@vue/cli-service": "5"}), CategoryVue, StatusCategorized},
		{"express", setOf(map[string]string{"webpack": "5", "express": "4"}), CategoryExpress, StatusCategorized},
		{"express beats nestjs", setOf(map[string]string{"webpack": "5", "express": "4", "@nestjs/core": "10"}), CategoryExpress, StatusCategorized},
		{"nestjs", setOf(map[string]string{"webpack": "5", "@nestjs/core": "10"}), CategoryNestJS, StatusCategorized},
		{"next alone", setOf(map[string]string{"next": "14"}), CategoryNext, StatusCategorized},
		{"next with react", setOf(map[string]string{"next": "14", "react": "18"}), CategoryReact, StatusCategorized},
		{"plain webpack", setOf(map[string]string{"webpack": "5", "lodash": "4"}), CategoryNative, StatusCategorized},
		{"webpack as dev dependency", devSetOf(map[string]string{"webpack": "5"}), CategoryNative, StatusCategorized},
		{"create react app", setOf(map[string]string{"react-scripts": "5", "react": "18"}), CategoryReact, StatusCategorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.set)
			if got.Category != tt.category || got.Status != tt.status {
				t.Errorf("Classify() = (%s, %s), want (%s, %s)", got.Category, got.Status, tt.category, tt.status)
			}
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	set := setOf(map[string]string{"webpack": "5", "vue": "3", "express": "4", "@nestjs/core": "10"})
	first := Classify(set)
	for i := 0; i < 50; i++ {
		if got := Classify(set); got != first {
			t.Fatalf("Classify() = %+v on run %d, want %+v", got, i, first)
		}
	}
}

func TestBlacklistIgnoresOtherMarkers(t *testing.T) {
	all := map[string]string{}
	for _, m := range [][]string{ReactMarkers, ExpressMarkers, NestJSMarkers} {
		for _, name := range m {
			all[name] = "1"
		}
	}

	got := Classify(setOf(all))
	if got.Category != CategoryNotWebpack || got.Status != StatusBlacklisted {
		t.Errorf("Classify() = %+v, want not_webpack/blacklisted", got)
	}
}

func TestTableRules(t *testing.T) {
	c := New(TableRules...)

	tests := []struct {
		name string
		set  *deps.Set
		want Category
	}{
		{"vue beats react", setOf(map[string]string{"vue": "3", "react": "18"}), CategoryVue},
		{"next beats react", setOf(map[string]string{"next": "14", "react": "18"}), CategoryNext},
		{"webpack only", setOf(map[string]string{"webpack": "5"}), CategoryNative},
		{"nothing", setOf(map[string]string{"lodash": "4"}), CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.set)
			if got.Category != tt.want {
				t.Errorf("Category = %s, want %s", got.Category, tt.want)
			}
			if got.Status != StatusCategorized {
				t.Errorf("Status = %s, want categorized", got.Status)
			}
		})
	}
}

func TestCustomRules(t *testing.T) {
	c := New(Rule{Name: "svelte", Category: CategoryOther, Status: StatusBlacklisted, Match: Has("svelte")})

	if got := c.Classify(setOf(map[string]string{"svelte": "4"})); got.Rule != "svelte" || got.Status != StatusBlacklisted {
		t.Errorf("Classify() = %+v, want svelte rule", got)
	}
	if got := c.Classify(deps.NewSet()); got.Category != CategoryOther || got.Rule != "" {
		t.Errorf("fallback = %+v, want other with no rule", got)
	}
	if len(c.Rules()) != 1 {
		t.Errorf("Rules() len = %d, want 1", len(c.Rules()))
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusUncategorized, StatusCategorized, true},
		{StatusUncategorized, StatusBlacklisted, true},
		{StatusUncategorized, StatusAnalyzed, false},
		{StatusCategorized, StatusBlacklisted, true},
		{StatusCategorized, StatusCategorized, true},
		{StatusCategorized, StatusAnalyzed, true},
		{StatusBlacklisted, StatusCategorized, true},
		{StatusBlacklisted, StatusAnalyzed, false},
		{StatusAnalyzed, StatusAnalyzed, true},
		{StatusAnalyzed, StatusCategorized, false},
		{StatusAnalyzed, StatusUncategorized, false},
		{StatusCategorized, StatusUncategorized, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	if c, err := ParseCategory("nestjs"); err != nil || c != CategoryNestJS {
		t.Errorf("ParseCategory(nestjs) = %q, %v", c, err)
	}
	if _, err := ParseCategory("svelte"); err == nil {
		t.Error("ParseCategory(svelte) should fail")
	}
	if s, err := ParseStatus("analyzed"); err != nil || s != StatusAnalyzed {
		t.Errorf("ParseStatus(analyzed) = %q, %v", s, err)
	}
	if _, err := ParseStatus("done"); err == nil {
		t.Error("ParseStatus(done) should fail")
	}
}
