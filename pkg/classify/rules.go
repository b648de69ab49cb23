package classify

import "github.com/matzehuels/packscan/pkg/deps"

// Marker dependencies used for detection.
var (
	// Angular, Vue and Next projects build with webpack under their own
	// tooling even when webpack is not a direct dependency.
	WebpackMarkers = []string{
		"webpack",
		"@angular/core",
		"vue",
		"webpack-cli",
		"webpack-dev-server",
		"@angular-devkit/build-angular",
		"react-scripts",
		"@vue/cli-service",
		"next",
	}
	AngularMarkers = []string{"@angular/core"}
	ReactMarkers   = []string{"react"}
	VueMarkers     = []string{"vue", "@vue/cli-service", "nuxt"}
	ExpressMarkers = []string{"express"}
	NestJSMarkers  = []string{"@nestjs/core"}
	NextMarkers    = []string{"next"}
)

// DefaultRules classifies webpack-based projects by framework. Projects
// without a webpack-family marker are blacklisted as not_webpack before any
// framework rule is considered.
var DefaultRules = []Rule{
	{Name: "not-webpack", Category: CategoryNotWebpack, Status: StatusBlacklisted, Match: Not(Has(WebpackMarkers...))},
	{Name: "angular", Category: CategoryAngular, Status: StatusCategorized, Match: Has(AngularMarkers...)},
	{Name: "react", Category: CategoryReact, Status: StatusCategorized, Match: Has(ReactMarkers...)},
	{Name: "vue", Category: CategoryVue, Status: StatusCategorized, Match: Has(VueMarkers...)},
	{Name: "express", Category: CategoryExpress, Status: StatusCategorized, Match: Has(ExpressMarkers...)},
	{Name: "nestjs", Category: CategoryNestJS, Status: StatusCategorized, Match: Has(NestJSMarkers...)},
	{Name: "next", Category: CategoryNext, Status: StatusCategorized, Match: Has(NextMarkers...)},
	{Name: "native", Category: CategoryNative, Status: StatusCategorized, Match: Always},
}

// TableRules is the framework-first ordering written to the categorization
// table. It never blacklists; projects matching nothing are "other".
var TableRules = []Rule{
	{Name: "angular", Category: CategoryAngular, Status: StatusCategorized, Match: Has(AngularMarkers...)},
	{Name: "vue", Category: CategoryVue, Status: StatusCategorized, Match: Has("vue")},
	{Name: "nestjs", Category: CategoryNestJS, Status: StatusCategorized, Match: Has(NestJSMarkers...)},
	{Name: "next", Category: CategoryNext, Status: StatusCategorized, Match: Has(NextMarkers...)},
	{Name: "react", Category: CategoryReact, Status: StatusCategorized, Match: Has(ReactMarkers...)},
	{Name: "express", Category: CategoryExpress, Status: StatusCategorized, Match: Has(ExpressMarkers...)},
	{Name: "native", Category: CategoryNative, Status: StatusCategorized, Match: Has("webpack")},
}

// Has matches sets declaring any of names in any section.
func Has(names ...string) func(*deps.Set) bool {
	return func(s *deps.Set) bool { return s.HasAny(names...) }
}

// Not inverts a predicate.
func Not(fn func(*deps.Set) bool) func(*deps.Set) bool {
	return func(s *deps.Set) bool { return !fn(s) }
}

// Always matches every set.
func Always(*deps.Set) bool { return true }
