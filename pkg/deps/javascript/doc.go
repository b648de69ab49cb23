// Package javascript reads npm package.json manifests.
//
// # Manifest Parsing
//
// [PackageJSON] parses a single file into a [deps.Manifest]:
//
//	m, err := (&javascript.PackageJSON{}).Parse("package.json")
//
// [Reader] walks a whole repository, merging every package.json it finds
// (workspaces and monorepos keep one per package):
//
//	r := javascript.NewReader(deps.Options{Logger: logger.Warnf})
//	set, err := r.Read(ctx, "repositories/app_42/source")
//	if errors.Is(err, errors.ErrCodeManifestNotFound) {
//	    // nothing to classify
//	}
//
// Directories in [walk.DefaultIgnore] such as node_modules are never entered,
// so installed packages do not leak into the merged set.
//
// [deps.Manifest]: github.com/matzehuels/packscan/pkg/deps.Manifest
// [walk.DefaultIgnore]: github.com/matzehuels/packscan/pkg/walk.DefaultIgnore
package javascript
