// Package deps models the dependencies declared by a repository's manifests.
//
// # Overview
//
// A repository may contain many manifests (monorepos and workspaces nest
// one per package). This package defines:
//
//   - [Section]: the manifest section a dependency is declared in
//   - [Manifest]: one parsed manifest file
//   - [Set]: the merged view over every manifest of a repository
//   - [ManifestParser]: the interface implemented per ecosystem
//
// # Merge Policy
//
// [Set.Merge] applies manifests in the order it is called. Later manifests
// override earlier ones on key collision within the same section. Readers
// order manifests deepest-first so the repository root is merged last and
// acts as the authority:
//
//	set := deps.NewSet()
//	for _, m := range manifests { // deepest first
//	    set.Merge(m)
//	}
//	set.Has("webpack")
//
// Within one manifest, sections are merged in [Sections] order. [Set.All]
// flattens the sections in that same order, so for a name declared in both
// dependencies and devDependencies the devDependencies version is reported.
//
// # Ecosystems
//
//   - [javascript]: package.json
//
// [javascript]: github.com/matzehuels/packscan/pkg/deps/javascript
package deps
