// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

// Id identifies a failure class and the help text rendered for it.
type Id int

const (
	// PreconditionUnmetId: the package manager is missing or older than required.
	PreconditionUnmetId Id = iota + 1
	// ManifestNotFoundId: package.json is missing from the package folder.
	ManifestNotFoundId
	// ManifestInvalidId: package.json is malformed or lacks name/version.
	ManifestInvalidId
	// StagingFailedId: creating, copying or cleaning the staging tree failed.
	StagingFailedId
	// InstallFailedId: the dependency install subprocess exited non-zero.
	InstallFailedId
	// ArchiveFailedId: reading sources or writing the zip stream failed.
	ArchiveFailedId
	// PublishFailedId: creating the output folder or copying the artifact failed.
	PublishFailedId
	// ConfigLoadFailedId: the configuration file could not be loaded or validated.
	ConfigLoadFailedId
)

type (
	MarkdownMsg string

	HttpLink string

	Issue struct {
		id       Id          // ID used to lookup the issue
		name     string      // short kind name used in logs
		mdMsg    MarkdownMsg // Markdown text that will be rendered
		docLinks []HttpLink
	}
)

func (i *Issue) Id() Id {
	return i.id
}

// Name returns the short kind name (e.g. "SubprocessError").
func (i *Issue) Name() string {
	return i.name
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

// Render renders the Markdown help text with the given glamour style
// ("dark", "light", "notty" or a path to a style file).
func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "- [" + string(link) + "](" + string(link) + ")\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	preconditionUnmetIssue = &Issue{
		id:   PreconditionUnmetId,
		name: "PreconditionUnmet",
		mdMsg: `
# Package manager not ready!

lambdapack needs **npm 3 or newer** to install production dependencies
with a flat node_modules layout.

## Things you can try:
- Check which npm is on your PATH:
~~~
$ npm --version
~~~
- Upgrade npm:
~~~
$ npm install -g npm@latest
~~~
- Point lambdapack at another package manager binary:
~~~cue
package_manager: "/usr/local/bin/npm"
~~~`,
		docLinks: []HttpLink{"https://docs.npmjs.com/try-the-latest-stable-version-of-npm"},
	}

	manifestNotFoundIssue = &Issue{
		id:   ManifestNotFoundId,
		name: "ManifestError",
		mdMsg: `
# No package.json found!

The package folder must contain a package.json with at least a
` + "`name`" + ` and a ` + "`version`" + `.

## Things you can try:
- Check the ` + "`package_folder`" + ` of the target:
~~~
$ lambdapack config show
~~~
- Override it for a single run:
~~~
$ lambdapack package --package-folder ./functions/api
~~~`,
	}

	manifestInvalidIssue = &Issue{
		id:   ManifestInvalidId,
		name: "ManifestError",
		mdMsg: `
# Invalid package.json!

The manifest could not be parsed, or it is missing required members.

## Requirements:
- valid JSON object
- ` + "`name`" + `: non-empty string
- ` + "`version`" + `: non-empty string such as "1.0.0"
- ` + "`dependencies`" + ` (optional): object of version specifiers

## Example:
~~~json
{
  "name": "demo",
  "version": "1.0.0",
  "dependencies": { "libx": "file:../libx" }
}
~~~`,
	}

	stagingFailedIssue = &Issue{
		id:   StagingFailedId,
		name: "StagingError",
		mdMsg: `
# Staging failed!

lambdapack copies the package folder into a temporary directory before
installing dependencies. Creating or filling that directory failed.

## Things you can try:
- Make sure the temporary directory is writable and has free space
  (see ` + "`$TMPDIR`" + `)
- Check that every file in the package folder is readable
- Re-run with ` + "`--verbose`" + ` to see which path failed`,
	}

	installFailedIssue = &Issue{
		id:   InstallFailedId,
		name: "SubprocessError",
		mdMsg: `
# Dependency install failed!

` + "`npm install --production`" + ` exited with a non-zero status inside the
staging area. Its output is shown above.

## Things you can try:
- Run the install yourself in the package folder:
~~~
$ npm install --production
~~~
- Check that every ` + "`file:`" + ` dependency points at an existing folder
- Keep the staging area for inspection:
~~~
$ lambdapack package --keep-staging
~~~`,
	}

	archiveFailedIssue = &Issue{
		id:   ArchiveFailedId,
		name: "ArchiveError",
		mdMsg: `
# Archive creation failed!

A source file could not be read, or the zip file could not be written.
No artifact was published.

## Things you can try:
- Check the ` + "`include_files`" + ` patterns of the target
- Check for unreadable files or broken symlinks in the package folder
- Re-run with ` + "`--verbose`" + ` to see the failing path`,
	}

	publishFailedIssue = &Issue{
		id:   PublishFailedId,
		name: "PublishError",
		mdMsg: `
# Publishing the artifact failed!

The finished archive could not be copied into the dist folder.

## Things you can try:
- Check that the ` + "`dist_folder`" + ` is writable
- Check for free disk space`,
	}

	configLoadFailedIssue = &Issue{
		id:   ConfigLoadFailedId,
		name: "ConfigError",
		mdMsg: `
# Failed to load configuration!

The configuration file contains invalid CUE, or values that do not match
the schema.

## Example:
~~~cue
package_manager: "npm"

defaults: {
	dist_folder:  "dist"
	include_time: true
}

targets: {
	api: {
		package_folder: "./functions/api"
		include_files: ["config/*.json", ".env.production"]
	}
}
~~~

## Things you can try:
~~~
$ lambdapack config path
$ lambdapack config init
~~~`,
	}

	issues = map[Id]*Issue{
		preconditionUnmetIssue.Id(): preconditionUnmetIssue,
		manifestNotFoundIssue.Id():  manifestNotFoundIssue,
		manifestInvalidIssue.Id():   manifestInvalidIssue,
		stagingFailedIssue.Id():     stagingFailedIssue,
		installFailedIssue.Id():     installFailedIssue,
		archiveFailedIssue.Id():     archiveFailedIssue,
		publishFailedIssue.Id():     publishFailedIssue,
		configLoadFailedIssue.Id():  configLoadFailedIssue,
	}
)

// Values returns every registered issue ordered by Id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, v := range issues {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
