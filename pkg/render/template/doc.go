// Package template defines the renderer contract used to produce generated
// pages. The pongo2-backed implementation lives in the gotemplate subpackage.
package template
