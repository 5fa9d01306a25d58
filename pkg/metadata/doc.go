// Package metadata defines the user-authored description of a model's inputs
// and outputs that the static site embeds. Descriptions are parsed from YAML
// (or JSON), checked against a structural schema built with kin-openapi and
// then against the typed rules that a schema cannot express (shape entries,
// default/type compatibility, bounds ordering). Every violation found is
// reported in a single *ValidationError so authors can fix a file in one pass.
package metadata
