package scaffold

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/datalpia/modelship/pkg/metadata"
)

// Encode renders m as a metadata YAML document. Shapes are written inline,
// e.g. shape: [null, 4].
func Encode(m metadata.Model) ([]byte, error) {
	var root yaml.Node
	if err := root.Encode(m); err != nil {
		return nil, fmt.Errorf("scaffold: encode metadata: %w", err)
	}
	inlineShapes(&root)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return nil, fmt.Errorf("scaffold: encode metadata: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("scaffold: encode metadata: %w", err)
	}
	return buf.Bytes(), nil
}

// Write validates m the way the site generator will and writes it to w.
// Nothing is written when validation fails.
func Write(w io.Writer, m metadata.Model) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	if _, err := metadata.Parse(data, "draft"); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("scaffold: write metadata: %w", err)
	}
	return nil
}

func inlineShapes(node *yaml.Node) {
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			if key.Value == "shape" && value.Kind == yaml.SequenceNode {
				value.Style = yaml.FlowStyle
			}
		}
	}
	for _, child := range node.Content {
		inlineShapes(child)
	}
}
