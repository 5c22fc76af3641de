// Package ingest reads batch documents: a YAML (or JSON) document holding the
// records of every batch, grouped by key.
//
//	batches:
//	  - key: 会员_微信
//	    records:
//	      - {订单号: A1, 实收金额: 1060, 有效起始时间: 2024-01-01, 有效到期时间: 2024-01-31}
//
// Records keep the order their fields appear in, so passthrough columns are
// written back in the same order.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/iwvelando/revenue-recognition/internal/revenue"
	"gopkg.in/yaml.v3"
)

// ErrNoBatches is returned when the document has no batches list.
var ErrNoBatches = errors.New("document has no batches list")

// Load reads the batch document at path.
func Load(path string) ([]revenue.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open batch document: %w", err)
	}
	defer f.Close()

	batches, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return batches, nil
}

// Decode reads a batch document from r.
func Decode(r io.Reader) ([]revenue.Batch, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoBatches
		}
		return nil, fmt.Errorf("failed to parse batch document: %w", err)
	}

	root := resolve(&doc)
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = resolve(root.Content[0])
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping at the document root", root.Line)
	}

	list := lookup(root, "batches")
	if list == nil || list.Kind != yaml.SequenceNode {
		return nil, ErrNoBatches
	}

	batches := make([]revenue.Batch, 0, len(list.Content))
	seen := make(map[string]int, len(list.Content))
	for i, item := range list.Content {
		batch, err := decodeBatch(resolve(item))
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		if prev, dup := seen[batch.Key]; dup {
			return nil, fmt.Errorf("batch %d: key %q already used by batch %d", i, batch.Key, prev)
		}
		seen[batch.Key] = i
		batches = append(batches, batch)
	}
	return batches, nil
}

func decodeBatch(node *yaml.Node) (revenue.Batch, error) {
	if node.Kind != yaml.MappingNode {
		return revenue.Batch{}, fmt.Errorf("line %d: expected a mapping", node.Line)
	}

	keyNode := lookup(node, "key")
	if keyNode == nil || keyNode.Kind != yaml.ScalarNode || keyNode.Value == "" {
		return revenue.Batch{}, fmt.Errorf("line %d: missing key", node.Line)
	}
	batch := revenue.Batch{Key: keyNode.Value}

	records := lookup(node, "records")
	if records == nil || (records.Kind == yaml.ScalarNode && records.Tag == "!!null") {
		return batch, nil
	}
	if records.Kind != yaml.SequenceNode {
		return revenue.Batch{}, fmt.Errorf("%s: line %d: records must be a list", batch.Key, records.Line)
	}

	batch.Records = make([]revenue.RawRecord, 0, len(records.Content))
	for i, item := range records.Content {
		raw, err := decodeRecord(i, resolve(item))
		if err != nil {
			return revenue.Batch{}, fmt.Errorf("%s: %w", batch.Key, err)
		}
		batch.Records = append(batch.Records, raw)
	}
	return batch, nil
}

func decodeRecord(index int, node *yaml.Node) (revenue.RawRecord, error) {
	if node.Kind != yaml.MappingNode {
		return revenue.RawRecord{}, fmt.Errorf("record %d: line %d: expected a mapping", index, node.Line)
	}

	raw := revenue.RawRecord{
		Index:   index,
		Columns: make([]string, 0, len(node.Content)/2),
		Values:  make(map[string]any, len(node.Content)/2),
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		if _, dup := raw.Values[name]; dup {
			return revenue.RawRecord{}, fmt.Errorf("record %d: line %d: duplicate field %q", index, node.Content[i].Line, name)
		}

		var value any
		if err := resolve(node.Content[i+1]).Decode(&value); err != nil {
			return revenue.RawRecord{}, fmt.Errorf("record %d: field %q: %w", index, name, err)
		}
		raw.Columns = append(raw.Columns, name)
		raw.Values[name] = value
	}
	return raw, nil
}

// lookup returns the value node stored under key in a mapping node.
func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return resolve(mapping.Content[i+1])
		}
	}
	return nil
}

func resolve(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}
