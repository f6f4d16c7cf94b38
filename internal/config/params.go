package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/resolve"
)

// LoadParameters reads a module parameters file. The top level maps module
// ids to their parameters. Files ending in .json are read as JSON, anything
// else as YAML.
func LoadParameters(path string) (resolve.Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read parameters: %w", err)
	}
	if filepath.Ext(path) == ".json" {
		return parseJSONParameters(data)
	}
	return ParseParameters(data)
}

// ParseParameters reads a YAML parameters document. Integers of any size
// are kept exact; integers beyond int64 become decimal strings.
func ParseParameters(data []byte) (resolve.Parameters, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse parameters: %w", err)
	}
	return ParametersFromNode(&doc)
}

// ParametersFromNode reads parameters from a decoded YAML node, such as a
// section of a larger document. A zero node means no parameters.
func ParametersFromNode(n *yaml.Node) (resolve.Parameters, error) {
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return resolve.Parameters{}, nil
		}
		n = n.Content[0]
	}
	if n.Kind == 0 {
		return resolve.Parameters{}, nil
	}
	v, err := nodeValue(n)
	if err != nil {
		return nil, fmt.Errorf("parse parameters: %w", err)
	}
	return toParameters(v)
}

func parseJSONParameters(data []byte) (resolve.Parameters, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse parameters: %w", err)
	}
	v, err := ir.FromGo(raw)
	if err != nil {
		return nil, fmt.Errorf("parse parameters: %w", err)
	}
	return toParameters(v)
}

func toParameters(v ir.IRValue) (resolve.Parameters, error) {
	top, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("parameters must map module ids to objects")
	}
	out := make(resolve.Parameters, len(top))
	for _, module := range top.SortedKeys() {
		params, ok := top[module].(ir.IRObject)
		if !ok {
			return nil, fmt.Errorf("parameters of module %s must be an object", module)
		}
		out[module] = params
	}
	return out, nil
}

func nodeValue(n *yaml.Node) (ir.IRValue, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.MappingNode:
		obj := make(ir.IRObject, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", n.Content[i].Value, err)
			}
			obj[n.Content[i].Value] = v
		}
		return obj, nil
	case yaml.SequenceNode:
		arr := make(ir.IRArray, len(n.Content))
		for i, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = v
		}
		return arr, nil
	case yaml.ScalarNode:
		return scalarValue(n)
	}
	return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
}

func scalarValue(n *yaml.Node) (ir.IRValue, error) {
	switch n.ShortTag() {
	case "!!int":
		if i, err := strconv.ParseInt(n.Value, 0, 64); err == nil {
			return ir.IRInt(i), nil
		}
		b, ok := new(big.Int).SetString(n.Value, 0)
		if !ok {
			return nil, fmt.Errorf("line %d: invalid integer %q", n.Line, n.Value)
		}
		return ir.BigIntValue(b), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return ir.IRBool(b), nil
	case "!!float":
		// yaml.v3 tags integers beyond 64 bits as floats.
		if b, ok := new(big.Int).SetString(n.Value, 10); ok {
			return ir.BigIntValue(b), nil
		}
		return nil, fmt.Errorf("line %d: floats are not allowed: %s", n.Line, n.Value)
	case "!!null":
		return nil, fmt.Errorf("line %d: null is not a valid value", n.Line)
	}
	return ir.IRString(n.Value), nil
}
