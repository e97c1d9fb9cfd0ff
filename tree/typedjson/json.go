// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package typedjson allows encoding and decoding command trees as JSON.
// The decoding process needs to know what node types to decode into,
// so the "typed JSON" requires "Type" keys in some node objects:
//
//   - The root node
//   - Any node held in a [tree.Node] interface field of its parent
//
// The types of all other nodes, such as the legs of a [tree.Pipe],
// are inferred from context alone.
//
// The interpreter uses this encoding to hand a subtree over to a child
// interpreter process.
package typedjson

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"mvdan.cc/vush/tree"
)

// Encode is a shortcut for EncodeOptions.Encode, with the default options.
func Encode(w io.Writer, node tree.Node) error {
	return EncodeOptions{}.Encode(w, node)
}

// EncodeOptions allows configuring how nodes are encoded.
type EncodeOptions struct {
	Indent string // e.g. "\t"
}

// Encode writes node to w in its typed JSON form,
// as described in the package documentation.
func (opts EncodeOptions) Encode(w io.Writer, node tree.Node) error {
	if node == nil {
		return fmt.Errorf("typedjson: cannot encode a nil node")
	}
	encVal, tname := encodeValue(reflect.ValueOf(node))
	if tname == "" {
		panic("node did not contain a named type?")
	}
	encVal.Elem().Field(0).SetString(tname)
	enc := json.NewEncoder(w)
	if opts.Indent != "" {
		enc.SetIndent("", opts.Indent)
	}
	return enc.Encode(encVal.Interface())
}

func encodeValue(val reflect.Value) (reflect.Value, string) {
	switch val.Kind() {
	case reflect.Ptr:
		if val.IsNil() {
			break
		}
		return encodeValue(val.Elem())
	case reflect.Interface:
		if val.IsNil() {
			break
		}
		enc, tname := encodeValue(val.Elem())
		if tname == "" {
			panic("interface did not contain a named type?")
		}
		enc.Elem().Field(0).SetString(tname)
		return enc, ""
	case reflect.Struct:
		// Construct a new struct with an optional Type,
		// and then all the fields of the node.
		typ := val.Type()
		fields := []reflect.StructField{typeField}
		for i := 0; i < typ.NumField(); i++ {
			fields = append(fields, reflect.StructField{
				Name: typ.Field(i).Name,
				Type: anyType,
				Tag:  `json:",omitempty"`,
			})
		}
		enc := reflect.New(reflect.StructOf(fields)).Elem()
		for i := 1; i < enc.NumField(); i++ {
			encElem, _ := encodeValue(val.Field(i - 1))
			if encElem.IsValid() {
				enc.Field(i).Set(encElem)
			}
		}
		// Addr helps prevent an allocation as we use interface{} fields.
		return enc.Addr(), typ.Name()
	case reflect.Slice:
		n := val.Len()
		if n == 0 {
			break
		}
		enc := reflect.MakeSlice(anySliceType, n, n)
		for i := 0; i < n; i++ {
			encElem, _ := encodeValue(val.Index(i))
			enc.Index(i).Set(encElem)
		}
		return enc, ""
	case reflect.String:
		// Slice elements must keep their position, even when empty.
		return val, ""
	case reflect.Int:
		if val.Int() != 0 {
			return val, ""
		}
	case reflect.Uint8:
		if val.Uint() != 0 {
			return val, ""
		}
	default:
		panic(val.Kind().String())
	}
	return noValue, ""
}

var (
	noValue reflect.Value

	anyType      = reflect.TypeOf((*interface{})(nil)).Elem() // interface{}
	anySliceType = reflect.SliceOf(anyType)                   // []interface{}

	typeField = reflect.StructField{
		Name: "Type",
		Type: reflect.TypeOf((*string)(nil)).Elem(),
		Tag:  `json:",omitempty"`,
	}
)

// Decode is a shortcut for DecodeOptions.Decode, with the default options.
func Decode(r io.Reader) (tree.Node, error) {
	return DecodeOptions{}.Decode(r)
}

// DecodeOptions allows configuring how nodes are decoded.
type DecodeOptions struct {
	// Validate makes Decode run [tree.Validate] on the result.
	Validate bool
}

// Decode reads a node from r in its typed JSON form,
// as described in the package documentation.
func (opts DecodeOptions) Decode(r io.Reader) (tree.Node, error) {
	var enc interface{}
	if err := json.NewDecoder(r).Decode(&enc); err != nil {
		return nil, err
	}
	if _, ok := enc.(map[string]interface{}); !ok {
		return nil, fmt.Errorf("typedjson: expected an object, got %T", enc)
	}
	node := new(tree.Node)
	if err := decodeValue(reflect.ValueOf(node).Elem(), enc); err != nil {
		return nil, err
	}
	if opts.Validate {
		if err := tree.Validate(*node); err != nil {
			return nil, err
		}
	}
	return *node, nil
}

var nodeByName = map[string]reflect.Type{
	"Command":  reflect.TypeOf((*tree.Command)(nil)).Elem(),
	"Sequence": reflect.TypeOf((*tree.Sequence)(nil)).Elem(),
	"Pipe":     reflect.TypeOf((*tree.Pipe)(nil)).Elem(),
	"Redirect": reflect.TypeOf((*tree.Redirect)(nil)).Elem(),
	"Subshell": reflect.TypeOf((*tree.Subshell)(nil)).Elem(),
	"Detach":   reflect.TypeOf((*tree.Detach)(nil)).Elem(),
}

func decodeValue(val reflect.Value, enc interface{}) error {
	switch enc := enc.(type) {
	case map[string]interface{}:
		if val.Kind() == reflect.Ptr && val.IsNil() {
			val.Set(reflect.New(val.Type().Elem()))
		}
		if typeName, _ := enc["Type"].(string); typeName != "" {
			typ := nodeByName[typeName]
			if typ == nil {
				return fmt.Errorf("unknown type: %q", typeName)
			}
			if val.Kind() != reflect.Interface {
				return fmt.Errorf("unexpected Type %q for %s", typeName, val.Type())
			}
			val.Set(reflect.New(typ))
		} else if val.Kind() == reflect.Interface {
			return fmt.Errorf("missing Type for %s", val.Type())
		}
		for val.Kind() == reflect.Ptr || val.Kind() == reflect.Interface {
			val = val.Elem()
		}
		for name, fv := range enc {
			if name == "Type" {
				continue // already used above
			}
			fval := val.FieldByName(name)
			if !fval.IsValid() {
				return fmt.Errorf("unknown field for %s: %q", val.Type(), name)
			}
			if err := decodeValue(fval, fv); err != nil {
				return fmt.Errorf("%s.%s: %w", val.Type().Name(), name, err)
			}
		}
	case []interface{}:
		if val.Kind() != reflect.Slice {
			return fmt.Errorf("unexpected list for %s", val.Type())
		}
		for _, encElem := range enc {
			elem := reflect.New(val.Type().Elem()).Elem()
			if err := decodeValue(elem, encElem); err != nil {
				return err
			}
			val.Set(reflect.Append(val, elem))
		}
	case float64:
		// encoding/json decodes all numbers as float64.
		switch val.Kind() {
		case reflect.Int:
			val.SetInt(int64(enc))
		case reflect.Uint8:
			if enc < 0 || enc > 255 {
				return fmt.Errorf("value out of range: %v", enc)
			}
			val.SetUint(uint64(enc))
		default:
			return fmt.Errorf("unexpected number for %s", val.Type())
		}
	case string:
		if val.Kind() != reflect.String {
			return fmt.Errorf("unexpected string for %s", val.Type())
		}
		val.SetString(enc)
	case nil:
	default:
		return fmt.Errorf("unexpected JSON value %T for %s", enc, val.Type())
	}
	return nil
}
