package mapping

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MappingFile is the declarative on-disk form of one or more mapping sets.
type MappingFile struct {
	Mappings []MappingSet `yaml:"mappings"`
}

// MappingSet declares a table mapping and its fields.
type MappingSet struct {
	Key         string      `yaml:"key"`
	Table       string      `yaml:"table"`
	ConflictKey string      `yaml:"conflict_key"`
	Fields      []fieldYAML `yaml:"fields"`
}

type fieldYAML struct {
	Source   string `yaml:"source"`
	Column   string `yaml:"column"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required"`
	Custom   bool   `yaml:"custom"`
	Inactive bool   `yaml:"inactive"`
	Rule     *struct {
		Kind   string     `yaml:"kind"`
		Value  string     `yaml:"value"`
		Expr   string     `yaml:"expr"`
		Params RuleParams `yaml:"params"`
	} `yaml:"rule"`
}

// LoadFile parses a declarative mapping file.
func LoadFile(path string) (*MappingFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapping file: %w", err)
	}
	var mf MappingFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parsing mapping file %s: %w", path, err)
	}
	for i, set := range mf.Mappings {
		if set.Key == "" || set.Table == "" {
			return nil, fmt.Errorf("mapping set %d: key and table are required", i)
		}
		for j, f := range set.Fields {
			if f.Source == "" || f.Column == "" {
				return nil, fmt.Errorf("mapping set %q field %d: source and column are required", set.Key, j)
			}
		}
	}
	return &mf, nil
}

// Import loads every mapping set in the file into the registry. Field
// mappings that collide with an existing active destination column are
// reported, not skipped silently.
func (mf *MappingFile) Import(ctx context.Context, reg Registry) error {
	for _, set := range mf.Mappings {
		if err := reg.PutTableMapping(ctx, TableMapping{
			MappingKey:  set.Key,
			TableName:   set.Table,
			ConflictKey: set.ConflictKey,
		}); err != nil {
			return err
		}
		for _, f := range set.Fields {
			fm, err := f.toMapping(set.Key)
			if err != nil {
				return fmt.Errorf("mapping set %q: %w", set.Key, err)
			}
			if _, err := reg.AddMapping(ctx, fm); err != nil {
				return fmt.Errorf("mapping set %q column %q: %w", set.Key, f.Column, err)
			}
		}
	}
	return nil
}

func (f fieldYAML) toMapping(key string) (FieldMapping, error) {
	rule := Rule(DirectRule{})
	if f.Rule != nil {
		params := RuleParams{}
		for k, v := range f.Rule.Params {
			params[k] = v
		}
		if f.Rule.Value != "" {
			params["value"] = f.Rule.Value
		}
		if f.Rule.Expr != "" {
			params["expr"] = f.Rule.Expr
		}
		r, err := DecodeRule(RuleKind(f.Rule.Kind), params)
		if err != nil {
			return FieldMapping{}, err
		}
		rule = r
	}
	return FieldMapping{
		MappingKey:  key,
		SourceField: f.Source,
		DestColumn:  f.Column,
		Type:        ParseFieldType(f.Type),
		Rule:        rule,
		IsCustom:    f.Custom,
		IsActive:    !f.Inactive,
		IsRequired:  f.Required,
	}, nil
}
