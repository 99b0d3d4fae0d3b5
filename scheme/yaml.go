package scheme

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// yamlDoc mirrors the YAML shape a scheme document is expected to have:
// a top-level `enums` list and `messages` list. This is the consumption
// surface only — the IDL grammar itself is out of scope (spec.md
// Non-goals); this struct simply describes the serialized form a loader
// already emitted.
type yamlDoc struct {
	Enums []struct {
		Name   string `yaml:"name"`
		Base   string `yaml:"base"`
		Values []struct {
			Name  string `yaml:"name"`
			Value int64  `yaml:"value"`
		} `yaml:"values"`
	} `yaml:"enums"`
	Messages []struct {
		Name   string `yaml:"name"`
		MsgID  int32  `yaml:"msgid"`
		Fields []struct {
			Name string `yaml:"name"`
			Type string `yaml:"type"`
			Ref  string `yaml:"ref"`
			Size int    `yaml:"size"`
		} `yaml:"fields"`
	} `yaml:"messages"`
}

// LoadYAML parses a scheme document (per SPEC_FULL.md §2's `yaml://path`
// loader) into a Scheme, using gopkg.in/yaml.v3 the same way the rest of
// the example pack uses it for structured config.
func LoadYAML(url string, data []byte) (*Scheme, error) {
	var doc yamlDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("scheme: yaml parse: %w", err)
	}

	s := New(url)

	for _, e := range doc.Enums {
		base, err := parseKind(e.Base)
		if err != nil {
			return nil, err
		}
		enum := &Enum{Name: e.Name, Base: base}
		for _, v := range e.Values {
			enum.Values = append(enum.Values, EnumValue{Name: v.Name, Value: v.Value})
		}
		if err := s.AddEnum(enum); err != nil {
			return nil, err
		}
	}

	for _, m := range doc.Messages {
		msg := &Message{Name: m.Name, MsgID: m.MsgID}
		for _, f := range m.Fields {
			kind, err := parseKind(f.Type)
			if err != nil {
				return nil, fmt.Errorf("scheme: message %s field %s: %w", m.Name, f.Name, err)
			}
			msg.Fields = append(msg.Fields, Field{
				Name: f.Name,
				Kind: kind,
				Ref:  f.Ref,
				Size: f.Size,
			})
		}
		if err := s.AddMessage(msg); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func parseKind(s string) (FieldKind, error) {
	switch s {
	case "int8":
		return KindInt8, nil
	case "int16":
		return KindInt16, nil
	case "int32":
		return KindInt32, nil
	case "int64":
		return KindInt64, nil
	case "uint8":
		return KindUint8, nil
	case "uint16":
		return KindUint16, nil
	case "uint32":
		return KindUint32, nil
	case "uint64":
		return KindUint64, nil
	case "double":
		return KindDouble, nil
	case "bytes":
		return KindBytes, nil
	case "string":
		return KindString, nil
	case "message":
		return KindMessage, nil
	case "enum":
		return KindEnum, nil
	default:
		return 0, fmt.Errorf("scheme: unknown field type %q", s)
	}
}
