package main

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v2"
)

// parseYAMLConfig feeds top-level keys of a YAML config file to ff. List
// values set the flag once per element.
func parseYAMLConfig(r io.Reader, set func(name, value string) error) error {
	var values map[string]interface{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && err != io.EOF {
		return fmt.Errorf("parsing yaml config: %w", err)
	}

	for name, raw := range values {
		switch v := raw.(type) {
		case nil:
			continue
		case []interface{}:
			for _, el := range v {
				if err := set(name, fmt.Sprint(el)); err != nil {
					return err
				}
			}
		case map[interface{}]interface{}:
			return fmt.Errorf("config key %q: nested values are not supported", name)
		default:
			if err := set(name, fmt.Sprint(v)); err != nil {
				return err
			}
		}
	}
	return nil
}
