package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Output formats
const (
	FormatID   = "id"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// idKeys are the fields a resource id may be under, in order of preference
var idKeys = []string{"id", "project_id", "compute_id"}

// JMap is a generic resource
type JMap map[string]interface{}

// ID returns the id value
func (j JMap) ID() string {
	for _, key := range idKeys {
		if id, ok := j[key].(string); ok {
			return id
		}
	}
	return ""
}

// String marshals into a json string
func (j JMap) String() string {
	buf, err := json.Marshal(&j)
	if err != nil {
		return ""
	}
	return string(buf)
}

// Print writes the resource to w as just its id, a json line or a yaml
// document
func (j JMap) Print(w io.Writer, format string) error {
	switch format {
	case FormatID, "":
		_, err := fmt.Fprintln(w, j.ID())
		return err
	case FormatJSON:
		_, err := fmt.Fprintln(w, j)
		return err
	case FormatYAML:
		buf, err := yaml.Marshal(map[string]interface{}(j))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "---\n%s", buf)
		return err
	}
	return fmt.Errorf("unknown output format %q", format)
}

// JMapSlice is an array of generic resources
type JMapSlice []JMap

// Len returns the length of the array
func (js JMapSlice) Len() int {
	return len(js)
}

// Less returns the comparsion of two elements
func (js JMapSlice) Less(i, j int) bool {
	return js[i].ID() < js[j].ID()
}

// Swap swaps two elements
func (js JMapSlice) Swap(i, j int) {
	js[j], js[i] = js[i], js[j]
}

// Print prints every resource in order
func (js JMapSlice) Print(w io.Writer, format string) error {
	for _, j := range js {
		if err := j.Print(w, format); err != nil {
			return err
		}
	}
	return nil
}
