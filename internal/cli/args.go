package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pborman/uuid"
)

// Read splits r into arguments, at most two per line: an id and the rest
func Read(r io.Reader) []string {
	args := []string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		args = append(args, strings.SplitN(line, " ", 2)...)
	}
	return args
}

// CheckID checks whether a string is a valid id
func CheckID(id string) error {
	if uuid.Parse(id) == nil {
		return fmt.Errorf("invalid id %q", id)
	}
	return nil
}

// ParseSpec checks whether a json string parses as an object and returns it
func ParseSpec(spec string) (JMap, error) {
	j := JMap{}
	if err := json.Unmarshal([]byte(spec), &j); err != nil {
		return nil, fmt.Errorf("invalid spec %q: %w", spec, err)
	}
	return j, nil
}
