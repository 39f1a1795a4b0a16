package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"tank-gateway/entities"

	"gopkg.in/yaml.v3"
)

var ErrBadCredentialTable = errors.New("bad credential table")

// StaticResolver serves a fixed table loaded at startup.
type StaticResolver struct {
	table map[string]entities.DeviceCredential
}

func NewStaticResolver(creds ...entities.DeviceCredential) *StaticResolver {
	r := &StaticResolver{table: make(map[string]entities.DeviceCredential, len(creds))}
	for _, c := range creds {
		r.table[c.DeviceID] = c
	}
	return r
}

func (*StaticResolver) Name() string { return "static" }

func (r *StaticResolver) Resolve(_ context.Context, deviceID string) (entities.DeviceCredential, bool, error) {
	c, ok := r.table[deviceID]
	return c, ok, nil
}

func (r *StaticResolver) Len() int { return len(r.table) }

type fileEntry struct {
	DeviceID   string `yaml:"device_id"`
	APIKey     string `yaml:"api_key"`
	HMACSecret string `yaml:"hmac_secret"`
	IsActive   *bool  `yaml:"is_active"`
}

type fileTable struct {
	Devices []fileEntry `yaml:"devices"`
}

// LoadStatic builds the fallback table from an optional YAML file and an
// optional env value. Env entries replace file entries with the same id.
func LoadStatic(path, envValue string) (*StaticResolver, error) {
	r := NewStaticResolver()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read credential file: %w", err)
		}
		fileCreds, err := ParseYAML(data)
		if err != nil {
			return nil, err
		}
		for _, c := range fileCreds {
			r.table[c.DeviceID] = c
		}
	}

	envCreds, err := ParseEnv(envValue)
	if err != nil {
		return nil, err
	}
	for _, c := range envCreds {
		r.table[c.DeviceID] = c
	}
	return r, nil
}

// ParseYAML reads a `devices:` list. is_active defaults to true.
func ParseYAML(data []byte) ([]entities.DeviceCredential, error) {
	var ft fileTable
	if err := yaml.Unmarshal(data, &ft); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCredentialTable, err)
	}
	out := make([]entities.DeviceCredential, 0, len(ft.Devices))
	for i, e := range ft.Devices {
		if e.DeviceID == "" || e.APIKey == "" {
			return nil, fmt.Errorf("%w: entry %d needs device_id and api_key", ErrBadCredentialTable, i)
		}
		active := true
		if e.IsActive != nil {
			active = *e.IsActive
		}
		out = append(out, entities.DeviceCredential{
			DeviceID:   e.DeviceID,
			APIKey:     e.APIKey,
			HMACSecret: e.HMACSecret,
			IsActive:   active,
		})
	}
	return out, nil
}

// ParseEnv reads "id:api_key[:hmac_secret]" entries separated by ',' or ';'.
func ParseEnv(value string) ([]entities.DeviceCredential, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	fields := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]entities.DeviceCredential, 0, len(fields))
	for _, f := range fields {
		parts := strings.Split(strings.TrimSpace(f), ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("%w: malformed entry %q", ErrBadCredentialTable, f)
		}
		c := entities.DeviceCredential{DeviceID: parts[0], APIKey: parts[1], IsActive: true}
		if len(parts) == 3 {
			c.HMACSecret = parts[2]
		}
		out = append(out, c)
	}
	return out, nil
}
