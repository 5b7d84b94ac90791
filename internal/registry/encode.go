package registry

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/neomorfeo/tenantdb/internal/domain"
)

const generatedHeader = "# Code generated by tenantdb. DO NOT EDIT.\n# Tenant database connections, keyed by database name."

// entryDoc is the on-disk shape of one connection. Field order is the
// order in the document.
type entryDoc struct {
	TenantID int64             `yaml:"tenant_id"`
	Driver   string            `yaml:"driver"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Database string            `yaml:"database"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	Charset  string            `yaml:"charset,omitempty"`
	Options  map[string]string `yaml:"options,omitempty"`
}

type document struct {
	Connections map[string]entryDoc `yaml:"connections"`
}

// Encode renders the artifact as a YAML document. The connections mapping
// follows the artifact order (tenant id ascending) rather than key order,
// and the same artifact always renders to the same bytes.
func (a Artifact) Encode() ([]byte, error) {
	conns := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range a.Entries {
		var value yaml.Node
		if err := value.Encode(entryDoc{
			TenantID: int64(e.TenantID),
			Driver:   e.Driver,
			Host:     e.Host,
			Port:     e.Port,
			Database: e.Database,
			User:     e.User,
			Password: e.PasswordRef,
			Charset:  e.Charset,
			Options:  e.Options,
		}); err != nil {
			return nil, fmt.Errorf("encoding entry for tenant %d: %w", e.TenantID, err)
		}
		conns.Content = append(conns.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Database},
			&value,
		)
	}

	doc := &yaml.Node{
		Kind:        yaml.DocumentNode,
		HeadComment: generatedHeader,
		Content: []*yaml.Node{
			{
				Kind: yaml.MappingNode,
				Content: []*yaml.Node{
					{Kind: yaml.ScalarNode, Tag: "!!str", Value: "connections"},
					conns,
				},
			},
		},
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return nil, fmt.Errorf("marshaling registry: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("flushing registry: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a registry document produced by Encode.
func Decode(data []byte) (Artifact, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Artifact{}, fmt.Errorf("parsing registry: %w", err)
	}

	entries := make([]Entry, 0, len(doc.Connections))
	seen := make(map[domain.TenantID]string, len(doc.Connections))
	for key, d := range doc.Connections {
		id := domain.TenantID(d.TenantID)
		if id <= 0 {
			return Artifact{}, fmt.Errorf("connection %q has no tenant_id", key)
		}
		if other, dup := seen[id]; dup {
			return Artifact{}, fmt.Errorf("tenant %d registered twice (%q and %q)", id, other, key)
		}
		seen[id] = key

		database := d.Database
		if database == "" {
			database = key
		}
		entries = append(entries, Entry{
			TenantID:    id,
			Database:    database,
			Driver:      d.Driver,
			Host:        d.Host,
			Port:        d.Port,
			User:        d.User,
			PasswordRef: d.Password,
			Charset:     d.Charset,
			Options:     d.Options,
		})
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.TenantID, b.TenantID)
	})
	return Artifact{Entries: entries}, nil
}
