package csvengine

import (
	"encoding/json"
	"os"

	"github.com/arkanvault/corevault/internal/frontmatter"
	"github.com/arkanvault/corevault/internal/vaulterr"
)

// SchemaExists reports whether csvPath has a companion schema file.
func SchemaExists(csvPath string) bool {
	_, err := os.Stat(SchemaPath(csvPath))
	return err == nil
}

// LoadSchema reads and decodes csvPath's companion schema file.
func LoadSchema(csvPath string) (Schema, error) {
	data, err := os.ReadFile(SchemaPath(csvPath))
	if err != nil {
		if os.IsNotExist(err) {
			return Schema{}, vaulterr.New(vaulterr.NotFound, "no schema for %s", csvPath)
		}
		return Schema{}, vaulterr.Wrap(vaulterr.IoError, err, "read schema for %s", csvPath)
	}
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return Schema{}, vaulterr.Wrap(vaulterr.Corrupted, err, "parse schema for %s", csvPath)
	}
	return s, nil
}

// SaveSchema atomically writes schema as csvPath's companion file.
func SaveSchema(csvPath string, schema Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "encode schema for %s", csvPath)
	}
	if err := frontmatter.WriteFileAtomic(SchemaPath(csvPath), data); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "write schema for %s", csvPath)
	}
	return nil
}
