package hostapi

import (
	"github.com/arkanvault/corevault/internal/csvengine"
	"github.com/arkanvault/corevault/internal/permission"
	"github.com/arkanvault/corevault/internal/vaulterr"
)

// CsvAPI implements the csv.* namespace: vault-scoped CSV read/write and
// schema management, gated by the same vault.read/vault.write
// capabilities as VaultAPI since a CSV file is just another vault file.
type CsvAPI struct {
	root    string
	perms   *permission.Manager
	premium func() bool
}

// NewCsvAPI returns a CsvAPI rooted at vaultRoot. premium reports
// whether the current account has unlimited-row CSV access; pass a
// func returning false to always apply FreeRowLimit.
func NewCsvAPI(vaultRoot string, perms *permission.Manager, premium func() bool) *CsvAPI {
	return &CsvAPI{root: vaultRoot, perms: perms, premium: premium}
}

func (c *CsvAPI) requireCap(pluginID string, kind permission.Kind, path string) error {
	cap := permission.Capability{Kind: kind, Paths: []string{path}}
	return c.perms.RequireCapability(pluginID, cap)
}

// Read streams a vault-relative CSV file, applying the free-tier row
// cap unless the account is premium.
func (c *CsvAPI) Read(pluginID, path string, maxRows *int) (csvengine.Data, error) {
	if err := c.requireCap(pluginID, permission.VaultRead, path); err != nil {
		return csvengine.Data{}, err
	}
	abs, err := ValidatePath(c.root, path)
	if err != nil {
		return csvengine.Data{}, err
	}
	return csvengine.Read(abs, maxRows, c.premium())
}

// Write atomically replaces a vault-relative CSV file's contents.
func (c *CsvAPI) Write(pluginID, path string, headers []string, rows [][]string) error {
	if err := c.requireCap(pluginID, permission.VaultWrite, path); err != nil {
		return err
	}
	abs, err := ValidatePath(c.root, path)
	if err != nil {
		return err
	}
	return csvengine.Write(abs, headers, rows, c.premium())
}

// GetSchema loads path's companion schema, inferring and persisting one
// first if createIfMissing is true and none exists yet.
func (c *CsvAPI) GetSchema(pluginID, path string, createIfMissing bool) (csvengine.Schema, error) {
	if err := c.requireCap(pluginID, permission.VaultRead, path); err != nil {
		return csvengine.Schema{}, err
	}
	abs, err := ValidatePath(c.root, path)
	if err != nil {
		return csvengine.Schema{}, err
	}
	if csvengine.SchemaExists(abs) {
		return csvengine.LoadSchema(abs)
	}
	if !createIfMissing {
		return csvengine.Schema{}, vaulterr.New(vaulterr.NotFound, "no schema for %s", path)
	}
	if err := c.requireCap(pluginID, permission.VaultWrite, path); err != nil {
		return csvengine.Schema{}, err
	}
	data, err := csvengine.Read(abs, nil, c.premium())
	if err != nil {
		return csvengine.Schema{}, err
	}
	schema := csvengine.InferSchema(data.Headers, data.Rows)
	if err := csvengine.SaveSchema(abs, schema); err != nil {
		return csvengine.Schema{}, err
	}
	return schema, nil
}

// InferSchema infers a schema without persisting it, letting a caller
// review before calling SaveSchema.
func (c *CsvAPI) InferSchema(pluginID, path string) (csvengine.Schema, error) {
	if err := c.requireCap(pluginID, permission.VaultRead, path); err != nil {
		return csvengine.Schema{}, err
	}
	abs, err := ValidatePath(c.root, path)
	if err != nil {
		return csvengine.Schema{}, err
	}
	data, err := csvengine.Read(abs, nil, c.premium())
	if err != nil {
		return csvengine.Schema{}, err
	}
	return csvengine.InferSchema(data.Headers, data.Rows), nil
}

// SaveSchema persists an authored or edited schema for path.
func (c *CsvAPI) SaveSchema(pluginID, path string, schema csvengine.Schema) error {
	if err := c.requireCap(pluginID, permission.VaultWrite, path); err != nil {
		return err
	}
	abs, err := ValidatePath(c.root, path)
	if err != nil {
		return err
	}
	return csvengine.SaveSchema(abs, schema)
}
