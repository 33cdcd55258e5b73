package dynamo

// Config holds configuration for the DynamoDB collections.
type Config struct {
	// DocumentTable holds one item per element, keyed by "id".
	// Default: "elementstore_documents"
	DocumentTable string

	// HistoryTable holds modification records keyed by "elementId" and
	// "revision".
	// Default: "elementstore_history"
	HistoryTable string

	// MetaTable holds element types and the revision counter, keyed by "pk".
	// Default: "elementstore_meta"
	MetaTable string

	// Region and Endpoint override the AWS defaults when set. Endpoint is
	// typically a local DynamoDB.
	Region   string
	Endpoint string
}

// DefaultConfig returns the default table names.
func DefaultConfig() Config {
	return Config{
		DocumentTable: "elementstore_documents",
		HistoryTable:  "elementstore_history",
		MetaTable:     "elementstore_meta",
	}
}

// validate fills in missing table names.
func (c *Config) validate() {
	def := DefaultConfig()
	if c.DocumentTable == "" {
		c.DocumentTable = def.DocumentTable
	}
	if c.HistoryTable == "" {
		c.HistoryTable = def.HistoryTable
	}
	if c.MetaTable == "" {
		c.MetaTable = def.MetaTable
	}
}
