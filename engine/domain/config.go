package domain

// Catalog of models offered to users. Unknown names are still accepted;
// the embedding dimension falls back to the default for them.
var (
	ChatModels      = []string{"gpt-4o-mini", "gpt-4o", "gpt-3.5-turbo"}
	EmbeddingModels = []string{"text-embedding-3-small", "text-embedding-3-large", "text-embedding-ada-002"}
)

// MaxK bounds the number of retrieved chunks a user may ask for.
const MaxK = 10

// Config holds the options of one RAG session. Changing any of them requires
// a new session.
type Config struct {
	ModelName      string `mapstructure:"model_name" yaml:"model_name" json:"model_name"`
	EmbeddingModel string `mapstructure:"embedding_model" yaml:"embedding_model" json:"embedding_model"`
	K              int    `mapstructure:"k" yaml:"k" json:"k"`
	ChunkSize      int    `mapstructure:"chunk_size" yaml:"chunk_size" json:"chunk_size"`
	Overlap        int    `mapstructure:"overlap" yaml:"overlap" json:"overlap"`
	CollectionName string `mapstructure:"collection_name" yaml:"collection_name" json:"collection_name"`
}

// DefaultConfig returns the defaults used by the API and CLI.
func DefaultConfig() Config {
	return Config{
		ModelName:      "gpt-4o-mini",
		EmbeddingModel: "text-embedding-3-small",
		K:              3,
		ChunkSize:      500,
		Overlap:        50,
		CollectionName: "my_documents",
	}
}
