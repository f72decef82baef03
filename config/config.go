// Package config persists per-provider credentials to the platform config
// directory and overlays environment variables on read. Values written through
// the store always win over the environment.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/Laisky/errors/v2"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/blackjuly/ultra-mcp/relay/channeltype"
)

// ProviderCredential holds the connection settings for one upstream provider.
type ProviderCredential struct {
	APIKey         string `json:"apiKey,omitempty" mapstructure:"apiKey"`
	BaseURL        string `json:"baseURL,omitempty" mapstructure:"baseURL" validate:"omitempty,url"`
	PreferredModel string `json:"preferredModel,omitempty" mapstructure:"preferredModel"`
}

// AzureCredential extends the base credential with the Azure resource name the
// endpoint URL is derived from.
type AzureCredential struct {
	ProviderCredential `mapstructure:",squash"`
	ResourceName       string `json:"resourceName,omitempty" mapstructure:"resourceName"`
}

// BailianCredential carries the DashScope key plus per-subtype keys.
type BailianCredential struct {
	ProviderCredential `mapstructure:",squash"`
	Qwen3CoderAPIKey   string `json:"qwen3CoderApiKey,omitempty" mapstructure:"qwen3CoderApiKey"`
	DeepSeekR1APIKey   string `json:"deepseekR1ApiKey,omitempty" mapstructure:"deepseekR1ApiKey"`
}

// CompatibleCredential configures a user-supplied OpenAI-compatible endpoint.
type CompatibleCredential struct {
	ProviderCredential `mapstructure:",squash"`
	Subtype            string   `json:"subtype,omitempty" mapstructure:"subtype" validate:"omitempty,oneof=ollama openrouter"`
	Models             []string `json:"models,omitempty" mapstructure:"models"`
}

// VectorConfig selects the provider and model used for embedding calls.
type VectorConfig struct {
	Provider string `json:"provider,omitempty" mapstructure:"provider"`
	Model    string `json:"model,omitempty" mapstructure:"model"`
}

// Config is the full persisted configuration document.
type Config struct {
	OpenAI     ProviderCredential   `json:"openai,omitempty" mapstructure:"openai"`
	Google     ProviderCredential   `json:"google,omitempty" mapstructure:"google"`
	Azure      AzureCredential      `json:"azure,omitempty" mapstructure:"azure"`
	Grok       ProviderCredential   `json:"grok,omitempty" mapstructure:"grok"`
	Bailian    BailianCredential    `json:"bailian,omitempty" mapstructure:"bailian"`
	Compatible CompatibleCredential `json:"openaiCompatible,omitempty" mapstructure:"openaiCompatible"`
	Vector     VectorConfig         `json:"vector,omitempty" mapstructure:"vector"`
	Debug      bool                 `json:"debug,omitempty" mapstructure:"debug"`
}

// Store owns the config file and serializes access to it.
type Store struct {
	mu   sync.RWMutex
	path string
	file Config
}

var validate = validator.New()

// Load reads the configuration file at path (created empty when absent) and
// validates it. An unreadable or schema-invalid file is an error; a missing
// one is not.
func Load(path string) (*Store, error) {
	s := &Store{path: path}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Missing file: start from defaults, env overlay still applies.
		return s, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config file %s", path)
	}

	if err := v.Unmarshal(&s.file); err != nil {
		return nil, errors.Wrapf(err, "parse config file %s", path)
	}
	if err := validate.Struct(&s.file); err != nil {
		return nil, errors.Wrapf(err, "invalid config file %s", path)
	}
	return s, nil
}

// LoadDefault loads the store from the platform config directory.
func LoadDefault() (*Store, error) {
	path, err := FilePath()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// GetConfigPath returns the location of the persisted file.
func (s *Store) GetConfigPath() string {
	return s.path
}

// GetConfig returns the effective configuration: the persisted file with
// environment variables filled into any unset field.
func (s *Store) GetConfig() Config {
	s.mu.RLock()
	cfg := s.file
	s.mu.RUnlock()
	overlayEnv(&cfg)
	return cfg
}

// overlayEnv fills empty credential fields from the environment. The file
// always wins when both are present.
func overlayEnv(cfg *Config) {
	fill := func(dst *string, names ...string) {
		if *dst != "" {
			return
		}
		for _, name := range names {
			if v := os.Getenv(name); v != "" {
				*dst = v
				return
			}
		}
	}

	fill(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	fill(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	fill(&cfg.Google.APIKey, "GOOGLE_API_KEY")
	fill(&cfg.Google.BaseURL, "GOOGLE_BASE_URL")
	fill(&cfg.Azure.APIKey, "AZURE_API_KEY")
	// AZURE_ENDPOINT is the legacy alias for AZURE_BASE_URL.
	fill(&cfg.Azure.BaseURL, "AZURE_BASE_URL", "AZURE_ENDPOINT")
	fill(&cfg.Grok.APIKey, "XAI_API_KEY")
	fill(&cfg.Grok.BaseURL, "XAI_BASE_URL")
	fill(&cfg.Bailian.APIKey, "DASHSCOPE_API_KEY")
	fill(&cfg.Bailian.Qwen3CoderAPIKey, "QWEN3_CODER_API_KEY")
	fill(&cfg.Bailian.DeepSeekR1APIKey, "DEEPSEEK_R1_API_KEY")
}

// Credential returns the effective credential for one provider kind together
// with provider-specific extras flattened in.
func (s *Store) Credential(kind channeltype.Kind) ProviderCredential {
	cfg := s.GetConfig()
	switch kind {
	case channeltype.OpenAI:
		return cfg.OpenAI
	case channeltype.Google:
		return cfg.Google
	case channeltype.Azure:
		return cfg.Azure.ProviderCredential
	case channeltype.Grok:
		return cfg.Grok
	case channeltype.Bailian:
		return cfg.Bailian.ProviderCredential
	case channeltype.Compatible:
		return cfg.Compatible.ProviderCredential
	default:
		return ProviderCredential{}
	}
}

// SetAPIKey sets or clears (nil) the API key for a provider and persists.
func (s *Store) SetAPIKey(kind channeltype.Kind, value *string) error {
	return s.update(func(cfg *Config) error {
		dst := apiKeyField(cfg, kind)
		if dst == nil {
			return errors.Errorf("unknown provider %q", kind)
		}
		*dst = deref(value)
		return nil
	})
}

// SetBaseURL sets or clears the base URL for a provider, rejecting invalid
// URLs, and persists.
func (s *Store) SetBaseURL(kind channeltype.Kind, value *string) error {
	if value != nil && *value != "" {
		if err := validate.Var(*value, "url"); err != nil {
			return errors.Wrapf(err, "invalid base URL %q", *value)
		}
	}
	return s.update(func(cfg *Config) error {
		dst := baseURLField(cfg, kind)
		if dst == nil {
			return errors.Errorf("unknown provider %q", kind)
		}
		*dst = deref(value)
		return nil
	})
}

// SetPreferredModel sets or clears the provider's preferred model.
func (s *Store) SetPreferredModel(kind channeltype.Kind, value *string) error {
	return s.update(func(cfg *Config) error {
		dst := preferredModelField(cfg, kind)
		if dst == nil {
			return errors.Errorf("unknown provider %q", kind)
		}
		*dst = deref(value)
		return nil
	})
}

// SetAzureResourceName sets or clears the Azure resource name.
func (s *Store) SetAzureResourceName(value *string) error {
	return s.update(func(cfg *Config) error {
		cfg.Azure.ResourceName = deref(value)
		return nil
	})
}

// SetCompatibleSubtype records the OpenAI-compatible endpoint subtype.
func (s *Store) SetCompatibleSubtype(subtype string) error {
	if subtype != "" && subtype != channeltype.SubtypeOllama && subtype != channeltype.SubtypeOpenRouter {
		return errors.Errorf("unknown openai-compatible subtype %q", subtype)
	}
	return s.update(func(cfg *Config) error {
		cfg.Compatible.Subtype = subtype
		return nil
	})
}

// SetCompatibleModels records the models exposed by the compatible endpoint.
func (s *Store) SetCompatibleModels(models []string) error {
	return s.update(func(cfg *Config) error {
		cfg.Compatible.Models = models
		return nil
	})
}

// SetVectorConfig sets the embedding provider and model.
func (s *Store) SetVectorConfig(provider, model *string) error {
	return s.update(func(cfg *Config) error {
		if provider != nil {
			cfg.Vector.Provider = *provider
		}
		if model != nil {
			cfg.Vector.Model = *model
		}
		return nil
	})
}

// Reset clears every setting and persists the empty document.
func (s *Store) Reset() error {
	return s.update(func(cfg *Config) error {
		*cfg = Config{}
		return nil
	})
}

func (s *Store) update(mutate func(*Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.file
	if err := mutate(&next); err != nil {
		return err
	}
	if err := s.save(&next); err != nil {
		return err
	}
	s.file = next
	return nil
}

// save writes the document atomically via a temp file rename.
func (s *Store) save(cfg *Config) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "create config dir")
	}
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return errors.Wrap(err, "write config temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "replace config file")
	}
	return nil
}

func apiKeyField(cfg *Config, kind channeltype.Kind) *string {
	switch kind {
	case channeltype.OpenAI:
		return &cfg.OpenAI.APIKey
	case channeltype.Google:
		return &cfg.Google.APIKey
	case channeltype.Azure:
		return &cfg.Azure.APIKey
	case channeltype.Grok:
		return &cfg.Grok.APIKey
	case channeltype.Bailian:
		return &cfg.Bailian.APIKey
	case channeltype.Compatible:
		return &cfg.Compatible.APIKey
	default:
		return nil
	}
}

func baseURLField(cfg *Config, kind channeltype.Kind) *string {
	switch kind {
	case channeltype.OpenAI:
		return &cfg.OpenAI.BaseURL
	case channeltype.Google:
		return &cfg.Google.BaseURL
	case channeltype.Azure:
		return &cfg.Azure.BaseURL
	case channeltype.Grok:
		return &cfg.Grok.BaseURL
	case channeltype.Bailian:
		return &cfg.Bailian.BaseURL
	case channeltype.Compatible:
		return &cfg.Compatible.BaseURL
	default:
		return nil
	}
}

func preferredModelField(cfg *Config, kind channeltype.Kind) *string {
	switch kind {
	case channeltype.OpenAI:
		return &cfg.OpenAI.PreferredModel
	case channeltype.Google:
		return &cfg.Google.PreferredModel
	case channeltype.Azure:
		return &cfg.Azure.PreferredModel
	case channeltype.Grok:
		return &cfg.Grok.PreferredModel
	case channeltype.Bailian:
		return &cfg.Bailian.PreferredModel
	case channeltype.Compatible:
		return &cfg.Compatible.PreferredModel
	default:
		return nil
	}
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
