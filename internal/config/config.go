package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/go-light-tts/internal/model"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths    PathsConfig   `mapstructure:"paths"`
	Model    ModelConfig   `mapstructure:"model"`
	Text     TextConfig    `mapstructure:"text"`
	Runtime  RuntimeConfig `mapstructure:"runtime"`
	Server   ServerConfig  `mapstructure:"server"`
	LogLevel string        `mapstructure:"log_level"`
}

type PathsConfig struct {
	ModelPath  string `mapstructure:"model_path"`
	HintsPath  string `mapstructure:"hints_path"`
	OutputPath string `mapstructure:"output_path"`
}

// ModelConfig holds the hyperparameters used when a fresh model is
// initialized. A weight file carries its own configuration, which wins on
// load.
type ModelConfig struct {
	EmbedDims        int64  `mapstructure:"embed_dims"`
	RNNDims          int64  `mapstructure:"rnn_dims"`
	PrenetK          int64  `mapstructure:"prenet_k"`
	PrenetDims       int64  `mapstructure:"prenet_dims"`
	PostnetK         int64  `mapstructure:"postnet_k"`
	PostnetDims      int64  `mapstructure:"postnet_dims"`
	DurationConvDims int64  `mapstructure:"duration_conv_dims"`
	Highways         int    `mapstructure:"highways"`
	Mels             int64  `mapstructure:"mels"`
	Seed             uint64 `mapstructure:"seed"`
}

type TextConfig struct {
	Cleaners      string `mapstructure:"cleaners"`
	Language      string `mapstructure:"language"`
	EspeakPath    string `mapstructure:"espeak_path"`
	MaxChunkRunes int    `mapstructure:"max_chunk_runes"`
}

type RuntimeConfig struct {
	Threads int `mapstructure:"threads"`
}

type ServerConfig struct {
	ListenAddr      string  `mapstructure:"listen_addr"`
	MaxTextBytes    int     `mapstructure:"max_text_bytes"`
	MaxAlpha        float64 `mapstructure:"max_alpha"`
	RequestTimeout  int     `mapstructure:"request_timeout"`
	ShutdownTimeout int     `mapstructure:"shutdown_timeout"`
	Workers         int     `mapstructure:"workers"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	m := model.DefaultConfig(0)

	return Config{
		Paths: PathsConfig{
			ModelPath:  "models/lighttts.safetensors",
			HintsPath:  "",
			OutputPath: "mel.safetensors",
		},
		Model: ModelConfig{
			EmbedDims:        m.EmbedDims,
			RNNDims:          m.RNNDims,
			PrenetK:          m.PrenetK,
			PrenetDims:       m.PrenetDims,
			PostnetK:         m.PostnetK,
			PostnetDims:      m.PostnetDims,
			DurationConvDims: m.DurationConvDims,
			Highways:         m.Highways,
			Mels:             m.Mels,
			Seed:             42,
		},
		Text: TextConfig{
			Cleaners:      "basic_cleaners",
			Language:      "de",
			EspeakPath:    "espeak-ng",
			MaxChunkRunes: 300,
		},
		Runtime: RuntimeConfig{
			Threads: 4,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			MaxTextBytes:    4096,
			MaxAlpha:        10,
			RequestTimeout:  60,
			ShutdownTimeout: 30,
			Workers:         2,
		},
		LogLevel: "info",
	}
}

// ModelFor returns the model hyperparameters for a vocabulary of numChars
// symbols. A zero duration_conv_dims follows the vocabulary size.
func (c ModelConfig) ModelFor(numChars int64) model.Config {
	convDims := c.DurationConvDims
	if convDims == 0 {
		convDims = numChars
	}

	return model.Config{
		NumChars:         numChars,
		EmbedDims:        c.EmbedDims,
		RNNDims:          c.RNNDims,
		PrenetK:          c.PrenetK,
		PrenetDims:       c.PrenetDims,
		PostnetK:         c.PostnetK,
		PostnetDims:      c.PostnetDims,
		DurationConvDims: convDims,
		Highways:         c.Highways,
		Mels:             c.Mels,
	}
}

// Validate checks the settings that do not depend on external files.
func (c Config) Validate() error {
	var errs []error

	if c.Runtime.Threads < 1 {
		errs = append(errs, fmt.Errorf("runtime.threads must be >= 1, got %d", c.Runtime.Threads))
	}

	if c.Server.MaxTextBytes < 1 {
		errs = append(errs, fmt.Errorf("server.max_text_bytes must be >= 1, got %d", c.Server.MaxTextBytes))
	}

	if !(c.Server.MaxAlpha > 0) {
		errs = append(errs, fmt.Errorf("server.max_alpha must be > 0, got %g", c.Server.MaxAlpha))
	}

	if c.Server.RequestTimeout < 1 {
		errs = append(errs, fmt.Errorf("server.request_timeout must be >= 1, got %d", c.Server.RequestTimeout))
	}

	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must be >= 0, got %d", c.Server.ShutdownTimeout))
	}

	if c.Server.Workers < 0 {
		errs = append(errs, fmt.Errorf("server.workers must be >= 0, got %d", c.Server.Workers))
	}

	if c.Text.MaxChunkRunes < 0 {
		errs = append(errs, fmt.Errorf("text.max_chunk_runes must be >= 0, got %d", c.Text.MaxChunkRunes))
	}

	if strings.TrimSpace(c.Text.Cleaners) == "" {
		errs = append(errs, errors.New("text.cleaners must not be empty"))
	}

	if err := c.Model.ModelFor(1).Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// binding ties a viper key to its command-line flag.
type binding struct {
	key  string
	flag string
}

var bindings = []binding{
	{"paths.model_path", "paths-model-path"},
	{"paths.hints_path", "paths-hints-path"},
	{"paths.output_path", "paths-output-path"},
	{"model.embed_dims", "model-embed-dims"},
	{"model.rnn_dims", "model-rnn-dims"},
	{"model.prenet_k", "model-prenet-k"},
	{"model.prenet_dims", "model-prenet-dims"},
	{"model.postnet_k", "model-postnet-k"},
	{"model.postnet_dims", "model-postnet-dims"},
	{"model.duration_conv_dims", "model-duration-conv-dims"},
	{"model.highways", "model-highways"},
	{"model.mels", "model-mels"},
	{"model.seed", "model-seed"},
	{"text.cleaners", "text-cleaners"},
	{"text.language", "text-language"},
	{"text.espeak_path", "text-espeak-path"},
	{"text.max_chunk_runes", "text-max-chunk-runes"},
	{"runtime.threads", "runtime-threads"},
	{"server.listen_addr", "server-listen-addr"},
	{"server.max_text_bytes", "server-max-text-bytes"},
	{"server.max_alpha", "server-max-alpha"},
	{"server.request_timeout", "server-request-timeout"},
	{"server.shutdown_timeout", "server-shutdown-timeout"},
	{"server.workers", "server-workers"},
	{"log_level", "log-level"},
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-model-path", defaults.Paths.ModelPath, "Path to model weights (.safetensors)")
	fs.String("paths-hints-path", defaults.Paths.HintsPath, "Path to YAML phoneme hints (basic_cleaners_prod)")
	fs.String("paths-output-path", defaults.Paths.OutputPath, "Path for generated mel spectrograms")
	fs.Int64("model-embed-dims", defaults.Model.EmbedDims, "Symbol embedding width")
	fs.Int64("model-rnn-dims", defaults.Model.RNNDims, "Hidden size per direction of the decoder LSTM")
	fs.Int64("model-prenet-k", defaults.Model.PrenetK, "Convolution bank size of the encoder CBHG")
	fs.Int64("model-prenet-dims", defaults.Model.PrenetDims, "Channel width of the encoder CBHG")
	fs.Int64("model-postnet-k", defaults.Model.PostnetK, "Convolution bank size of the post-net CBHG")
	fs.Int64("model-postnet-dims", defaults.Model.PostnetDims, "Channel width of the post-net CBHG")
	fs.Int64("model-duration-conv-dims", defaults.Model.DurationConvDims, "Channel width of the duration predictor (0 = number of symbols)")
	fs.Int("model-highways", defaults.Model.Highways, "Highway layers per CBHG")
	fs.Int64("model-mels", defaults.Model.Mels, "Mel bins per frame")
	fs.Uint64("model-seed", defaults.Model.Seed, "Seed for parameter initialization")
	fs.String("text-cleaners", defaults.Text.Cleaners, "Comma-separated cleaner pipeline")
	fs.String("text-language", defaults.Text.Language, "espeak-ng voice/language")
	fs.String("text-espeak-path", defaults.Text.EspeakPath, "Path to espeak-ng executable")
	fs.Int("text-max-chunk-runes", defaults.Text.MaxChunkRunes, "Max characters per generated sentence chunk (0 disables chunking)")
	fs.Int("runtime-threads", defaults.Runtime.Threads, "Kernel worker goroutines")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Max request text size in bytes")
	fs.Float64("server-max-alpha", defaults.Server.MaxAlpha, "Largest duration scale a request may ask for")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request timeout in seconds")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain period in seconds")
	fs.Int("server-workers", defaults.Server.Workers, "Max requests waiting for or running generation (0 = unbounded)")
	fs.String("log-level", defaults.LogLevel, "Log level: debug|info|warn|error")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)

	if opts.Cmd != nil {
		fs := opts.Cmd.Flags()
		for _, b := range bindings {
			f := fs.Lookup(b.flag)
			if f == nil {
				continue
			}

			if err := v.BindPFlag(b.key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", b.flag, err)
			}
		}
	}

	v.SetEnvPrefix("LIGHTTTS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("lighttts")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_path", c.Paths.ModelPath)
	v.SetDefault("paths.hints_path", c.Paths.HintsPath)
	v.SetDefault("paths.output_path", c.Paths.OutputPath)
	v.SetDefault("model.embed_dims", c.Model.EmbedDims)
	v.SetDefault("model.rnn_dims", c.Model.RNNDims)
	v.SetDefault("model.prenet_k", c.Model.PrenetK)
	v.SetDefault("model.prenet_dims", c.Model.PrenetDims)
	v.SetDefault("model.postnet_k", c.Model.PostnetK)
	v.SetDefault("model.postnet_dims", c.Model.PostnetDims)
	v.SetDefault("model.duration_conv_dims", c.Model.DurationConvDims)
	v.SetDefault("model.highways", c.Model.Highways)
	v.SetDefault("model.mels", c.Model.Mels)
	v.SetDefault("model.seed", c.Model.Seed)
	v.SetDefault("text.cleaners", c.Text.Cleaners)
	v.SetDefault("text.language", c.Text.Language)
	v.SetDefault("text.espeak_path", c.Text.EspeakPath)
	v.SetDefault("text.max_chunk_runes", c.Text.MaxChunkRunes)
	v.SetDefault("runtime.threads", c.Runtime.Threads)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.max_alpha", c.Server.MaxAlpha)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("log_level", c.LogLevel)
}
