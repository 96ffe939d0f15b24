package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths     PathsConfig    `mapstructure:"paths"`
	Runtime   RuntimeConfig  `mapstructure:"runtime"`
	Generate  GenerateConfig `mapstructure:"generate"`
	Output    OutputConfig   `mapstructure:"output"`
	LogLevel  string         `mapstructure:"log_level"`
	LogFormat string         `mapstructure:"log_format"`
}

type PathsConfig struct {
	ModelDir          string `mapstructure:"model_dir"`
	TokenizerManifest string `mapstructure:"tokenizer_manifest"`
	Prompt            string `mapstructure:"prompt"`
	CacheDir          string `mapstructure:"cache_dir"`
}

type RuntimeConfig struct {
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTVersion     string `mapstructure:"ort_version"`
	ORTAPIVersion  uint32 `mapstructure:"ort_api_version"`
	Precision      string `mapstructure:"precision"`
}

type GenerateConfig struct {
	SpeakerMode       string  `mapstructure:"speaker_mode"`
	TwoSpeaker        bool    `mapstructure:"two_speaker"`
	PureAudioAblation bool    `mapstructure:"pure_audio_ablation"`
	PromptSeconds     float64 `mapstructure:"prompt_seconds"`
	NumCompletions    int     `mapstructure:"num_completions"`
	TokenTemp         float64 `mapstructure:"token_temp"`
	CategoricalTemp   float64 `mapstructure:"categorical_temp"`
	GaussianTemp      float64 `mapstructure:"gaussian_temp"`
	MaxSteps          int     `mapstructure:"max_steps"`
	UseCache          bool    `mapstructure:"use_cache"`
	Seed              uint64  `mapstructure:"seed"`
}

type OutputConfig struct {
	Path       string `mapstructure:"path"`
	Format     string `mapstructure:"format"`
	KeepAll    bool   `mapstructure:"keep_all"`
	SavePrompt bool   `mapstructure:"save_prompt"`
}

const (
	PrecisionFull = "fp32"
	PrecisionBF16 = "bf16"

	FormatFloat32 = "float32"
	FormatPCM16   = "pcm16"
)

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			ModelDir:          "models",
			TokenizerManifest: "models/tokenizer/manifest.json",
			Prompt:            "prompts/toaskanymore.wav",
			CacheDir:          "",
		},
		Runtime: RuntimeConfig{
			ORTLibraryPath: "",
			ORTVersion:     "",
			ORTAPIVersion:  23,
			Precision:      PrecisionBF16,
		},
		Generate: GenerateConfig{
			SpeakerMode:     SpeakerSingle.String(),
			PromptSeconds:   3,
			NumCompletions:  10,
			TokenTemp:       0.8,
			CategoricalTemp: 0.5,
			GaussianTemp:    0.1,
			MaxSteps:        160,
			UseCache:        true,
		},
		Output: OutputConfig{
			Path:       "output.wav",
			Format:     FormatFloat32,
			KeepAll:    false,
			SavePrompt: true,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// flagBindings maps nested config keys to their command line flag names.
var flagBindings = []struct {
	key  string
	flag string
}{
	{"paths.model_dir", "model-dir"},
	{"paths.tokenizer_manifest", "tokenizer-manifest"},
	{"paths.prompt", "prompt"},
	{"paths.cache_dir", "cache-dir"},
	{"runtime.ort_library_path", "ort-lib"},
	{"runtime.ort_version", "ort-version"},
	{"runtime.ort_api_version", "ort-api-version"},
	{"runtime.precision", "precision"},
	{"generate.speaker_mode", "speaker-mode"},
	{"generate.two_speaker", "two-speaker"},
	{"generate.pure_audio_ablation", "pure-audio-ablation"},
	{"generate.prompt_seconds", "prompt-seconds"},
	{"generate.num_completions", "num-completions"},
	{"generate.token_temp", "token-temp"},
	{"generate.categorical_temp", "categorical-temp"},
	{"generate.gaussian_temp", "gaussian-temp"},
	{"generate.max_steps", "max-steps"},
	{"generate.use_cache", "use-cache"},
	{"generate.seed", "seed"},
	{"output.path", "out"},
	{"output.format", "format"},
	{"output.keep_all", "keep-all"},
	{"output.save_prompt", "save-prompt"},
	{"log_level", "log-level"},
	{"log_format", "log-format"},
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("model-dir", defaults.Paths.ModelDir, "Directory holding one ONNX bundle per model variant (base|split|ablation)")
	fs.String("tokenizer-manifest", defaults.Paths.TokenizerManifest, "Path to the latent tokenizer ONNX manifest.json")
	fs.String("prompt", defaults.Paths.Prompt, "Prompt audio WAV path")
	fs.String("cache-dir", defaults.Paths.CacheDir, "Directory for cached prompt latents (empty disables the cache)")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-version", defaults.Runtime.ORTVersion, "Expected ONNX Runtime version")
	fs.Uint32("ort-api-version", defaults.Runtime.ORTAPIVersion, "ONNX Runtime C API version expected by the purego binding")
	fs.String("precision", defaults.Runtime.Precision, "Numeric precision at model boundaries (fp32|bf16)")
	fs.String("speaker-mode", defaults.Generate.SpeakerMode, "Model variant (single|two-speaker|pure-audio-ablation)")
	fs.Bool("two-speaker", defaults.Generate.TwoSpeaker, "Use the two-speaker (split) model; same as --speaker-mode=two-speaker")
	fs.Bool("pure-audio-ablation", defaults.Generate.PureAudioAblation, "Use the pure audio ablation model; same as --speaker-mode=pure-audio-ablation")
	fs.Float64("prompt-seconds", defaults.Generate.PromptSeconds, "Prompt length in seconds used to trim the completion head")
	fs.Int("num-completions", defaults.Generate.NumCompletions, "Number of independent completions to generate")
	fs.Float64("token-temp", defaults.Generate.TokenTemp, "Token selection temperature")
	fs.Float64("categorical-temp", defaults.Generate.CategoricalTemp, "Mixture component temperature")
	fs.Float64("gaussian-temp", defaults.Generate.GaussianTemp, "Gaussian noise temperature")
	fs.Int("max-steps", defaults.Generate.MaxSteps, "Number of latent steps generated after the prompt")
	fs.Bool("use-cache", defaults.Generate.UseCache, "Use the KV-cache graphs when the model bundle provides them")
	fs.Uint64("seed", defaults.Generate.Seed, "Sampling seed (0 picks a random seed)")
	fs.String("out", defaults.Output.Path, "Output WAV path")
	fs.String("format", defaults.Output.Format, "Output sample format (float32|pcm16)")
	fs.Bool("keep-all", defaults.Output.KeepAll, "Write every completion to its own indexed file instead of overwriting --out")
	fs.Bool("save-prompt", defaults.Output.SavePrompt, "Write the preprocessed prompt to the output before completing")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("log-format", defaults.LogFormat, "Log format (text|json)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("HERTZDEV")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("runtime.ort_library_path", "HERTZDEV_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("hertzdev")
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

// Validate reports the first invalid setting. Speaker mode conflicts are
// reported by ResolveSpeakerMode so callers can fail before loading models.
func (c Config) Validate() error {
	if c.Generate.PromptSeconds < 0 {
		return fmt.Errorf("prompt seconds must be >= 0, got %v", c.Generate.PromptSeconds)
	}
	if c.Generate.NumCompletions < 1 {
		return fmt.Errorf("num completions must be >= 1, got %d", c.Generate.NumCompletions)
	}
	if c.Generate.MaxSteps < 0 {
		return fmt.Errorf("max steps must be >= 0, got %d", c.Generate.MaxSteps)
	}
	for name, temp := range map[string]float64{
		"token":       c.Generate.TokenTemp,
		"categorical": c.Generate.CategoricalTemp,
		"gaussian":    c.Generate.GaussianTemp,
	} {
		if temp < 0 {
			return fmt.Errorf("%s temperature must be >= 0, got %v", name, temp)
		}
	}
	switch strings.ToLower(c.Runtime.Precision) {
	case PrecisionFull, PrecisionBF16:
	default:
		return fmt.Errorf("invalid precision %q (expected %s|%s)", c.Runtime.Precision, PrecisionFull, PrecisionBF16)
	}
	switch strings.ToLower(c.Output.Format) {
	case FormatFloat32, FormatPCM16:
	default:
		return fmt.Errorf("invalid output format %q (expected %s|%s)", c.Output.Format, FormatFloat32, FormatPCM16)
	}
	return nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, b := range flagBindings {
		f := fs.Lookup(b.flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(b.key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", b.flag, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_dir", c.Paths.ModelDir)
	v.SetDefault("paths.tokenizer_manifest", c.Paths.TokenizerManifest)
	v.SetDefault("paths.prompt", c.Paths.Prompt)
	v.SetDefault("paths.cache_dir", c.Paths.CacheDir)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_version", c.Runtime.ORTVersion)
	v.SetDefault("runtime.ort_api_version", c.Runtime.ORTAPIVersion)
	v.SetDefault("runtime.precision", c.Runtime.Precision)
	v.SetDefault("generate.speaker_mode", c.Generate.SpeakerMode)
	v.SetDefault("generate.two_speaker", c.Generate.TwoSpeaker)
	v.SetDefault("generate.pure_audio_ablation", c.Generate.PureAudioAblation)
	v.SetDefault("generate.prompt_seconds", c.Generate.PromptSeconds)
	v.SetDefault("generate.num_completions", c.Generate.NumCompletions)
	v.SetDefault("generate.token_temp", c.Generate.TokenTemp)
	v.SetDefault("generate.categorical_temp", c.Generate.CategoricalTemp)
	v.SetDefault("generate.gaussian_temp", c.Generate.GaussianTemp)
	v.SetDefault("generate.max_steps", c.Generate.MaxSteps)
	v.SetDefault("generate.use_cache", c.Generate.UseCache)
	v.SetDefault("generate.seed", c.Generate.Seed)
	v.SetDefault("output.path", c.Output.Path)
	v.SetDefault("output.format", c.Output.Format)
	v.SetDefault("output.keep_all", c.Output.KeepAll)
	v.SetDefault("output.save_prompt", c.Output.SavePrompt)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("log_format", c.LogFormat)
}
