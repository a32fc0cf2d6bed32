package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	defaultOutputPath = "/tmp/nowplaying.xml"
	defaultPlayer     = "org.mpris.MediaPlayer2.rhythmbox"

	envPrefix = "NOWPLAYING"
	appDir    = "nowplaying-xml"

	keyOutputPath = "output_path"
	keyPlayer     = "player"
	keyDebug      = "debug"
	keyConfigFile = "config"
)

// NewFlagSet declares the command-line flags understood by the daemon
func NewFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("nowplaying-xml", pflag.ContinueOnError)
	fs.StringP(keyConfigFile, "c", "", "Path to a YAML config file")
	fs.StringP("output", "o", defaultOutputPath, "Path of the now playing XML file")
	fs.StringP(keyPlayer, "p", defaultPlayer, "MPRIS bus name of the player to observe")
	fs.Bool(keyDebug, false, "Enable debug logging")
	return fs
}

// NewViper loads configuration from defaults, the config file, NOWPLAYING_*
// environment variables and flags, in increasing order of precedence.
func NewViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault(keyOutputPath, defaultOutputPath)
	v.SetDefault(keyPlayer, defaultPlayer)
	v.SetDefault(keyDebug, false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if file := v.GetString(keyConfigFile); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir := configHome(); dir != "" {
			v.AddConfigPath(filepath.Join(dir, appDir))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// bindFlags maps flag names onto config keys
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := map[string]string{
		keyConfigFile: keyConfigFile,
		keyOutputPath: "output",
		keyPlayer:     keyPlayer,
		keyDebug:      keyDebug,
	}
	for key, name := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// configHome follows XDG_CONFIG_HOME, falling back to ~/.config
func configHome() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config")
}

// IsDebug reports whether debug logging was requested
func IsDebug(v *viper.Viper) bool {
	return v.GetBool(keyDebug)
}

// AppConfig holds application configuration
type AppConfig struct {
	logger     *zap.Logger
	outputPath string
	player     string
}

// NewAppConfig creates a new application configuration instance
func NewAppConfig(logger *zap.Logger, v *viper.Viper) *AppConfig {
	outputPath := expandPath(v.GetString(keyOutputPath))
	if outputPath == "" {
		outputPath = defaultOutputPath
	}

	player := v.GetString(keyPlayer)
	if player == "" {
		player = defaultPlayer
	}

	logger.Info("Configuration loaded",
		zap.String("outputPath", outputPath),
		zap.String("player", player),
		zap.String("configFile", v.ConfigFileUsed()))

	return &AppConfig{
		logger:     logger,
		outputPath: outputPath,
		player:     player,
	}
}

// expandPath resolves environment variables and a leading ~
func expandPath(path string) string {
	path = os.ExpandEnv(path)
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return path
}

// GetOutputPath returns the path of the now playing XML file
func (c *AppConfig) GetOutputPath() string {
	return c.outputPath
}

// GetPlayer returns the MPRIS bus name of the observed player
func (c *AppConfig) GetPlayer() string {
	return c.player
}
