package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

const (
	SectionApplication = "Application"

	KeyDownloadServer    = "DownloadServer"
	KeyPlaylist          = "Playlist"
	KeyDownloadDirectory = "DownloadDirectory"
)

const (
	DefaultSettingsFile       = "precache-settings.ini"
	DefaultServerSettingsFile = "precache-server-settings.ini"
	DefaultLocalSettingsFile  = "precache-local-settings.ini"
	DefaultDownloadDirectory  = "./MovieNight"
)

var ErrMissingSettings = errors.New("settings file not found")

// S3 holds the credentials used when a locator points at an s3:// bucket.
type S3 struct {
	ApiURL    string
	AccessKey string
	SecretKey string
	Region    string
}

type Config struct {
	DownloadServer    string
	Playlist          string
	DownloadDirectory string
	S3                S3
}

// Paths are the two directories relative file names are resolved against.
// BaseDir holds the settings files, WorkDir anchors a relative download directory.
type Paths struct {
	BaseDir string
	WorkDir string
}

// Resolve returns p unchanged when absolute, otherwise joined onto dir.
func Resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Load reads the INI files in order, later files overriding earlier ones key
// by key, then applies .env and environment overrides.
func Load(paths Paths, files ...string) (*Config, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no settings file given")
	}

	sources := make([]interface{}, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrMissingSettings, f)
			}
			return nil, fmt.Errorf("cannot access settings file %s: %w", f, err)
		}
		sources = append(sources, f)
	}

	file, err := ini.LoadSources(ini.LoadOptions{Insensitive: true, IgnoreInlineComment: true}, sources[0], sources[1:]...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	if err := godotenv.Load(); err != nil {
		slog.Debug(".env file not found, using environment variables only")
	}

	app := file.Section(SectionApplication)
	config := &Config{
		DownloadServer:    getEnv("PRECACHE_DOWNLOAD_SERVER", strings.TrimSpace(app.Key(KeyDownloadServer).String())),
		Playlist:          getEnv("PRECACHE_PLAYLIST", strings.TrimSpace(app.Key(KeyPlaylist).String())),
		DownloadDirectory: getEnv("PRECACHE_DOWNLOAD_DIRECTORY", strings.TrimSpace(app.Key(KeyDownloadDirectory).String())),
		S3: S3{
			ApiURL:    getEnv("API_URL", ""),
			AccessKey: getEnv("ACCESS_KEY", ""),
			SecretKey: getEnv("SECRET_KEY", ""),
			Region:    getEnv("REGION", ""),
		},
	}

	if config.DownloadServer != "" && !strings.HasSuffix(config.DownloadServer, "/") {
		config.DownloadServer += "/"
	}
	config.DownloadDirectory = Resolve(paths.WorkDir, config.DownloadDirectory)

	return config, nil
}

// Validate reports configuration that can never lead to a download.
func (c *Config) Validate() error {
	if c.Playlist == "" {
		return fmt.Errorf("%s:%s is required", SectionApplication, KeyPlaylist)
	}
	if c.DownloadDirectory == "" {
		return fmt.Errorf("%s:%s is required", SectionApplication, KeyDownloadDirectory)
	}
	return nil
}

// EnsureLocalSettings writes a minimal local settings file at path unless one
// already exists. It reports whether the file was created.
func EnsureLocalSettings(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("cannot access local settings %s: %w", path, err)
	}

	file := ini.Empty()
	section, err := file.NewSection(SectionApplication)
	if err != nil {
		return false, fmt.Errorf("failed to build local settings: %w", err)
	}
	if _, err := section.NewKey(KeyDownloadDirectory, DefaultDownloadDirectory); err != nil {
		return false, fmt.Errorf("failed to build local settings: %w", err)
	}
	if err := file.SaveTo(path); err != nil {
		return false, fmt.Errorf("failed to write local settings %s: %w", path, err)
	}

	slog.Info("generated local settings", "path", path, "download_directory", DefaultDownloadDirectory)
	return true, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
