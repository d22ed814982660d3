package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/ravi-parthasarathy/flowc/pkg/flow"
	"github.com/ravi-parthasarathy/flowc/pkg/forms"
)

const defaultEngineURL = "https://api.elevenlabs.io"

// appConfig is read from the environment after the env file is loaded.
type appConfig struct {
	EngineURL     string
	APIKey        string
	AuthHeader    string
	Workspace     string
	PlatformURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string
}

func loadConfig() (appConfig, error) {
	db, err := getIntEnv("REDIS_DB", 0)
	if err != nil {
		return appConfig{}, err
	}
	cfg := appConfig{
		EngineURL:     getEnv("FLOWC_ENGINE_URL", defaultEngineURL),
		APIKey:        getEnv("FLOWC_API_KEY", ""),
		AuthHeader:    getEnv("FLOWC_AUTH_HEADER", ""),
		Workspace:     getEnv("FLOWC_WORKSPACE", "default"),
		PlatformURL:   getEnv("FLOWC_PLATFORM_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       db,
		DatabaseURL:   getEnv("DATABASE_URL", ""),
	}
	return cfg, nil
}

// loadEnvFile loads path into the environment. A missing file is only an
// error when the user named it explicitly.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getIntEnv(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

// initLogger installs the default slog logger.
func initLogger(level, format string) error {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q: use debug, info, warn or error", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "text", "":
		h = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q: use text or json", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// loadFlow reads a flow file. .dot and .gv files parse as Graphviz, anything
// else as editor JSON.
func loadFlow(path string) (*flow.Graph, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dot", ".gv":
		return flow.ParseDOT(string(src))
	default:
		return flow.ParseJSON(src)
	}
}

// loadForms reads the --forms catalog; an empty path yields an empty catalog.
func loadForms(path string) (forms.Catalog, error) {
	if path == "" {
		return forms.Catalog{}, nil
	}
	return forms.LoadFile(path)
}
