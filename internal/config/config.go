package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Data     DataConfig
	Resample ResampleConfig
	Log      LogConfig
}

type ServerConfig struct {
	Addr string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

type DataConfig struct {
	Dir         string // raw corpora
	WorkDir     string // prepared per-corpus dirs and .done markers
	CorporaFile string
}

type ResampleConfig struct {
	TargetRate     int
	Workers        int
	BatchSize      int
	MaxFiles       int
	OutputDir      string
	MaxFilesPerDir int
	ItemTimeout    time.Duration
	Backend        string
}

type LogConfig struct {
	Level string
	File  string
}

// Load reads envFile (missing is fine) and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	workDir := getEnv("WORK_DIR", "work")
	return &Config{
		Server: ServerConfig{
			Addr: getEnv("STATUS_ADDR", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "127.0.0.1"),
			Port:     getEnvInt("DB_PORT", 3306),
			User:     getEnv("DB_USER", "root"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "curator"),
		},
		Data: DataConfig{
			Dir:         getEnv("DATA_DIR", "download"),
			WorkDir:     workDir,
			CorporaFile: getEnv("CORPORA_FILE", "corpora.yaml"),
		},
		Resample: ResampleConfig{
			TargetRate:     getEnvInt("TARGET_SAMPLE_RATE", 24000),
			Workers:        getEnvInt("RESAMPLE_WORKERS", 8),
			BatchSize:      getEnvInt("RESAMPLE_BATCH_SIZE", 1000),
			MaxFiles:       getEnvInt("RESAMPLE_MAX_FILES", 0),
			OutputDir:      getEnv("OUTPUT_DIR", workDir+"/audio"),
			MaxFilesPerDir: getEnvInt("MAX_FILES_PER_DIR", 0),
			ItemTimeout:    getEnvDuration("ITEM_TIMEOUT", 2*time.Minute),
			Backend:        getEnv("RESAMPLE_BACKEND", "ffmpeg"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
