package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ocuroot/gitdrop/history"
	"github.com/ocuroot/gitdrop/source"
	"github.com/ocuroot/gitdrop/transport"
	"github.com/ocuroot/gitdrop/upload"
)

// Settings configure the CLI. Every field can be set through the
// environment or a .env file. An env tag may list several variables, the
// first one present wins.
type Settings struct {
	Token       string        `env:"GITDROP_TOKEN,GITHUB_TOKEN"`
	APIURL      string        `env:"GITDROP_API_URL"`
	Concurrency int           `env:"GITDROP_CONCURRENCY"`
	Timeout     time.Duration `env:"GITDROP_TIMEOUT"`
	MaxFileSize int64         `env:"GITDROP_MAX_FILE_SIZE"`
	Exclude     []string      `env:"GITDROP_EXCLUDE"`

	S3Endpoint  string `env:"GITDROP_S3_ENDPOINT"`
	S3Region    string `env:"GITDROP_S3_REGION"`
	S3AccessKey string `env:"GITDROP_S3_ACCESS_KEY"`
	S3SecretKey string `env:"GITDROP_S3_SECRET_KEY"`

	// HistoryBucket keeps the upload history in S3 instead of the home
	// directory.
	HistoryBucket string `env:"GITDROP_HISTORY_BUCKET"`
	HistoryPrefix string `env:"GITDROP_HISTORY_PREFIX"`
	HistoryKeep   int    `env:"GITDROP_HISTORY_KEEP"`
}

func DefaultSettings() Settings {
	return Settings{
		APIURL:      transport.DefaultBaseURL,
		Concurrency: upload.DefaultConcurrency,
		HistoryKeep: 100,
	}
}

// DotEnvFiles are read in order, later files override earlier ones.
func DotEnvFiles() []string {
	return []string{
		filepath.Join(HomeDir(), ".env"),
		".env",
	}
}

// LoadSettings reads the given .env files, which may be missing, then
// applies envVars on top.
func LoadSettings(envVars []string, dotEnvFiles ...string) (Settings, error) {
	s := DefaultSettings()

	var combined []string
	for _, f := range dotEnvFiles {
		values, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return s, fmt.Errorf("failed to read %s: %w", f, err)
		}
		for k, v := range values {
			combined = append(combined, k+"="+v)
		}
	}
	combined = append(combined, envVars...)

	if err := UnmarshalFromEnvVars(combined, &s); err != nil {
		return s, fmt.Errorf("failed to unmarshal env vars: %w", err)
	}
	if s.Concurrency < 1 {
		return s, fmt.Errorf("GITDROP_CONCURRENCY must be positive, got %d", s.Concurrency)
	}
	return s, nil
}

func (s Settings) S3Config() source.S3Config {
	return source.S3Config{
		Endpoint:  s.S3Endpoint,
		Region:    s.S3Region,
		AccessKey: s.S3AccessKey,
		SecretKey: s.S3SecretKey,
	}
}

// HistoryStore opens the upload history, in HistoryBucket if set and under
// the home directory otherwise.
func (s Settings) HistoryStore() *history.Store {
	if s.HistoryBucket != "" {
		return history.NewStore(history.NewS3Backend(source.NewS3Client(s.S3Config()), s.HistoryBucket, s.HistoryPrefix))
	}
	return history.NewStore(history.NewFsBackend(filepath.Join(HomeDir(), "history")))
}

// LoadSettingsFromEnvironment loads settings from the process environment
// and the default .env files.
func LoadSettingsFromEnvironment() (Settings, error) {
	return LoadSettings(os.Environ(), DotEnvFiles()...)
}

func UnmarshalFromEnvVars(in []string, out any) error {
	// Parse env vars into a map
	envMap := make(map[string]string)
	for _, envVar := range in {
		parts := strings.SplitN(envVar, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	// Get the reflect.Value of the output pointer
	outValue := reflect.ValueOf(out)
	if outValue.Kind() != reflect.Ptr {
		return fmt.Errorf("out must be a pointer, got %T", out)
	}

	// Get the underlying struct
	structValue := outValue.Elem()
	if structValue.Kind() != reflect.Struct {
		return fmt.Errorf("out must be a pointer to a struct, got pointer to %s", structValue.Kind())
	}

	// Iterate through struct fields and look for env tags
	structType := structValue.Type()
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		envTag := field.Tag.Get("env")
		if envTag == "" {
			continue
		}

		var (
			envName  string
			envValue string
			exists   bool
		)
		for _, name := range strings.Split(envTag, ",") {
			envName = strings.TrimSpace(name)
			if envValue, exists = envMap[envName]; exists {
				break
			}
		}
		if !exists {
			continue
		}

		// Get the field value
		fieldValue := structValue.Field(i)
		if !fieldValue.CanSet() {
			return fmt.Errorf("field %s cannot be set", field.Name)
		}

		// Parse and set the value based on field type
		if err := parseEnvValue(envValue, fieldValue, field.Name); err != nil {
			return fmt.Errorf("failed to parse env var %s for field %s: %w", envName, field.Name, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func parseEnvValue(value string, fieldValue reflect.Value, fieldName string) error {
	if fieldValue.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot parse duration: %w", err)
		}
		fieldValue.SetInt(int64(d))
		return nil
	}

	switch fieldValue.Kind() {
	case reflect.String:
		fieldValue.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cannot parse bool: %w", err)
		}
		fieldValue.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("cannot parse int: %w", err)
		}
		fieldValue.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("cannot parse uint: %w", err)
		}
		fieldValue.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("cannot parse float: %w", err)
		}
		fieldValue.SetFloat(f)
	case reflect.Slice:
		if fieldValue.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported type %s for env var parsing", fieldValue.Type())
		}
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		fieldValue.Set(reflect.ValueOf(items).Convert(fieldValue.Type()))
	case reflect.Map, reflect.Struct:
		return fmt.Errorf("unsupported type %s for env var parsing", fieldValue.Kind())
	default:
		return fmt.Errorf("unsupported type %s for field %s", fieldValue.Kind(), fieldName)
	}
	return nil
}
