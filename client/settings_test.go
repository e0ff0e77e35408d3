package client

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ocuroot/gitdrop/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalFromEnvVars(t *testing.T) {
	type EnvTestStruct struct {
		StringField   string        `env:"TEST_STRING"`
		BoolField     bool          `env:"TEST_BOOL"`
		IntField      int           `env:"TEST_INT"`
		Int64Field    int64         `env:"TEST_INT64"`
		UintField     uint          `env:"TEST_UINT"`
		Float64Field  float64       `env:"TEST_FLOAT64"`
		DurationField time.Duration `env:"TEST_DURATION"`
		ListField     []string      `env:"TEST_LIST"`
		FallbackField string        `env:"TEST_PRIMARY,TEST_SECONDARY"`
		NoTagField    string
		NoEnvField    string `env:"TEST_MISSING"`
	}

	var tests = []struct {
		name     string
		in       []string
		ptr      any
		expected any
		wantErr  bool
	}{
		{
			name:     "empty_env",
			in:       []string{},
			ptr:      new(EnvTestStruct),
			expected: &EnvTestStruct{},
		},
		{
			name: "string_field",
			in:   []string{"TEST_STRING=hello world"},
			ptr:  new(EnvTestStruct),
			expected: &EnvTestStruct{
				StringField: "hello world",
			},
		},
		{
			name: "value_containing_equals",
			in:   []string{"TEST_STRING=a=b"},
			ptr:  new(EnvTestStruct),
			expected: &EnvTestStruct{
				StringField: "a=b",
			},
		},
		{
			name: "bool_1",
			in:   []string{"TEST_BOOL=1"},
			ptr:  new(EnvTestStruct),
			expected: &EnvTestStruct{
				BoolField: true,
			},
		},
		{
			name: "numbers",
			in:   []string{"TEST_INT=-4", "TEST_INT64=9000000000", "TEST_UINT=7", "TEST_FLOAT64=1.5"},
			ptr:  new(EnvTestStruct),
			expected: &EnvTestStruct{
				IntField:     -4,
				Int64Field:   9000000000,
				UintField:    7,
				Float64Field: 1.5,
			},
		},
		{
			name: "duration",
			in:   []string{"TEST_DURATION=1m30s"},
			ptr:  new(EnvTestStruct),
			expected: &EnvTestStruct{
				DurationField: 90 * time.Second,
			},
		},
		{
			name: "list",
			in:   []string{"TEST_LIST=*.log, node_modules ,,dist"},
			ptr:  new(EnvTestStruct),
			expected: &EnvTestStruct{
				ListField: []string{"*.log", "node_modules", "dist"},
			},
		},
		{
			name: "fallback_used",
			in:   []string{"TEST_SECONDARY=second"},
			ptr:  new(EnvTestStruct),
			expected: &EnvTestStruct{
				FallbackField: "second",
			},
		},
		{
			name: "primary_preferred",
			in:   []string{"TEST_SECONDARY=second", "TEST_PRIMARY=first"},
			ptr:  new(EnvTestStruct),
			expected: &EnvTestStruct{
				FallbackField: "first",
			},
		},
		{
			name: "later_value_wins",
			in:   []string{"TEST_STRING=one", "TEST_STRING=two"},
			ptr:  new(EnvTestStruct),
			expected: &EnvTestStruct{
				StringField: "two",
			},
		},
		{
			name:    "invalid_int",
			in:      []string{"TEST_INT=abc"},
			ptr:     new(EnvTestStruct),
			wantErr: true,
		},
		{
			name:    "invalid_duration",
			in:      []string{"TEST_DURATION=10"},
			ptr:     new(EnvTestStruct),
			wantErr: true,
		},
		{
			name:    "not_a_pointer",
			in:      []string{},
			ptr:     EnvTestStruct{},
			wantErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := UnmarshalFromEnvVars(test.in, test.ptr)
			if test.wantErr {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !cmp.Equal(test.expected, test.ptr) {
				t.Errorf("output not as expected\n%s", cmp.Diff(test.expected, test.ptr))
			}
		})
	}
}

func TestUnmarshalFromEnvVarsUnsupportedTypes(t *testing.T) {
	type UnsupportedStruct struct {
		IntSliceField []int             `env:"TEST_SLICE"`
		MapField      map[string]string `env:"TEST_MAP"`
	}

	for _, in := range []string{"TEST_SLICE=1", "TEST_MAP=value"} {
		err := UnmarshalFromEnvVars([]string{in}, new(UnsupportedStruct))
		if err == nil {
			t.Fatalf("expected error for %s but got none", in)
		}
		if !strings.Contains(err.Error(), "unsupported type") {
			t.Errorf("expected 'unsupported type' error, got: %v", err)
		}
	}
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	homeEnv := filepath.Join(dir, "home.env")
	localEnv := filepath.Join(dir, "local.env")
	require.NoError(t, os.WriteFile(homeEnv, []byte("GITHUB_TOKEN=from-home\nGITDROP_CONCURRENCY=4\n"), 0o600))
	require.NoError(t, os.WriteFile(localEnv, []byte("GITDROP_CONCURRENCY=6\nGITDROP_EXCLUDE=*.log,dist\n"), 0o600))

	s, err := LoadSettings(
		[]string{"GITDROP_TIMEOUT=30s"},
		homeEnv, localEnv, filepath.Join(dir, "missing.env"),
	)
	require.NoError(t, err)

	want := DefaultSettings()
	want.Token = "from-home"
	want.Concurrency = 6
	want.Timeout = 30 * time.Second
	want.Exclude = []string{"*.log", "dist"}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}

	s, err = LoadSettings([]string{"GITDROP_TOKEN=explicit", "GITHUB_TOKEN=ignored"}, homeEnv)
	require.NoError(t, err)
	assert.Equal(t, "explicit", s.Token)
}

func TestLoadSettingsRejectsBadConcurrency(t *testing.T) {
	_, err := LoadSettings([]string{"GITDROP_CONCURRENCY=0"})
	assert.Error(t, err)
}

func TestDefaultSettings(t *testing.T) {
	s, err := LoadSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.github.com/", s.APIURL)
	assert.Equal(t, 10, s.Concurrency)
	assert.Zero(t, s.Timeout)
}

func TestHomeDir(t *testing.T) {
	t.Setenv("GITDROP_HOME", "/tmp/gitdrop-home")
	assert.Equal(t, "/tmp/gitdrop-home", HomeDir())
	assert.Equal(t, filepath.Join("/tmp/gitdrop-home", "logs"), LogsDir())
}

func TestFindRepoRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, err := FindRepoRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestDetectRepoURLOverride(t *testing.T) {
	t.Setenv("GITDROP_REPO_URL_OVERRIDE", "https://github.com/acme/demo")
	got, err := DetectRepoURL(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/demo", got)
}

func TestHistoryStoreInHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("GITDROP_HOME", home)

	store := DefaultSettings().HistoryStore()
	require.NoError(t, store.Record(context.Background(), history.Entry{ID: "01J0000000000000000000000A", Repository: "acme/site", Success: true}))

	_, err := os.Stat(filepath.Join(home, "history", "uploads", "acme", "site", "01J0000000000000000000000A.json"))
	assert.NoError(t, err)
}
