package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/stringvet/stringvet/internal/api"
	"github.com/stringvet/stringvet/internal/common"
	"github.com/stringvet/stringvet/internal/storage"
	"github.com/stringvet/stringvet/internal/store"
)

// newClient builds the API client from configuration.
func newClient() (*api.Client, error) {
	baseURL := viper.GetString("api.base_url")
	if baseURL == "" {
		return nil, common.NewUserError(
			"localization service URL is not configured; set api.base_url, STRINGVET_API_BASE_URL, or --api",
			common.ErrMissingConfig)
	}

	return api.New(api.Config{
		BaseURL: baseURL,
		Timeout: viper.GetDuration("api.timeout"),
	})
}

// fileAndLanguage reads the target file and language from configuration.
func fileAndLanguage() (string, string, error) {
	fileID := viper.GetString("file")
	if fileID == "" {
		return "", "", common.NewUserError(
			"no localization file selected; set --file or STRINGVET_FILE",
			common.ErrMissingConfig)
	}
	language := viper.GetString("language")
	if language == "" {
		return "", "", common.NewUserError(
			"no target language selected; set --language or STRINGVET_LANGUAGE",
			common.ErrMissingConfig)
	}
	return fileID, language, nil
}

// openRunStore opens the local run database with proper path expansion.
func openRunStore() (*storage.RunStore, error) {
	dbPath := viper.GetString("data.db")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/stringvet/runs.db"
	}

	return storage.Open(expandPath(dbPath))
}

// expandPath expands a leading ~ and $VAR style environment variables.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// fetchedStore builds a translation store for the configured file and
// language and loads the initial snapshot.
func fetchedStore(ctx context.Context, client *api.Client) (*store.Store, error) {
	fileID, language, err := fileAndLanguage()
	if err != nil {
		return nil, err
	}

	st, err := store.New(client, fileID, language)
	if err != nil {
		return nil, err
	}
	if err := st.Fetch(ctx, ""); err != nil {
		return nil, err
	}
	return st, nil
}
