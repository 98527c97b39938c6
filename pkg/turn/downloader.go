package turn

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/chriscow/interview-agent/pkg/turn/internal"
)

// DefaultHubURL is where model revisions are fetched from.
const DefaultHubURL = "https://huggingface.co"

// Downloader fetches turn-detector model files into the model directory.
type Downloader struct {
	modelPath string
	baseURL   string
	client    *http.Client
	logger    *slog.Logger
}

// NewDownloader creates a downloader. Empty arguments select DefaultModelPath
// and DefaultHubURL.
func NewDownloader(modelPath, baseURL string, logger *slog.Logger) *Downloader {
	if modelPath == "" {
		modelPath = DefaultModelPath()
	}
	if baseURL == "" {
		baseURL = DefaultHubURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		modelPath: modelPath,
		baseURL:   baseURL,
		client:    &http.Client{},
		logger:    logger,
	}
}

// Models returns the names of every known model.
func Models() []string {
	names := make([]string, 0, len(internal.AllModels))
	for _, m := range internal.AllModels {
		names = append(names, m.Name)
	}
	return names
}

// Download fetches the named model. Files already present with a matching hash
// are skipped.
func (d *Downloader) Download(ctx context.Context, name string) error {
	model, ok := internal.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown turn detector model: %s", name)
	}

	for _, file := range model.Files {
		dest := internal.FilePath(d.modelPath, model, file)
		logger := d.logger.With(slog.String("model", model.Name), slog.String("file", file))

		if d.isValid(model, file, dest) {
			logger.Info("model file up to date")
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("create model directory: %w", err)
		}

		logger.Info("downloading model file")
		if err := d.fetch(ctx, model, file, dest); err != nil {
			return fmt.Errorf("download %s/%s: %w", model.Name, file, err)
		}
		if !d.isValid(model, file, dest) {
			os.Remove(dest)
			return fmt.Errorf("download %s/%s: checksum mismatch", model.Name, file)
		}
	}
	return nil
}

// fetch writes to a temporary file first so an interrupted download never leaves
// a truncated model in place.
func (d *Downloader) fetch(ctx context.Context, model internal.ModelInfo, file, dest string) error {
	url := fmt.Sprintf("%s/%s/resolve/%s/%s", d.baseURL, model.Repo, model.Revision, file)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

func (d *Downloader) isValid(model internal.ModelInfo, file, path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return false
	}
	want, ok := model.Hashes[file]
	if !ok {
		return true
	}
	got, err := fileSHA256(path)
	return err == nil && got == want
}

// Status reports, per model name, whether every file is present and valid.
func (d *Downloader) Status() map[string]bool {
	status := make(map[string]bool, len(internal.AllModels))
	for _, model := range internal.AllModels {
		complete := true
		for _, file := range model.Files {
			if !d.isValid(model, file, internal.FilePath(d.modelPath, model, file)) {
				complete = false
				break
			}
		}
		status[model.Name] = complete
	}
	return status
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
