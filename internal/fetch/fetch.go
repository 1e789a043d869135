// Package fetch downloads NCES EDGE school district boundary archives and
// extracts the shapefile pair the builder needs. Downloads are retried with
// exponential backoff; HTTP 4xx responses are treated as permanent.
package fetch

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultBaseURL is the NCES EDGE open-data endpoint for district composite
// boundary archives.
const DefaultBaseURL = "https://nces.ed.gov/programs/edge/data"

const (
	defaultMaxTries = 5
	defaultTimeout  = 10 * time.Minute
)

var yearCodePattern = regexp.MustCompile(`^\d{4}$`)

type Config struct {
	Logger  *slog.Logger
	Client  *http.Client
	BaseURL string
	DestDir string

	MaxTries uint
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.DestDir == "" {
		return errors.New("destination directory is required")
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: defaultTimeout}
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.MaxTries == 0 {
		c.MaxTries = defaultMaxTries
	}
	return nil
}

// Result holds the extracted shapefile pair for one school year.
type Result struct {
	ShpPath string
	DbfPath string
}

type Fetcher struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Fetcher{log: cfg.Logger, cfg: cfg}, nil
}

// ArchiveName returns the EDGE composite archive file name for a school year
// code such as "2324".
func ArchiveName(yearCode string) (string, error) {
	if !yearCodePattern.MatchString(yearCode) {
		return "", fmt.Errorf("school year code must be four digits, got %q", yearCode)
	}
	return fmt.Sprintf("EDGE_SCHOOLDISTRICT_TL%s_SY%s.zip", yearCode[2:], yearCode), nil
}

// Fetch downloads the archive for the given school year code (e.g. "2324"
// for SY 2023-2024) and extracts the .shp and .dbf members into DestDir.
func (f *Fetcher) Fetch(ctx context.Context, yearCode string) (*Result, error) {
	name, err := ArchiveName(yearCode)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(f.cfg.DestDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	url := f.cfg.BaseURL + "/" + name
	zipPath := filepath.Join(f.cfg.DestDir, name)

	if err := f.download(ctx, url, zipPath); err != nil {
		return nil, err
	}
	defer os.Remove(zipPath)

	res, err := f.extract(zipPath)
	if err != nil {
		return nil, err
	}
	f.log.Info("fetched district boundary archive",
		"school_year", yearCode, "shp", res.ShpPath, "dbf", res.DbfPath)
	return res, nil
}

func (f *Fetcher) download(ctx context.Context, url, dest string) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if attempt > 1 {
			f.log.Warn("retrying archive download", "attempt", attempt, "url", url)
		}
		return struct{}{}, f.downloadOnce(ctx, url, dest)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(f.cfg.MaxTries))
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	return nil
}

func (f *Fetcher) downloadOnce(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := f.cfg.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return backoff.Permanent(err)
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

// extract pulls the .shp and .dbf members out of the archive. Member paths
// are flattened to their base names to keep extraction inside DestDir.
func (f *Fetcher) extract(zipPath string) (*Result, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	var res Result
	for _, member := range zr.File {
		ext := strings.ToLower(filepath.Ext(member.Name))
		if ext != ".shp" && ext != ".dbf" {
			continue
		}
		dest := filepath.Join(f.cfg.DestDir, filepath.Base(member.Name))
		if err := extractMember(member, dest); err != nil {
			return nil, fmt.Errorf("failed to extract %s: %w", member.Name, err)
		}
		switch ext {
		case ".shp":
			res.ShpPath = dest
		case ".dbf":
			res.DbfPath = dest
		}
	}
	if res.ShpPath == "" || res.DbfPath == "" {
		return nil, fmt.Errorf("archive %s is missing the shapefile pair", filepath.Base(zipPath))
	}
	return &res, nil
}

func extractMember(member *zip.File, dest string) error {
	rc, err := member.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
