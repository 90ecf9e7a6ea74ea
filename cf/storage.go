package cf

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	maxBypassAge    = 24 * time.Hour
	failureCooldown = 5 * time.Minute
	failedAtHeader  = "_failed_at"
)

// ErrNoBypassData is returned when nothing is stored for a domain
var ErrNoBypassData = errors.New("no cf data stored for domain")

// ErrInvalidDomain is returned for domains that cannot be used as a file name
var ErrInvalidDomain = errors.New("invalid domain")

// Store keeps one JSON file of bypass data per domain under dir
type Store struct {
	dir string
	log zerolog.Logger
}

// NewStore returns a store rooted at dir
func NewStore(dir string, log zerolog.Logger) *Store {
	return &Store{dir: dir, log: log.With().Str("component", "cf").Logger()}
}

// DefaultDir is <user config dir>/scrollgrab/cf
func DefaultDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(configDir, "scrollgrab", "cf"), nil
}

// Dir returns the directory the store writes to
func (s *Store) Dir() string {
	return s.dir
}

// checkDomain rejects anything that would resolve outside the store directory
func checkDomain(domain string) error {
	if domain == "" || domain == "." || strings.Contains(domain, "..") ||
		strings.ContainsAny(domain, `/\`) || filepath.Base(domain) != domain {
		return fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	return nil
}

func (s *Store) path(domain string) (string, error) {
	if err := checkDomain(domain); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", domain)), nil
}

// Save writes the captured data for domain
func (s *Store) Save(data *BypassData, domain string) error {
	filename, err := s.path(domain)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := os.WriteFile(filename, jsonData, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	s.log.Debug().
		Str("domain", domain).
		Str("file", filename).
		Int("cookies", len(data.AllCookies)).
		Msg("saved bypass data")
	return nil
}

// Load reads the captured data for domain
func (s *Store) Load(domain string) (*BypassData, error) {
	filename, err := s.path(domain)
	if err != nil {
		return nil, err
	}
	jsonData, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoBypassData, domain)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var data BypassData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if data.Headers == nil {
		data.Headers = map[string]string{}
	}

	s.log.Debug().Str("domain", domain).Int("bytes", len(jsonData)).Msg("loaded bypass data")
	return &data, nil
}

// LoadValid loads the data for domain and rejects it when Validate does.
// A parent domain is tried when the exact host has nothing stored, so
// "www.example.com" finds data captured for "example.com".
func (s *Store) LoadValid(domain string, now time.Time) (*BypassData, error) {
	var lastErr error
	for _, d := range candidateDomains(domain) {
		data, err := s.Load(d)
		if err != nil {
			lastErr = err
			continue
		}
		if err := Validate(data, now); err != nil {
			return nil, err
		}
		return data, nil
	}
	return nil, lastErr
}

func candidateDomains(domain string) []string {
	domain = strings.TrimPrefix(strings.ToLower(domain), ".")
	out := []string{domain}
	parts := strings.Split(domain, ".")
	for i := 1; i < len(parts)-1; i++ {
		out = append(out, strings.Join(parts[i:], "."))
	}
	return out
}

// Validate checks if stored cookie data is still usable at now
func Validate(data *BypassData, now time.Time) error {
	if data == nil {
		return errors.New("bypass data is nil")
	}

	if data.CapturedAt != "" {
		if capturedTime, err := time.Parse(time.RFC3339, data.CapturedAt); err == nil {
			if age := now.Sub(capturedTime); age > maxBypassAge {
				return fmt.Errorf("bypass data is too old: %v (max: %v)", age.Round(time.Minute), maxBypassAge)
			}
		}
	}

	cc := data.CfClearanceStruct
	if cc == nil {
		return errors.New("no cf_clearance cookie structure found")
	}
	if cc.Value == "" {
		return errors.New("cf_clearance value is empty")
	}
	if cc.Expires != nil && now.After(*cc.Expires) {
		return fmt.Errorf("cf_clearance cookie has expired at %v", cc.Expires.Format(time.RFC3339))
	}

	if failedAt, ok := data.Headers[failedAtHeader]; ok {
		if failTime, err := time.Parse(time.RFC3339, failedAt); err == nil {
			if since := now.Sub(failTime); since < failureCooldown {
				return fmt.Errorf("cookie failed recently (%v ago), needs manual re-capture", since.Round(time.Second))
			}
		}
	}

	return nil
}

// MarkFailed records that the stored cookie did not get us past a challenge
func (s *Store) MarkFailed(domain string, now time.Time) error {
	data, err := s.Load(domain)
	if err != nil {
		return err
	}

	data.Headers[failedAtHeader] = now.Format(time.RFC3339)
	s.log.Warn().Str("domain", domain).Msg("marking stored cookie as failed")
	return s.Save(data, domain)
}

// List returns all domains that have stored data, sorted
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	domains := []string{}
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			domains = append(domains, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}
	sort.Strings(domains)
	return domains, nil
}

// Delete removes stored data for domain
func (s *Store) Delete(domain string) error {
	filename, err := s.path(domain)
	if err != nil {
		return err
	}
	if err := os.Remove(filename); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNoBypassData, domain)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	s.log.Info().Str("domain", domain).Msg("deleted bypass data")
	return nil
}
