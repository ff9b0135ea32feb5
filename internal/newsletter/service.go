// Package newsletter accepts newsletter sign-ups and keeps the subscriber list
// in an append-only file.
package newsletter

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrDisposableEmail   = errors.New("disposable email addresses are not allowed")
	ErrAlreadySubscribed = errors.New("email is already subscribed")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Service validates and records subscriptions.
type Service struct {
	apiKey          string
	subscribersPath string

	mu          sync.Mutex
	blocked     map[string]struct{}
	subscribers map[string]struct{}
}

// NewService loads the blocklist and existing subscribers. Missing files are
// treated as empty.
func NewService(apiKey, subscribersPath, blocklistPath string) (*Service, error) {
	blocked, err := readLines(blocklistPath)
	if err != nil {
		return nil, fmt.Errorf("load blocklist: %w", err)
	}
	subscribers, err := readLines(subscribersPath)
	if err != nil {
		return nil, fmt.Errorf("load subscribers: %w", err)
	}

	log.Info().
		Int("blocked_domains", len(blocked)).
		Int("subscribers", len(subscribers)).
		Msg("newsletter lists loaded")

	return &Service{
		apiKey:          apiKey,
		subscribersPath: subscribersPath,
		blocked:         blocked,
		subscribers:     subscribers,
	}, nil
}

// CheckKey reports whether key matches the configured API key.
func (s *Service) CheckKey(key string) bool {
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) == 1
}

// ValidEmail applies the address pattern to the lowercased email.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.ToLower(email))
}

func (s *Service) isDisposable(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	_, ok := s.blocked[email[at+1:]]
	return ok
}

// Subscribe validates email and appends it to the subscribers file. It
// returns the address as stored, trimmed and lowercased.
func (s *Service) Subscribe(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !ValidEmail(email) {
		return "", ErrInvalidEmail
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isDisposable(email) {
		return "", ErrDisposableEmail
	}
	if _, ok := s.subscribers[email]; ok {
		return "", ErrAlreadySubscribed
	}
	if err := s.appendSubscriber(email); err != nil {
		return "", fmt.Errorf("store subscriber: %w", err)
	}
	s.subscribers[email] = struct{}{}
	return email, nil
}

// Count returns the number of known subscribers.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

func (s *Service) appendSubscriber(email string) error {
	f, err := os.OpenFile(s.subscribersPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(email + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readLines(path string) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	if path == "" {
		return out, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", path).Msg("list file missing, starting empty")
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out[line] = struct{}{}
	}
	return out, scanner.Err()
}
