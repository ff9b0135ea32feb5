package main

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"waffle-chat/internal/api"
	"waffle-chat/internal/cipher"
	"waffle-chat/internal/roomsync"
	"waffle-chat/internal/storage"
	"waffle-chat/internal/youtube"
)

// session bundles a synchronizer with the resources it holds open.
type session struct {
	sync   *roomsync.Synchronizer
	client *api.Client
	videos *youtube.Client
	cache  *storage.Cache
}

func (a *app) openSession(withCache bool) (*session, error) {
	id, err := a.cfg.Identity()
	if err != nil {
		return nil, err
	}

	client := api.NewClient(a.cfg.Server.URL, id)

	c := cipher.Default()
	if a.cfg.SharedSecret != "" {
		c = cipher.New(a.cfg.SharedSecret)
	}

	s := &session{
		client: client,
		videos: youtube.NewClient(a.cfg.YouTubeKey, ""),
	}

	opts := roomsync.Options{
		Identity:     id,
		Cipher:       c,
		PollInterval: a.cfg.PollInterval,
		NudgeURL:     client.NudgeURL,
	}
	if withCache {
		if cache, err := openCache(a.cfg.CachePath); err != nil {
			log.Warn().Err(err).Msg("message cache unavailable")
		} else {
			s.cache = cache
			opts.Cache = cache
		}
	}

	s.sync = roomsync.New(client, opts)
	return s, nil
}

func openCache(path string) (*storage.Cache, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
		return storage.OpenPath(path)
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return nil, err
	}
	cache, _, err := storage.Open(filepath.Join(dir, "waffle"))
	return cache, err
}

// close waits for background sends and releases the cache.
func (s *session) close() {
	s.sync.Wait()
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			log.Debug().Err(err).Msg("close cache")
		}
	}
}

// sendFailure reports the first send failure already queued on the event
// channel, without blocking.
func (s *session) sendFailure() error {
	for {
		select {
		case ev := <-s.sync.Events():
			if ev.Type == roomsync.EventSendFailed {
				return ev.Err
			}
		default:
			return nil
		}
	}
}
