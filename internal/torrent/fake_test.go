package torrent_test

import (
	"context"
	"errors"
	"strings"
	"sync"

	qbt "github.com/autobrr/go-qbittorrent"
)

type shareLimit struct {
	hashes  []string
	ratio   float64
	seeding int64
}

// fakeAPI is an in-memory qBittorrent.
type fakeAPI struct {
	mu        sync.Mutex
	torrents  map[string]qbt.Torrent
	added     []map[string]string
	resumed   []string
	limits    []shareLimit
	rejectAll bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{torrents: make(map[string]qbt.Torrent)}
}

func (f *fakeAPI) put(t qbt.Torrent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.torrents[strings.ToLower(t.Hash)] = t
}

func (f *fakeAPI) auth() error {
	if f.rejectAll {
		return errors.New("unexpected status: 403 Forbidden")
	}
	return nil
}

func (f *fakeAPI) LoginCtx(context.Context) error { return nil }

func (f *fakeAPI) AddTorrentFromMemoryCtx(_ context.Context, _ []byte, options map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.auth(); err != nil {
		return err
	}
	f.added = append(f.added, options)
	return nil
}

func (f *fakeAPI) GetTorrentsCtx(_ context.Context, o qbt.TorrentFilterOptions) ([]qbt.Torrent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.auth(); err != nil {
		return nil, err
	}
	var out []qbt.Torrent
	for _, hash := range o.Hashes {
		if t, ok := f.torrents[strings.ToLower(hash)]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeAPI) ResumeCtx(_ context.Context, hashes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.auth(); err != nil {
		return err
	}
	f.resumed = append(f.resumed, hashes...)
	return nil
}

func (f *fakeAPI) SetTorrentShareLimitCtx(_ context.Context, hashes []string, ratio float64, seeding int64, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.auth(); err != nil {
		return err
	}
	f.limits = append(f.limits, shareLimit{hashes: hashes, ratio: ratio, seeding: seeding})
	return nil
}
