package main

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
)

type sessionFile struct {
	URL          string `json:"url"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// fileState is the session kept between invocations. It is the
// coordinator's credential store, so renewed access credentials land in it.
type fileState struct {
	path string

	mtx sync.Mutex
	sessionFile
}

func loadState(path string) (*fileState, error) {
	s := &fileState{path: path}
	b, err := ioutil.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &s.sessionFile); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileState) Access() string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.AccessToken
}

func (s *fileState) SetAccess(token string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.AccessToken = token
}

func (s *fileState) SetRefresh(token string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.RefreshToken = token
}

func (s *fileState) reset() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.AccessToken, s.RefreshToken = "", ""
}

func (s *fileState) save() error {
	s.mtx.Lock()
	b, err := json.MarshalIndent(s.sessionFile, "", "  ")
	s.mtx.Unlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := ioutil.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileState) remove() error {
	s.reset()
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
