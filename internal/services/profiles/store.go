// Package profiles provides profile management with file watching and persistence.
package profiles

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/j-veylop/usagewatch/internal/logger"
	"github.com/j-veylop/usagewatch/internal/models"
)

// CurrentSchemaVersion is the profiles file schema written by this build.
const CurrentSchemaVersion = 2

// ProfilesFile represents the JSON file structure for profile storage.
type ProfilesFile struct {
	Profiles      []models.Profile `json:"profiles"`
	ActiveProfile string           `json:"activeProfile,omitempty"`
	Version       int              `json:"version,omitempty"`
}

// Event represents a profile store event.
type Event struct {
	Type    EventType
	Error   error
	Profile *models.Profile
}

// EventType defines the type of profile store event.
type EventType int

const (
	EventProfilesLoaded EventType = iota
	EventProfilesChanged
	EventProfileUpdated
	EventActiveProfileChanged
	EventError
)

// Store manages profiles with file watching and change notifications.
// The coordinator reads through Snapshot, which hands out deep copies, so
// a tick never races with an external settings edit.
type Store struct {
	mu            sync.RWMutex
	profiles      []models.Profile
	activeProfile string
	filePath      string
	watcher       *fsnotify.Watcher
	eventChan     chan Event
	stopChan      chan struct{}
	debounceTimer *time.Timer
}

// New creates a new profile store and starts file watching.
func New(filePath string) (*Store, error) {
	s := &Store{
		profiles:  make([]models.Profile, 0),
		filePath:  filePath,
		eventChan: make(chan Event, 100),
		stopChan:  make(chan struct{}),
	}

	// Ensure directory exists
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	// Load profiles from file
	if err := s.load(); err != nil {
		// If file doesn't exist, create an empty profiles file
		if os.IsNotExist(err) {
			if err := s.save(); err != nil {
				return nil, fmt.Errorf("failed to create profiles file: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to load profiles: %w", err)
		}
	}

	// Start file watcher
	if err := s.startWatcher(); err != nil {
		return nil, fmt.Errorf("failed to start file watcher: %w", err)
	}

	s.sendEvent(Event{Type: EventProfilesLoaded})

	return s, nil
}

// Events returns the event channel for subscribing to profile changes.
func (s *Store) Events() <-chan Event {
	return s.eventChan
}

// Snapshot returns a deep copy of all profiles, in file order.
func (s *Store) Snapshot() []models.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profiles := make([]models.Profile, len(s.profiles))
	for i := range s.profiles {
		profiles[i] = s.profiles[i].Clone()
	}
	return profiles
}

// Get returns a copy of one profile by ID.
func (s *Store) Get(id string) *models.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.profiles {
		if s.profiles[i].ID == id {
			profile := s.profiles[i].Clone()
			return &profile
		}
	}
	return nil
}

// ActiveProfileID returns the ID of the profile active for display.
func (s *Store) ActiveProfileID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeProfile
}

// SetActiveProfile marks a profile active for display and persists the change.
func (s *Store) SetActiveProfile(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for i := range s.profiles {
		if s.profiles[i].ID == id {
			found = true
		}
		s.profiles[i].ActiveForDisplay = s.profiles[i].ID == id
	}
	if !found {
		return fmt.Errorf("profile not found: %s", id)
	}

	s.activeProfile = id
	if err := s.saveLocked(); err != nil {
		return fmt.Errorf("failed to save profiles: %w", err)
	}

	s.sendEvent(Event{Type: EventActiveProfileChanged})
	return nil
}

// Save persists coordinator-driven mutations (cached tier, cached
// reading, last-used time) back to the file. Unknown profiles are
// rejected; creation is the configuration layer's job.
func (s *Store) Save(profile models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for i := range s.profiles {
		if s.profiles[i].ID == profile.ID {
			s.profiles[i] = profile.Clone()
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("profile not found: %s", profile.ID)
	}

	if err := s.saveLocked(); err != nil {
		return fmt.Errorf("failed to save profiles: %w", err)
	}

	s.sendEvent(Event{Type: EventProfileUpdated, Profile: &profile})
	return nil
}

// Count returns the number of tracked profiles.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

// load reads and migrates the profiles file.
func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	file, err := parseProfilesFile(data)
	if err != nil {
		return err
	}

	s.profiles = file.Profiles
	s.activeProfile = file.ActiveProfile
	return nil
}

// save saves profiles to the JSON file (public version).
func (s *Store) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked saves profiles to the JSON file (must hold lock).
func (s *Store) saveLocked() error {
	file := ProfilesFile{
		Profiles:      s.profiles,
		ActiveProfile: s.activeProfile,
		Version:       CurrentSchemaVersion,
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}

	// Write to temp file first, then rename
	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpFile, s.filePath); err != nil {
		if removeErr := os.Remove(tmpFile); removeErr != nil {
			logger.Error("failed to remove temp file", "error", removeErr)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// startWatcher starts the file system watcher.
func (s *Store) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	// Watch the directory (to catch file creation/deletion)
	dir := filepath.Dir(s.filePath)
	if err := watcher.Add(dir); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Error("failed to close watcher", "error", closeErr)
		}
		return err
	}

	go s.watchLoop()
	return nil
}

// watchLoop handles file system events with debouncing.
func (s *Store) watchLoop() {
	const debounceInterval = 100 * time.Millisecond

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}

			// Only care about our profiles file
			if filepath.Base(event.Name) != filepath.Base(s.filePath) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// Debounce rapid changes
				if s.debounceTimer != nil {
					s.debounceTimer.Stop()
				}
				s.debounceTimer = time.AfterFunc(debounceInterval, func() {
					s.handleFileChange()
				})
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.sendEvent(Event{Type: EventError, Error: err})

		case <-s.stopChan:
			return
		}
	}
}

// handleFileChange reloads profiles after an external edit.
func (s *Store) handleFileChange() {
	s.mu.Lock()
	err := s.load()
	s.mu.Unlock()

	if err != nil {
		s.sendEvent(Event{Type: EventError, Error: err})
		return
	}

	s.sendEvent(Event{Type: EventProfilesChanged})
}

// sendEvent sends an event to the event channel non-blocking.
func (s *Store) sendEvent(event Event) {
	select {
	case s.eventChan <- event:
	default:
	}
}

// Close stops the watcher and releases resources.
func (s *Store) Close() error {
	close(s.stopChan)
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
