package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"vidsub/internal/logging"
)

// snapshot is the persisted JSON document. Binary artifact keys are written
// as null.
type snapshot struct {
	CurrentStep    Step       `json:"currentStep"`
	CompletedSteps []Step     `json:"completedSteps"`
	Artifacts      Artifacts  `json:"artifacts"`
	LastSaved      *time.Time `json:"lastSaved"`
}

// storedSnapshot tolerates missing fields so Load can apply defaults.
type storedSnapshot struct {
	CurrentStep    *Step      `json:"currentStep"`
	CompletedSteps []Step     `json:"completedSteps"`
	Artifacts      *Artifacts `json:"artifacts"`
	LastSaved      *time.Time `json:"lastSaved"`
}

// Save writes the persisted tier to the slot. Failures are logged, never
// returned.
func (s *Store) Save(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) {
	if s.slot == nil {
		return
	}
	now := s.now().UTC()
	completed := s.completed
	if completed == nil {
		completed = []Step{}
	}
	data, err := json.Marshal(snapshot{
		CurrentStep:    s.current,
		CompletedSteps: completed,
		Artifacts:      s.plain.plain(),
		LastSaved:      &now,
	})
	if err == nil {
		err = s.slot.Put(ctx, s.key, data)
	}
	if err != nil {
		logging.WarnWithContext(s.logger, "workflow state not saved", "workflow_save_failed",
			logging.String(logging.FieldErrorHint, "check the state directory is writable"),
			logging.String(logging.FieldImpact, "progress will not survive a restart"),
			logging.Error(err),
		)
		return
	}
	s.lastPersistedAt = &now
}

// Load replaces the persisted tier with the slot contents, keeping whatever
// is in the binary tier. A missing snapshot yields defaults; a corrupt one
// resets the workflow.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slot == nil {
		return
	}
	data, ok, err := s.slot.Get(ctx, s.key)
	if err != nil {
		logging.WarnWithContext(s.logger, "workflow state not loaded", "workflow_load_failed",
			logging.String(logging.FieldErrorHint, "check the state backend"),
			logging.String(logging.FieldImpact, "continuing with in-memory state"),
			logging.Error(err),
		)
		return
	}
	if !ok {
		s.current = FirstStep
		s.completed = nil
		s.plain = DefaultArtifacts()
		s.lastPersistedAt = nil
		s.segmentsPending = false
		return
	}
	stored, err := decodeSnapshot(data)
	if err != nil {
		logging.WarnWithContext(s.logger, "workflow state corrupt; resetting", "workflow_state_corrupt",
			logging.String(logging.FieldErrorHint, "the saved snapshot could not be parsed"),
			logging.String(logging.FieldImpact, "workflow restarted from the first step"),
			logging.Error(err),
		)
		s.resetLocked()
		s.saveLocked(ctx)
		return
	}
	s.applyLocked(stored)
}

func decodeSnapshot(data []byte) (storedSnapshot, error) {
	var stored storedSnapshot
	if err := json.Unmarshal(data, &stored); err != nil {
		return storedSnapshot{}, fmt.Errorf("decode workflow snapshot: %w", err)
	}
	return stored, nil
}

func (s *Store) applyLocked(stored storedSnapshot) {
	s.current = FirstStep
	if stored.CurrentStep != nil && stored.CurrentStep.Valid() {
		s.current = *stored.CurrentStep
	}

	s.completed = nil
	for _, step := range stored.CompletedSteps {
		if step.Valid() {
			s.completeLocked(step)
		}
	}

	plain := DefaultArtifacts()
	if stored.Artifacts != nil {
		plain = stored.Artifacts.plain()
	}
	plain.normalize()
	s.plain = plain

	s.lastPersistedAt = stored.LastSaved
	s.segmentsPending = s.current == StepMerge &&
		s.plain.TranslatedSRT != "" && len(s.plain.TranslationSegments) == 0
}

// Clear deletes the persisted snapshot. In-memory state is untouched.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slot == nil {
		return
	}
	if err := s.slot.Delete(ctx, s.key); err != nil {
		logging.WarnWithContext(s.logger, "workflow state not cleared", "workflow_clear_failed",
			logging.String(logging.FieldErrorHint, "remove the state file manually"),
			logging.Error(err),
		)
		return
	}
	s.lastPersistedAt = nil
}

// CompletedSteps returns the completed steps in ascending order.
func (s *Store) CompletedSteps() []Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.completed)
}

// CurrentStep returns the current step.
func (s *Store) CurrentStep() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
